package orderbook

import (
	"math"

	"github.com/cockroachdb/errors"
)

// OrderBook holds both sides and the registry. It is not safe for
// concurrent use; the matching engine is its single writer.
type OrderBook struct {
	Bids   *Index
	Asks   *Index
	Orders *Registry
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		Bids:   NewIndex(Bid),
		Asks:   NewIndex(Ask),
		Orders: NewRegistry(),
	}
}

func (b *OrderBook) Side(s Side) *Index {
	if s == Bid {
		return b.Bids
	}
	return b.Asks
}

// Rest queues o on its own side and registers it.
func (b *OrderBook) Rest(o *Order) error {
	if err := b.Orders.Insert(o); err != nil {
		return err
	}
	if err := b.Side(o.Side).Insert(o); err != nil {
		b.Orders.Erase(o.ID)
		return err
	}
	return nil
}

// Unlink removes a resting order from its level and the registry.
func (b *OrderBook) Unlink(o *Order) error {
	if err := b.Side(o.Side).Remove(o); err != nil {
		return err
	}
	b.Orders.Erase(o.ID)
	return nil
}

// ---- queries ----

type LevelDepth struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
	Orders   int   `json:"orders"`
}

// Depth is the aggregated view of both sides, best price first.
type Depth struct {
	Bids []LevelDepth `json:"bids"`
	Asks []LevelDepth `json:"asks"`
}

func (b *OrderBook) Depth(limit int) Depth {
	return Depth{
		Bids: b.Bids.Depth(limit),
		Asks: b.Asks.Depth(limit),
	}
}

// Walk visits every resting order, bids then asks, best level first and
// FIFO within a level.
func (b *OrderBook) Walk(fn func(*Order)) {
	for _, side := range []*Index{b.Bids, b.Asks} {
		side.Walk(func(lvl *PriceLevel) bool {
			for o := lvl.Head(); o != nil; o = o.Next() {
				fn(o)
			}
			return true
		})
	}
}

// Check verifies the structural invariants of the book: level aggregates,
// no empty or zero-quantity entries, FIFO arrival order, registry
// consistency and an uncrossed spread.
func (b *OrderBook) Check() error {
	seen := 0
	for _, side := range []*Index{b.Bids, b.Asks} {
		var err error
		side.Walk(func(lvl *PriceLevel) bool {
			if lvl.Empty() {
				err = errors.AssertionFailedf("empty %s level %d left in index", side.side, lvl.Price)
				return false
			}
			var sum int64
			var count int
			var lastSeq uint64
			for o := lvl.Head(); o != nil; o = o.Next() {
				switch {
				case o.Remaining <= 0:
					err = errors.AssertionFailedf("order %d rests with remaining %d", o.ID, o.Remaining)
				case o.Price.Ticks() != lvl.Price || o.Side != side.side:
					err = errors.AssertionFailedf("order %d queued on wrong level %s %d", o.ID, side.side, lvl.Price)
				case count > 0 && o.Seq <= lastSeq:
					err = errors.AssertionFailedf("level %d out of arrival order at order %d", lvl.Price, o.ID)
				case o.Remaining > math.MaxInt64-sum:
					err = errors.AssertionFailedf("level %s %d aggregate overflows at order %d", side.side, lvl.Price, o.ID)
				}
				if err != nil {
					return false
				}
				if reg, lerr := b.Orders.Lookup(o.ID); lerr != nil || reg != o {
					err = errors.AssertionFailedf("order %d queued but not registered", o.ID)
					return false
				}
				lastSeq = o.Seq
				sum += o.Remaining
				count++
			}
			if sum != lvl.TotalQty || count != lvl.OrderCount {
				err = errors.AssertionFailedf("level %s %d aggregate %d/%d, members %d/%d",
					side.side, lvl.Price, lvl.TotalQty, lvl.OrderCount, sum, count)
				return false
			}
			seen += count
			return true
		})
		if err != nil {
			return err
		}
	}
	if seen != b.Orders.Len() {
		return errors.AssertionFailedf("registry holds %d orders, levels hold %d", b.Orders.Len(), seen)
	}
	bid, ask := b.Bids.Best(), b.Asks.Best()
	if bid != nil && ask != nil && bid.Price >= ask.Price {
		return errors.AssertionFailedf("book crossed: bid %d >= ask %d", bid.Price, ask.Price)
	}
	return nil
}
