package orderbook

import (
	"math"

	"github.com/cockroachdb/errors"
)

// Index is one side of the book: price levels ordered best-first.
// Bids are best at the highest price, asks at the lowest.
type Index struct {
	side Side
	tree *RBTree
}

func NewIndex(side Side) *Index {
	return &Index{side: side, tree: NewRBTree()}
}

func (x *Index) Side() Side { return x.side }

// Levels is the number of non-empty price levels.
func (x *Index) Levels() int { return x.tree.Len() }

// Insert queues o at the tail of the level for its limit price.
func (x *Index) Insert(o *Order) error {
	switch {
	case o.Side != x.side:
		return errors.AssertionFailedf("order %d is a %s, inserted into %s index", o.ID, o.Side, x.side)
	case o.Price.IsMarket():
		return errors.AssertionFailedf("market order %d cannot rest", o.ID)
	case o.Remaining <= 0:
		return errors.AssertionFailedf("order %d rests with remaining %d", o.ID, o.Remaining)
	case o.Resting():
		return errors.AssertionFailedf("order %d is already queued", o.ID)
	}
	if lvl := x.tree.Find(o.Price.Ticks()); lvl != nil && lvl.TotalQty > math.MaxInt64-o.Remaining {
		return errors.AssertionFailedf("order %d overflows %s level %d aggregate", o.ID, x.side, lvl.Price)
	}
	x.tree.GetOrCreate(o.Price.Ticks()).Enqueue(o)
	return nil
}

// Remove takes o out of its level and drops the level once empty.
func (x *Index) Remove(o *Order) error {
	lvl := x.tree.Find(o.Price.Ticks())
	if lvl == nil {
		return errors.AssertionFailedf("order %d points at missing %s level %d", o.ID, x.side, o.Price.Ticks())
	}
	if !lvl.contains(o) {
		return errors.AssertionFailedf("order %d not queued on %s level %d", o.ID, x.side, lvl.Price)
	}
	lvl.unlink(o)
	if lvl.Empty() {
		x.tree.Delete(lvl.Price)
	}
	return nil
}

// Best returns the most aggressive level, or nil when the side is empty.
func (x *Index) Best() *PriceLevel {
	if x.side == Bid {
		return x.tree.Max()
	}
	return x.tree.Min()
}

func (x *Index) Level(price int64) *PriceLevel {
	return x.tree.Find(price)
}

// Walk visits levels best-first until fn returns false.
func (x *Index) Walk(fn func(*PriceLevel) bool) {
	if x.side == Bid {
		x.tree.Descend(fn)
		return
	}
	x.tree.Ascend(fn)
}

// Depth copies out up to limit levels best-first. limit <= 0 means all.
func (x *Index) Depth(limit int) []LevelDepth {
	n := x.tree.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]LevelDepth, 0, n)
	x.Walk(func(lvl *PriceLevel) bool {
		if len(out) == n {
			return false
		}
		out = append(out, LevelDepth{
			Price:    lvl.Price,
			Quantity: lvl.TotalQty,
			Orders:   lvl.OrderCount,
		})
		return true
	})
	return out
}
