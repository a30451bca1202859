package matching

import (
	"github.com/cockroachdb/errors"

	"ladder/domain/orderbook"
)

// State is everything needed to rebuild an engine: the id counters and
// every resting order, best level first and FIFO within a level.
type State struct {
	NextOrderID uint64
	NextTradeID uint64
	NextArrival uint64
	NextEvent   uint64
	Orders      []OrderView
}

// State copies the engine out under the read lock.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := State{
		NextOrderID: e.orderIDs.Peek(),
		NextTradeID: e.tradeIDs.Peek(),
		NextArrival: e.arrivals.Peek(),
		NextEvent:   e.events.Peek(),
		Orders:      make([]OrderView, 0, e.book.Orders.Len()),
	}
	e.book.Walk(func(o *orderbook.Order) {
		s.Orders = append(s.Orders, viewOf(o))
	})
	return s
}

// Restore loads s into an engine that has not accepted any order yet.
// Orders are re-queued in the given order, so FIFO position survives.
func (e *Engine) Restore(s State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.book.Orders.Len() != 0 || e.orderIDs.Peek() != 0 {
		return errors.New("restore into a used engine")
	}

	book := orderbook.NewOrderBook()
	for _, v := range s.Orders {
		switch {
		case uint64(v.ID) >= s.NextOrderID:
			return errors.Newf("snapshot order %d beyond next order id %d", v.ID, s.NextOrderID)
		case v.Seq >= s.NextArrival:
			return errors.Newf("snapshot order %d beyond next arrival %d", v.ID, s.NextArrival)
		case !v.Side.Valid():
			return errors.Newf("snapshot order %d has unknown side %d", v.ID, v.Side)
		case v.Price <= 0:
			return errors.Newf("snapshot order %d rests at price %d", v.ID, v.Price)
		case v.Remaining <= 0 || v.Remaining > v.Qty:
			return errors.Newf("snapshot order %d remaining %d of %d", v.ID, v.Remaining, v.Qty)
		}
		o := &orderbook.Order{
			ID:        v.ID,
			Client:    v.Client,
			Side:      v.Side,
			Price:     orderbook.Limit(v.Price),
			Qty:       v.Qty,
			Remaining: v.Remaining,
			Seq:       v.Seq,
		}
		if err := book.Rest(o); err != nil {
			return errors.Wrapf(err, "restore order %d", v.ID)
		}
	}
	if err := book.Check(); err != nil {
		return errors.Wrap(err, "restored book")
	}

	e.book = book
	e.orderIDs.Reset(s.NextOrderID)
	e.tradeIDs.Reset(s.NextTradeID)
	e.arrivals.Reset(s.NextArrival)
	e.events.Reset(max(s.NextEvent, 1))
	return nil
}
