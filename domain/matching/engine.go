package matching

import (
	"math"
	"sync"

	"ladder/domain/orderbook"
	"ladder/infra/memory"
	"ladder/infra/sequence"
)

// SubmitRequest is an order-entry intent.
type SubmitRequest struct {
	Client orderbook.ClientID
	Side   orderbook.Side
	Price  orderbook.Price
	Qty    int64
}

// Validate checks the request on its own. The engine adds the size limits
// that depend on its configuration and book.
func (r SubmitRequest) Validate() error {
	switch {
	case !r.Side.Valid():
		return &ValidationError{Reason: ErrUnknownSide}
	case r.Qty <= 0:
		return &ValidationError{Reason: ErrNonPositiveQuantity}
	case !r.Price.IsMarket() && r.Price.Ticks() <= 0:
		return &ValidationError{Reason: ErrNonPositivePrice}
	}
	return nil
}

type Status uint8

const (
	StatusRejected Status = iota
	// StatusResting: nothing matched, the whole order rests.
	StatusResting
	// StatusPartiallyFilled: some quantity matched, the rest rests.
	StatusPartiallyFilled
	StatusFilled
	// StatusCanceled: a market order whose remainder was discarded.
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusResting:
		return "resting"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCanceled:
		return "canceled"
	default:
		return "rejected"
	}
}

type SubmitResult struct {
	OrderID   orderbook.OrderID
	Status    Status
	Remaining int64
	Trades    []Trade
	Events    []Event
}

type CancelResult struct {
	OrderID   orderbook.OrderID
	Remaining int64
	Event     Event
}

// OrderView is a copy of a resting order.
type OrderView struct {
	ID        orderbook.OrderID
	Client    orderbook.ClientID
	Side      orderbook.Side
	Price     int64
	Qty       int64
	Remaining int64
	Seq       uint64
}

// Engine matches a single instrument. Submit and Cancel hold the write
// lock for the whole operation; queries hold the read lock and copy out,
// so they see either the state before or after a mutation.
type Engine struct {
	mu   sync.RWMutex
	book *orderbook.OrderBook
	pool *memory.Pool[orderbook.Order]

	maxQty int64

	orderIDs *sequence.Sequencer
	tradeIDs *sequence.Sequencer
	arrivals *sequence.Sequencer
	events   *sequence.Sequencer
}

// DefaultMaxQuantity caps a single order unless WithMaxQuantity says
// otherwise.
const DefaultMaxQuantity int64 = 1_000_000_000_000

type Option func(*Engine)

// WithMaxQuantity sets the largest accepted order quantity. n <= 0 keeps
// the default.
func WithMaxQuantity(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxQty = n
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		maxQty: DefaultMaxQuantity,
		book:   orderbook.NewOrderBook(),
		pool:   memory.NewPool(func() *orderbook.Order {
			return &orderbook.Order{}
		}),
		orderIDs: sequence.New(0),
		tradeIDs: sequence.New(0),
		arrivals: sequence.New(0),
		events:   sequence.New(1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxQuantity is the largest order quantity Submit accepts.
func (e *Engine) MaxQuantity() int64 { return e.maxQty }

// ---- commands ----

// Submit validates, matches and optionally rests an order. A validation
// failure returns a *ValidationError together with the OrderRejected
// event; no order id is consumed.
func (e *Engine) Submit(req SubmitRequest) (SubmitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.admit(req); err != nil {
		ev := e.emit(Event{Type: EventOrderRejected, Rejected: &OrderRejected{
			ClientID: req.Client,
			Reason:   err.Reason.Error(),
		}})
		return SubmitResult{Status: StatusRejected, Events: []Event{ev}}, err
	}

	o := e.pool.Get()
	*o = orderbook.Order{
		ID:        orderbook.OrderID(e.orderIDs.Next()),
		Client:    req.Client,
		Side:      req.Side,
		Price:     req.Price,
		Qty:       req.Qty,
		Remaining: req.Qty,
		Seq:       e.arrivals.Next(),
	}
	res := SubmitResult{OrderID: o.ID}

	if err := e.sweep(o, &res); err != nil {
		return res, err
	}
	res.Remaining = o.Remaining

	switch {
	case o.Remaining == 0:
		res.Status = StatusFilled
		e.pool.Put(o)
	case o.Price.IsMarket():
		res.Status = StatusCanceled
		res.Events = append(res.Events, e.emit(Event{Type: EventOrderCanceled, Canceled: &OrderCanceled{
			OrderID:   o.ID,
			Remaining: o.Remaining,
			Reason:    ReasonMarketRemainder,
		}}))
		e.pool.Put(o)
	default:
		if err := e.book.Rest(o); err != nil {
			return res, err
		}
		res.Status = StatusResting
		if len(res.Trades) > 0 {
			res.Status = StatusPartiallyFilled
		}
		res.Events = append(res.Events, e.emit(Event{Type: EventOrderPlaced, Placed: &OrderPlaced{
			OrderID:  o.ID,
			ClientID: o.Client,
			Side:     o.Side,
			Price:    o.Price.Ticks(),
			Quantity: o.Remaining,
		}}))
	}
	return res, nil
}

// admit runs Validate plus the checks that depend on engine state. The
// level check assumes the whole quantity may rest, so an accepted order
// can never overflow its level aggregate.
func (e *Engine) admit(req SubmitRequest) *ValidationError {
	if err := req.Validate(); err != nil {
		return err.(*ValidationError)
	}
	if req.Qty > e.maxQty {
		return &ValidationError{Reason: ErrQuantityTooLarge}
	}
	if !req.Price.IsMarket() {
		lvl := e.book.Side(req.Side).Level(req.Price.Ticks())
		if lvl != nil && lvl.TotalQty > math.MaxInt64-req.Qty {
			return &ValidationError{Reason: ErrLevelFull}
		}
	}
	return nil
}

// sweep matches o against the opposite side, best level first and FIFO
// within a level, until o is filled or the best level no longer crosses.
func (e *Engine) sweep(o *orderbook.Order, res *SubmitResult) error {
	opposite := e.book.Side(o.Side.Opposite())
	for o.Remaining > 0 {
		best := opposite.Best()
		if best == nil || !o.Price.Crosses(o.Side, best.Price) {
			return nil
		}

		head := best.Head()
		fill := min(o.Remaining, head.Remaining)
		o.Remaining -= fill
		best.Fill(head, fill)

		t := Trade{
			ID:          TradeID(e.tradeIDs.Next()),
			Price:       best.Price,
			Size:        fill,
			Maker:       head.ID,
			Taker:       o.ID,
			TakerSide:   o.Side,
			MakerClient: head.Client,
			TakerClient: o.Client,
		}
		res.Trades = append(res.Trades, t)
		res.Events = append(res.Events, e.emit(Event{Type: EventTrade, Trade: &t}))

		if head.Remaining == 0 {
			if err := e.book.Unlink(head); err != nil {
				return err
			}
			e.pool.Put(head)
		}
	}
	return nil
}

// Cancel removes a resting order. Unknown, filled and already canceled
// ids return ErrOrderNotFound and change nothing.
func (e *Engine) Cancel(id orderbook.OrderID) (CancelResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.book.Orders.Lookup(id)
	if err != nil {
		return CancelResult{}, err
	}
	if err := e.book.Unlink(o); err != nil {
		return CancelResult{}, err
	}

	res := CancelResult{OrderID: id, Remaining: o.Remaining}
	res.Event = e.emit(Event{Type: EventOrderCanceled, Canceled: &OrderCanceled{
		OrderID:   id,
		Remaining: o.Remaining,
		Reason:    ReasonClientCancel,
	}})
	e.pool.Put(o)
	return res, nil
}

func (e *Engine) emit(ev Event) Event {
	ev.Seq = e.events.Next()
	return ev
}

// ---- queries ----

// Depth returns up to levels aggregated levels per side, best first.
// levels <= 0 returns every level.
func (e *Engine) Depth(levels int) orderbook.Depth {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Depth(levels)
}

// BestBid returns the best bid price and its aggregate size.
func (e *Engine) BestBid() (price, size int64, ok bool) {
	return e.best(orderbook.Bid)
}

// BestAsk returns the best ask price and its aggregate size.
func (e *Engine) BestAsk() (price, size int64, ok bool) {
	return e.best(orderbook.Ask)
}

func (e *Engine) best(s orderbook.Side) (int64, int64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lvl := e.book.Side(s).Best()
	if lvl == nil {
		return 0, 0, false
	}
	return lvl.Price, lvl.TotalQty, true
}

func (e *Engine) Lookup(id orderbook.OrderID) (OrderView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, err := e.book.Orders.Lookup(id)
	if err != nil {
		return OrderView{}, err
	}
	return viewOf(o), nil
}

// Resting is the number of orders on the book.
func (e *Engine) Resting() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Orders.Len()
}

// Check runs the book's invariant checks under the read lock.
func (e *Engine) Check() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Check()
}

func viewOf(o *orderbook.Order) OrderView {
	return OrderView{
		ID:        o.ID,
		Client:    o.Client,
		Side:      o.Side,
		Price:     o.Price.Ticks(),
		Qty:       o.Qty,
		Remaining: o.Remaining,
		Seq:       o.Seq,
	}
}
