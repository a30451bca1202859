package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"ladder/domain/matching"
	"ladder/domain/orderbook"
	"ladder/infra/metrics"
	entrywal "ladder/infra/wal/entry"
	exitwal "ladder/infra/wal/exit"
)

// EventSink receives every encoded event after it reached the outbox.
// Broadcast must not block.
type EventSink interface {
	Broadcast(msg []byte)
}

// Options wires the collaborators. Everything except Engine may be nil;
// a nil Journal runs the book without durability.
type Options struct {
	Symbol  string
	Engine  *matching.Engine
	Journal *entrywal.WAL
	Outbox  *exitwal.Outbox
	Feed    EventSink
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// OrderService serializes intents so that journal order equals engine
// order.
type OrderService struct {
	mu      sync.Mutex
	symbol  string
	engine  *matching.Engine
	journal *entrywal.WAL
	outbox  *exitwal.Outbox
	feed    EventSink
	metrics *metrics.Metrics
	log     *slog.Logger

	// seq is the last journal seq handed out.
	seq uint64
	// unsent holds events, oldest first, whose outbox append failed. They
	// go out ahead of the next batch, and no snapshot is taken past them.
	unsent []exitwal.Entry
}

// ErrOutboxBehind reports events that are applied but not yet stored in
// the outbox.
var ErrOutboxBehind = errors.New("events missing from the outbox")

func NewOrderService(opts Options) *OrderService {
	if opts.Engine == nil {
		opts.Engine = matching.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &OrderService{
		symbol:  opts.Symbol,
		engine:  opts.Engine,
		journal: opts.Journal,
		outbox:  opts.Outbox,
		feed:    opts.Feed,
		metrics: opts.Metrics,
		log:     opts.Logger.With("component", "order_service", "symbol", opts.Symbol),
	}
	if s.journal != nil {
		s.seq = s.journal.LastSeq()
	}
	return s
}

// ---- commands ----

// PlaceOrder journals the intent, then matches it. A journal failure
// leaves the book untouched.
func (s *OrderService) PlaceOrder(ctx context.Context, req matching.SubmitRequest) (matching.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return matching.SubmitResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.record(entrywal.RecordPlace, encodePlace(req)); err != nil {
		return matching.SubmitResult{}, err
	}

	res, err := s.engine.Submit(req)
	s.emit(res.Events)

	switch {
	case err == nil:
		s.count(s.submitCounter(res.Status.String()))
		if s.metrics != nil {
			for _, t := range res.Trades {
				s.metrics.ObserveTrade(t.Size)
			}
		}
		s.log.Debug("order accepted",
			"order_id", res.OrderID, "status", res.Status.String(), "trades", len(res.Trades))
	case matching.IsValidation(err):
		s.count(s.submitCounter("rejected"))
		s.log.Debug("order rejected", "client_id", req.Client, "err", err)
	default:
		s.count(s.submitCounter("error"))
		s.log.Error("submit failed", "client_id", req.Client, "err", err,
			"invariant", matching.IsInvariantViolation(err))
	}

	if s.metrics != nil {
		s.metrics.SubmitLatency.Observe(time.Since(start).Seconds())
	}
	s.observeTop()
	return res, err
}

// CancelOrder journals the cancel, then applies it.
func (s *OrderService) CancelOrder(ctx context.Context, id orderbook.OrderID) (matching.CancelResult, error) {
	if err := ctx.Err(); err != nil {
		return matching.CancelResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(entrywal.RecordCancel, encodeCancel(id)); err != nil {
		return matching.CancelResult{}, err
	}

	res, err := s.engine.Cancel(id)
	switch {
	case err == nil:
		s.emit([]matching.Event{res.Event})
		s.count(s.cancelCounter("canceled"))
		s.log.Debug("order canceled", "order_id", id, "remaining", res.Remaining)
	case errors.Is(err, matching.ErrOrderNotFound):
		s.count(s.cancelCounter("not_found"))
	default:
		s.count(s.cancelCounter("error"))
		s.log.Error("cancel failed", "order_id", id, "err", err,
			"invariant", matching.IsInvariantViolation(err))
	}
	s.observeTop()
	return res, err
}

func (s *OrderService) record(t entrywal.RecordType, payload []byte) error {
	if s.journal == nil {
		return nil
	}
	seq := s.seq + 1
	if err := s.journal.Append(entrywal.NewRecord(t, seq, payload)); err != nil {
		s.log.Error("journal append failed", "seq", seq, "err", err)
		return errors.Wrap(err, "journal intent")
	}
	s.seq = seq
	return nil
}

// emit stores events in the outbox, then pushes them to the feed. On an
// outbox failure the events are kept in unsent; the book has already
// changed.
func (s *OrderService) emit(events []matching.Event) {
	if len(events) == 0 || (s.outbox == nil && s.feed == nil) {
		return
	}

	entries := make([]exitwal.Entry, 0, len(events))
	for _, ev := range events {
		b, err := encodeEnvelope(s.symbol, ev)
		if err != nil {
			s.log.Error("encode event", "seq", ev.Seq, "err", err)
			continue
		}
		entries = append(entries, exitwal.Entry{Seq: ev.Seq, Payload: b})
	}

	if s.outbox != nil {
		batch := append(s.unsent, entries...)
		if err := s.outbox.Append(batch...); err != nil {
			s.unsent = batch
			s.log.Error("outbox append failed", "first_seq", batch[0].Seq, "unsent", len(batch), "err", err)
		} else {
			s.unsent = nil
		}
	}
	if s.feed != nil {
		for _, e := range entries {
			s.feed.Broadcast(e.Payload)
		}
	}
}

// flushUnsent retries the held back events. Callers hold s.mu.
func (s *OrderService) flushUnsent() error {
	if len(s.unsent) == 0 || s.outbox == nil {
		return nil
	}
	if err := s.outbox.Append(s.unsent...); err != nil {
		return errors.Mark(errors.Wrapf(err, "%d events from seq %d", len(s.unsent), s.unsent[0].Seq), ErrOutboxBehind)
	}
	s.log.Info("outbox caught up", "events", len(s.unsent))
	s.unsent = nil
	return nil
}

// ---- queries ----

func (s *OrderService) Symbol() string { return s.symbol }

func (s *OrderService) Engine() *matching.Engine { return s.engine }

func (s *OrderService) Depth(levels int) orderbook.Depth {
	return s.engine.Depth(levels)
}

func (s *OrderService) Lookup(id orderbook.OrderID) (matching.OrderView, error) {
	return s.engine.Lookup(id)
}

// Unsent is the number of events waiting for the outbox.
func (s *OrderService) Unsent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unsent)
}

// LastSeq is the seq of the last journaled intent.
func (s *OrderService) LastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// ---- metrics ----

func (s *OrderService) submitCounter(result string) func(*metrics.Metrics) {
	return func(m *metrics.Metrics) { m.Submits.WithLabelValues(result).Inc() }
}

func (s *OrderService) cancelCounter(result string) func(*metrics.Metrics) {
	return func(m *metrics.Metrics) { m.Cancels.WithLabelValues(result).Inc() }
}

func (s *OrderService) count(fn func(*metrics.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

func (s *OrderService) observeTop() {
	if s.metrics == nil {
		return
	}
	bid, _, _ := s.engine.BestBid()
	ask, _, _ := s.engine.BestAsk()
	s.metrics.ObserveTop(bid, ask, s.engine.Resting())
}
