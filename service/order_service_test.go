package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladder/domain/matching"
	"ladder/domain/orderbook"
	"ladder/infra/cache"
	"ladder/infra/logging"
	"ladder/infra/metrics"
	entrywal "ladder/infra/wal/entry"
	exitwal "ladder/infra/wal/exit"
	"ladder/snapshot"
)

type captureFeed struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (f *captureFeed) Broadcast(msg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

type dirs struct {
	wal, outbox, snap string
}

func newDirs(t *testing.T) dirs {
	return dirs{wal: t.TempDir(), outbox: t.TempDir(), snap: t.TempDir()}
}

type harness struct {
	svc     *OrderService
	journal *entrywal.WAL
	outbox  *exitwal.Outbox
	feed    *captureFeed
	metrics *metrics.Metrics
}

func (h *harness) close(t *testing.T) {
	t.Helper()
	require.NoError(t, h.journal.Close())
	require.NoError(t, h.outbox.Close())
}

func open(t *testing.T, d dirs) *harness {
	t.Helper()
	j, err := entrywal.Open(entrywal.Config{Dir: d.wal, SegmentSize: 256})
	require.NoError(t, err)
	ob, err := exitwal.Open(d.outbox)
	require.NoError(t, err)

	h := &harness{journal: j, outbox: ob, feed: &captureFeed{}, metrics: metrics.New(prometheus.NewRegistry())}
	h.svc = NewOrderService(Options{
		Symbol:  "LDR-USD",
		Engine:  matching.New(),
		Journal: j,
		Outbox:  ob,
		Feed:    h.feed,
		Metrics: h.metrics,
		Logger:  logging.Discard(),
	})
	return h
}

func limit(client orderbook.ClientID, side orderbook.Side, price, qty int64) matching.SubmitRequest {
	return matching.SubmitRequest{Client: client, Side: side, Price: orderbook.Limit(price), Qty: qty}
}

// runTrace drives the documented book walk-through and returns the
// number of events it emits.
func runTrace(t *testing.T, svc *OrderService) int {
	t.Helper()
	ctx := context.Background()
	for _, req := range []matching.SubmitRequest{
		limit(0, orderbook.Bid, 90, 5),
		limit(0, orderbook.Bid, 100, 3),
		limit(0, orderbook.Ask, 110, 3),
		limit(0, orderbook.Ask, 120, 2),
		limit(1, orderbook.Ask, 110, 2),
		limit(1, orderbook.Ask, 130, 6),
		limit(1, orderbook.Bid, 110, 2),
		limit(0, orderbook.Bid, 80, 10),
	} {
		_, err := svc.PlaceOrder(ctx, req)
		require.NoError(t, err)
	}
	_, err := svc.CancelOrder(ctx, 7)
	require.NoError(t, err)
	res, err := svc.PlaceOrder(ctx, limit(1, orderbook.Bid, 140, 20))
	require.NoError(t, err)
	require.Equal(t, orderbook.OrderID(8), res.OrderID)
	return 14
}

func TestTraceReachesOutboxAndFeed(t *testing.T) {
	h := open(t, newDirs(t))
	defer h.close(t)

	n := runTrace(t, h.svc)
	assert.Equal(t, uint64(10), h.svc.LastSeq())

	var seqs []uint64
	var trades int
	require.NoError(t, h.outbox.ScanPending(1, func(r exitwal.Record) error {
		env, err := DecodeEnvelope(r.Payload)
		require.NoError(t, err)
		assert.Equal(t, "LDR-USD", env.Symbol)
		assert.Equal(t, r.Seq, env.Seq)
		if env.Type == matching.EventTrade {
			trades++
		}
		seqs = append(seqs, r.Seq)
		return nil
	}))
	require.Len(t, seqs, n)
	for i, s := range seqs {
		assert.Equal(t, uint64(i+1), s)
	}
	assert.Equal(t, 5, trades)
	assert.Len(t, h.feed.msgs, n)

	assert.Equal(t, 5.0, testutil.ToFloat64(h.metrics.Trades))
	assert.Equal(t, 13.0, testutil.ToFloat64(h.metrics.Volume))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Cancels.WithLabelValues("canceled")))
	assert.Equal(t, 140.0, testutil.ToFloat64(h.metrics.BestBid))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.BestAsk))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.Resting))
}

func TestRejectionIsJournaledAndPublished(t *testing.T) {
	h := open(t, newDirs(t))
	defer h.close(t)

	_, err := h.svc.PlaceOrder(context.Background(), limit(3, orderbook.Bid, 100, 0))
	require.Error(t, err)
	assert.True(t, matching.IsValidation(err))
	assert.Equal(t, uint64(1), h.svc.LastSeq())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Submits.WithLabelValues("rejected")))

	rec, err := h.outbox.Get(1)
	require.NoError(t, err)
	env, err := DecodeEnvelope(rec.Payload)
	require.NoError(t, err)
	assert.Equal(t, matching.EventOrderRejected, env.Type)
	require.NotNil(t, env.Rejected)
	assert.Equal(t, orderbook.ClientID(3), env.Rejected.ClientID)
}

func TestCancelNotFound(t *testing.T) {
	h := open(t, newDirs(t))
	defer h.close(t)

	_, err := h.svc.CancelOrder(context.Background(), 42)
	assert.True(t, errors.Is(err, matching.ErrOrderNotFound))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Cancels.WithLabelValues("not_found")))
	assert.Empty(t, h.feed.msgs)
}

func TestJournalFailureLeavesBookUntouched(t *testing.T) {
	h := open(t, newDirs(t))
	defer h.outbox.Close()

	require.NoError(t, h.journal.Close())
	_, err := h.svc.PlaceOrder(context.Background(), limit(1, orderbook.Bid, 100, 1))
	require.Error(t, err)
	assert.Zero(t, h.svc.Engine().Resting())
	assert.Zero(t, h.svc.Engine().State().NextOrderID)
	assert.Zero(t, h.svc.LastSeq())
}

func TestCanceledContext(t *testing.T) {
	svc := NewOrderService(Options{Symbol: "X", Logger: logging.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.PlaceOrder(ctx, limit(1, orderbook.Bid, 100, 1))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = svc.CancelOrder(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithoutCollaborators(t *testing.T) {
	svc := NewOrderService(Options{Symbol: "X", Logger: logging.Discard()})
	runTrace(t, svc)
	assert.Zero(t, svc.LastSeq())
	assert.Equal(t, 3, svc.Engine().Resting())
}

func TestRecoverFromJournalOnly(t *testing.T) {
	d := newDirs(t)
	h := open(t, d)
	runTrace(t, h.svc)
	want := h.svc.Engine().State()
	h.close(t)

	h = open(t, d)
	defer h.close(t)
	st, err := h.svc.Recover(d.snap, d.wal)
	require.NoError(t, err)
	assert.Zero(t, st.SnapshotSeq)
	assert.Equal(t, 10, st.Replayed)
	assert.Equal(t, uint64(10), st.LastSeq)
	assert.Zero(t, st.Reemitted, "every event is already in the outbox")
	assert.Equal(t, want, h.svc.Engine().State())
	require.NoError(t, h.svc.Engine().Check())

	res, err := h.svc.PlaceOrder(context.Background(), limit(2, orderbook.Ask, 150, 1))
	require.NoError(t, err)
	assert.Equal(t, orderbook.OrderID(9), res.OrderID)
	assert.Equal(t, uint64(11), h.svc.LastSeq())
}

func TestRecoverFromSnapshotAndTail(t *testing.T) {
	d := newDirs(t)
	h := open(t, d)
	ctx := context.Background()

	for _, req := range []matching.SubmitRequest{
		limit(0, orderbook.Bid, 90, 5),
		limit(0, orderbook.Bid, 100, 3),
		limit(0, orderbook.Ask, 110, 3),
		limit(0, orderbook.Ask, 120, 2),
	} {
		_, err := h.svc.PlaceOrder(ctx, req)
		require.NoError(t, err)
	}
	job := NewSnapshotJob(h.svc, d.snap, time.Hour, nil, 5)
	require.NoError(t, job.RunOnce(ctx))

	_, err := h.svc.PlaceOrder(ctx, limit(1, orderbook.Bid, 110, 4))
	require.NoError(t, err)
	_, err = h.svc.CancelOrder(ctx, 0)
	require.NoError(t, err)
	want := h.svc.Engine().State()
	h.close(t)

	// A fresh outbox shows the events of the replayed tail being re-emitted.
	d.outbox = t.TempDir()
	h = open(t, d)
	defer h.close(t)
	st, err := h.svc.Recover(d.snap, d.wal)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), st.SnapshotSeq)
	assert.Equal(t, 2, st.Replayed)
	assert.Equal(t, want, h.svc.Engine().State())

	// trade, placed remainder, cancel
	assert.Equal(t, 3, st.Reemitted)
	pending, err := h.outbox.Pending(1)
	require.NoError(t, err)
	assert.Equal(t, 3, pending)
}

func TestRecoverRejectsForeignSnapshot(t *testing.T) {
	d := newDirs(t)
	h := open(t, d)
	require.NoError(t, NewSnapshotJob(h.svc, d.snap, time.Hour, nil, 5).RunOnce(context.Background()))
	h.close(t)

	svc := NewOrderService(Options{Symbol: "OTHER", Logger: logging.Discard()})
	_, err := svc.Recover(d.snap, d.wal)
	assert.Error(t, err)
}

func TestSnapshotJobCompacts(t *testing.T) {
	d := newDirs(t)
	h := open(t, d)
	defer h.close(t)
	ctx := context.Background()

	runTrace(t, h.svc)
	require.NoError(t, h.outbox.ScanPending(1, func(r exitwal.Record) error {
		if r.Seq <= 5 {
			return h.outbox.MarkAcked(r.Seq)
		}
		return nil
	}))

	mr := miniredis.RunT(t)
	dc := cache.NewDepthCache(mr.Addr(), "", 0, time.Minute)
	defer dc.Close()

	job := NewSnapshotJob(h.svc, d.snap, time.Hour, dc, 2)
	require.NoError(t, job.RunOnce(ctx))

	for seq := uint64(1); seq <= 5; seq++ {
		_, err := h.outbox.Get(seq)
		assert.True(t, errors.Is(err, exitwal.ErrNotFound), "acked seq %d purged", seq)
	}
	_, err := h.outbox.Get(6)
	assert.NoError(t, err)

	var left []uint64
	_, err = entrywal.Replay(d.wal, 0, func(r *entrywal.Record) error {
		left = append(left, r.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Less(t, len(left), 10, "closed segments covered by the snapshot are gone")

	cached, err := dc.Get(ctx, "LDR-USD")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, uint64(10), cached.Seq)
	assert.Equal(t, h.svc.Depth(2), cached.Depth)
}

func TestSnapshotJobRunStopsWithContext(t *testing.T) {
	d := newDirs(t)
	h := open(t, d)
	defer h.close(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSnapshotJob(h.svc, d.snap, time.Hour, nil, 5).Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	assert.FileExists(t, d.snap+"/snapshot.bin")
}

func outboxSeqs(t *testing.T, ob *exitwal.Outbox) []uint64 {
	t.Helper()
	var seqs []uint64
	require.NoError(t, ob.ScanPending(1, func(r exitwal.Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	}))
	return seqs
}

// swapOutbox reopens the outbox directory the way an operator restoring
// the store would, while the service keeps running.
func swapOutbox(t *testing.T, h *harness, dir string) {
	t.Helper()
	ob, err := exitwal.Open(dir)
	require.NoError(t, err)
	h.outbox = ob
	h.svc.outbox = ob
}

func TestOutboxFailureHoldsBackSnapshot(t *testing.T) {
	d := newDirs(t)
	h := open(t, d)
	defer h.close(t)
	ctx := context.Background()

	_, err := h.svc.PlaceOrder(ctx, limit(0, orderbook.Bid, 100, 3))
	require.NoError(t, err)

	require.NoError(t, h.outbox.Close())
	_, err = h.svc.PlaceOrder(ctx, limit(0, orderbook.Ask, 110, 2))
	require.NoError(t, err, "the book changed even though the event is held back")
	_, err = h.svc.PlaceOrder(ctx, limit(1, orderbook.Bid, 110, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, h.svc.Unsent(), "placed ask and the trade")

	job := NewSnapshotJob(h.svc, d.snap, time.Hour, nil, 5)
	err = job.RunOnce(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutboxBehind))
	snap, err := snapshot.Load(d.snap)
	require.NoError(t, err)
	assert.Nil(t, snap)

	swapOutbox(t, h, d.outbox)
	require.NoError(t, job.RunOnce(ctx))
	assert.Zero(t, h.svc.Unsent())
	assert.Equal(t, []uint64{1, 2, 3}, outboxSeqs(t, h.outbox))

	snap, err = snapshot.Load(d.snap)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, uint64(3), snap.Seq)
}

func TestHeldBackEventsGoFirst(t *testing.T) {
	d := newDirs(t)
	h := open(t, d)
	defer h.close(t)
	ctx := context.Background()

	require.NoError(t, h.outbox.Close())
	_, err := h.svc.PlaceOrder(ctx, limit(0, orderbook.Ask, 110, 2))
	require.NoError(t, err)
	_, err = h.svc.PlaceOrder(ctx, limit(0, orderbook.Ask, 0, 2))
	require.Error(t, err)
	assert.Equal(t, 2, h.svc.Unsent())

	swapOutbox(t, h, d.outbox)
	_, err = h.svc.CancelOrder(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, h.svc.Unsent())
	assert.Equal(t, []uint64{1, 2, 3}, outboxSeqs(t, h.outbox))
	assert.Len(t, h.feed.msgs, 3, "the feed saw every event once")
}
