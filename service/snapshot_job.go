package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"ladder/infra/cache"
	"ladder/snapshot"
)

// SnapshotJob periodically persists the engine state, then drops journal
// segments and acknowledged outbox records the snapshot covers.
type SnapshotJob struct {
	svc         *OrderService
	writer      *snapshot.Writer
	cache       *cache.DepthCache
	depthLevels int
	interval    time.Duration
	log         *slog.Logger
}

// NewSnapshotJob builds the job. depthCache may be nil.
func NewSnapshotJob(svc *OrderService, dir string, interval time.Duration, depthCache *cache.DepthCache, depthLevels int) *SnapshotJob {
	return &SnapshotJob{
		svc:         svc,
		writer:      &snapshot.Writer{Dir: dir},
		cache:       depthCache,
		depthLevels: depthLevels,
		interval:    interval,
		log:         svc.log.With("component", "snapshot_job"),
	}
}

// capture takes the engine state together with the journal seq it
// reflects. It refuses while events are missing from the outbox: recovery
// only re-emits the events of intents after the snapshot.
func (s *OrderService) capture() (*snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushUnsent(); err != nil {
		return nil, err
	}
	return &snapshot.Snapshot{
		Seq:     s.seq,
		Symbol:  s.symbol,
		Created: time.Now().UTC(),
		State:   s.engine.State(),
	}, nil
}

// RunOnce writes one snapshot and compacts behind it.
func (j *SnapshotJob) RunOnce(ctx context.Context) error {
	snap, err := j.svc.capture()
	if err != nil {
		return errors.Wrap(err, "snapshot skipped")
	}
	if err := j.writer.Write(snap); err != nil {
		return errors.Wrap(err, "write snapshot")
	}

	removed := 0
	if j.svc.journal != nil {
		n, err := j.svc.journal.TruncateBefore(snap.Seq)
		if err != nil {
			return errors.Wrap(err, "truncate journal")
		}
		removed = n
	}

	purged := 0
	if j.svc.outbox != nil && snap.State.NextEvent > 1 {
		n, err := j.svc.outbox.TruncateAckedUpTo(snap.State.NextEvent - 1)
		if err != nil {
			return errors.Wrap(err, "purge outbox")
		}
		purged = n
	}

	if j.cache != nil {
		err := j.cache.Set(ctx, j.svc.symbol, cache.CachedDepth{
			Seq:   snap.Seq,
			At:    snap.Created,
			Depth: depthFromState(snap, j.depthLevels),
		})
		if err != nil {
			j.log.Warn("depth cache update failed", "err", err)
		}
	}

	j.log.Info("snapshot written",
		"seq", snap.Seq, "orders", len(snap.State.Orders),
		"segments_removed", removed, "outbox_purged", purged)
	return nil
}

// Run snapshots on every tick and once more on shutdown.
func (j *SnapshotJob) Run(ctx context.Context) {
	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := j.RunOnce(context.Background()); err != nil {
				j.log.Error("final snapshot failed", "err", err)
			}
			return
		case <-t.C:
			if err := j.RunOnce(ctx); err != nil {
				j.log.Error("snapshot failed", "err", err)
			}
		}
	}
}
