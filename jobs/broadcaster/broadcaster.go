package broadcaster

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"ladder/infra/metrics"
	exitwal "ladder/infra/wal/exit"
)

// Publisher delivers one event to the broker. Publish returns only
// after the broker has the message.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

type Config struct {
	// Key is the message key; the symbol keeps one partition per book.
	Key        string
	Interval   time.Duration
	MaxRetries uint32
}

// Broadcaster drains the outbox to a Publisher in seq order.
type Broadcaster struct {
	outbox  *exitwal.Outbox
	pub     Publisher
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(outbox *exitwal.Outbox, pub Publisher, cfg Config, log *slog.Logger, m *metrics.Metrics) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	return &Broadcaster{
		outbox:  outbox,
		pub:     pub,
		cfg:     cfg,
		log:     log.With("component", "broadcaster"),
		metrics: m,
	}
}

// Run drains on every tick until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("started", "interval", b.cfg.Interval)
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("stopped")
			return
		case <-ticker.C:
			if _, err := b.DrainOnce(ctx); err != nil && ctx.Err() == nil {
				b.log.Warn("drain", "err", err)
			}
		}
	}
}

var errStopPass = errors.New("stop pass")

// DrainOnce publishes pending records until the first failure, so a
// failed event is retried before anything newer goes out.
func (b *Broadcaster) DrainOnce(ctx context.Context) (int, error) {
	published := 0
	var pubErr error

	err := b.outbox.ScanPending(b.cfg.MaxRetries, func(rec exitwal.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.State == exitwal.StateNew {
			if err := b.outbox.MarkSent(rec.Seq); err != nil {
				return err
			}
		}

		if err := b.pub.Publish(ctx, []byte(b.cfg.Key), rec.Payload); err != nil {
			if b.metrics != nil {
				b.metrics.PublishFailed.Inc()
			}
			if merr := b.outbox.MarkFailed(rec.Seq); merr != nil {
				return merr
			}
			pubErr = errors.Wrapf(err, "event %d", rec.Seq)
			return errStopPass
		}

		if err := b.outbox.MarkAcked(rec.Seq); err != nil {
			return err
		}
		if b.metrics != nil {
			b.metrics.Published.Inc()
		}
		published++
		return nil
	})
	if errors.Is(err, errStopPass) {
		return published, pubErr
	}
	return published, err
}

func (b *Broadcaster) Close() error {
	return b.pub.Close()
}
