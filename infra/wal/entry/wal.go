package entry

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrFailed marks a WAL that could not undo a failed append. It refuses
// further appends; reopening cuts the partial frame as a torn tail.
var ErrFailed = errors.New("wal: failed")

type Config struct {
	Dir         string
	SegmentSize int64
	// SyncEveryWrite fsyncs after each Append.
	SyncEveryWrite bool
}

// WAL is the append-only journal of intents. It is safe for concurrent
// use but callers normally serialize appends with the engine.
type WAL struct {
	mu      sync.Mutex
	dir     string
	segSize int64
	sync    bool
	current *segment
	lastSeq uint64
	closed  bool
	failed  error
}

// Open resumes the highest existing segment, cutting off a torn tail
// left by a crash, or starts segment 0 in an empty directory.
func Open(cfg Config) (*WAL, error) {
	if cfg.SegmentSize <= 0 {
		return nil, errors.New("wal: segment size must be positive")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create wal dir")
	}

	segs, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	w := &WAL{dir: cfg.Dir, segSize: cfg.SegmentSize, sync: cfg.SyncEveryWrite}

	index := 0
	if n := len(segs); n > 0 {
		last := segs[n-1]
		index = last.index

		info, err := scanSegment(last.path)
		if err != nil {
			return nil, err
		}
		if info.torn {
			if err := os.Truncate(last.path, info.validEnd); err != nil {
				return nil, errors.Wrap(err, "cut torn wal tail")
			}
		}
		w.lastSeq = info.maxSeq

		// An empty last segment says nothing about seq; look further back.
		for i := n - 2; i >= 0 && info.records == 0; i-- {
			if info, err = scanSegment(segs[i].path); err != nil {
				return nil, err
			}
			w.lastSeq = info.maxSeq
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}
	w.current = seg
	return w, nil
}

// LastSeq is the seq of the newest record in the log, 0 when empty.
func (w *WAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

// Append writes r, first moving to a new segment once the current one has
// reached its size. A record whose write or sync fails is cut from the
// file again, so a failed Append never leaves bytes that hide later ones.
func (w *WAL) Append(r *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.closed:
		return errors.New("wal: closed")
	case w.failed != nil:
		return w.failed
	case r.Seq <= w.lastSeq:
		return errors.AssertionFailedf("wal: seq %d not above %d", r.Seq, w.lastSeq)
	}

	if w.current.offset >= w.segSize {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	prev := w.current.offset
	if err := w.current.append(encodeRecord(r)); err != nil {
		return w.undo(prev, errors.Wrapf(err, "append seq %d", r.Seq), false)
	}
	if w.sync {
		if err := w.current.sync(); err != nil {
			// After a failed fsync the page cache state is unknown.
			return w.undo(prev, errors.Wrapf(err, "sync seq %d", r.Seq), true)
		}
	}
	w.lastSeq = r.Seq
	return nil
}

// undo truncates the current segment back to prev. The WAL is failed when
// the truncate does not succeed or fail is set.
func (w *WAL) undo(prev int64, cause error, fail bool) error {
	if err := w.current.truncate(prev); err != nil {
		w.failed = errors.Mark(errors.CombineErrors(cause, errors.Wrap(err, "cut failed append")), ErrFailed)
		return w.failed
	}
	if fail {
		w.failed = errors.Mark(cause, ErrFailed)
		return w.failed
	}
	return cause
}

// rotate seals the current segment. If the next one cannot be opened the
// current segment stays in use; a failed seal fails the WAL.
func (w *WAL) rotate() error {
	seg, err := openSegment(w.dir, w.current.index+1)
	if err != nil {
		return err
	}
	if err := w.current.sync(); err != nil {
		_ = seg.close()
		w.failed = errors.Mark(errors.Wrap(err, "sync before rotate"), ErrFailed)
		return w.failed
	}
	_ = w.current.close()
	w.current = seg
	return nil
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.current.sync(); err != nil {
		_ = w.current.close()
		return err
	}
	return w.current.close()
}

// TruncateBefore removes closed segments whose records all have seq <= seq.
// The segment being written is never removed.
func (w *WAL) TruncateBefore(seq uint64) (removed int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	segs, err := listSegments(w.dir)
	if err != nil {
		return 0, err
	}
	for _, s := range segs {
		if s.index >= w.current.index {
			break
		}
		info, err := scanSegment(s.path)
		if err != nil {
			return removed, err
		}
		if info.maxSeq > seq {
			break
		}
		if err := os.Remove(s.path); err != nil {
			return removed, errors.Wrapf(err, "remove segment %d", s.index)
		}
		removed++
	}
	return removed, nil
}
