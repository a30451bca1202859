package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing ids. Ids are consumed only by
// Next, so callers validate before allocating.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer whose first Next returns start.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next id.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1) - 1
}

// Peek returns the id the next call to Next will hand out.
func (s *Sequencer) Peek() uint64 {
	return s.next.Load()
}

// Reset makes v the next id handed out.
// Only used when restoring from a snapshot or after journal replay.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
