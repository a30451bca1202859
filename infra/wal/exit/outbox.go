package exit

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrNotFound = errors.New("outbox: record not found")
	ErrClosed   = errors.New("outbox: closed")
)

// Record is one outgoing event. Seq is the engine event seq.
type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// value encoding: [state:1][retries:4][lastAttempt:8][payload]
const valueHeader = 1 + 4 + 8

func encodeValue(r Record) []byte {
	buf := make([]byte, valueHeader+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[valueHeader:], r.Payload)
	return buf
}

func decodeValue(seq uint64, b []byte) (Record, error) {
	if len(b) < valueHeader {
		return Record{}, errors.Newf("outbox: short value for seq %d", seq)
	}
	payload := make([]byte, len(b)-valueHeader)
	copy(payload, b[valueHeader:])
	return Record{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

const (
	keyPrefix = "event/"
	keyUpper  = "event/~"
)

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf(keyPrefix+"%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b[len(keyPrefix):]), 10, 64)
}

// Outbox is the durable exit log between the engine and the broker.
type Outbox struct {
	mu     sync.Mutex
	db     *pebble.DB
	closed atomic.Bool
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open outbox %s", dir)
	}
	return &Outbox{db: db}, nil
}

// Close is idempotent. Calls after Close return ErrClosed.
func (o *Outbox) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	return o.db.Close()
}

// Entry is a new event handed to Append.
type Entry struct {
	Seq     uint64
	Payload []byte
}

// Append stores entries as NEW in one synced batch.
func (o *Outbox) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if o.closed.Load() {
		return ErrClosed
	}
	b := o.db.NewBatch()
	defer b.Close()
	for _, e := range entries {
		if err := b.Set(keyFor(e.Seq), encodeValue(Record{State: StateNew, Payload: e.Payload}), nil); err != nil {
			return errors.Wrapf(err, "stage event %d", e.Seq)
		}
	}
	return errors.Wrap(b.Commit(pebble.Sync), "commit outbox batch")
}

// AppendMissing stores the entries whose seq is not held yet and leaves
// existing records, whatever their state, untouched. Recovery uses it to
// re-emit events without resending acknowledged ones.
func (o *Outbox) AppendMissing(entries ...Entry) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var missing []Entry
	for _, e := range entries {
		_, err := o.Get(e.Seq)
		if errors.Is(err, ErrNotFound) {
			missing = append(missing, e)
			continue
		}
		if err != nil {
			return 0, err
		}
	}
	return len(missing), o.Append(missing...)
}

func (o *Outbox) Get(seq uint64) (Record, error) {
	if o.closed.Load() {
		return Record{}, ErrClosed
	}
	val, closer, err := o.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, errors.Wrapf(ErrNotFound, "seq %d", seq)
	}
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeValue(seq, val)
}

func (o *Outbox) MarkSent(seq uint64) error {
	return o.update(seq, func(r *Record) { r.State = StateSent })
}

func (o *Outbox) MarkAcked(seq uint64) error {
	return o.update(seq, func(r *Record) { r.State = StateAcked })
}

// MarkFailed records a failed attempt and bumps the retry count.
func (o *Outbox) MarkFailed(seq uint64) error {
	return o.update(seq, func(r *Record) {
		r.State = StateFailed
		r.Retries++
	})
}

func (o *Outbox) update(seq uint64, fn func(*Record)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	fn(&rec)
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq), encodeValue(rec), pebble.Sync)
}

// ScanPending visits NEW and SENT records, and FAILED ones below
// maxRetries, in seq order. fn may update the record it is given.
func (o *Outbox) ScanPending(maxRetries uint32, fn func(Record) error) error {
	return o.scan(func(r Record) (bool, error) {
		switch r.State {
		case StateNew, StateSent:
		case StateFailed:
			if r.Retries >= maxRetries {
				return true, nil
			}
		default:
			return true, nil
		}
		return true, fn(r)
	})
}

// Pending counts what ScanPending would visit.
func (o *Outbox) Pending(maxRetries uint32) (int, error) {
	n := 0
	err := o.ScanPending(maxRetries, func(Record) error {
		n++
		return nil
	})
	return n, err
}

// TruncateAckedUpTo deletes ACKED records with seq <= upTo.
func (o *Outbox) TruncateAckedUpTo(upTo uint64) (int, error) {
	var doomed []uint64
	err := o.scan(func(r Record) (bool, error) {
		if r.Seq > upTo {
			return false, nil
		}
		if r.State == StateAcked {
			doomed = append(doomed, r.Seq)
		}
		return true, nil
	})
	if err != nil || len(doomed) == 0 {
		return 0, err
	}

	b := o.db.NewBatch()
	defer b.Close()
	for _, seq := range doomed {
		if err := b.Delete(keyFor(seq), nil); err != nil {
			return 0, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, errors.Wrap(err, "commit outbox purge")
	}
	return len(doomed), nil
}

// LastSeq is the highest seq held, 0 when empty.
func (o *Outbox) LastSeq() (uint64, error) {
	if o.closed.Load() {
		return 0, ErrClosed
	}
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// scan walks records in seq order until fn returns false or an error.
// Records are decoded before fn runs, so fn may write to the db.
func (o *Outbox) scan(fn func(Record) (bool, error)) error {
	if o.closed.Load() {
		return ErrClosed
	}
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return errors.Wrapf(err, "outbox key %q", iter.Key())
		}
		rec, err := decodeValue(seq, iter.Value())
		if err != nil {
			return err
		}
		more, err := fn(rec)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}
