package service

import (
	"github.com/cockroachdb/errors"

	"ladder/domain/matching"
	entrywal "ladder/infra/wal/entry"
	exitwal "ladder/infra/wal/exit"
	"ladder/snapshot"
)

// RecoverStats describes one recovery run.
type RecoverStats struct {
	SnapshotSeq uint64
	Replayed    int
	LastSeq     uint64
	Reemitted   int
}

// Recover rebuilds the engine from the latest snapshot in snapDir and
// the journal records after it in walDir. It must run before the
// service takes traffic. Events of replayed intents that never reached
// the outbox are appended; records already there keep their state.
func (s *OrderService) Recover(snapDir, walDir string) (RecoverStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st RecoverStats

	snap, err := snapshot.Load(snapDir)
	if err != nil {
		return st, err
	}
	if snap != nil {
		if snap.Symbol != "" && s.symbol != "" && snap.Symbol != s.symbol {
			return st, errors.Newf("snapshot is for %s, service runs %s", snap.Symbol, s.symbol)
		}
		if err := s.engine.Restore(snap.State); err != nil {
			return st, errors.Wrap(err, "restore snapshot")
		}
		st.SnapshotSeq = snap.Seq
	}

	var events []matching.Event
	last, err := entrywal.Replay(walDir, st.SnapshotSeq, func(rec *entrywal.Record) error {
		evs, err := s.apply(rec)
		if err != nil {
			return err
		}
		events = append(events, evs...)
		st.Replayed++
		return nil
	})
	if err != nil {
		return st, errors.Wrap(err, "replay journal")
	}
	st.LastSeq = last
	s.seq = max(s.seq, last)

	if s.outbox != nil && len(events) > 0 {
		entries := make([]exitwal.Entry, 0, len(events))
		for _, ev := range events {
			b, err := encodeEnvelope(s.symbol, ev)
			if err != nil {
				return st, err
			}
			entries = append(entries, exitwal.Entry{Seq: ev.Seq, Payload: b})
		}
		if st.Reemitted, err = s.outbox.AppendMissing(entries...); err != nil {
			return st, errors.Wrap(err, "re-emit events")
		}
	}

	s.log.Info("recovered",
		"snapshot_seq", st.SnapshotSeq, "replayed", st.Replayed,
		"last_seq", st.LastSeq, "reemitted", st.Reemitted, "resting", s.engine.Resting())
	s.observeTop()
	return st, nil
}

// apply re-runs one journaled intent. Rejections and cancel misses
// happened the same way the first time and are not errors here.
func (s *OrderService) apply(rec *entrywal.Record) ([]matching.Event, error) {
	switch rec.Type {
	case entrywal.RecordPlace:
		req, err := decodePlace(rec.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "seq %d", rec.Seq)
		}
		res, err := s.engine.Submit(req)
		if err != nil && !matching.IsValidation(err) {
			return nil, errors.Wrapf(err, "replay place seq %d", rec.Seq)
		}
		return res.Events, nil

	case entrywal.RecordCancel:
		id, err := decodeCancel(rec.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "seq %d", rec.Seq)
		}
		res, err := s.engine.Cancel(id)
		if errors.Is(err, matching.ErrOrderNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "replay cancel seq %d", rec.Seq)
		}
		return []matching.Event{res.Event}, nil

	default:
		return nil, errors.Newf("unknown journal record type %d at seq %d", rec.Type, rec.Seq)
	}
}
