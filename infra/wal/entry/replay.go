package entry

import (
	"bufio"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

type ReplayHandler func(*Record) error

// Replay hands every record with seq > after to fn in log order and
// returns the last seq seen (after, if nothing newer exists). A torn
// tail in the newest segment ends the log; damage anywhere else fails.
func Replay(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	segs, err := listSegments(dir)
	if err != nil {
		return after, err
	}

	lastSeq = after
	var prev uint64
	for i, s := range segs {
		last := i == len(segs)-1
		if prev, err = replaySegment(s, last, prev, after, fn); err != nil {
			return lastSeq, err
		}
		lastSeq = max(lastSeq, prev)
	}
	return lastSeq, nil
}

func replaySegment(s segmentFile, last bool, prev, after uint64, fn ReplayHandler) (uint64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return prev, errors.Wrapf(err, "open segment %d", s.index)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := readRecord(r)
		if err == io.EOF {
			return prev, nil
		}
		if err != nil {
			if last && torn(err) {
				return prev, nil
			}
			return prev, errors.Wrapf(err, "segment %d", s.index)
		}

		if prev != 0 && rec.Seq <= prev {
			return prev, errors.Newf("wal: non-monotonic seq %d after %d", rec.Seq, prev)
		}
		prev = rec.Seq

		if rec.Seq <= after {
			continue
		}
		if err := fn(rec); err != nil {
			return prev, errors.Wrapf(err, "apply seq %d", rec.Seq)
		}
	}
}
