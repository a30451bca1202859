package snapshot

import (
	"bufio"
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

type Writer struct {
	Dir string
}

// Write replaces the snapshot atomically: a temp file is synced and
// renamed over the old one.
func (w *Writer) Write(s *Snapshot) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return errors.Wrap(err, "create snapshot dir")
	}

	f, err := os.CreateTemp(w.Dir, fileName+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create snapshot temp")
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	bw := bufio.NewWriter(f)
	if err := gob.NewEncoder(bw).Encode(s); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "encode snapshot")
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return errors.Wrap(os.Rename(tmp, filepath.Join(w.Dir, fileName)), "install snapshot")
}

// Load returns the snapshot in dir, or nil when there is none.
func Load(dir string) (*Snapshot, error) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open snapshot")
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	return &s, nil
}
