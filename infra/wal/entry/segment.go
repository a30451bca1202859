package entry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
)

const segmentPattern = "segment-*.wal"

type segment struct {
	index  int
	path   string
	file   *os.File
	out    io.Writer
	offset int64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
}

func openSegment(dir string, index int) (*segment, error) {
	path := segmentPath(dir, index)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open segment %d", index)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat segment %d", index)
	}
	return &segment{index: index, path: path, file: f, out: f, offset: st.Size()}, nil
}

func (s *segment) append(b []byte) error {
	n, err := s.out.Write(b)
	s.offset += int64(n)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	return err
}

// truncate cuts the file back to size, dropping a partially written frame.
func (s *segment) truncate(size int64) error {
	if err := s.file.Truncate(size); err != nil {
		return err
	}
	s.offset = size
	return nil
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

type segmentFile struct {
	index int
	path  string
}

// listSegments returns the segments in dir by ascending index.
func listSegments(dir string) ([]segmentFile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, segmentPattern))
	if err != nil {
		return nil, err
	}
	out := make([]segmentFile, 0, len(paths))
	for _, p := range paths {
		var idx int
		if _, err := fmt.Sscanf(filepath.Base(p), "segment-%06d.wal", &idx); err != nil {
			continue
		}
		out = append(out, segmentFile{index: idx, path: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out, nil
}
