package entry

import (
	"bufio"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

type segmentInfo struct {
	// validEnd is the offset just past the last intact record.
	validEnd int64
	minSeq   uint64
	maxSeq   uint64
	records  int
	// torn is set when bytes follow validEnd.
	torn bool
}

// scanSegment walks a segment frame by frame without handing records out.
func scanSegment(path string) (segmentInfo, error) {
	var info segmentInfo

	f, err := os.Open(path)
	if err != nil {
		return info, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := readRecord(r)
		if err == io.EOF {
			return info, nil
		}
		if torn(err) {
			info.torn = true
			return info, nil
		}
		if err != nil {
			return info, errors.Wrapf(err, "scan %s", path)
		}
		if info.records == 0 {
			info.minSeq = rec.Seq
		}
		info.maxSeq = rec.Seq
		info.records++
		info.validEnd += rec.frameSize()
	}
}
