package entry

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/cockroachdb/errors"
)

type RecordType uint8

const (
	RecordPlace RecordType = iota + 1
	RecordCancel
)

func (t RecordType) String() string {
	switch t {
	case RecordPlace:
		return "place"
	case RecordCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Record is one journaled intent. Seq is assigned by the writer and is
// strictly increasing across the whole log.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
// The crc covers header and payload.
const (
	headerSize = 1 + 8 + 8 + 4
	crcSize    = 4
	maxPayload = 16 << 20
)

var ErrCorrupt = errors.New("wal: corrupt record")

func (r *Record) frameSize() int64 {
	return int64(headerSize + len(r.Data) + crcSize)
}

func encodeRecord(r *Record) []byte {
	n := len(r.Data)
	buf := make([]byte, headerSize+n+crcSize)
	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], uint32(n))
	copy(buf[headerSize:], r.Data)
	binary.BigEndian.PutUint32(buf[headerSize+n:], checksum(buf[:headerSize+n]))
	return buf
}

// readRecord returns io.EOF at a clean end, io.ErrUnexpectedEOF for a
// partial frame and ErrCorrupt when the frame does not check out.
func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	l := binary.BigEndian.Uint32(header[17:21])
	if l > maxPayload {
		return nil, errors.Wrapf(ErrCorrupt, "payload length %d", l)
	}

	body := make([]byte, int(l)+crcSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	payload := body[:l]
	sum := binary.BigEndian.Uint32(body[l:])
	framed := append(header, payload...)
	if checksum(framed) != sum {
		return nil, errors.Wrapf(ErrCorrupt, "crc mismatch at seq %d", binary.BigEndian.Uint64(header[1:9]))
	}

	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, nil
}

// torn reports whether err marks the unfinished tail of a log.
func torn(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrCorrupt)
}
