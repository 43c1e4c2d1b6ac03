// Package recordio reads and writes RecordIO files, the container format of
// packed image datasets (".rec"), and implements an image record iterator on
// top of them.
//
// Each record on disk is framed as:
//
//	magic   uint32 0xced7230a
//	lrecord uint32 cflag<<29 | length
//	payload length bytes, zero padded to a multiple of 4
//
// Records whose payload contains the magic number at a 4-byte aligned offset
// are split at those offsets into parts flagged start (1), middle (2) and
// end (3); the magic itself is dropped on write and restored on read.
package recordio

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Magic marks the start of every record part.
const Magic uint32 = 0xced7230a

const (
	lengthBits = 29
	lengthMask = 1<<lengthBits - 1

	// MaxRecordSize is the largest payload a single part can hold.
	MaxRecordSize = lengthMask

	flagFull   = 0
	flagStart  = 1
	flagMiddle = 2
	flagEnd    = 3
)

// ErrCorrupt is returned when the framing of a record file is invalid.
var ErrCorrupt = errors.New("corrupt recordio stream")

var magicBytes = binary.LittleEndian.AppendUint32(nil, Magic)

func pad4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// Reader reads records sequentially.
type Reader struct {
	r   *bufio.Reader
	off int64
	hdr [8]byte
}

// NewReader returns a Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Offset is the number of bytes consumed so far, which is also the offset of
// the next record relative to where r started.
func (r *Reader) Offset() int64 {
	return r.off
}

// Next returns the next record, rejoining split records. It returns io.EOF
// at a clean end of stream.
func (r *Reader) Next() ([]byte, error) {
	var rec []byte
	split := false
	for {
		start := r.off
		if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
			if err == io.EOF && !split {
				return nil, io.EOF
			}
			return nil, errors.Wrapf(ErrCorrupt, "truncated header at offset %d", start)
		}
		r.off += int64(len(r.hdr))
		if m := binary.LittleEndian.Uint32(r.hdr[:4]); m != Magic {
			return nil, errors.Wrapf(ErrCorrupt, "bad magic %#x at offset %d", m, start)
		}
		lrec := binary.LittleEndian.Uint32(r.hdr[4:])
		cflag, n := lrec>>lengthBits, lrec&lengthMask

		buf := make([]byte, pad4(n))
		if _, err := io.ReadFull(r.r, buf); err != nil {
			return nil, errors.Wrapf(ErrCorrupt, "truncated payload at offset %d: want %d bytes", start, len(buf))
		}
		r.off += int64(len(buf))
		buf = buf[:n]

		switch cflag {
		case flagFull:
			if split {
				return nil, errors.Wrapf(ErrCorrupt, "full record inside split record at offset %d", start)
			}
			return buf, nil
		case flagStart:
			if split {
				return nil, errors.Wrapf(ErrCorrupt, "split record restarted at offset %d", start)
			}
			split = true
			rec = append(buf, magicBytes...)
		case flagMiddle:
			if !split {
				return nil, errors.Wrapf(ErrCorrupt, "orphan record part at offset %d", start)
			}
			rec = append(append(rec, buf...), magicBytes...)
		case flagEnd:
			if !split {
				return nil, errors.Wrapf(ErrCorrupt, "orphan record end at offset %d", start)
			}
			return append(rec, buf...), nil
		default:
			return nil, errors.Wrapf(ErrCorrupt, "unknown continuation flag %d at offset %d", cflag, start)
		}
	}
}

// Writer appends records. Call Flush when done.
type Writer struct {
	w     *bufio.Writer
	count int
}

// NewWriter returns a Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.count
}

// Write appends one record, splitting it around aligned occurrences of Magic.
func (w *Writer) Write(rec []byte) error {
	if len(rec) > MaxRecordSize {
		return errors.Errorf("record of %d bytes exceeds the %d byte limit", len(rec), MaxRecordSize)
	}
	start, split := 0, false
	for i := 0; i+4 <= len(rec); i += 4 {
		if binary.LittleEndian.Uint32(rec[i:]) != Magic {
			continue
		}
		flag := uint32(flagMiddle)
		if !split {
			flag = flagStart
		}
		if err := w.writePart(flag, rec[start:i]); err != nil {
			return err
		}
		start, split = i+4, true
	}
	flag := uint32(flagFull)
	if split {
		flag = flagEnd
	}
	if err := w.writePart(flag, rec[start:]); err != nil {
		return err
	}
	w.count++
	return nil
}

func (w *Writer) writePart(cflag uint32, part []byte) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:], cflag<<lengthBits|uint32(len(part)))
	if _, err := w.w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "write record header")
	}
	if _, err := w.w.Write(part); err != nil {
		return errors.Wrap(err, "write record payload")
	}
	var zeros [3]byte
	if p := int(pad4(uint32(len(part)))) - len(part); p > 0 {
		if _, err := w.w.Write(zeros[:p]); err != nil {
			return errors.Wrap(err, "write record padding")
		}
	}
	return nil
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return errors.Wrap(w.w.Flush(), "flush records")
}
