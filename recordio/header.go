package recordio

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// HeaderSize is the encoded size of the fixed part of a Header.
const HeaderSize = 24

// Header prefixes the payload of every image record.
//
// When Flag is zero the record has the single label Label. Otherwise Flag
// float32 labels follow the fixed header and are returned in Labels.
type Header struct {
	Flag   uint32
	Label  float32
	ID     uint64
	ID2    uint64
	Labels []float32
}

// LabelValues returns the first width labels of h.
func (h Header) LabelValues(width int) ([]float32, error) {
	if h.Flag == 0 {
		if width != 1 {
			return nil, errors.Errorf("record %d has a single label, want %d", h.ID, width)
		}
		return []float32{h.Label}, nil
	}
	if len(h.Labels) < width {
		return nil, errors.Errorf("record %d has %d labels, want %d", h.ID, len(h.Labels), width)
	}
	return h.Labels[:width], nil
}

// Pack encodes h followed by payload. A non-empty Labels overrides Flag.
func Pack(h Header, payload []byte) []byte {
	if len(h.Labels) > 0 {
		h.Flag = uint32(len(h.Labels))
	}
	buf := make([]byte, 0, HeaderSize+4*len(h.Labels)+len(payload))
	buf = binary.LittleEndian.AppendUint32(buf, h.Flag)
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(h.Label))
	buf = binary.LittleEndian.AppendUint64(buf, h.ID)
	buf = binary.LittleEndian.AppendUint64(buf, h.ID2)
	for _, l := range h.Labels {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(l))
	}
	return append(buf, payload...)
}

// Unpack splits a record into its header and payload. The payload aliases rec.
func Unpack(rec []byte) (Header, []byte, error) {
	var h Header
	if len(rec) < HeaderSize {
		return h, nil, errors.Wrapf(ErrCorrupt, "record of %d bytes is shorter than its header", len(rec))
	}
	h.Flag = binary.LittleEndian.Uint32(rec[0:])
	h.Label = math.Float32frombits(binary.LittleEndian.Uint32(rec[4:]))
	h.ID = binary.LittleEndian.Uint64(rec[8:])
	h.ID2 = binary.LittleEndian.Uint64(rec[16:])
	rest := rec[HeaderSize:]
	if h.Flag > 0 {
		n := int(h.Flag)
		if len(rest) < 4*n {
			return h, nil, errors.Wrapf(ErrCorrupt, "record %d declares %d labels but has %d bytes left", h.ID, n, len(rest))
		}
		h.Labels = make([]float32, n)
		for i := range h.Labels {
			h.Labels[i] = math.Float32frombits(binary.LittleEndian.Uint32(rest[4*i:]))
		}
		rest = rest[4*n:]
	}
	return h, rest, nil
}
