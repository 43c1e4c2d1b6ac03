package recordio

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAll(t *testing.T, records ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, r := range records {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Flush())
	assert.Equal(t, len(records), w.Count())
	return buf.Bytes()
}

func readAll(t *testing.T, data []byte) [][]byte {
	t.Helper()
	r := NewReader(bytes.NewReader(data))
	var out [][]byte
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
	assert.Equal(t, int64(len(data)), r.Offset())
	return out
}

func TestRoundTrip(t *testing.T) {
	records := [][]byte{
		[]byte("a"),
		{},
		[]byte("four"),
		[]byte("seven!!"),
		bytes.Repeat([]byte{0xab}, 1000),
	}
	data := writeAll(t, records...)
	assert.Zero(t, len(data)%4, "stream must stay 4-byte aligned")

	got := readAll(t, data)
	require.Len(t, got, len(records))
	for i := range records {
		assert.Equal(t, records[i], got[i], "record %d", i)
	}
}

func TestFraming(t *testing.T) {
	data := writeAll(t, []byte("abcde"))
	require.Len(t, data, 8+8)
	assert.Equal(t, Magic, binary.LittleEndian.Uint32(data[0:]))
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(data[4:]))
	assert.Equal(t, []byte("abcde\x00\x00\x00"), data[8:])
}

func TestSplitRecords(t *testing.T) {
	magic := binary.LittleEndian.AppendUint32(nil, Magic)
	var rec []byte
	rec = append(rec, "head"...)
	rec = append(rec, magic...)
	rec = append(rec, "midl"...)
	rec = append(rec, magic...)
	rec = append(rec, "tail!"...)

	// unaligned magic is left alone
	unaligned := append([]byte("xy"), magic...)

	data := writeAll(t, rec, magic, unaligned, []byte("next"))

	// first record is written as start, middle and end parts
	flags := func(off int) uint32 { return binary.LittleEndian.Uint32(data[off+4:]) >> 29 }
	assert.Equal(t, uint32(flagStart), flags(0))
	assert.Equal(t, uint32(flagMiddle), flags(12))
	assert.Equal(t, uint32(flagEnd), flags(24))

	got := readAll(t, data)
	require.Len(t, got, 4)
	assert.Equal(t, rec, got[0])
	assert.Equal(t, magic, got[1])
	assert.Equal(t, unaligned, got[2])
	assert.Equal(t, []byte("next"), got[3])
}

func TestCorruptStreams(t *testing.T) {
	good := writeAll(t, []byte("payload"))

	badMagic := append([]byte(nil), good...)
	badMagic[0] ^= 0xff

	orphan := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(orphan[4:], flagEnd<<29|7)

	for name, data := range map[string][]byte{
		"bad magic":         badMagic,
		"truncated header":  good[:6],
		"truncated payload": good[:10],
		"orphan end":        orphan,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(data)).Next()
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}

	_, err := NewReader(bytes.NewReader(nil)).Next()
	assert.Equal(t, io.EOF, err)
}

func TestHeader(t *testing.T) {
	rec := Pack(Header{Label: 3, ID: 42, ID2: 7}, []byte("img"))
	h, payload, err := Unpack(rec)
	require.NoError(t, err)
	assert.Equal(t, Header{Label: 3, ID: 42, ID2: 7}, h)
	assert.Equal(t, []byte("img"), payload)
	labels, err := h.LabelValues(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, labels)
	_, err = h.LabelValues(2)
	assert.Error(t, err)

	rec = Pack(Header{Flag: 9, Labels: []float32{1, 2.5, 4}, ID: 1}, []byte("x"))
	h, payload, err = Unpack(rec)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h.Flag)
	assert.Equal(t, []float32{1, 2.5, 4}, h.Labels)
	assert.Equal(t, []byte("x"), payload)
	labels, err = h.LabelValues(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2.5}, labels)

	_, _, err = Unpack(rec[:10])
	assert.ErrorIs(t, err, ErrCorrupt)
	_, _, err = Unpack(rec[:HeaderSize+4])
	assert.ErrorIs(t, err, ErrCorrupt)
}
