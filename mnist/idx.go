package mnist

import (
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// IDX magic numbers: unsigned byte data with one (labels) or three (images)
// dimensions.
const (
	LabelsMagic = 2049
	ImagesMagic = 2051

	Rows = 28
	Cols = 28
)

// ErrFormat is returned for IDX data that does not match its header.
var ErrFormat = errors.New("malformed IDX data")

// Images holds N single-channel images of Rows x Cols bytes, row major.
type Images struct {
	N, Rows, Cols int
	Pix           []uint8
}

// Image returns the pixels of image i.
func (im *Images) Image(i int) []uint8 {
	size := im.Rows * im.Cols
	return im.Pix[i*size : (i+1)*size]
}

func readHeader(r io.Reader, dims int) ([]uint32, error) {
	hdr := make([]uint32, 1+dims)
	if err := binary.Read(r, binary.BigEndian, hdr); err != nil {
		return nil, errors.Wrapf(ErrFormat, "read header: %v", err)
	}
	return hdr, nil
}

// maxPayload bounds the data size a header may declare. The largest MNIST
// file holds about 47 MB.
const maxPayload = 1 << 30

// payloadSize multiplies header dimensions, failing once the product exceeds
// maxPayload.
func payloadSize(dims ...uint32) (int, error) {
	size := uint64(1)
	for _, d := range dims {
		size *= uint64(d)
		if size > maxPayload {
			return 0, errors.Wrapf(ErrFormat, "header dimensions %v exceed %d bytes", dims, maxPayload)
		}
	}
	return int(size), nil
}

// readPayload reads exactly n bytes and fails if r holds more or fewer.
func readPayload(r io.Reader, n int) ([]uint8, error) {
	buf, err := io.ReadAll(io.LimitReader(r, int64(n)+1))
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "read %d bytes of data: %v", n, err)
	}
	switch {
	case len(buf) < n:
		return nil, errors.Wrapf(ErrFormat, "header declares %d bytes of data, got %d", n, len(buf))
	case len(buf) > n:
		return nil, errors.Wrapf(ErrFormat, "trailing data after %d bytes", n)
	}
	return buf, nil
}

// ReadLabels parses an uncompressed IDX label file.
func ReadLabels(r io.Reader) ([]uint8, error) {
	hdr, err := readHeader(r, 1)
	if err != nil {
		return nil, err
	}
	if hdr[0] != LabelsMagic {
		return nil, errors.Wrapf(ErrFormat, "label file magic %d, want %d", hdr[0], LabelsMagic)
	}
	n, err := payloadSize(hdr[1])
	if err != nil {
		return nil, err
	}
	return readPayload(r, n)
}

// ReadImages parses an uncompressed IDX image file.
func ReadImages(r io.Reader) (*Images, error) {
	hdr, err := readHeader(r, 3)
	if err != nil {
		return nil, err
	}
	if hdr[0] != ImagesMagic {
		return nil, errors.Wrapf(ErrFormat, "image file magic %d, want %d", hdr[0], ImagesMagic)
	}
	im := &Images{N: int(hdr[1]), Rows: int(hdr[2]), Cols: int(hdr[3])}
	if im.Rows == 0 || im.Cols == 0 {
		return nil, errors.Wrapf(ErrFormat, "image size %dx%d", im.Rows, im.Cols)
	}
	n, err := payloadSize(hdr[1], hdr[2], hdr[3])
	if err != nil {
		return nil, err
	}
	if im.Pix, err = readPayload(r, n); err != nil {
		return nil, err
	}
	return im, nil
}

// readGzip opens a gzip-compressed file and hands the decompressed stream
// to parse.
func readGzip[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return zero, errors.Wrapf(err, "gunzip %s", path)
	}
	defer zr.Close()
	v, err := parse(zr)
	if err != nil {
		return zero, errors.Wrap(err, path)
	}
	return v, nil
}

// Tensor4D is a dense float32 array in NCHW layout.
type Tensor4D struct {
	Shape [4]int
	Data  []float32
}

// To4D reshapes images to (N, 1, 28, 28) and scales pixels to [0, 1].
func To4D(im *Images) (Tensor4D, error) {
	if im.Rows != Rows || im.Cols != Cols {
		return Tensor4D{}, errors.Wrapf(ErrFormat, "images are %dx%d, want %dx%d", im.Rows, im.Cols, Rows, Cols)
	}
	data := make([]float32, len(im.Pix))
	for i, p := range im.Pix {
		data[i] = float32(p) / 255
	}
	return Tensor4D{Shape: [4]int{im.N, 1, Rows, Cols}, Data: data}, nil
}

// PixelStats summarizes normalized pixel intensities.
type PixelStats struct {
	Mean, StdDev float64
}

// Stats computes the mean and standard deviation of all pixels scaled to
// [0, 1].
func Stats(im *Images) PixelStats {
	if len(im.Pix) == 0 {
		return PixelStats{}
	}
	// weighted over the 256 intensity levels instead of every pixel
	xs, ws := make([]float64, 256), make([]float64, 256)
	for i := range xs {
		xs[i] = float64(i) / 255
	}
	for _, p := range im.Pix {
		ws[p]++
	}
	mean, std := stat.MeanStdDev(xs, ws)
	return PixelStats{Mean: mean, StdDev: std}
}

// LabelCounts returns how many times each digit occurs. Labels above 9 are
// ignored.
func LabelCounts(labels []uint8) [10]int {
	var counts [10]int
	for _, l := range labels {
		if int(l) < len(counts) {
			counts[l]++
		}
	}
	return counts
}
