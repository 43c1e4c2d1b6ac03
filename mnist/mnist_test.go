package mnist

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Noofbiz/imagedata/config"
	"github.com/Noofbiz/imagedata/datasets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idx(magic uint32, dims []uint32, payload []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, append([]uint32{magic}, dims...))
	buf.Write(payload)
	return buf.Bytes()
}

func gz(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(b)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// split builds n 28x28 images where image i has every pixel set to i and
// label i%10.
func split(n int) (labels, images []byte) {
	lbl := make([]byte, n)
	pix := make([]byte, n*Rows*Cols)
	for i := range n {
		lbl[i] = byte(i % 10)
		for j := range Rows * Cols {
			pix[i*Rows*Cols+j] = byte(i)
		}
	}
	return idx(LabelsMagic, []uint32{uint32(n)}, lbl), idx(ImagesMagic, []uint32{uint32(n), Rows, Cols}, pix)
}

type server struct {
	*httptest.Server
	hits atomic.Int32
}

func newServer(t *testing.T, files map[string][]byte) *server {
	t.Helper()
	s := &server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		body, ok := files[strings.TrimPrefix(r.URL.Path, "/mnist/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func mnistFiles(t *testing.T, nTrain, nTest int) map[string][]byte {
	t.Helper()
	trl, tri := split(nTrain)
	tel, tei := split(nTest)
	return map[string][]byte{
		TrainLabels: gz(t, trl),
		TrainImages: gz(t, tri),
		TestLabels:  gz(t, tel),
		TestImages:  gz(t, tei),
	}
}

func TestReadLabelsAndImages(t *testing.T) {
	lbl, img := split(3)
	labels, err := ReadLabels(bytes.NewReader(lbl))
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 1, 2}, labels)

	images, err := ReadImages(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, 3, images.N)
	assert.Equal(t, Rows, images.Rows)
	assert.Equal(t, Cols, images.Cols)
	assert.Equal(t, bytes.Repeat([]byte{2}, Rows*Cols), images.Image(2))
}

func TestIDXFormatErrors(t *testing.T) {
	lbl, img := split(2)
	cases := map[string]func() error{
		"label magic": func() error {
			_, err := ReadLabels(bytes.NewReader(idx(ImagesMagic, []uint32{2}, []byte{0, 1})))
			return err
		},
		"image magic": func() error {
			_, err := ReadImages(bytes.NewReader(idx(LabelsMagic, []uint32{1, 1, 1}, []byte{0})))
			return err
		},
		"short header": func() error {
			_, err := ReadImages(bytes.NewReader(img[:10]))
			return err
		},
		"truncated labels": func() error {
			_, err := ReadLabels(bytes.NewReader(lbl[:len(lbl)-1]))
			return err
		},
		"trailing labels": func() error {
			_, err := ReadLabels(bytes.NewReader(append(append([]byte(nil), lbl...), 7)))
			return err
		},
		"truncated images": func() error {
			_, err := ReadImages(bytes.NewReader(img[:len(img)-5]))
			return err
		},
		"image size overflows": func() error {
			_, err := ReadImages(bytes.NewReader(idx(ImagesMagic, []uint32{3, 1 << 31, 1 << 31}, nil)))
			return err
		},
		"image count overflows": func() error {
			_, err := ReadImages(bytes.NewReader(idx(ImagesMagic, []uint32{1 << 31, 1 << 31, 4}, nil)))
			return err
		},
		"image count too large": func() error {
			_, err := ReadImages(bytes.NewReader(idx(ImagesMagic, []uint32{1 << 31, 1, 1}, []byte{0})))
			return err
		},
		"label count too large": func() error {
			_, err := ReadLabels(bytes.NewReader(idx(LabelsMagic, []uint32{1<<32 - 1}, []byte{0, 1})))
			return err
		},
		"trailing labels behind empty reads": func() error {
			data := append(append([]byte(nil), lbl...), 7)
			_, err := ReadLabels(&stallingReader{data: data})
			return err
		},
		"zero rows": func() error {
			_, err := ReadImages(bytes.NewReader(idx(ImagesMagic, []uint32{1, 0, 28}, nil)))
			return err
		},
	}
	for name, run := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, run(), ErrFormat)
		})
	}
}

// stallingReader hands out one byte per call, with a (0, nil) read in
// between.
type stallingReader struct {
	data  []byte
	stall bool
}

func (r *stallingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	r.stall = !r.stall
	if r.stall || len(p) == 0 {
		return 0, nil
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestReadLabelsStallingReader(t *testing.T) {
	lbl, _ := split(3)
	labels, err := ReadLabels(&stallingReader{data: lbl})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 1, 2}, labels)
}

func TestTo4D(t *testing.T) {
	im := &Images{N: 2, Rows: Rows, Cols: Cols, Pix: make([]uint8, 2*Rows*Cols)}
	for i := range im.Pix {
		im.Pix[i] = uint8(i % 256)
	}
	out, err := To4D(im)
	require.NoError(t, err)
	assert.Equal(t, [4]int{2, 1, 28, 28}, out.Shape)
	require.Len(t, out.Data, len(im.Pix))
	for i, p := range im.Pix {
		if out.Data[i] != float32(p)/255 {
			t.Fatalf("pixel %d: got %v want %v", i, out.Data[i], float32(p)/255)
		}
	}
	assert.Equal(t, float32(1), out.Data[255])

	_, err = To4D(&Images{N: 1, Rows: 32, Cols: 32, Pix: make([]uint8, 32*32)})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestStatsAndLabelCounts(t *testing.T) {
	s := Stats(&Images{N: 1, Rows: 1, Cols: 2, Pix: []uint8{0, 255}})
	assert.InDelta(t, 0.5, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), s.StdDev, 1e-12)
	assert.Equal(t, PixelStats{}, Stats(&Images{}))

	assert.Equal(t, [10]int{2, 1, 0, 0, 0, 0, 0, 0, 0, 1}, LabelCounts([]uint8{0, 9, 1, 0, 42}))
}

func TestDownloadCachesAndVerifies(t *testing.T) {
	srv := newServer(t, map[string][]byte{"file.gz": []byte("content")})
	dir := t.TempDir()
	l := &Loader{BaseURL: srv.URL + "/mnist", Dir: dir}

	path, err := l.Download(context.Background(), "file.gz")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "file.gz"), path)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))

	_, err = l.Download(context.Background(), "file.gz")
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.hits.Load(), "cached file must not be fetched again")

	_, err = l.Download(context.Background(), "missing.gz")
	assert.ErrorContains(t, err, "404")
}

func TestDownloadChecksumMismatch(t *testing.T) {
	srv := newServer(t, map[string][]byte{TrainLabels: []byte("not mnist")})
	dir := t.TempDir()
	l := &Loader{BaseURL: srv.URL + "/mnist/", Dir: dir}

	_, err := l.Download(context.Background(), TrainLabels)
	assert.ErrorIs(t, err, ErrChecksum)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected downloads leave nothing behind")

	l.SkipVerify = true
	_, err = l.Download(context.Background(), TrainLabels)
	assert.NoError(t, err)
}

func TestDownloadCanceled(t *testing.T) {
	srv := newServer(t, map[string][]byte{"file.gz": []byte("content")})
	l := &Loader{BaseURL: srv.URL + "/mnist", Dir: t.TempDir()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Download(ctx, "file.gz")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadMNISTCountMismatch(t *testing.T) {
	files := mnistFiles(t, 3, 2)
	lbl, _ := split(4)
	files[TrainLabels] = gz(t, lbl)
	srv := newServer(t, files)
	l := &Loader{BaseURL: srv.URL + "/mnist", Dir: t.TempDir(), SkipVerify: true}

	_, _, err := l.ReadMNIST(context.Background(), TrainLabels, TrainImages)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestGetMNISTIter(t *testing.T) {
	srv := newServer(t, mnistFiles(t, 5, 3))
	l := &Loader{BaseURL: srv.URL + "/mnist", Dir: t.TempDir(), SkipVerify: true}
	cfg := config.DefaultSchema().Config()
	cfg.BatchSize = 2

	train, val, err := l.GetMNISTIter(context.Background(), cfg, datasets.WithSeed(4))
	require.NoError(t, err)
	assert.Equal(t, 5, train.NumExamples())
	assert.Equal(t, 3, val.NumExamples())
	assert.Equal(t, []datasets.Desc{{Name: "data", Shape: []int{2, 1, 28, 28}}}, train.ProvideData())

	// validation keeps file order; every pixel of image i is i/255
	var rows []int
	for b, err := range datasets.All(val) {
		require.NoError(t, err)
		rows = append(rows, b.Index...)
		data := b.Data.Value().([][][][]float32)
		labels := b.Label.Value().([]float32)
		for i, row := range b.Index {
			assert.Equal(t, float32(row)/255, data[i][0][27][27])
			assert.Equal(t, float32(row%10), labels[i])
		}
	}
	assert.Equal(t, []int{0, 1, 2, 0}, rows)

	var seen []int
	for b, err := range datasets.All(train) {
		require.NoError(t, err)
		seen = append(seen, b.Index[:len(b.Index)-b.Pad]...)
	}
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, seen)

	cfg.BatchSize = 0
	_, _, err = l.GetMNISTIter(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrMissingField)
}
