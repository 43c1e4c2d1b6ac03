package main

import (
	"path/filepath"
	"testing"

	"github.com/Noofbiz/imagedata/datasets"
	"github.com/Noofbiz/imagedata/mnist"
	"github.com/Noofbiz/imagedata/recordio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackReadsBackThroughRecordIter(t *testing.T) {
	const n = 3
	images := &mnist.Images{N: n, Rows: mnist.Rows, Cols: mnist.Cols, Pix: make([]uint8, n*mnist.Rows*mnist.Cols)}
	for i := range n {
		px := images.Image(i)
		for j := range px {
			px[j] = uint8(40 * (i + 1))
		}
	}
	path := filepath.Join(t.TempDir(), "mnist.rec")
	size, err := pack(path, []uint8{7, 2, 9}, images)
	require.NoError(t, err)
	assert.Positive(t, size)

	it, err := recordio.Open(datasets.ImageRecordParams{
		PathImgRec: path,
		LabelWidth: 1,
		DataName:   datasets.DataName,
		LabelName:  datasets.LabelName,
		DataShape:  [3]int{1, mnist.Rows, mnist.Cols},
		BatchSize:  n,
		NumParts:   1,
	}, 1)
	require.NoError(t, err)
	defer it.Close()

	b, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, b.Index)
	assert.Equal(t, []float32{7, 2, 9}, b.Label.Value())
	data := b.Data.Value().([][][][]float32)
	assert.Equal(t, float32(80), data[1][0][10][20])
}
