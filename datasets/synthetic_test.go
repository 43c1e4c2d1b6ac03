package datasets

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatten4 turns the Value() of a rank-4 float32 tensor into a flat slice.
func flatten4(t *testing.T, v any) []float32 {
	t.Helper()
	nested, ok := v.([][][][]float32)
	require.Truef(t, ok, "unexpected tensor value type %T", v)
	var out []float32
	for _, a := range nested {
		for _, b := range a {
			for _, c := range b {
				out = append(out, c...)
			}
		}
	}
	return out
}

func drain(t *testing.T, it Iterator) []*Batch {
	t.Helper()
	var batches []*Batch
	for b, err := range All(it) {
		require.NoError(t, err)
		batches = append(batches, b)
	}
	return batches
}

func TestSyntheticIterCountAndReset(t *testing.T) {
	for _, maxIter := range []int{1, 3, 50} {
		it, err := NewSyntheticIter(10, [4]int{4, 3, 8, 8}, maxIter, WithSeed(1))
		require.NoError(t, err)

		first := drain(t, it)
		assert.Len(t, first, maxIter)

		_, err = it.Next()
		assert.ErrorIs(t, err, io.EOF)

		it.Reset()
		second := drain(t, it)
		require.Len(t, second, maxIter)
		for i := range second {
			assert.Equal(t, first[i].Data.Value(), second[i].Data.Value())
			assert.Equal(t, first[i].Label.Value(), second[i].Label.Value())
		}
	}
}

func TestSyntheticIterValueRanges(t *testing.T) {
	const numClasses = 7
	it, err := NewSyntheticIter(numClasses, [4]int{16, 3, 5, 5}, 2, WithSeed(42))
	require.NoError(t, err)

	b, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, b.Pad)
	assert.Nil(t, b.Index)

	for _, v := range flatten4(t, b.Data.Value()) {
		assert.True(t, v >= -1 && v <= 1, "data value %f out of [-1, 1]", v)
	}
	labels, ok := b.Label.Value().([]float32)
	require.True(t, ok)
	require.Len(t, labels, 16)
	for _, l := range labels {
		assert.True(t, l >= 0 && l < numClasses, "label %f out of range", l)
		assert.Equal(t, float32(int(l)), l, "label %f is not an integer", l)
	}
}

func TestSyntheticIterDescriptors(t *testing.T) {
	it, err := NewSyntheticIter(1000, [4]int{8, 3, 224, 224}, 1, WithSeed(3))
	require.NoError(t, err)
	assert.Equal(t, []Desc{{Name: "data", Shape: []int{8, 3, 224, 224}}}, it.ProvideData())
	assert.Equal(t, []Desc{{Name: "softmax_label", Shape: []int{8}}}, it.ProvideLabel())
	assert.Equal(t, 8, it.BatchSize())

	b, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, []int{8, 3, 224, 224}, b.Data.Shape().Dimensions)
	assert.Equal(t, []int{8}, b.Label.Shape().Dimensions)
	assert.Equal(t, it.ProvideData(), b.ProvideData)
}

func TestSyntheticIterSharesTensors(t *testing.T) {
	it, err := NewSyntheticIter(3, [4]int{2, 1, 2, 2}, 3)
	require.NoError(t, err)
	b1, err := it.Next()
	require.NoError(t, err)
	b2, err := it.Next()
	require.NoError(t, err)
	assert.Same(t, b1.Data, b2.Data)
	assert.Same(t, b1.Label, b2.Label)
}

func TestNewSyntheticIterValidation(t *testing.T) {
	_, err := NewSyntheticIter(0, [4]int{1, 1, 1, 1}, 1)
	assert.Error(t, err)
	_, err = NewSyntheticIter(2, [4]int{1, 0, 1, 1}, 1)
	assert.Error(t, err)
	_, err = NewSyntheticIter(2, [4]int{1, 1, 1, 1}, 0)
	assert.Error(t, err)
}

func TestAsDataset(t *testing.T) {
	it, err := NewSyntheticIter(5, [4]int{2, 1, 3, 3}, 2, WithSeed(9))
	require.NoError(t, err)
	ds := AsDataset("synthetic", it)
	assert.Equal(t, "synthetic", ds.Name())

	for range 2 {
		spec, inputs, labels, err := ds.Yield()
		require.NoError(t, err)
		assert.NotNil(t, spec)
		require.Len(t, inputs, 1)
		require.Len(t, labels, 1)
		assert.Equal(t, []int{2, 1, 3, 3}, inputs[0].Shape().Dimensions)
	}
	_, _, _, err = ds.Yield()
	assert.ErrorIs(t, err, io.EOF)

	ds.Reset()
	_, _, _, err = ds.Yield()
	assert.NoError(t, err)
}
