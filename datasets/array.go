package datasets

import (
	"io"
	"math/rand/v2"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// ArrayIter batches in-memory arrays along their first axis.
//
// A final batch that runs past the end of the data is completed with entries
// from the start (wrapping around) and reports how many via Batch.Pad, so
// every batch has exactly BatchSize entries.
type ArrayIter struct {
	data      []float32
	label     []float32
	shape     []int
	rowSize   int
	batchSize int

	order  []int
	cursor int

	shuffle bool
	rng     *rand.Rand

	provideData  []Desc
	provideLabel []Desc
}

var _ Iterator = &ArrayIter{}

// NewArrayIter creates an iterator over data, a flat row-major array of the
// given shape, and label, which holds one value per row (shape[0] values).
// The arrays are not copied; callers must not modify them while iterating.
func NewArrayIter(data []float32, shape []int, label []float32, batchSize int, opts ...Option) (*ArrayIter, error) {
	if len(shape) == 0 || shape[0] <= 0 {
		return nil, errors.Errorf("array shape %v: need at least one row", shape)
	}
	if n := prod(shape); n != len(data) {
		return nil, errors.Errorf("array shape %v holds %d values, data has %d", shape, n, len(data))
	}
	if len(label) != shape[0] {
		return nil, errors.Errorf("%d labels for %d rows", len(label), shape[0])
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be > 0 (got %d)", batchSize)
	}
	o := buildOptions(opts)

	rows := shape[0]
	it := &ArrayIter{
		data:      data,
		label:     label,
		shape:     append([]int(nil), shape...),
		rowSize:   prod(shape[1:]),
		batchSize: batchSize,
		order:     make([]int, rows),
		shuffle:   o.shuffle,
		rng:       rand.New(newSource(o.seed)),
	}
	for i := range it.order {
		it.order[i] = i
	}
	batchShape := append([]int{batchSize}, shape[1:]...)
	it.provideData = []Desc{{Name: DataName, Shape: batchShape}}
	it.provideLabel = []Desc{{Name: LabelName, Shape: []int{batchSize}}}
	it.Reset()
	return it, nil
}

// NumExamples returns the number of rows.
func (it *ArrayIter) NumExamples() int {
	return it.shape[0]
}

// BatchSize implements Iterator.
func (it *ArrayIter) BatchSize() int {
	return it.batchSize
}

// ProvideData implements Iterator.
func (it *ArrayIter) ProvideData() []Desc {
	return copyDescs(it.provideData)
}

// ProvideLabel implements Iterator.
func (it *ArrayIter) ProvideLabel() []Desc {
	return copyDescs(it.provideLabel)
}

// Next implements Iterator.
func (it *ArrayIter) Next() (*Batch, error) {
	rows := it.shape[0]
	if it.cursor >= rows {
		return nil, io.EOF
	}

	data := make([]float32, it.batchSize*it.rowSize)
	label := make([]float32, it.batchSize)
	index := make([]int, it.batchSize)
	pad := 0
	for i := range it.batchSize {
		pos := it.cursor + i
		if pos >= rows {
			pad++
		}
		row := it.order[pos%rows]
		copy(data[i*it.rowSize:(i+1)*it.rowSize], it.data[row*it.rowSize:(row+1)*it.rowSize])
		label[i] = it.label[row]
		index[i] = row
	}
	it.cursor += it.batchSize

	return &Batch{
		Data:         tensors.FromFlatDataAndDimensions(data, it.provideData[0].Shape...),
		Label:        tensors.FromFlatDataAndDimensions(label, it.batchSize),
		Pad:          pad,
		Index:        index,
		ProvideData:  it.ProvideData(),
		ProvideLabel: it.ProvideLabel(),
	}, nil
}

// Reset implements Iterator. With shuffling enabled every pass sees a new
// permutation.
func (it *ArrayIter) Reset() {
	it.cursor = 0
	if it.shuffle {
		it.rng.Shuffle(len(it.order), func(i, j int) {
			it.order[i], it.order[j] = it.order[j], it.order[i]
		})
	}
}
