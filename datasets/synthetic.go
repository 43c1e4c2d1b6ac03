package datasets

import (
	"io"
	"math/rand/v2"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// Option configures the in-memory iterators.
type Option func(*iterOptions)

type iterOptions struct {
	seed    uint64
	seeded  bool
	shuffle bool
}

// WithSeed fixes the random source, making generated data and shuffles
// reproducible.
func WithSeed(seed uint64) Option {
	return func(o *iterOptions) {
		o.seed = seed
		o.seeded = true
	}
}

// WithShuffle enables shuffling of the example order on construction and on
// every Reset. Ignored by SyntheticIter.
func WithShuffle(shuffle bool) Option {
	return func(o *iterOptions) {
		o.shuffle = shuffle
	}
}

func buildOptions(opts []Option) iterOptions {
	var o iterOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.seeded {
		o.seed = rand.Uint64()
	}
	return o
}

func newSource(seed uint64) *rand.PCG {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// SyntheticIter yields the same random batch maxIter times. Content is
// generated once at construction: data uniform in [-1, 1], labels uniform
// integers in [0, numClasses). It measures the training loop without any
// I/O or decode cost.
type SyntheticIter struct {
	numClasses int
	shape      [4]int
	maxIter    int
	curIter    int

	data  *tensors.Tensor
	label *tensors.Tensor
}

var _ Iterator = &SyntheticIter{}

// NewSyntheticIter creates a synthetic iterator. dataShape is
// (batch, channels, height, width).
func NewSyntheticIter(numClasses int, dataShape [4]int, maxIter int, opts ...Option) (*SyntheticIter, error) {
	if numClasses <= 0 {
		return nil, errors.Errorf("num_classes must be > 0 (got %d)", numClasses)
	}
	for i, d := range dataShape {
		if d <= 0 {
			return nil, errors.Errorf("data shape %v: dimension %d must be > 0", dataShape, i)
		}
	}
	if maxIter <= 0 {
		return nil, errors.Errorf("max_iter must be > 0 (got %d)", maxIter)
	}
	o := buildOptions(opts)
	src := newSource(o.seed)
	rng := rand.New(src)
	uniform := distuv.Uniform{Min: -1, Max: 1, Src: src}

	batchSize := dataShape[0]
	data := make([]float32, prod(dataShape[:]))
	for i := range data {
		data[i] = float32(uniform.Rand())
	}
	label := make([]float32, batchSize)
	for i := range label {
		label[i] = float32(rng.IntN(numClasses))
	}

	return &SyntheticIter{
		numClasses: numClasses,
		shape:      dataShape,
		maxIter:    maxIter,
		data:       tensors.FromFlatDataAndDimensions(data, dataShape[:]...),
		label:      tensors.FromFlatDataAndDimensions(label, batchSize),
	}, nil
}

// BatchSize implements Iterator.
func (it *SyntheticIter) BatchSize() int {
	return it.shape[0]
}

// ProvideData implements Iterator.
func (it *SyntheticIter) ProvideData() []Desc {
	return []Desc{{Name: DataName, Shape: append([]int(nil), it.shape[:]...)}}
}

// ProvideLabel implements Iterator.
func (it *SyntheticIter) ProvideLabel() []Desc {
	return []Desc{{Name: LabelName, Shape: []int{it.shape[0]}}}
}

// Next implements Iterator. Every batch shares the same tensors; only the
// step counter advances.
func (it *SyntheticIter) Next() (*Batch, error) {
	it.curIter++
	if it.curIter > it.maxIter {
		return nil, io.EOF
	}
	return &Batch{
		Data:         it.data,
		Label:        it.label,
		ProvideData:  it.ProvideData(),
		ProvideLabel: it.ProvideLabel(),
	}, nil
}

// Reset implements Iterator.
func (it *SyntheticIter) Reset() {
	it.curIter = 0
}
