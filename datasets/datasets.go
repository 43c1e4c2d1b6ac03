package datasets

import (
	"io"
	"iter"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// This file defines the iterator contract shared by every data source of the
// module and the glue to gomlx training loops.
//
// Layout and intended usage:
//
// Iterator
//   - Next returns one Batch per call and io.EOF once the pass is over.
//   - Reset rewinds to the start of a new pass (reshuffling if configured).
//   - ProvideData / ProvideLabel describe the named tensors of every batch
//     before the first one is pulled, so a model can be sized up front.
//
// Implementations in this package: SyntheticIter (fixed random batch, for
// throughput benchmarks) and ArrayIter (in-memory arrays, used by the MNIST
// loader). Image record files are read through a RecordEngine, see
// GetRecIter.

// Tensor names used by every iterator of the module.
const (
	DataName  = "data"
	LabelName = "softmax_label"
)

// Desc names a tensor and gives its shape.
type Desc struct {
	Name  string
	Shape []int
}

// Batch is one training step worth of data.
type Batch struct {
	// Data has shape [batch, ...]; its leading dimension always equals the
	// iterator batch size.
	Data *tensors.Tensor

	// Label has shape [batch], or [batch, width] for multi-label records.
	Label *tensors.Tensor

	// Pad is the number of trailing entries that do not belong to this pass
	// (filled by wrapping around) in a short final batch.
	Pad int

	// Index holds the source position of each entry, or nil when the source
	// has no meaningful position.
	Index []int

	ProvideData  []Desc
	ProvideLabel []Desc
}

// Iterator is a resettable, single-pass batch source.
type Iterator interface {
	Next() (*Batch, error)
	Reset()
	BatchSize() int
	ProvideData() []Desc
	ProvideLabel() []Desc
}

// All ranges over the remaining batches of it:
//
//	for batch, err := range datasets.All(it) {
//		if err != nil {
//			return err
//		}
//		...
//	}
//
// The sequence ends silently on io.EOF; any other error is yielded once,
// with a nil batch, and ends the sequence.
func All(it Iterator) iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		for {
			b, err := it.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}

// AsDataset adapts it to gomlx's train.Dataset, yielding the data tensor as
// the single input and the label tensor as the single label.
func AsDataset(name string, it Iterator) train.Dataset {
	return &iterDataset{name: name, it: it}
}

type iterDataset struct {
	name string
	it   Iterator
}

var _ train.Dataset = &iterDataset{}

// Name implements train.Dataset.
func (ds *iterDataset) Name() string {
	return ds.name
}

// Reset implements train.Dataset.
func (ds *iterDataset) Reset() {
	ds.it.Reset()
}

// Yield implements train.Dataset. Exhaustion is reported as io.EOF, which is
// what gomlx training loops expect at the end of an epoch.
func (ds *iterDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	b, err := ds.it.Next()
	if err != nil {
		return nil, nil, nil, err
	}
	return ds, []*tensors.Tensor{b.Data}, []*tensors.Tensor{b.Label}, nil
}

func copyDescs(descs []Desc) []Desc {
	out := make([]Desc, len(descs))
	for i, d := range descs {
		out[i] = Desc{Name: d.Name, Shape: append([]int(nil), d.Shape...)}
	}
	return out
}

func prod(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
