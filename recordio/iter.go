package recordio

import (
	"io"
	"math"
	"math/rand/v2"
	"os"
	"runtime"
	"sync"

	"github.com/Noofbiz/imagedata/datasets"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Engine builds ImageRecordIters. It satisfies datasets.RecordEngine.
type Engine struct {
	// Seed fixes shuffling and augmentation. Zero picks a random seed.
	Seed uint64
}

var _ datasets.RecordEngine = Engine{}

// NewImageRecordIter implements datasets.RecordEngine.
func (e Engine) NewImageRecordIter(p datasets.ImageRecordParams) (datasets.Iterator, error) {
	it, err := Open(p, e.Seed)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// ImageRecordIter reads batches of images from a RecordIO file.
//
// Only the record offsets are held in memory; records are read and decoded
// per batch by PreprocessThreads goroutines. The iterator owns an open file
// and must be closed.
type ImageRecordIter struct {
	params  datasets.ImageRecordParams
	tr      transform
	f       *os.File
	size    int64
	offsets []int64

	order  []int
	cursor int
	rng    *rand.Rand

	provideData  []datasets.Desc
	provideLabel []datasets.Desc
}

var _ datasets.Iterator = &ImageRecordIter{}

// Open indexes the records of p.PathImgRec and keeps partition p.PartIndex
// of p.NumParts, a contiguous range of records.
func Open(p datasets.ImageRecordParams, seed uint64) (*ImageRecordIter, error) {
	if err := checkParams(p); err != nil {
		return nil, err
	}
	f, err := os.Open(p.PathImgRec)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", p.PathImgRec)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat %s", p.PathImgRec)
	}

	offsets, err := index(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "index %s", p.PathImgRec)
	}
	total := len(offsets)
	lo, hi := total*p.PartIndex/p.NumParts, total*(p.PartIndex+1)/p.NumParts
	if lo == hi {
		f.Close()
		return nil, errors.Errorf("%s: part %d of %d is empty (%d records)", p.PathImgRec, p.PartIndex, p.NumParts, total)
	}
	offsets = offsets[lo:hi]
	klog.Infof("%s: %d records (%s), part %d of %d holds [%d, %d)",
		p.PathImgRec, total, humanize.Bytes(uint64(info.Size())), p.PartIndex, p.NumParts, lo, hi)

	if seed == 0 {
		seed = rand.Uint64()
	}
	it := &ImageRecordIter{
		params:  p,
		tr:      newTransform(p),
		f:       f,
		size:    info.Size(),
		offsets: offsets,
		order:   make([]int, len(offsets)),
		rng:     rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
	for i := range it.order {
		it.order[i] = i
	}
	c, h, w := p.DataShape[0], p.DataShape[1], p.DataShape[2]
	it.provideData = []datasets.Desc{{Name: p.DataName, Shape: []int{p.BatchSize, c, h, w}}}
	labelShape := []int{p.BatchSize}
	if p.LabelWidth > 1 {
		labelShape = append(labelShape, p.LabelWidth)
	}
	it.provideLabel = []datasets.Desc{{Name: p.LabelName, Shape: labelShape}}
	it.Reset()
	return it, nil
}

func checkParams(p datasets.ImageRecordParams) error {
	if p.PathImgRec == "" {
		return errors.New("path_imgrec is empty")
	}
	for _, d := range p.DataShape {
		if d <= 0 {
			return errors.Errorf("data_shape %v must be positive", p.DataShape)
		}
	}
	if c := p.DataShape[0]; c != 1 && c != 3 {
		return errors.Errorf("data_shape %v: only 1 or 3 channels are supported", p.DataShape)
	}
	if p.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", p.BatchSize)
	}
	if p.LabelWidth <= 0 {
		return errors.Errorf("label_width must be > 0 (got %d)", p.LabelWidth)
	}
	if p.NumParts <= 0 || p.PartIndex < 0 || p.PartIndex >= p.NumParts {
		return errors.Errorf("part_index %d out of range for num_parts %d", p.PartIndex, p.NumParts)
	}
	return nil
}

func newTransform(p datasets.ImageRecordParams) transform {
	tr := transform{
		channels: p.DataShape[0],
		height:   p.DataShape[1],
		width:    p.DataShape[2],
		mean:     [3]float32{float32(p.MeanR), float32(p.MeanG), float32(p.MeanB)},
		minScale: 1,
		maxScale: 1,
		randCrop: p.RandCrop,
		mirror:   p.RandMirror,
	}
	if a := p.Aug; a != nil {
		tr.pad = a.Pad
		tr.fill = uint8(min(max(a.FillValue, 0), math.MaxUint8))
		tr.minScale, tr.maxScale = a.MinRandomScale, a.MaxRandomScale
		if a.RandomH != 0 || a.RandomS != 0 || a.RandomL != 0 ||
			a.MaxRotateAngle != 0 || a.MaxShearRatio != 0 || a.MaxAspectRatio != 0 {
			klog.Warningf("%s: colour, rotation, shear and aspect-ratio jitter are not applied by this engine", p.PathImgRec)
		}
	}
	return tr
}

// index scans f and returns the offset of every record.
func index(f *os.File) ([]int64, error) {
	r := NewReader(f)
	var offsets []int64
	for {
		off := r.Offset()
		if _, err := r.Next(); err != nil {
			if err == io.EOF {
				return offsets, nil
			}
			return nil, err
		}
		offsets = append(offsets, off)
	}
}

// NumRecords returns the number of records in this iterator's partition.
func (it *ImageRecordIter) NumRecords() int {
	return len(it.offsets)
}

// BatchSize implements datasets.Iterator.
func (it *ImageRecordIter) BatchSize() int {
	return it.params.BatchSize
}

// ProvideData implements datasets.Iterator.
func (it *ImageRecordIter) ProvideData() []datasets.Desc {
	return []datasets.Desc{{Name: it.provideData[0].Name, Shape: append([]int(nil), it.provideData[0].Shape...)}}
}

// ProvideLabel implements datasets.Iterator.
func (it *ImageRecordIter) ProvideLabel() []datasets.Desc {
	return []datasets.Desc{{Name: it.provideLabel[0].Name, Shape: append([]int(nil), it.provideLabel[0].Shape...)}}
}

// Reset implements datasets.Iterator. Shuffling iterators draw a new order.
func (it *ImageRecordIter) Reset() {
	it.cursor = 0
	if it.params.Shuffle {
		it.rng.Shuffle(len(it.order), func(i, j int) {
			it.order[i], it.order[j] = it.order[j], it.order[i]
		})
	}
}

// Close releases the record file.
func (it *ImageRecordIter) Close() error {
	return it.f.Close()
}

type decodeJob struct {
	slot int
	rec  int
	seed uint64
}

// Next implements datasets.Iterator. A final partial batch is completed with
// records from the start of the pass and reports their number in Pad.
func (it *ImageRecordIter) Next() (*datasets.Batch, error) {
	n := len(it.order)
	if it.cursor >= n {
		return nil, io.EOF
	}
	bs := it.params.BatchSize
	width := it.params.LabelWidth
	sample := it.tr.sampleSize()

	data := make([]float32, bs*sample)
	label := make([]float32, bs*width)
	ids := make([]int, bs)
	jobs := make([]decodeJob, bs)
	pad := 0
	for i := range bs {
		pos := it.cursor + i
		if pos >= n {
			pad++
		}
		// Seeds are drawn here, in slot order, so results do not depend on
		// which goroutine decodes which slot.
		jobs[i] = decodeJob{slot: i, rec: it.order[pos%n], seed: it.rng.Uint64()}
	}

	workers := it.params.PreprocessThreads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, bs)

	queue := make(chan decodeJob, bs)
	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for job := range queue {
				h, err := it.decode(job, data[job.slot*sample:(job.slot+1)*sample])
				if err != nil {
					errCh <- err
					return
				}
				values, err := h.LabelValues(width)
				if err != nil {
					errCh <- err
					return
				}
				copy(label[job.slot*width:], values)
				ids[job.slot] = int(h.ID)
			}
		}()
	}
	for _, job := range jobs {
		queue <- job
	}
	close(queue)
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		// the cursor stays put so a retry fails on the same batch
		return nil, err
	}
	klog.V(2).Infof("%s: batch at %d, pad %d", it.params.PathImgRec, it.cursor, pad)
	it.cursor += bs

	return &datasets.Batch{
		Data:         tensors.FromFlatDataAndDimensions(data, it.provideData[0].Shape...),
		Label:        tensors.FromFlatDataAndDimensions(label, it.provideLabel[0].Shape...),
		Pad:          pad,
		Index:        ids,
		ProvideData:  it.ProvideData(),
		ProvideLabel: it.ProvideLabel(),
	}, nil
}

// decode reads record job.rec and writes its transformed image into dst.
func (it *ImageRecordIter) decode(job decodeJob, dst []float32) (Header, error) {
	off := it.offsets[job.rec]
	rec, err := NewReader(io.NewSectionReader(it.f, off, it.size-off)).Next()
	if err != nil {
		return Header{}, errors.Wrapf(err, "read record at offset %d", off)
	}
	h, payload, err := Unpack(rec)
	if err != nil {
		return h, err
	}
	img, err := decodeImage(payload)
	if err != nil {
		return h, errors.Wrapf(err, "record %d", h.ID)
	}
	it.tr.apply(img, rand.New(rand.NewPCG(job.seed, job.seed^uint64(job.slot))), dst)
	return h, nil
}
