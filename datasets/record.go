package datasets

import (
	"io"
	"os"
	"strconv"

	"github.com/Noofbiz/imagedata/config"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// benchmarkIters is the number of synthetic batches per pass in benchmark mode.
	benchmarkIters = 50

	// fillValue paints the border added by pad_size.
	fillValue = 127
)

// KVStore identifies this worker within a distributed job. Each worker reads
// the part of the record file matching its rank.
type KVStore interface {
	Rank() int
	NumWorkers() int
}

type staticKV struct {
	rank, workers int
}

func (kv staticKV) Rank() int       { return kv.rank }
func (kv staticKV) NumWorkers() int { return kv.workers }

// NewStaticKV returns a KVStore with a fixed rank and worker count.
func NewStaticKV(rank, workers int) (KVStore, error) {
	if workers <= 0 {
		return nil, errors.Errorf("number of workers must be > 0 (got %d)", workers)
	}
	if rank < 0 || rank >= workers {
		return nil, errors.Errorf("rank %d out of range [0, %d)", rank, workers)
	}
	return staticKV{rank: rank, workers: workers}, nil
}

// KVFromEnv reads the rank and worker count exported by distributed
// launchers in DMLC_RANK and DMLC_NUM_WORKER. Without them it returns a
// single-worker store.
func KVFromEnv() (KVStore, error) {
	rankStr, workersStr := os.Getenv("DMLC_RANK"), os.Getenv("DMLC_NUM_WORKER")
	if rankStr == "" && workersStr == "" {
		return staticKV{rank: 0, workers: 1}, nil
	}
	rank, err := strconv.Atoi(rankStr)
	if err != nil {
		return nil, errors.Wrap(err, "DMLC_RANK")
	}
	workers, err := strconv.Atoi(workersStr)
	if err != nil {
		return nil, errors.Wrap(err, "DMLC_NUM_WORKER")
	}
	return NewStaticKV(rank, workers)
}

// AugParams are the randomized augmentation parameters of a training record
// iterator.
type AugParams struct {
	MaxRandomScale float64
	MinRandomScale float64
	Pad            int
	FillValue      int
	MaxAspectRatio float64
	RandomH        int
	RandomS        int
	RandomL        int
	MaxRotateAngle int
	MaxShearRatio  float64
}

// ImageRecordParams is everything forwarded to a RecordEngine to build one
// image record iterator.
type ImageRecordParams struct {
	PathImgRec        string
	LabelWidth        int
	MeanR             float64
	MeanG             float64
	MeanB             float64
	DataName          string
	LabelName         string
	DataShape         [3]int
	BatchSize         int
	PreprocessThreads int
	RandCrop          bool
	RandMirror        bool
	Shuffle           bool
	NumParts          int
	PartIndex         int

	// Aug is nil for validation iterators.
	Aug *AugParams
}

// KWArgs renders p with the parameter names of the image record iterator
// constructor. Augmentation keys are present only when p.Aug is set, and
// shuffle only when enabled (the constructor default is off).
func (p ImageRecordParams) KWArgs() map[string]any {
	kw := map[string]any{
		"path_imgrec":        p.PathImgRec,
		"label_width":        p.LabelWidth,
		"mean_r":             p.MeanR,
		"mean_g":             p.MeanG,
		"mean_b":             p.MeanB,
		"data_name":          p.DataName,
		"label_name":         p.LabelName,
		"data_shape":         p.DataShape,
		"batch_size":         p.BatchSize,
		"preprocess_threads": p.PreprocessThreads,
		"rand_crop":          p.RandCrop,
		"rand_mirror":        p.RandMirror,
		"num_parts":          p.NumParts,
		"part_index":         p.PartIndex,
	}
	if p.Shuffle {
		kw["shuffle"] = true
	}
	if a := p.Aug; a != nil {
		kw["max_random_scale"] = a.MaxRandomScale
		kw["min_random_scale"] = a.MinRandomScale
		kw["pad"] = a.Pad
		kw["fill_value"] = a.FillValue
		kw["max_aspect_ratio"] = a.MaxAspectRatio
		kw["random_h"] = a.RandomH
		kw["random_s"] = a.RandomS
		kw["random_l"] = a.RandomL
		kw["max_rotate_angle"] = a.MaxRotateAngle
		kw["max_shear_ratio"] = a.MaxShearRatio
	}
	return kw
}

// RecordEngine constructs image record iterators.
type RecordEngine interface {
	NewImageRecordIter(p ImageRecordParams) (Iterator, error)
}

// GetRecIter builds the training and validation iterators described by cfg.
//
// In benchmark mode it returns a SyntheticIter sized from batch_size and
// image_shape and no validation iterator. Otherwise each iterator is built
// only when its data path is set; with neither set both results are nil.
// Malformed image_shape or rgb_mean fail the whole call before any iterator
// is built. kv may be nil for single-worker jobs.
func GetRecIter(cfg *config.Config, kv KVStore, engine RecordEngine) (train, val Iterator, err error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}
	var shape [3]int
	if cfg.ImageShape != "" {
		if shape, err = config.ParseImageShape(cfg.ImageShape); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Benchmark != 0 {
		switch {
		case cfg.ImageShape == "":
			return nil, nil, config.Missing("image_shape")
		case cfg.BatchSize <= 0:
			return nil, nil, config.Missing("batch_size")
		case cfg.NumClasses <= 0:
			return nil, nil, config.Missing("num_classes")
		}
		dataShape := [4]int{cfg.BatchSize, shape[0], shape[1], shape[2]}
		train, err = NewSyntheticIter(cfg.NumClasses, dataShape, benchmarkIters)
		if err != nil {
			return nil, nil, err
		}
		klog.Infof("benchmark mode: synthetic data %v for %d batches", dataShape, benchmarkIters)
		return train, nil, nil
	}

	rank, workers := 0, 1
	if kv != nil {
		rank, workers = kv.Rank(), kv.NumWorkers()
	}
	mean, err := config.ParseRGBMean(cfg.RGBMean)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DataTrain == "" && cfg.DataVal == "" {
		return nil, nil, nil
	}
	if cfg.ImageShape == "" {
		return nil, nil, config.Missing("image_shape")
	}
	if cfg.BatchSize <= 0 {
		return nil, nil, config.Missing("batch_size")
	}
	if engine == nil {
		return nil, nil, errors.New("no record engine to read image records with")
	}

	base := ImageRecordParams{
		LabelWidth:        1,
		MeanR:             mean[0],
		MeanG:             mean[1],
		MeanB:             mean[2],
		DataName:          DataName,
		LabelName:         LabelName,
		DataShape:         shape,
		BatchSize:         cfg.BatchSize,
		PreprocessThreads: cfg.DataNThreads,
		NumParts:          workers,
		PartIndex:         rank,
	}

	if cfg.DataTrain != "" {
		p := base
		p.PathImgRec = cfg.DataTrain
		p.RandCrop = cfg.RandomCrop != 0
		p.RandMirror = cfg.RandomMirror != 0
		p.Shuffle = true
		p.Aug = &AugParams{
			MaxRandomScale: cfg.MaxRandomScale,
			MinRandomScale: cfg.MinRandomScale,
			Pad:            cfg.PadSize,
			FillValue:      fillValue,
			MaxAspectRatio: cfg.MaxRandomAspectRatio,
			RandomH:        cfg.MaxRandomH,
			RandomS:        cfg.MaxRandomS,
			RandomL:        cfg.MaxRandomL,
			MaxRotateAngle: cfg.MaxRandomRotateAngle,
			MaxShearRatio:  cfg.MaxRandomShearRatio,
		}
		if train, err = engine.NewImageRecordIter(p); err != nil {
			return nil, nil, errors.Wrapf(err, "training iterator %s", p.PathImgRec)
		}
		klog.Infof("training records %s: part %d of %d, batch %d", p.PathImgRec, rank, workers, p.BatchSize)
	}

	if cfg.DataVal != "" {
		p := base
		p.PathImgRec = cfg.DataVal
		if val, err = engine.NewImageRecordIter(p); err != nil {
			if c, ok := train.(io.Closer); ok {
				c.Close()
			}
			return nil, nil, errors.Wrapf(err, "validation iterator %s", p.PathImgRec)
		}
		klog.Infof("validation records %s: part %d of %d, batch %d", p.PathImgRec, rank, workers, p.BatchSize)
	}
	return train, val, nil
}
