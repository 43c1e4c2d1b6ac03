package mnist

import (
	"context"

	"github.com/Noofbiz/imagedata/config"
	"github.com/Noofbiz/imagedata/datasets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ReadMNIST downloads (if needed) and parses one split, given the names of
// its label and image files.
func (l *Loader) ReadMNIST(ctx context.Context, labelName, imageName string) ([]uint8, *Images, error) {
	labelPath, err := l.Download(ctx, labelName)
	if err != nil {
		return nil, nil, err
	}
	imagePath, err := l.Download(ctx, imageName)
	if err != nil {
		return nil, nil, err
	}
	labels, err := readGzip(labelPath, ReadLabels)
	if err != nil {
		return nil, nil, err
	}
	images, err := readGzip(imagePath, ReadImages)
	if err != nil {
		return nil, nil, err
	}
	if len(labels) != images.N {
		return nil, nil, errors.Wrapf(ErrFormat, "%d labels in %s for %d images in %s", len(labels), labelName, images.N, imageName)
	}
	return labels, images, nil
}

func newIter(labels []uint8, images *Images, batchSize int, opts ...datasets.Option) (*datasets.ArrayIter, error) {
	t, err := To4D(images)
	if err != nil {
		return nil, err
	}
	label := make([]float32, len(labels))
	for i, l := range labels {
		label[i] = float32(l)
	}
	return datasets.NewArrayIter(t.Data, t.Shape[:], label, batchSize, opts...)
}

// GetMNISTIter loads both splits and returns in-memory iterators batched at
// cfg.BatchSize. Only the training iterator shuffles.
func (l *Loader) GetMNISTIter(ctx context.Context, cfg *config.Config, opts ...datasets.Option) (train, val *datasets.ArrayIter, err error) {
	if cfg == nil || cfg.BatchSize <= 0 {
		return nil, nil, config.Missing("batch_size")
	}
	trainLabels, trainImages, err := l.ReadMNIST(ctx, TrainLabels, TrainImages)
	if err != nil {
		return nil, nil, err
	}
	valLabels, valImages, err := l.ReadMNIST(ctx, TestLabels, TestImages)
	if err != nil {
		return nil, nil, err
	}

	trainOpts := append(append([]datasets.Option(nil), opts...), datasets.WithShuffle(true))
	if train, err = newIter(trainLabels, trainImages, cfg.BatchSize, trainOpts...); err != nil {
		return nil, nil, errors.Wrap(err, "training split")
	}
	valOpts := append(append([]datasets.Option(nil), opts...), datasets.WithShuffle(false))
	if val, err = newIter(valLabels, valImages, cfg.BatchSize, valOpts...); err != nil {
		return nil, nil, errors.Wrap(err, "validation split")
	}
	klog.Infof("mnist: %d training and %d validation images, batch %d", train.NumExamples(), val.NumExamples(), cfg.BatchSize)
	return train, val, nil
}
