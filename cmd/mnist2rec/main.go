// Command mnist2rec packs an MNIST split into a RecordIO file of PNG images,
// readable by the record iterator with -image-shape 1,28,28.
package main

import (
	"bytes"
	"context"
	"flag"
	"image"
	"image/png"
	"os"
	"os/signal"

	"github.com/Noofbiz/imagedata/mnist"
	"github.com/Noofbiz/imagedata/recordio"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	dir := flag.String("dir", mnist.DefaultDir, "cache directory for MNIST files")
	baseURL := flag.String("url", mnist.DefaultBaseURL, "base URL to download MNIST files from")
	skipVerify := flag.Bool("skip-verify", false, "do not check file digests")
	splitName := flag.String("split", "train", "split to pack: train or test")
	out := flag.String("out", "", "output .rec path (default mnist_<split>.rec)")
	limit := flag.Int("limit", 0, "pack at most this many images (0 = all)")
	flag.Parse()

	var labelFile, imageFile string
	switch *splitName {
	case "train":
		labelFile, imageFile = mnist.TrainLabels, mnist.TrainImages
	case "test":
		labelFile, imageFile = mnist.TestLabels, mnist.TestImages
	default:
		klog.Exitf("unknown split %q", *splitName)
	}
	if *out == "" {
		*out = "mnist_" + *splitName + ".rec"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	loader := &mnist.Loader{BaseURL: *baseURL, Dir: *dir, SkipVerify: *skipVerify}
	labels, images, err := loader.ReadMNIST(ctx, labelFile, imageFile)
	if err != nil {
		klog.Exitf("read %s split: %v", *splitName, err)
	}

	n := images.N
	if *limit > 0 && *limit < n {
		n = *limit
	}
	size, err := pack(*out, labels[:n], images)
	if err != nil {
		klog.Exitf("pack: %v", err)
	}
	klog.Infof("wrote %d records to %s (%s)", n, *out, humanize.Bytes(uint64(size)))
}

// pack writes one record per label, image i carrying label i and id i.
func pack(path string, labels []uint8, images *mnist.Images) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	w := recordio.NewWriter(f)

	var buf bytes.Buffer
	for i, l := range labels {
		img := &image.Gray{
			Pix:    images.Image(i),
			Stride: images.Cols,
			Rect:   image.Rect(0, 0, images.Cols, images.Rows),
		}
		buf.Reset()
		if err := png.Encode(&buf, img); err != nil {
			return 0, errors.Wrapf(err, "encode image %d", i)
		}
		rec := recordio.Pack(recordio.Header{Label: float32(l), ID: uint64(i)}, buf.Bytes())
		if err := w.Write(rec); err != nil {
			return 0, errors.Wrapf(err, "write record %d", i)
		}
		if (i+1)%10000 == 0 {
			klog.V(1).Infof("packed %d records", i+1)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat output")
	}
	return info.Size(), errors.Wrap(f.Close(), "close output")
}
