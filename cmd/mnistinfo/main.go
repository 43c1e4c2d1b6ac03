// Command mnistinfo downloads MNIST, logs per-split counts and pixel
// statistics, and plots the label distribution of both splits.
package main

import (
	"context"
	"flag"
	"image/color"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/Noofbiz/imagedata/mnist"
	"k8s.io/klog/v2"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

type split struct {
	name   string
	counts [10]int
}

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	dir := flag.String("dir", mnist.DefaultDir, "cache directory for MNIST files")
	baseURL := flag.String("url", mnist.DefaultBaseURL, "base URL to download MNIST files from")
	skipVerify := flag.Bool("skip-verify", false, "do not check file digests")
	outDir := flag.String("out", "plots", "output directory for the label distribution chart")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	loader := &mnist.Loader{BaseURL: *baseURL, Dir: *dir, SkipVerify: *skipVerify}

	var splits []split
	for _, files := range []struct{ name, labels, images string }{
		{"train", mnist.TrainLabels, mnist.TrainImages},
		{"test", mnist.TestLabels, mnist.TestImages},
	} {
		labels, images, err := loader.ReadMNIST(ctx, files.labels, files.images)
		if err != nil {
			klog.Exitf("%s split: %v", files.name, err)
		}
		s := mnist.Stats(images)
		klog.Infof("%s: %d images of %dx%d, pixel mean %.4f std %.4f",
			files.name, images.N, images.Rows, images.Cols, s.Mean, s.StdDev)
		counts := mnist.LabelCounts(labels)
		for digit, n := range counts {
			klog.V(1).Infof("%s: digit %d x %d", files.name, digit, n)
		}
		splits = append(splits, split{name: files.name, counts: counts})
	}

	path, err := plotLabels(*outDir, splits)
	if err != nil {
		klog.Exitf("plot: %v", err)
	}
	klog.Infof("label distribution written to %s", path)
}

// plotLabels draws one bar group per digit with a bar per split.
func plotLabels(outDir string, splits []split) (string, error) {
	p := plot.New()
	p.Title.Text = "MNIST label distribution"
	p.X.Label.Text = "digit"
	p.Y.Label.Text = "examples"

	palette := []color.RGBA{
		{R: 20, G: 80, B: 200, A: 220},
		{R: 200, G: 30, B: 30, A: 220},
	}
	width := vg.Points(14)
	for i, s := range splits {
		values := make(plotter.Values, len(s.counts))
		for d, n := range s.counts {
			values[d] = float64(n)
		}
		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return "", err
		}
		bars.Color = palette[i%len(palette)]
		bars.LineStyle.Width = 0
		bars.Offset = vg.Length(float64(i)-float64(len(splits)-1)/2) * width
		p.Add(bars)
		p.Legend.Add(s.name, bars)
	}
	p.Legend.Top = true

	names := make([]string, 10)
	for d := range names {
		names[d] = strconv.Itoa(d)
	}
	p.NominalX(names...)
	p.Add(plotter.NewGrid())

	if err := ensureDir(outDir); err != nil {
		return "", err
	}
	outPath := filepath.Join(outDir, "mnist_labels.png")
	if err := p.Save(8*vg.Inch, 6*vg.Inch, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
