// Command imageiter builds the training and validation iterators from
// command-line options and drains them, logging throughput per epoch. With
// -benchmark 1 it measures the synthetic iterator alone.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/Noofbiz/imagedata/config"
	"github.com/Noofbiz/imagedata/datasets"
	"github.com/Noofbiz/imagedata/metrics"
	"github.com/Noofbiz/imagedata/mnist"
	"github.com/Noofbiz/imagedata/recordio"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	schema := config.DefaultSchema()
	values := schema.Register(flag.CommandLine)

	configPath := flag.String("config", "", "YAML file with option values; explicit flags take precedence")
	augLevel := flag.Int("aug-level", 0, "data augmentation level (0-3) whose defaults apply before -config and flags")
	useMNIST := flag.Bool("mnist", false, "iterate MNIST instead of record files")
	mnistDir := flag.String("mnist-dir", mnist.DefaultDir, "cache directory for MNIST files")
	mnistURL := flag.String("mnist-url", mnist.DefaultBaseURL, "base URL to download MNIST files from")
	skipVerify := flag.Bool("mnist-skip-verify", false, "do not check MNIST file digests")
	epochs := flag.Int("epochs", 1, "number of passes over the data")
	kvEnv := flag.Bool("kv-env", false, "read worker rank and count from DMLC_RANK and DMLC_NUM_WORKER")
	seed := flag.Uint64("seed", 0, "random seed for shuffling and augmentation (0 = random)")
	logEvery := flag.Int("log-every", 0, "also log throughput every N batches (0 = per epoch only)")
	flag.Parse()

	cfg := schema.SetDataAugLevel(*augLevel).Config()
	if *configPath != "" {
		if err := config.LoadFile(*configPath, cfg); err != nil {
			klog.Exitf("load config: %v", err)
		}
	}
	if err := values.Apply(cfg); err != nil {
		klog.Exitf("flags: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		klog.Exitf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var opts []datasets.Option
	if *seed != 0 {
		opts = append(opts, datasets.WithSeed(*seed))
	}

	var train, val datasets.Iterator
	if *useMNIST {
		loader := &mnist.Loader{BaseURL: *mnistURL, Dir: *mnistDir, SkipVerify: *skipVerify}
		t, v, err := loader.GetMNISTIter(ctx, cfg, opts...)
		if err != nil {
			klog.Exitf("mnist: %v", err)
		}
		train, val = t, v
	} else {
		var kv datasets.KVStore
		if *kvEnv {
			var err error
			if kv, err = datasets.KVFromEnv(); err != nil {
				klog.Exitf("kvstore: %v", err)
			}
		}
		var err error
		train, val, err = datasets.GetRecIter(cfg, kv, recordio.Engine{Seed: *seed})
		if err != nil {
			klog.Exitf("record iterators: %v", err)
		}
	}
	if train == nil && val == nil {
		klog.Exitf("nothing to iterate: set -data-train or -data-val, -benchmark 1, or -mnist")
	}
	defer closeIter(train)
	defer closeIter(val)

	for epoch := range *epochs {
		for _, run := range []struct {
			name string
			it   datasets.Iterator
		}{{"train", train}, {"val", val}} {
			if run.it == nil {
				continue
			}
			if ctx.Err() != nil {
				klog.Warningf("interrupted")
				return
			}
			snap, err := drain(ctx, run.it, *logEvery)
			if err != nil {
				klog.Errorf("epoch %d %s: %v", epoch, run.name, err)
				return
			}
			klog.Infof("epoch %d %s: %s", epoch, run.name, snap)
		}
	}
}

// drain resets it and pulls every batch, timing the wait for each.
func drain(ctx context.Context, it datasets.Iterator, logEvery int) (metrics.Snapshot, error) {
	var epoch, interval metrics.Window
	it.Reset()
	n := 0
	last := time.Now()
	for b, err := range datasets.All(it) {
		if err != nil {
			return epoch.Snapshot(), err
		}
		wait := time.Since(last)
		epoch.Record(it.BatchSize(), b.Pad, wait)
		interval.Record(it.BatchSize(), b.Pad, wait)
		n++
		if logEvery > 0 && n%logEvery == 0 {
			klog.Infof("batch %d: %s", n, interval.Snapshot())
		}
		if ctx.Err() != nil {
			return epoch.Snapshot(), ctx.Err()
		}
		last = time.Now()
	}
	return epoch.Snapshot(), nil
}

func closeIter(it datasets.Iterator) {
	c, ok := it.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		klog.Warningf("close iterator: %v", err)
	}
}
