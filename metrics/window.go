// Package metrics measures how fast iterators deliver batches.
package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/stat"
)

// Window accumulates batch timings until the next Snapshot.
type Window struct {
	samples int
	padded  int
	waits   []float64 // milliseconds per batch
	total   time.Duration
}

// Record adds one batch of batchSize entries, pad of which were wrapped
// around, that took wait to produce.
func (w *Window) Record(batchSize, pad int, wait time.Duration) {
	w.samples += batchSize - pad
	w.padded += pad
	w.total += wait
	w.waits = append(w.waits, wait.Seconds()*1000)
}

// Snapshot returns the aggregated measurements and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{
		Batches: len(w.waits),
		Samples: w.samples,
		Padded:  w.padded,
	}
	if w.total > 0 {
		snap.SamplesPerSec = float64(w.samples) / w.total.Seconds()
	}
	if len(w.waits) > 0 {
		sort.Float64s(w.waits)
		snap.AvgBatchMS = stat.Mean(w.waits, nil)
		snap.P95BatchMS = stat.Quantile(0.95, stat.Empirical, w.waits, nil)
	}

	*w = Window{waits: w.waits[:0]}
	return snap
}

// Snapshot holds loggable throughput figures. Padded entries are excluded
// from Samples and SamplesPerSec.
type Snapshot struct {
	Batches       int
	Samples       int
	Padded        int
	SamplesPerSec float64
	AvgBatchMS    float64
	P95BatchMS    float64
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%d batches, %s samples (%d padded), %.1f samples/sec, batch avg %.2fms p95 %.2fms",
		s.Batches, humanize.Comma(int64(s.Samples)), s.Padded, s.SamplesPerSec, s.AvgBatchMS, s.P95BatchMS)
}
