package scraper

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"promoharvest/internal/model"
)

const tuneConcurrency = 10

// DefaultTuneSizes are the batch sizes tried by default: 2, 4, ... 2048.
func DefaultTuneSizes() []int {
	sizes := make([]int, 0, 11)
	for s := 2; s <= 2048; s *= 2 {
		sizes = append(sizes, s)
	}
	return sizes
}

// Sample is one timed listing request. Seconds is 0 when the request failed
// or returned a different number of items than asked for.
type Sample struct {
	Size    int     `json:"size"`
	Seconds float64 `json:"seconds"`
}

// SizeStat aggregates the usable samples of one batch size.
type SizeStat struct {
	Size              int     `json:"size"`
	Samples           int     `json:"samples"`
	AvgSeconds        float64 `json:"avgSeconds"`
	SecondsPerProduct float64 `json:"secondsPerProduct"`
}

// TuneReport is the outcome of a tuning run. Best is 0 when no size produced
// a usable sample.
type TuneReport struct {
	Sizes []SizeStat `json:"sizes"`
	Best  int        `json:"best"`
}

type productLister interface {
	Products(ctx context.Context, page, count int) ([]model.ProductItem, error)
}

// Tuner measures how long the listing takes to serve different page sizes,
// to pick the harvest batch size.
type Tuner struct {
	source productLister
	now    func() time.Time
}

// NewTuner constructs a Tuner over source.
func NewTuner(source productLister) *Tuner {
	return &Tuner{source: source, now: time.Now}
}

// Evaluate requests page 1 at every size, repeats times each, with a fixed
// concurrency of ten requests.
func (t *Tuner) Evaluate(ctx context.Context, sizes []int, repeats int) ([]Sample, error) {
	samples := make([]Sample, 0, len(sizes)*repeats)
	for r := 0; r < repeats; r++ {
		for _, s := range sizes {
			samples = append(samples, Sample{Size: s})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tuneConcurrency)
	for i := range samples {
		g.Go(func() error {
			start := t.now()
			items, err := t.source.Products(gctx, 1, samples[i].Size)
			elapsed := t.now().Sub(start)
			if err == nil && len(items) == samples[i].Size {
				samples[i].Seconds = elapsed.Seconds()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, ctx.Err()
}

// Summarise drops failed samples, averages the rest per size and picks the
// size with the lowest time per product.
func Summarise(samples []Sample) TuneReport {
	type acc struct {
		n   int
		sum float64
	}
	bySize := make(map[int]*acc)
	for _, s := range samples {
		if s.Seconds == 0 {
			continue
		}
		a := bySize[s.Size]
		if a == nil {
			a = &acc{}
			bySize[s.Size] = a
		}
		a.n++
		a.sum += s.Seconds
	}

	var report TuneReport
	for size, a := range bySize {
		avg := a.sum / float64(a.n)
		report.Sizes = append(report.Sizes, SizeStat{
			Size:              size,
			Samples:           a.n,
			AvgSeconds:        avg,
			SecondsPerProduct: avg / float64(size),
		})
	}
	sort.Slice(report.Sizes, func(i, j int) bool { return report.Sizes[i].Size < report.Sizes[j].Size })

	bestPer := 0.0
	for _, st := range report.Sizes {
		if report.Best == 0 || st.SecondsPerProduct < bestPer {
			report.Best, bestPer = st.Size, st.SecondsPerProduct
		}
	}
	return report
}
