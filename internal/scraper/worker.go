package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"promoharvest/internal/metrics"
	"promoharvest/internal/model"
)

// PageSource is the listing as seen by the harvester.
type PageSource interface {
	TotalProducts(ctx context.Context) (int, error)
	Products(ctx context.Context, page, count int) ([]model.ProductItem, error)
}

// ProductSink stores harvested products. UpsertProduct must be idempotent
// per product ID.
type ProductSink interface {
	UpsertProduct(ctx context.Context, item model.ProductItem) error
}

// Batch is one listing request.
type Batch struct {
	Page  int
	Count int
}

// PageStatus is the outcome of one batch.
type PageStatus string

const (
	PageSuccess PageStatus = "success" // returned exactly Count items
	PageShort   PageStatus = "short"   // returned fewer (or more) items than requested
	PageFailed  PageStatus = "failed"
)

// PageResult records what one batch produced.
type PageResult struct {
	Batch
	Status   PageStatus
	Fetched  int
	Upserted int
	Err      error
}

// Summary is the result of one harvest run.
type Summary struct {
	Total    int
	Pages    []PageResult
	Upserted int
	Failed   int // pages that failed outright
	Elapsed  time.Duration
}

// Plan splits total products into batches of batchSize. The last batch asks
// only for the remainder.
func Plan(total, batchSize int) []Batch {
	if total <= 0 || batchSize <= 0 {
		return nil
	}
	pages := (total + batchSize - 1) / batchSize
	batches := make([]Batch, pages)
	for i := range batches {
		batches[i] = Batch{Page: i + 1, Count: batchSize}
	}
	if rem := total % batchSize; rem != 0 {
		batches[pages-1].Count = rem
	}
	return batches
}

// Harvester fetches every listing page and upserts the products it finds.
type Harvester struct {
	source     PageSource
	sink       ProductSink
	metrics    *metrics.Registry
	batchSize  int
	maxWorkers int
}

// NewHarvester constructs a Harvester.
func NewHarvester(source PageSource, sink ProductSink, m *metrics.Registry, batchSize, maxWorkers int) *Harvester {
	return &Harvester{
		source:     source,
		sink:       sink,
		metrics:    m,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Run executes one harvest: count the listing, plan batches and fetch them
// concurrently. A failing page is recorded and the others carry on; Run only
// returns an error when the listing cannot be counted.
func (h *Harvester) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	total, err := h.source.TotalProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("total products: %w", err)
	}

	batches := Plan(total, h.batchSize)
	log.Info().Str("component", "harvester").Int("total", total).Int("batch", h.batchSize).
		Int("pages", len(batches)).Msg("harvest started")

	summary := &Summary{Total: total, Pages: make([]PageResult, len(batches))}
	if len(batches) == 0 {
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(h.maxWorkers, len(batches))))

	var mu sync.Mutex
	for i, b := range batches {
		g.Go(func() error {
			res := h.harvestPage(gctx, b)
			mu.Lock()
			summary.Pages[i] = res
			summary.Upserted += res.Upserted
			if res.Status == PageFailed {
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	summary.Elapsed = time.Since(start)
	log.Info().Str("component", "harvester").Int("upserted", summary.Upserted).
		Int("failedPages", summary.Failed).Dur("elapsed", summary.Elapsed).Msg("harvest done")
	return summary, nil
}

func (h *Harvester) harvestPage(ctx context.Context, b Batch) PageResult {
	res := PageResult{Batch: b}

	items, err := h.source.Products(ctx, b.Page, b.Count)
	if err != nil {
		log.Error().Str("component", "harvester").Int("page", b.Page).Err(err).Msg("fetch failed, continuing")
		res.Status, res.Err = PageFailed, err
		return res
	}
	res.Fetched = len(items)

	for _, item := range items {
		if err := h.sink.UpsertProduct(ctx, item); err != nil {
			log.Error().Str("component", "harvester").Str("product", item.ID).Err(err).Msg("upsert failed")
			continue
		}
		res.Upserted++
		h.metrics.ProductsUpserted.Inc()
	}

	if res.Fetched == b.Count {
		res.Status = PageSuccess
	} else {
		res.Status = PageShort
	}
	return res
}
