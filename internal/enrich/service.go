// Package enrich re-classifies the promotions of stored products and writes
// the parsed deals back.
package enrich

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"promoharvest/internal/events"
	"promoharvest/internal/metrics"
	"promoharvest/internal/model"
	"promoharvest/internal/offer"
)

// coverageBasePrice is the price every text is classified against when only
// the deal type matters.
const coverageBasePrice = 1

// Store is the product collection the service reads and updates.
type Store interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	SetParsedPromotions(ctx context.Context, id string, deals []offer.Deal) error
	UniqueOfferTexts(ctx context.Context) ([]string, error)
	FindByDealType(ctx context.Context, kind offer.Kind) (*model.Product, error)
}

// Summary is the result of one parse run.
type Summary struct {
	RunID    string
	Products int
	Updated  int
	Failed   int
	ByType   map[offer.Kind]int
	Elapsed  time.Duration
}

// Report is the extraction coverage over every distinct offer text.
type Report struct {
	Total        int                `json:"total"`
	ByType       map[offer.Kind]int `json:"byType"`
	Unrecognised []string           `json:"unrecognised"`
}

// Service runs the parse pipeline.
type Service struct {
	store   Store
	events  events.Publisher
	metrics *metrics.Registry
	workers int
}

// NewService returns a Service that updates at most workers products
// concurrently.
func NewService(store Store, pub events.Publisher, m *metrics.Registry, workers int) *Service {
	return &Service{store: store, events: pub, metrics: m, workers: workers}
}

// ParseProduct classifies each of p's promotions against its base price.
func ParseProduct(p model.Product) []offer.Deal {
	return offer.ParseAll(p.OfferTexts, p.BasePrice)
}

// Run classifies every stored product and writes the deals back. A failed
// update is logged and counted; it does not stop the run.
func (s *Service) Run(ctx context.Context, runID string) (*Summary, error) {
	start := time.Now()

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	sum := &Summary{RunID: runID, Products: len(products), ByType: make(map[offer.Kind]int)}
	log.Info().Str("component", "enrich").Str("run_id", runID).
		Int("products", len(products)).Msg("parse run started")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(s.workers, len(products))))

	for _, p := range products {
		g.Go(func() error {
			deals := ParseProduct(p)
			err := s.store.SetParsedPromotions(gctx, p.ID, deals)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Str("component", "enrich").Str("product", p.ID).Err(err).Msg("update failed")
				sum.Failed++
				s.metrics.ParseFailures.Inc()
				return nil
			}
			sum.Updated++
			for _, d := range deals {
				sum.ByType[d.Type]++
			}
			s.metrics.ProductsParsed.Inc()
			s.metrics.ObserveDeals(deals)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum.Elapsed = time.Since(start)

	counts := make(map[string]int, len(sum.ByType))
	for k, n := range sum.ByType {
		counts[string(k)] = n
	}
	// Subscribers are optional.
	if err := s.events.Publish(ctx, events.Event{Type: events.PromotionsParsed, RunID: runID, Counts: counts}); err != nil {
		log.Warn().Str("component", "enrich").Err(err).Msg("publish failed")
	}

	log.Info().Str("component", "enrich").Str("run_id", runID).
		Int("updated", sum.Updated).Int("failed", sum.Failed).
		Dur("elapsed", sum.Elapsed).Msg("parse run complete")
	return sum, nil
}

// ReparseOne finds a product already carrying a deal of the given kind,
// classifies it again and stores the result.
func (s *Service) ReparseOne(ctx context.Context, kind offer.Kind) (*model.Product, []offer.Deal, error) {
	p, err := s.store.FindByDealType(ctx, kind)
	if err != nil {
		return nil, nil, fmt.Errorf("find %s product: %w", kind, err)
	}
	deals := ParseProduct(*p)
	if err := s.store.SetParsedPromotions(ctx, p.ID, deals); err != nil {
		return nil, nil, fmt.Errorf("update %s: %w", p.ID, err)
	}
	return p, deals, nil
}

// Coverage classifies every distinct offer text and reports how many fall
// under each deal type.
func (s *Service) Coverage(ctx context.Context) (*Report, error) {
	texts, err := s.store.UniqueOfferTexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("unique offer texts: %w", err)
	}
	return CoverageOf(texts), nil
}

// CoverageOf builds a coverage report for texts.
func CoverageOf(texts []string) *Report {
	r := &Report{Total: len(texts), ByType: make(map[offer.Kind]int), Unrecognised: make([]string, 0)}
	for _, t := range texts {
		d := offer.Parse(t, coverageBasePrice)
		r.ByType[d.Type]++
		if d.Type == offer.KindUnrecognised {
			r.Unrecognised = append(r.Unrecognised, t)
		}
	}
	sort.Strings(r.Unrecognised)
	return r
}
