// Package scheduler wires up the cron job that periodically harvests the
// listing and re-parses the stored promotions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"promoharvest/internal/enrich"
	"promoharvest/internal/events"
	"promoharvest/internal/scraper"
)

// Harvester fetches the listing into the store.
type Harvester interface {
	Run(ctx context.Context) (*scraper.Summary, error)
}

// Enricher re-parses stored promotions.
type Enricher interface {
	Run(ctx context.Context, runID string) (*enrich.Summary, error)
}

// CycleResult is what one harvest+parse cycle did. Skipped is set when
// another process held the lock.
type CycleResult struct {
	RunID   string
	Skipped bool
	Harvest *scraper.Summary
	Parse   *enrich.Summary
}

// Scheduler wraps robfig/cron and manages the harvest loop.
type Scheduler struct {
	cron      *cron.Cron
	harvester Harvester
	enricher  Enricher
	lock      Locker
	events    events.Publisher
	spec      string // cron spec, e.g. "@every 6h"
}

// New creates a Scheduler that fires every intervalHours hours.
func New(h Harvester, e Enricher, lock Locker, pub events.Publisher, intervalHours int) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		harvester: h,
		enricher:  e,
		lock:      lock,
		events:    pub,
		spec:      fmt.Sprintf("@every %dh", intervalHours),
	}
}

// Start registers the job and starts the scheduler. One cycle also runs
// immediately so the store is populated without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Info().Str("component", "scheduler").Str("spec", s.spec).Msg("cron started")

	go s.runCycle(ctx)

	return nil
}

// Stop waits for a running cycle to finish and stops the scheduler.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Str("component", "scheduler").Msg("cron stopped")
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.RunCycle(ctx); err != nil {
		log.Error().Str("component", "scheduler").Err(err).Msg("cycle failed")
	}
}

// RunCycle harvests then parses once, under the lock.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleResult, error) {
	res := &CycleResult{RunID: uuid.NewString()}
	logger := log.With().Str("component", "scheduler").Str("run_id", res.RunID).Logger()

	token, ok, err := s.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Info().Msg("another cycle is running, skipping")
		res.Skipped = true
		return res, nil
	}
	defer func() {
		// Release even if ctx was cancelled mid-cycle.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(relCtx, token); err != nil {
			logger.Warn().Err(err).Msg("lock release failed")
		}
	}()

	logger.Info().Msg("cycle started")

	res.Harvest, err = s.harvester.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("harvest: %w", err)
	}
	if err := s.events.Publish(ctx, events.Event{
		Type:  events.HarvestCompleted,
		RunID: res.RunID,
		Counts: map[string]int{
			"total":    res.Harvest.Total,
			"pages":    len(res.Harvest.Pages),
			"upserted": res.Harvest.Upserted,
			"failed":   res.Harvest.Failed,
		},
	}); err != nil {
		logger.Warn().Err(err).Msg("publish failed")
	}

	res.Parse, err = s.enricher.Run(ctx, res.RunID)
	if err != nil {
		return res, fmt.Errorf("parse: %w", err)
	}

	logger.Info().Msg("cycle complete")
	return res, nil
}
