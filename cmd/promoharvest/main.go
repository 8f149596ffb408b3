// promoharvest harvests the retailer's promotions listing, classifies every
// offer text into a structured deal and serves the results over HTTP.
//
// Commands:
//   - serve        API + cron scheduler (harvest then parse every N hours)
//   - harvest      fetch the whole listing into PostgreSQL once
//   - parse        re-classify every stored product once
//   - coverage     deal-type breakdown over all distinct offer texts
//   - reparse-one  re-classify one product carrying a given deal type
//   - tune         time listing requests to choose a batch size
//   - classify     classify a single offer text (no storage needed)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"promoharvest/internal/api"
	"promoharvest/internal/config"
	"promoharvest/internal/db"
	"promoharvest/internal/enrich"
	"promoharvest/internal/events"
	"promoharvest/internal/metrics"
	"promoharvest/internal/offer"
	"promoharvest/internal/scheduler"
	"promoharvest/internal/scraper"
	"promoharvest/internal/store"
)

const (
	version = "1.0.0"

	lockKey = "promoharvest:cycle-lock"
)

func main() {
	app := &cli.App{
		Name:    "promoharvest",
		Usage:   "harvest and classify retail promotions",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
		},
		Before: func(c *cli.Context) error {
			return setupLogging(c.String("log-level"))
		},
		Commands: []*cli.Command{
			{Name: "serve", Usage: "run the API and the harvest scheduler", Action: serve},
			{Name: "harvest", Usage: "fetch the listing into the store once", Action: harvestOnce},
			{Name: "parse", Usage: "re-classify every stored product once", Action: parseOnce},
			{Name: "coverage", Usage: "print deal-type coverage of stored offer texts", Action: coverage},
			{
				Name:  "reparse-one",
				Usage: "re-classify one product that has a deal of the given type",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Required: true, Usage: "deal type, e.g. nforn"},
				},
				Action: reparseOne,
			},
			{
				Name:  "tune",
				Usage: "time listing requests at several batch sizes",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "repeats", Value: 10, Usage: "requests per batch size"},
					&cli.IntSliceFlag{Name: "size", Usage: "batch size to try (repeatable); defaults to 2..2048"},
				},
				Action: tune,
			},
			{
				Name:  "classify",
				Usage: "classify one offer text",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Required: true},
					&cli.Float64Flag{Name: "price", Value: 1, Usage: "regular price of the product"},
				},
				Action: classify,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("promoharvest failed")
	}
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return nil
}

// ── Wiring ──────────────────────────────────────────────────────────────────

// deps holds the connected collaborators shared by the commands.
type deps struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	rdb     *redis.Client
	store   *store.ProductStore
	metrics *metrics.Registry
	fetcher *scraper.ListingFetcher
	enrich  *enrich.Service
}

func connect(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log.Info().Str("component", "main").Msg("connecting to PostgreSQL")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, int32(cfg.MaxWorkers+1))
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	log.Info().Str("component", "main").Msg("connecting to Redis")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	st := store.NewProductStore(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		rdb.Close()
		return nil, err
	}

	m := metrics.NewRegistry()
	return &deps{
		cfg:     cfg,
		pool:    pool,
		rdb:     rdb,
		store:   st,
		metrics: m,
		fetcher: scraper.NewListingFetcher(cfg.ListingURL, cfg.HTTPTimeout(), m),
		enrich:  enrich.NewService(st, events.NewRedisPublisher(rdb), m, cfg.MaxWorkers),
	}, nil
}

func (d *deps) Close() {
	d.rdb.Close()
	d.pool.Close()
}

func (d *deps) harvester() *scraper.Harvester {
	return scraper.NewHarvester(d.fetcher, d.store, d.metrics, d.cfg.BatchSize, d.cfg.MaxWorkers)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── Commands ────────────────────────────────────────────────────────────────

func serve(c *cli.Context) error {
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	sched := scheduler.New(
		d.harvester(),
		d.enrich,
		scheduler.NewRedisLock(d.rdb, lockKey, 2*time.Hour),
		events.NewRedisPublisher(d.rdb),
		d.cfg.HarvestIntervalHours,
	)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	h := api.NewHandler(d.store, d.enrich, d.metrics.Handler(), version)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", d.cfg.Port),
		Handler:      h.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("component", "main").Str("version", version).Str("port", d.cfg.Port).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		log.Error().Str("component", "main").Err(err).Msg("http server error")
	}

	log.Info().Str("component", "main").Msg("shutting down")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Str("component", "main").Err(err).Msg("shutdown error")
	}
	log.Info().Str("component", "main").Msg("stopped")
	return nil
}

func harvestOnce(c *cli.Context) error {
	d, err := connect(c.Context)
	if err != nil {
		return err
	}
	defer d.Close()

	sum, err := d.harvester().Run(c.Context)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"total":    sum.Total,
		"pages":    len(sum.Pages),
		"upserted": sum.Upserted,
		"failed":   sum.Failed,
		"elapsed":  sum.Elapsed.String(),
	})
}

func parseOnce(c *cli.Context) error {
	d, err := connect(c.Context)
	if err != nil {
		return err
	}
	defer d.Close()

	sum, err := d.enrich.Run(c.Context, uuid.NewString())
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"runId":    sum.RunID,
		"products": sum.Products,
		"updated":  sum.Updated,
		"failed":   sum.Failed,
		"byType":   sum.ByType,
		"elapsed":  sum.Elapsed.String(),
	})
}

func coverage(c *cli.Context) error {
	d, err := connect(c.Context)
	if err != nil {
		return err
	}
	defer d.Close()

	rep, err := d.enrich.Coverage(c.Context)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func reparseOne(c *cli.Context) error {
	kind, err := offer.ParseKind(c.String("type"))
	if err != nil {
		return err
	}

	d, err := connect(c.Context)
	if err != nil {
		return err
	}
	defer d.Close()

	p, deals, err := d.enrich.ReparseOne(c.Context, kind)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"id":         p.ID,
		"basePrice":  p.BasePrice,
		"offerTexts": p.OfferTexts,
		"deals":      deals,
	})
}

func tune(c *cli.Context) error {
	cfg, err := config.LoadForFetch()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	sizes := c.IntSlice("size")
	if len(sizes) == 0 {
		sizes = scraper.DefaultTuneSizes()
	}
	repeats := c.Int("repeats")
	if repeats < 1 {
		return fmt.Errorf("--repeats must be positive, got %d", repeats)
	}

	fetcher := scraper.NewListingFetcher(cfg.ListingURL, cfg.HTTPTimeout(), metrics.NewRegistry())
	samples, err := scraper.NewTuner(fetcher).Evaluate(c.Context, sizes, repeats)
	if err != nil {
		return err
	}
	return printJSON(scraper.Summarise(samples))
}

func classify(c *cli.Context) error {
	return printJSON(offer.Parse(c.String("text"), c.Float64("price")))
}
