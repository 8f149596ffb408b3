package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promoharvest/internal/offer"
)

// Registry holds the collectors for one process. It is passed to the
// pipelines explicitly rather than registered globally.
type Registry struct {
	reg *prometheus.Registry

	// DealsClassified counts parsed offer texts by deal type; its
	// "unrecognised" series is the extraction coverage signal.
	DealsClassified *prometheus.CounterVec

	ProductsUpserted prometheus.Counter
	ProductsParsed   prometheus.Counter
	ParseFailures    prometheus.Counter
	PagesFetched     prometheus.Counter
	PagesFailed      prometheus.Counter
	FetchLatencySec  prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	deals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promo_deals_classified_total",
		Help: "Offer texts classified, by deal type.",
	}, []string{"type"})
	upserted := prometheus.NewCounter(prometheus.CounterOpts{Name: "promo_products_upserted_total"})
	parsed := prometheus.NewCounter(prometheus.CounterOpts{Name: "promo_products_parsed_total"})
	parseFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "promo_parse_update_failures_total"})
	pages := prometheus.NewCounter(prometheus.CounterOpts{Name: "promo_pages_fetched_total"})
	pagesFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "promo_pages_failed_total"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "promo_fetch_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(deals, upserted, parsed, parseFailures, pages, pagesFailed, latency)

	// Pre-create every series so dashboards see zeros before the first cycle.
	for _, k := range offer.Kinds {
		deals.WithLabelValues(string(k))
	}

	return &Registry{
		reg:              r,
		DealsClassified:  deals,
		ProductsUpserted: upserted,
		ProductsParsed:   parsed,
		ParseFailures:    parseFailures,
		PagesFetched:     pages,
		PagesFailed:      pagesFailed,
		FetchLatencySec:  latency,
	}
}

// ObserveDeals counts each deal under its type.
func (r *Registry) ObserveDeals(deals []offer.Deal) {
	for _, d := range deals {
		r.DealsClassified.WithLabelValues(string(d.Type)).Inc()
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
