// Package api implements the HTTP surface of the service.
//
// Routes:
//
//	GET  /health          → liveness
//	POST /classify        → classify one offer text against a base price
//	GET  /products/{id}   → stored document and parsed promotions
//	GET  /coverage        → deal-type coverage over all distinct offer texts
//	GET  /metrics         → Prometheus exposition
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"promoharvest/internal/enrich"
	"promoharvest/internal/offer"
	"promoharvest/internal/store"
)

// ProductReader loads stored products.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*store.StoredProduct, error)
}

// CoverageReporter computes extraction coverage.
type CoverageReporter interface {
	Coverage(ctx context.Context) (*enrich.Report, error)
}

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Handler holds shared dependencies.
type Handler struct {
	products ProductReader
	coverage CoverageReporter
	metrics  http.Handler
	version  string
}

// NewHandler returns a configured Handler.
func NewHandler(products ProductReader, coverage CoverageReporter, metrics http.Handler, version string) *Handler {
	return &Handler{products: products, coverage: coverage, metrics: metrics, version: version}
}

// Router returns the chi router serving every route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Post("/classify", h.classify)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/coverage", h.getCoverage)
	r.Method(http.MethodGet, "/metrics", h.metrics)
	return r
}

// ─── Individual handlers ──────────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]string{
		"status":  "ok",
		"service": "promoharvest",
		"version": h.version,
	})
}

type classifyRequest struct {
	OfferText string   `json:"offerText"`
	BasePrice *float64 `json:"basePrice"`
}

func (req classifyRequest) validate() error {
	if req.OfferText == "" {
		return &ValidationError{Msg: "body must contain offerText"}
	}
	if req.BasePrice == nil {
		return &ValidationError{Msg: "body must contain basePrice"}
	}
	return nil
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	var body classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := body.validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonOK(w, offer.Parse(body.OfferText, *body.BasePrice))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.products.GetProduct(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Str("component", "api").Str("product", id).Err(err).Msg("getProduct failed")
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, p)
}

func (h *Handler) getCoverage(w http.ResponseWriter, r *http.Request) {
	rep, err := h.coverage.Coverage(r.Context())
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("coverage failed")
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, rep)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
