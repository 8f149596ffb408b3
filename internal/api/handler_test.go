package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"promoharvest/internal/api"
	"promoharvest/internal/enrich"
	"promoharvest/internal/metrics"
	"promoharvest/internal/offer"
	"promoharvest/internal/store"
)

type fakeProducts map[string]*store.StoredProduct

func (f fakeProducts) GetProduct(_ context.Context, id string) (*store.StoredProduct, error) {
	if id == "broken" {
		return nil, errors.New("connection reset")
	}
	p, ok := f[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

type fakeCoverage struct{ texts []string }

func (f fakeCoverage) Coverage(context.Context) (*enrich.Report, error) {
	return enrich.CoverageOf(f.texts), nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	products := fakeProducts{
		"p1": {
			ID:               "p1",
			Document:         json.RawMessage(`{"product":{"id":"p1","price":3}}`),
			ParsedPromotions: json.RawMessage(`[{"type":"clear"}]`),
			HarvestedAt:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	cov := fakeCoverage{texts: []string{"3 for 2", "Mystery offer"}}
	h := api.NewHandler(products, cov, metrics.NewRegistry().Handler(), "test")
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}
}

// ── POST /classify ─────────────────────────────────────────────────────────

func TestClassify(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Post(srv.URL+"/classify", "application/json",
		strings.NewReader(`{"offerText":"£1.50 Clubcard Price","basePrice":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	decode(t, resp, &body)
	if body["type"] != string(offer.KindSimple) || body["dealPrice"] != 1.5 || body["netSave"] != 0.5 || body["percSave"] != 0.25 {
		t.Errorf("classify = %v", body)
	}
}

func TestClassify_ZeroBasePriceAccepted(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Post(srv.URL+"/classify", "application/json",
		strings.NewReader(`{"offerText":"3 for 2","basePrice":0}`))
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["type"] != "nforn" || body["percSave"] != nil {
		t.Errorf("classify = %d %v", resp.StatusCode, body)
	}
}

func TestClassify_Validation(t *testing.T) {
	srv := newServer(t)
	for _, payload := range []string{
		`not json`,
		`{"basePrice":1}`,
		`{"offerText":"3 for 2"}`,
	} {
		resp, err := http.Post(srv.URL+"/classify", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatal(err)
		}
		var body map[string]string
		decode(t, resp, &body)
		if resp.StatusCode != http.StatusBadRequest || body["error"] == "" {
			t.Errorf("%s → %d %v, want 400 with error", payload, resp.StatusCode, body)
		}
	}
}

// ── GET /products/{id} ─────────────────────────────────────────────────────

func TestGetProduct(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/products/p1")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		ID               string           `json:"id"`
		ParsedPromotions []map[string]any `json:"parsedPromotions"`
	}
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body.ID != "p1" || len(body.ParsedPromotions) != 1 {
		t.Errorf("getProduct = %d %+v", resp.StatusCode, body)
	}
}

func TestGetProduct_Errors(t *testing.T) {
	srv := newServer(t)
	cases := map[string]int{
		"/products/nope":   http.StatusNotFound,
		"/products/broken": http.StatusInternalServerError,
	}
	for path, want := range cases {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("GET %s = %d, want %d", path, resp.StatusCode, want)
		}
	}
}

// ── GET /coverage, /metrics ────────────────────────────────────────────────

func TestCoverage(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/coverage")
	if err != nil {
		t.Fatal(err)
	}
	var body enrich.Report
	decode(t, resp, &body)
	if body.Total != 2 || body.ByType[offer.KindNForN] != 1 || len(body.Unrecognised) != 1 {
		t.Errorf("coverage = %+v", body)
	}
}

func TestMetrics(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "promo_deals_classified_total") {
		t.Error("metrics output missing promo_deals_classified_total")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/classify")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /classify = %d, want 405", resp.StatusCode)
	}
}
