package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"promoharvest/internal/metrics"
	"promoharvest/internal/model"
)

const (
	userAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/95.0.4638.69 Safari/537.36"
	maxBodySize = 64 << 20
)

// ListingFetcher retrieves pages of the retailer's promotions listing.
type ListingFetcher struct {
	URL     string
	client  *http.Client
	metrics *metrics.Registry
}

// NewListingFetcher constructs a fetcher with its own HTTP client.
func NewListingFetcher(listingURL string, timeout time.Duration, m *metrics.Registry) *ListingFetcher {
	return &ListingFetcher{
		URL:     listingURL,
		client:  &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// FetchPage returns the raw listing page for the given page number and page
// size.
func (f *ListingFetcher) FetchPage(ctx context.Context, page, count int) ([]byte, error) {
	endpoint, err := url.Parse(f.URL)
	if err != nil {
		return nil, fmt.Errorf("listing url: %w", err)
	}
	params := endpoint.Query()
	params.Set("page", strconv.Itoa(page))
	params.Set("count", strconv.Itoa(count))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.PagesFailed.Inc()
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		f.metrics.PagesFailed.Inc()
		return nil, fmt.Errorf("read body: %w", err)
	}
	f.metrics.FetchLatencySec.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		f.metrics.PagesFailed.Inc()
		return nil, fmt.Errorf("listing returned %d for page %d", resp.StatusCode, page)
	}

	f.metrics.PagesFetched.Inc()
	return body, nil
}

// TotalProducts returns the number of products currently on offer. A listing
// that does not report a count yields 0.
func (f *ListingFetcher) TotalProducts(ctx context.Context) (int, error) {
	data, err := f.listing(ctx, 1, 1)
	if err != nil {
		return 0, err
	}

	switch n := DeepGet(data, totalCountPath...).(type) {
	case float64:
		return int(n), nil
	case json.Number:
		v, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("totalCount %q: %w", n, err)
		}
		return int(v), nil
	}
	return 0, nil
}

// Products returns the product items on one listing page. Items that cannot
// be identified are skipped.
func (f *ListingFetcher) Products(ctx context.Context, page, count int) ([]model.ProductItem, error) {
	data, err := f.listing(ctx, page, count)
	if err != nil {
		return nil, err
	}

	raw, _ := DeepGet(data, productItemsPath...).([]any)
	items := make([]model.ProductItem, 0, len(raw))
	for i, r := range raw {
		m, _ := r.(map[string]any)
		if m == nil {
			continue
		}
		item, err := model.NewProductItem(m)
		if err != nil {
			log.Warn().Str("component", "fetcher").Int("page", page).Int("index", i).Err(err).
				Msg("skipping product item")
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (f *ListingFetcher) listing(ctx context.Context, page, count int) (map[string]any, error) {
	body, err := f.FetchPage(ctx, page, count)
	if err != nil {
		return nil, err
	}
	props, err := ExtractProps(body)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	var data map[string]any
	if err := json.Unmarshal(props, &data); err != nil {
		return nil, fmt.Errorf("page %d: json unmarshal: %w", page, err)
	}
	return data, nil
}
