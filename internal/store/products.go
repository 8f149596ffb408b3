// Package store persists harvested product documents and their parsed
// promotions in PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"promoharvest/internal/model"
	"promoharvest/internal/offer"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("product not found")

const schema = `
CREATE TABLE IF NOT EXISTS products (
    id                TEXT PRIMARY KEY,
    document          JSONB NOT NULL,
    base_price        DOUBLE PRECISION,
    parsed_promotions JSONB,
    harvested_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    parsed_at         TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS products_parsed_promotions_idx
    ON products USING GIN (parsed_promotions jsonb_path_ops);`

// offerTextsExpr lists a document's offer texts in promotion order.
const offerTextsExpr = `ARRAY(
    SELECT COALESCE(e.p->>'offerText', '')
    FROM jsonb_array_elements(COALESCE(document->'promotions', '[]'::jsonb)) WITH ORDINALITY AS e(p, i)
    ORDER BY e.i)`

// StoredProduct is a product as returned to API clients.
type StoredProduct struct {
	ID               string          `json:"id"`
	Document         json.RawMessage `json:"document"`
	ParsedPromotions json.RawMessage `json:"parsedPromotions"`
	HarvestedAt      time.Time       `json:"harvestedAt"`
	ParsedAt         *time.Time      `json:"parsedAt"`
}

// ProductStore is the PostgreSQL-backed product collection.
type ProductStore struct {
	pool *pgxpool.Pool
}

// NewProductStore returns a ProductStore on pool.
func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

// EnsureSchema creates the products table and its index if missing.
func (s *ProductStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensureSchema: %w", err)
	}
	return nil
}

// UpsertProduct inserts or replaces the document for item.ID. Parsed
// promotions are left alone until the next parse run.
func (s *ProductStore) UpsertProduct(ctx context.Context, item model.ProductItem) error {
	doc, err := json.Marshal(item.Raw)
	if err != nil {
		return fmt.Errorf("upsertProduct marshal %s: %w", item.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO products (id, document, base_price, harvested_at)
		 VALUES ($1, $2::jsonb, $3, NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET document     = EXCLUDED.document,
		     base_price   = EXCLUDED.base_price,
		     harvested_at = NOW()`,
		item.ID, string(doc), item.BasePrice,
	)
	if err != nil {
		return fmt.Errorf("upsertProduct %s: %w", item.ID, err)
	}
	return nil
}

// CountProducts returns the number of stored products.
func (s *ProductStore) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("countProducts: %w", err)
	}
	return n, nil
}

// ListProducts returns the id, base price and offer texts of every product.
// A product without a stored price has BasePrice 0.
func (s *ProductStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(base_price, 0), `+offerTextsExpr+`
		 FROM products
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listProducts query: %w", err)
	}
	defer rows.Close()

	products := make([]model.Product, 0)
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.BasePrice, &p.OfferTexts); err != nil {
			return nil, fmt.Errorf("listProducts scan: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// SetParsedPromotions replaces the parsed promotions of product id.
func (s *ProductStore) SetParsedPromotions(ctx context.Context, id string, deals []offer.Deal) error {
	if deals == nil {
		deals = []offer.Deal{}
	}
	raw, err := json.Marshal(deals)
	if err != nil {
		return fmt.Errorf("setParsedPromotions marshal %s: %w", id, err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE products
		 SET parsed_promotions = $1::jsonb,
		     parsed_at         = NOW()
		 WHERE id = $2`,
		string(raw), id,
	)
	if err != nil {
		return fmt.Errorf("setParsedPromotions %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UniqueOfferTexts returns every distinct offer text across all products,
// sorted.
func (s *ProductStore) UniqueOfferTexts(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT p->>'offerText'
		 FROM products,
		      jsonb_array_elements(COALESCE(document->'promotions', '[]'::jsonb)) AS p
		 WHERE p->>'offerText' IS NOT NULL
		 ORDER BY 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("uniqueOfferTexts query: %w", err)
	}
	defer rows.Close()

	texts := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("uniqueOfferTexts scan: %w", err)
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

// FindByDealType returns one product whose parsed promotions include a deal
// of the given kind.
func (s *ProductStore) FindByDealType(ctx context.Context, kind offer.Kind) (*model.Product, error) {
	filter, _ := json.Marshal([]map[string]string{{"type": string(kind)}})

	var p model.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(base_price, 0), `+offerTextsExpr+`
		 FROM products
		 WHERE parsed_promotions @> $1::jsonb
		 LIMIT 1`,
		string(filter),
	).Scan(&p.ID, &p.BasePrice, &p.OfferTexts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("findByDealType %s: %w", kind, err)
	}
	return &p, nil
}

// GetProduct returns the stored document and parsed promotions of id.
func (s *ProductStore) GetProduct(ctx context.Context, id string) (*StoredProduct, error) {
	var p StoredProduct
	err := s.pool.QueryRow(ctx,
		`SELECT id, document, parsed_promotions, harvested_at, parsed_at
		 FROM products
		 WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Document, &p.ParsedPromotions, &p.HarvestedAt, &p.ParsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getProduct %s: %w", id, err)
	}
	return &p, nil
}
