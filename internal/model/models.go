// Package model defines the data structures shared by the harvest and parse
// pipelines.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ProductItem is one entry of the listing's productItems array.
//
// Raw keeps the whole item as fetched; it is stored verbatim as the product
// document so nothing the retailer sends is lost. ID, BasePrice and
// Promotions are the fields the pipelines need, lifted out of Raw.
type ProductItem struct {
	ID         string
	BasePrice  *float64 // nil when the listing carries no product.price
	Promotions []Promotion
	Raw        map[string]any
}

// Promotion is a single promotion attached to a product.
type Promotion struct {
	OfferText string `json:"offerText"`
}

// NewProductItem lifts the identifying fields out of a decoded listing item.
// Items without product.id cannot be upserted and are rejected.
func NewProductItem(raw map[string]any) (ProductItem, error) {
	product, _ := raw["product"].(map[string]any)
	if product == nil {
		return ProductItem{}, fmt.Errorf("item has no product object")
	}

	id := idString(product["id"])
	if id == "" {
		return ProductItem{}, fmt.Errorf("item has no product.id")
	}

	item := ProductItem{ID: id, Raw: raw}
	if p, ok := number(product["price"]); ok {
		item.BasePrice = &p
	}

	promos, _ := raw["promotions"].([]any)
	for _, p := range promos {
		m, _ := p.(map[string]any)
		if m == nil {
			continue
		}
		text, _ := m["offerText"].(string)
		item.Promotions = append(item.Promotions, Promotion{OfferText: text})
	}
	return item, nil
}

// OfferTexts returns the offer text of every promotion, in order.
func (p ProductItem) OfferTexts() []string {
	texts := make([]string, 0, len(p.Promotions))
	for _, promo := range p.Promotions {
		texts = append(texts, promo.OfferText)
	}
	return texts
}

// Product is the stored projection the parse pipeline works on.
type Product struct {
	ID         string
	BasePrice  float64 // 0 when the document carries no price
	OfferTexts []string
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	}
	return ""
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
