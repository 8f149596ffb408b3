// Package offer classifies merchant-authored promotion texts ("offerText")
// into structured, numerically comparable deals.
//
// Classification is a pure function of (offerText, basePrice): nothing is
// cached, fetched or persisted, so Parse may be called from any number of
// goroutines without synchronisation.
package offer

import (
	"encoding/json"
	"fmt"
)

// Kind is the discriminator of a Deal.
type Kind string

const (
	KindSimple       Kind = "simple"
	KindNForN        Kind = "nforn"
	KindNFor         Kind = "nfor"
	KindAnyForN      Kind = "anyforn"
	KindAnyFor       Kind = "anyfor"
	KindMealDeal     Kind = "mealdeal"
	KindOff          Kind = "off"
	KindClear        Kind = "clear"
	KindUnrecognised Kind = "unrecognised"
)

// Kinds lists every deal kind in classification priority order.
var Kinds = []Kind{
	KindSimple, KindNForN, KindNFor, KindAnyForN, KindAnyFor,
	KindMealDeal, KindOff, KindClear, KindUnrecognised,
}

// ParseKind converts a raw string to a Kind, returning an error for unknown
// values. Matching is case-sensitive.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown deal type %q", s)
}

// IsBundle reports whether k describes N units for a combined price or count.
func (k Kind) IsBundle() bool {
	switch k {
	case KindNForN, KindNFor, KindAnyForN, KindAnyFor:
		return true
	}
	return false
}

// Deal is the parsed form of one offer text.
//
// Only the fields belonging to Type are meaningful. Pointer fields are nil
// when the value could not be derived: a price that is not in the text, or a
// percentage whose reference price is not positive.
type Deal struct {
	Type Kind

	N   int      // bundle size
	For *float64 // bundle unit count (nforn, anyforn) or bundle price (nfor, anyfor)

	DealClass string   // mealdeal and off: verbatim prefix
	DealPrice *float64 // simple and mealdeal
	Off       *float64 // off
	Details   *string  // bundles and mealdeal: text after " - "

	NetSave  *float64
	PercSave *float64
}

// MarshalJSON writes only the fields of the deal's variant, so a "clear" deal
// encodes as {"type":"clear"} and a non-computable percentage as null.
func (d Deal) MarshalJSON() ([]byte, error) {
	switch {
	case d.Type == KindSimple:
		return json.Marshal(struct {
			Type      Kind     `json:"type"`
			DealPrice *float64 `json:"dealPrice"`
			NetSave   *float64 `json:"netSave"`
			PercSave  *float64 `json:"percSave"`
		}{d.Type, d.DealPrice, d.NetSave, d.PercSave})

	case d.Type.IsBundle():
		return json.Marshal(struct {
			Type     Kind     `json:"type"`
			N        int      `json:"n"`
			For      *float64 `json:"for"`
			Details  *string  `json:"details"`
			NetSave  *float64 `json:"netSave"`
			PercSave *float64 `json:"percSave"`
		}{d.Type, d.N, d.For, d.Details, d.NetSave, d.PercSave})

	case d.Type == KindMealDeal:
		return json.Marshal(struct {
			Type      Kind     `json:"type"`
			DealClass string   `json:"dealClass"`
			DealPrice *float64 `json:"dealPrice"`
			Details   *string  `json:"details"`
		}{d.Type, d.DealClass, d.DealPrice, d.Details})

	case d.Type == KindOff:
		return json.Marshal(struct {
			Type      Kind     `json:"type"`
			DealClass string   `json:"dealClass"`
			Off       *float64 `json:"off"`
			NetSave   *float64 `json:"netSave"`
			PercSave  *float64 `json:"percSave"`
		}{d.Type, d.DealClass, d.Off, d.NetSave, d.PercSave})
	}

	return json.Marshal(struct {
		Type Kind `json:"type"`
	}{d.Type})
}
