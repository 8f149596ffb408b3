package offer

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// pricePattern recognises either a pounds amount ("£3", "£3.50") or a whole
// number of pence ("75p"). Only one of the two groups is ever set.
var pricePattern = regexp.MustCompile(`£(\d+(?:\.\d+)?)|(\d+)p`)

// ExtractPrice returns the first monetary amount found in text, in pounds.
// The second return value is false when text carries no price at all; an
// unknown price is never reported as zero.
func ExtractPrice(text string) (decimal.Decimal, bool) {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return decimal.Decimal{}, false
	}

	switch {
	case m[1] != "":
		d, err := decimal.NewFromString(m[1])
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case m[2] != "":
		d, err := decimal.NewFromString(m[2])
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d.Shift(-2), true
	}
	return decimal.Decimal{}, false
}

// extractAmount is ExtractPrice narrowed to the float64 the savings formulas
// work in. It returns nil when no price is present.
func extractAmount(text string) *float64 {
	d, ok := ExtractPrice(text)
	if !ok {
		return nil
	}
	f, _ := d.Float64()
	return &f
}
