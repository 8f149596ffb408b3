package offer

// The formulas below reproduce the historical parsedPromotions data exactly,
// including the order of floating point operations. Percentages are nil when
// the base price is not positive.

func simpleSavings(p, dealPrice float64) (net, perc *float64) {
	n := p - dealPrice
	return &n, ratio(p-dealPrice, p, p)
}

// unitBundleSavings covers "N for M" where M is a count of units paid for.
// percSave does not depend on p, but is still withheld when p <= 0.
func unitBundleSavings(p float64, n, f int) (net, perc *float64) {
	s := p * float64(n-f) / float64(n)
	return &s, ratio(float64(n-f), float64(n), p)
}

// priceBundleSavings covers "N for £X" where f is the bundle price.
func priceBundleSavings(p float64, n int, f float64) (net, perc *float64) {
	s := (float64(n)*p - f) / float64(n)
	return &s, ratio(float64(n)*p-f, float64(n)*p, p)
}

func offSavings(p, off float64) (net, perc *float64) {
	s := off
	return &s, ratio(p-off, p, p)
}

// ratio returns num/den, or nil when the base price p is not positive.
func ratio(num, den, p float64) *float64 {
	if p <= 0 || den == 0 {
		return nil
	}
	r := num / den
	return &r
}
