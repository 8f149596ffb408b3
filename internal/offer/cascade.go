package offer

import (
	"regexp"
	"strconv"
)

// Recognizer matches one deal grammar and builds the Deal for it.
//
// Recognizers are not mutually exclusive ("3 for 2 - Selected lines" fits
// both the nforn and nfor grammars); priority is the order of Cascade.
type Recognizer struct {
	Kind Kind

	// Match returns the submatches of text, or nil when the grammar does not
	// apply.
	Match func(text string) []string

	// Produce builds the deal from Match's result.
	Produce func(m []string, text string, basePrice float64) Deal
}

var (
	simplePattern   = regexp.MustCompile(`^\S+ Clubcard Price`)
	nForNPattern    = regexp.MustCompile(`^(\d+) for (\d+)(?:[^\w.]|$)`)
	nForPattern     = regexp.MustCompile(`^(\d+) for (\S+)`)
	anyForNPattern  = regexp.MustCompile(`^Any (\d+) for (\d+)(?:[^\w.]|$)`)
	anyForPattern   = regexp.MustCompile(`^Any (\d+) for (\S+)`)
	mealDealPattern = regexp.MustCompile(`^(.*?) Meal Deal for (\S+)`)
	offPattern      = regexp.MustCompile(`^(?:(.*?) )?(\S+) OFF`)
	clearPattern    = regexp.MustCompile(`Reduced to Clear`)

	detailsPattern = regexp.MustCompile(`^.*? - (.*)`)
)

// Cascade is the ordered recognizer list; the first match wins. Texts that
// no recognizer accepts are classified as KindUnrecognised.
var Cascade = []Recognizer{
	{Kind: KindSimple, Match: simplePattern.FindStringSubmatch, Produce: produceSimple},
	{Kind: KindNForN, Match: bundleMatcher(nForNPattern), Produce: produceUnitBundle(KindNForN)},
	{Kind: KindNFor, Match: bundleMatcher(nForPattern), Produce: producePriceBundle(KindNFor)},
	{Kind: KindAnyForN, Match: bundleMatcher(anyForNPattern), Produce: produceUnitBundle(KindAnyForN)},
	{Kind: KindAnyFor, Match: bundleMatcher(anyForPattern), Produce: producePriceBundle(KindAnyFor)},
	{Kind: KindMealDeal, Match: mealDealPattern.FindStringSubmatch, Produce: produceMealDeal},
	{Kind: KindOff, Match: offPattern.FindStringSubmatch, Produce: produceOff},
	{Kind: KindClear, Match: clearPattern.FindStringSubmatch, Produce: produceClear},
}

// Parse classifies text against Cascade and computes the savings it implies
// for a product whose regular price is basePrice.
func Parse(text string, basePrice float64) Deal {
	for _, r := range Cascade {
		if m := r.Match(text); m != nil {
			return r.Produce(m, text, basePrice)
		}
	}
	return Deal{Type: KindUnrecognised}
}

// ParseAll classifies every text with the same base price, preserving order.
func ParseAll(texts []string, basePrice float64) []Deal {
	deals := make([]Deal, 0, len(texts))
	for _, t := range texts {
		deals = append(deals, Parse(t, basePrice))
	}
	return deals
}

// bundleMatcher wraps a bundle pattern so that a bundle size of zero (or one
// too large for an int) is not accepted.
func bundleMatcher(re *regexp.Regexp) func(string) []string {
	return func(text string) []string {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return nil
		}
		if n, err := strconv.Atoi(m[1]); err != nil || n < 1 {
			return nil
		}
		return m
	}
}

func details(text string) *string {
	m := detailsPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return &m[1]
}

// ── Producers ───────────────────────────────────────────────────────────────

func produceSimple(_ []string, text string, p float64) Deal {
	d := Deal{Type: KindSimple}
	if price := extractAmount(text); price != nil {
		d.DealPrice = price
		d.NetSave, d.PercSave = simpleSavings(p, *price)
	}
	return d
}

func produceUnitBundle(kind Kind) func([]string, string, float64) Deal {
	return func(m []string, text string, p float64) Deal {
		n, _ := strconv.Atoi(m[1])
		d := Deal{Type: kind, N: n, Details: details(text)}
		f, err := strconv.Atoi(m[2])
		if err != nil {
			return d
		}
		count := float64(f)
		d.For = &count
		d.NetSave, d.PercSave = unitBundleSavings(p, n, f)
		return d
	}
}

func producePriceBundle(kind Kind) func([]string, string, float64) Deal {
	return func(m []string, text string, p float64) Deal {
		n, _ := strconv.Atoi(m[1])
		d := Deal{Type: kind, N: n, Details: details(text)}
		if price := extractAmount(m[2]); price != nil {
			d.For = price
			d.NetSave, d.PercSave = priceBundleSavings(p, n, *price)
		}
		return d
	}
}

func produceMealDeal(m []string, text string, _ float64) Deal {
	return Deal{
		Type:      KindMealDeal,
		DealClass: m[1],
		DealPrice: extractAmount(m[2]),
		Details:   details(text),
	}
}

func produceOff(m []string, _ string, p float64) Deal {
	d := Deal{Type: KindOff, DealClass: m[1]}
	if off := extractAmount(m[2]); off != nil {
		d.Off = off
		d.NetSave, d.PercSave = offSavings(p, *off)
	}
	return d
}

func produceClear([]string, string, float64) Deal {
	return Deal{Type: KindClear}
}
