package offer_test

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"promoharvest/internal/offer"
)

const eps = 1e-9

func approx(t *testing.T, field string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Errorf("%s = nil, want %v", field, want)
		return
	}
	if math.Abs(*got-want) > eps {
		t.Errorf("%s = %v, want %v", field, *got, want)
	}
}

func isNil(t *testing.T, field string, got *float64) {
	t.Helper()
	if got != nil {
		t.Errorf("%s = %v, want nil", field, *got)
	}
}

// ── Literal scenarios ──────────────────────────────────────────────────────

func TestParse_Simple(t *testing.T) {
	d := offer.Parse("XYZ Clubcard Price £3", 5)
	if d.Type != offer.KindSimple {
		t.Fatalf("Type = %s, want simple", d.Type)
	}
	approx(t, "DealPrice", d.DealPrice, 3)
	approx(t, "NetSave", d.NetSave, 2)
	approx(t, "PercSave", d.PercSave, 0.4)
}

func TestParse_SimplePriceFirst(t *testing.T) {
	d := offer.Parse("£1.50 Clubcard Price", 2)
	if d.Type != offer.KindSimple {
		t.Fatalf("Type = %s, want simple", d.Type)
	}
	approx(t, "DealPrice", d.DealPrice, 1.5)
	approx(t, "NetSave", d.NetSave, 0.5)
	approx(t, "PercSave", d.PercSave, 0.25)
}

func TestParse_NForN(t *testing.T) {
	d := offer.Parse("3 for 2", 4)
	if d.Type != offer.KindNForN {
		t.Fatalf("Type = %s, want nforn", d.Type)
	}
	if d.N != 3 {
		t.Errorf("N = %d, want 3", d.N)
	}
	approx(t, "For", d.For, 2)
	approx(t, "NetSave", d.NetSave, 4.0*(3-2)/3)
	approx(t, "PercSave", d.PercSave, 1.0/3)
	if d.Details != nil {
		t.Errorf("Details = %q, want nil", *d.Details)
	}
}

func TestParse_NFor(t *testing.T) {
	d := offer.Parse("2 for £5 - Selected Beers", 3)
	if d.Type != offer.KindNFor {
		t.Fatalf("Type = %s, want nfor", d.Type)
	}
	if d.N != 2 {
		t.Errorf("N = %d, want 2", d.N)
	}
	approx(t, "For", d.For, 5)
	approx(t, "NetSave", d.NetSave, (2*3-5)/2.0)
	approx(t, "PercSave", d.PercSave, (2*3-5)/6.0)
	if d.Details == nil || *d.Details != "Selected Beers" {
		t.Errorf("Details = %v, want \"Selected Beers\"", d.Details)
	}
}

func TestParse_NForPence(t *testing.T) {
	d := offer.Parse("3 for 90p", 0.5)
	if d.Type != offer.KindNFor {
		t.Fatalf("Type = %s, want nfor", d.Type)
	}
	approx(t, "For", d.For, 0.9)
	approx(t, "NetSave", d.NetSave, (3*0.5-0.9)/3)
}

func TestParse_AnyForN(t *testing.T) {
	d := offer.Parse("Any 3 for 2 - Selected Cheese", 6)
	if d.Type != offer.KindAnyForN {
		t.Fatalf("Type = %s, want anyforn", d.Type)
	}
	if d.N != 3 {
		t.Errorf("N = %d, want 3", d.N)
	}
	approx(t, "For", d.For, 2)
	approx(t, "NetSave", d.NetSave, 2)
	approx(t, "PercSave", d.PercSave, 1.0/3)
	if d.Details == nil || *d.Details != "Selected Cheese" {
		t.Errorf("Details = %v, want \"Selected Cheese\"", d.Details)
	}
}

// The (n·p − f)/(n·p) formula is authoritative: 1/4, not 0.5/4.
func TestParse_AnyFor(t *testing.T) {
	d := offer.Parse("Any 2 for £3", 2)
	if d.Type != offer.KindAnyFor {
		t.Fatalf("Type = %s, want anyfor", d.Type)
	}
	if d.N != 2 {
		t.Errorf("N = %d, want 2", d.N)
	}
	approx(t, "For", d.For, 3)
	approx(t, "NetSave", d.NetSave, 0.5)
	approx(t, "PercSave", d.PercSave, 0.25)
}

func TestParse_MealDeal(t *testing.T) {
	d := offer.Parse("Lunchtime Meal Deal for £3.50 - Main, snack and drink", 2)
	if d.Type != offer.KindMealDeal {
		t.Fatalf("Type = %s, want mealdeal", d.Type)
	}
	if d.DealClass != "Lunchtime" {
		t.Errorf("DealClass = %q, want Lunchtime", d.DealClass)
	}
	approx(t, "DealPrice", d.DealPrice, 3.5)
	if d.Details == nil || *d.Details != "Main, snack and drink" {
		t.Errorf("Details = %v", d.Details)
	}
	isNil(t, "NetSave", d.NetSave)
	isNil(t, "PercSave", d.PercSave)
}

func TestParse_Off(t *testing.T) {
	d := offer.Parse("Save 50p OFF", 2)
	if d.Type != offer.KindOff {
		t.Fatalf("Type = %s, want off", d.Type)
	}
	if d.DealClass != "Save" {
		t.Errorf("DealClass = %q, want Save", d.DealClass)
	}
	approx(t, "Off", d.Off, 0.5)
	approx(t, "NetSave", d.NetSave, 0.5)
	approx(t, "PercSave", d.PercSave, 0.75)
}

func TestParse_OffWithoutClass(t *testing.T) {
	d := offer.Parse("£1 OFF", 4)
	if d.Type != offer.KindOff {
		t.Fatalf("Type = %s, want off", d.Type)
	}
	if d.DealClass != "" {
		t.Errorf("DealClass = %q, want empty", d.DealClass)
	}
	approx(t, "Off", d.Off, 1)
	approx(t, "PercSave", d.PercSave, 0.75)
}

func TestParse_Clear(t *testing.T) {
	for _, text := range []string{"Reduced to Clear", "Item Reduced to Clear today"} {
		if d := offer.Parse(text, 1); d.Type != offer.KindClear {
			t.Errorf("Parse(%q).Type = %s, want clear", text, d.Type)
		}
	}
}

func TestParse_Unrecognised(t *testing.T) {
	for _, text := range []string{"random unmatched text", "", "Buy one get one free", "0 for 2"} {
		d := offer.Parse(text, 1)
		if d.Type != offer.KindUnrecognised {
			t.Errorf("Parse(%q).Type = %s, want unrecognised", text, d.Type)
		}
		if !reflect.DeepEqual(d, offer.Deal{Type: offer.KindUnrecognised}) {
			t.Errorf("Parse(%q) carries fields: %+v", text, d)
		}
	}
}

// ── Cascade priority ───────────────────────────────────────────────────────

func TestCascade_DeclaredOrder(t *testing.T) {
	want := []offer.Kind{
		offer.KindSimple, offer.KindNForN, offer.KindNFor, offer.KindAnyForN,
		offer.KindAnyFor, offer.KindMealDeal, offer.KindOff, offer.KindClear,
	}
	if len(offer.Cascade) != len(want) {
		t.Fatalf("len(Cascade) = %d, want %d", len(offer.Cascade), len(want))
	}
	for i, r := range offer.Cascade {
		if r.Kind != want[i] {
			t.Errorf("Cascade[%d] = %s, want %s", i, r.Kind, want[i])
		}
	}
}

// "3 for 2 - x" fits both the nforn and nfor grammars; nforn is declared first.
func TestCascade_NForNBeforeNFor(t *testing.T) {
	text := "3 for 2 - Selected lines"
	var matching []offer.Kind
	for _, r := range offer.Cascade {
		if r.Match(text) != nil {
			matching = append(matching, r.Kind)
		}
	}
	if len(matching) < 2 || matching[0] != offer.KindNForN || matching[1] != offer.KindNFor {
		t.Fatalf("matching recognizers = %v, want [nforn nfor ...]", matching)
	}
	if d := offer.Parse(text, 1); d.Type != offer.KindNForN {
		t.Errorf("Parse(%q).Type = %s, want nforn", text, d.Type)
	}
}

func TestCascade_SimpleBeforeOff(t *testing.T) {
	d := offer.Parse("£2 Clubcard Price - £1 OFF", 3)
	if d.Type != offer.KindSimple {
		t.Errorf("Type = %s, want simple", d.Type)
	}
}

func TestCascade_MealDealBeforeClear(t *testing.T) {
	d := offer.Parse("Breakfast Meal Deal for £4 - Reduced to Clear", 3)
	if d.Type != offer.KindMealDeal {
		t.Errorf("Type = %s, want mealdeal", d.Type)
	}
}

// A price operand written in pence or with decimals is never a unit count.
func TestCascade_PriceOperandIsNotAUnitCount(t *testing.T) {
	cases := map[string]offer.Kind{
		"3 for 250p":     offer.KindNFor,
		"3 for 2.50":     offer.KindNFor,
		"Any 2 for 150p": offer.KindAnyFor,
		"Any 4 for 3":    offer.KindAnyForN,
	}
	for text, want := range cases {
		if d := offer.Parse(text, 1); d.Type != want {
			t.Errorf("Parse(%q).Type = %s, want %s", text, d.Type, want)
		}
	}
}

// ── Absent and non-computable values ───────────────────────────────────────

func TestParse_ZeroBasePrice(t *testing.T) {
	texts := []string{
		"£3 Clubcard Price", "3 for 2", "2 for £5", "Any 3 for 2", "Any 2 for £3", "£1 OFF",
	}
	for _, text := range texts {
		d := offer.Parse(text, 0)
		if d.PercSave != nil {
			t.Errorf("Parse(%q, 0).PercSave = %v, want nil", text, *d.PercSave)
		}
		if d.NetSave == nil {
			t.Errorf("Parse(%q, 0).NetSave = nil, want a value", text)
		}
	}
}

func TestParse_NegativeBasePrice(t *testing.T) {
	d := offer.Parse("£3 Clubcard Price", -1)
	if d.PercSave != nil {
		t.Errorf("PercSave = %v, want nil", *d.PercSave)
	}
}

func TestParse_SimpleWithoutPrice(t *testing.T) {
	d := offer.Parse("Great Clubcard Price", 2)
	if d.Type != offer.KindSimple {
		t.Fatalf("Type = %s, want simple", d.Type)
	}
	isNil(t, "DealPrice", d.DealPrice)
	isNil(t, "NetSave", d.NetSave)
	isNil(t, "PercSave", d.PercSave)
}

func TestParse_BundleWithoutPrice(t *testing.T) {
	d := offer.Parse("2 for two", 2)
	if d.Type != offer.KindNFor {
		t.Fatalf("Type = %s, want nfor", d.Type)
	}
	if d.N != 2 {
		t.Errorf("N = %d, want 2", d.N)
	}
	isNil(t, "For", d.For)
	isNil(t, "NetSave", d.NetSave)
	isNil(t, "PercSave", d.PercSave)
}

func TestParse_OffWithoutAmount(t *testing.T) {
	d := offer.Parse("Half Price 50% OFF", 2)
	if d.Type != offer.KindOff {
		t.Fatalf("Type = %s, want off", d.Type)
	}
	isNil(t, "Off", d.Off)
	isNil(t, "NetSave", d.NetSave)
	isNil(t, "PercSave", d.PercSave)
}

func TestParse_DetailsKeepsLaterSeparators(t *testing.T) {
	d := offer.Parse("Any 3 for £10 - Mix - and match", 4)
	if d.Details == nil || *d.Details != "Mix - and match" {
		t.Errorf("Details = %v, want \"Mix - and match\"", d.Details)
	}
}

// ── Determinism & exhaustive tagging ───────────────────────────────────────

func TestParse_Deterministic(t *testing.T) {
	texts := []string{
		"XYZ Clubcard Price £3", "3 for 2", "Any 2 for £3", "Lunch Meal Deal for £3",
		"Save £1 OFF", "Reduced to Clear", "random",
	}
	for _, text := range texts {
		first := offer.Parse(text, 2.5)
		for i := 0; i < 5; i++ {
			if again := offer.Parse(text, 2.5); !reflect.DeepEqual(first, again) {
				t.Fatalf("Parse(%q) not deterministic: %+v vs %+v", text, first, again)
			}
		}
	}
}

func TestParse_AlwaysTagged(t *testing.T) {
	texts := []string{
		"", " ", "-", " - ", "£", "p", "Any", "Any for", "for 2", "OFF", "Meal Deal",
		"£3 Clubcard Price", "Any 0 for 1", "12 for 1 - x", "Reduced to Clear - 3 for 2",
	}
	for _, text := range texts {
		d := offer.Parse(text, 1)
		if _, err := offer.ParseKind(string(d.Type)); err != nil {
			t.Errorf("Parse(%q) produced untagged deal %+v", text, d)
		}
	}
}

func TestParseAll_PreservesOrder(t *testing.T) {
	deals := offer.ParseAll([]string{"Reduced to Clear", "3 for 2", "nope"}, 1)
	want := []offer.Kind{offer.KindClear, offer.KindNForN, offer.KindUnrecognised}
	if len(deals) != len(want) {
		t.Fatalf("len = %d, want %d", len(deals), len(want))
	}
	for i, d := range deals {
		if d.Type != want[i] {
			t.Errorf("deals[%d].Type = %s, want %s", i, d.Type, want[i])
		}
	}
}

// ── ParseKind ──────────────────────────────────────────────────────────────

func TestParseKind(t *testing.T) {
	for _, k := range offer.Kinds {
		got, err := offer.ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	for _, s := range []string{"", "SIMPLE", "bogo", " simple"} {
		if _, err := offer.ParseKind(s); err == nil {
			t.Errorf("ParseKind(%q) expected error", s)
		}
	}
}

// ── JSON shape ─────────────────────────────────────────────────────────────

func TestDeal_MarshalJSON(t *testing.T) {
	cases := []struct {
		text  string
		price float64
		want  string
	}{
		{"Reduced to Clear", 1, `{"type":"clear"}`},
		{"random", 1, `{"type":"unrecognised"}`},
		{"£3 Clubcard Price", 0, `{"type":"simple","dealPrice":3,"netSave":-3,"percSave":null}`},
		{"3 for 2", 3, `{"type":"nforn","n":3,"for":2,"details":null,"netSave":1,"percSave":0.3333333333333333}`},
		{"Lunch Meal Deal for £3 - Sandwich", 1, `{"type":"mealdeal","dealClass":"Lunch","dealPrice":3,"details":"Sandwich"}`},
		{"Save £1 OFF", 2, `{"type":"off","dealClass":"Save","off":1,"netSave":1,"percSave":0.5}`},
	}
	for _, c := range cases {
		b, err := json.Marshal(offer.Parse(c.text, c.price))
		if err != nil {
			t.Fatalf("Marshal(%q): %v", c.text, err)
		}
		if string(b) != c.want {
			t.Errorf("Marshal(Parse(%q)) = %s, want %s", c.text, b, c.want)
		}
	}
}
