package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/VSydorenko/simplyCMS-core-sub001/internal/domain"
)

func entry(tier, modification, price string, oldPrice string) domain.PriceEntry {
	e := domain.PriceEntry{
		PriceTierID:    tier,
		ProductID:      "product-1",
		ModificationID: modification,
		Price:          dec(price),
	}
	if oldPrice != "" {
		e.OldPrice = decimal.NewNullDecimal(dec(oldPrice))
	}
	return e
}

func TestResolvePrice(t *testing.T) {
	prices := []domain.PriceEntry{
		entry("retail", "", "100", "120"),
		entry("wholesale", "", "80", ""),
		entry("retail", "mod-1", "110", ""),
		entry("retail", "", "999", ""),
	}

	cases := []struct {
		name         string
		requested    string
		fallback     string
		modification string
		wantPrice    string
		wantOld      string
		wantTier     string
		wantDefault  bool
	}{
		{name: "requested tier", requested: "wholesale", fallback: "retail", wantPrice: "80", wantTier: "wholesale"},
		{name: "falls back to default", requested: "vip", fallback: "retail", wantPrice: "100", wantOld: "120", wantTier: "retail", wantDefault: true},
		{name: "no requested tier", requested: "", fallback: "retail", wantPrice: "100", wantOld: "120", wantTier: "retail", wantDefault: true},
		{name: "variant price", requested: "retail", fallback: "retail", modification: "mod-1", wantPrice: "110", wantTier: "retail"},
		{name: "variant never uses product price", requested: "wholesale", fallback: "wholesale", modification: "mod-1"},
		{name: "first duplicate wins", requested: "retail", fallback: "", wantPrice: "100", wantOld: "120", wantTier: "retail"},
		{name: "nothing resolvable", requested: "vip", fallback: "gold"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolvePrice(prices, tc.requested, tc.fallback, tc.modification)
			if tc.wantPrice == "" {
				if got.Available() || got.OldPrice.Valid {
					t.Fatalf("expected no price, got %+v", got)
				}
				return
			}
			if !got.Available() || !got.Price.Decimal.Equal(dec(tc.wantPrice)) {
				t.Fatalf("want price %s, got %+v", tc.wantPrice, got)
			}
			if tc.wantOld == "" && got.OldPrice.Valid {
				t.Fatalf("expected no old price, got %s", got.OldPrice.Decimal)
			}
			if tc.wantOld != "" && (!got.OldPrice.Valid || !got.OldPrice.Decimal.Equal(dec(tc.wantOld))) {
				t.Fatalf("want old price %s, got %+v", tc.wantOld, got.OldPrice)
			}
			if got.PriceTierID != tc.wantTier || got.UsedDefaultTier != tc.wantDefault {
				t.Fatalf("want tier %q default %v, got %q %v", tc.wantTier, tc.wantDefault, got.PriceTierID, got.UsedDefaultTier)
			}
		})
	}
}

func TestResolvePrice_EmptyPriceList(t *testing.T) {
	got := ResolvePrice(nil, "retail", "retail", "")
	if got.Available() || got.OldPrice.Valid {
		t.Fatalf("expected unavailable price, got %+v", got)
	}
}

func TestResolvePrice_FallbackNeverMixesRows(t *testing.T) {
	prices := []domain.PriceEntry{
		entry("vip", "", "50", ""),
		entry("retail", "", "70", "90"),
	}
	got := ResolvePrice(prices, "gold", "retail", "")
	if !got.Price.Decimal.Equal(dec("70")) || !got.OldPrice.Decimal.Equal(dec("90")) {
		t.Fatalf("expected values of the default row, got %+v", got)
	}
}
