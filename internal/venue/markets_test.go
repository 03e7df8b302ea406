package venue

import "testing"

func TestDetectCategorySeriesPrefixLongestMatchWins(t *testing.T) {
	cat, sport := detectCategory("Will the Wildcats win?", "", "NCAAF-25NOV01-ALA-LSU", "")
	if cat != "sports" || sport != "college football" {
		t.Fatalf("expected sports/college football, got %s/%s", cat, sport)
	}
}

func TestDetectCategorySeriesPrefixFallsBackToShorterEntry(t *testing.T) {
	cat, sport := detectCategory("Lakers at Celtics", "", "NBA-25JAN01-LAL-BOS", "")
	if cat != "sports" || sport != "basketball" {
		t.Fatalf("expected sports/basketball, got %s/%s", cat, sport)
	}
}

func TestDetectCategoryEconSeriesPrefix(t *testing.T) {
	cat, _ := detectCategory("Will CPI exceed 3%?", "", "CPI-25DEC", "")
	if cat != "economics" {
		t.Fatalf("expected economics, got %s", cat)
	}
}

func TestDetectCategoryHardRejectOverridesPrefix(t *testing.T) {
	cat, _ := detectCategory("Bitcoin vs Ethereum market cap", "", "", "")
	if cat == "sports" {
		t.Fatal("expected crypto title to be rejected, not classified as sports")
	}
}

func TestDetectCategoryKeywordFallback(t *testing.T) {
	cat, sport := detectCategory("Will the Fed cut rates in March?", "", "", "")
	if cat != "economics" {
		t.Fatalf("expected economics via keyword fallback, got %s", cat)
	}
	if sport != "" {
		t.Fatalf("expected no sport label for an econ market, got %s", sport)
	}
}

func TestDetectCategoryVsPatternFallback(t *testing.T) {
	cat, _ := detectCategory("Arsenal vs Chelsea: who wins?", "", "", "")
	if cat != "sports" {
		t.Fatalf("expected the 'X vs Y' fallback to classify as sports, got %s", cat)
	}
}

func TestDetectCategoryDefaultsToOther(t *testing.T) {
	cat, _ := detectCategory("Will it happen by June?", "", "", "")
	if cat != "other" {
		t.Fatalf("expected other, got %s", cat)
	}
}

func TestIsParlayRejectsYesPrefixedTitle(t *testing.T) {
	if !isParlay("Yes the Fed cuts rates") {
		t.Fatal("expected a 'yes '-prefixed title to be treated as a parlay leg")
	}
}

func TestIsParlayRejectsMultiLegCommaList(t *testing.T) {
	if !isParlay("Combo, yes Lakers win, no Celtics lose") {
		t.Fatal("expected a multi-comma list with 2+ yes/no legs to be rejected")
	}
}

func TestIsParlayAllowsOrdinaryComma(t *testing.T) {
	if isParlay("Will Lakers, the reigning champs, make the playoffs?") {
		t.Fatal("expected an ordinary comma-containing title to pass through")
	}
}

func TestPriceYesCentsPrefersLastPrice(t *testing.T) {
	cents, ok := priceYesCents(rawMarket{LastPrice: 62, YesAsk: 70, YesBid: 60})
	if !ok || cents != 62 {
		t.Fatalf("expected last_price 62, got %v ok=%v", cents, ok)
	}
}

func TestPriceYesCentsFallsBackToMidpoint(t *testing.T) {
	cents, ok := priceYesCents(rawMarket{YesAsk: 70, YesBid: 60})
	if !ok || cents != 65 {
		t.Fatalf("expected midpoint 65, got %v ok=%v", cents, ok)
	}
}

func TestPriceYesCentsFallsBackToAskThenBid(t *testing.T) {
	if cents, ok := priceYesCents(rawMarket{YesAsk: 70}); !ok || cents != 70 {
		t.Fatalf("expected ask 70, got %v ok=%v", cents, ok)
	}
	if cents, ok := priceYesCents(rawMarket{YesBid: 40}); !ok || cents != 40 {
		t.Fatalf("expected bid 40, got %v ok=%v", cents, ok)
	}
}

func TestPriceYesCentsAllZeroIsNotOK(t *testing.T) {
	if _, ok := priceYesCents(rawMarket{}); ok {
		t.Fatal("expected all-zero prices to be rejected")
	}
}

func TestNormalizeMarketSkipsWhenNoPrice(t *testing.T) {
	if _, ok := normalizeMarket(rawMarket{Ticker: "FOO", Title: "Some market"}); ok {
		t.Fatal("expected a priceless market to be skipped")
	}
}
