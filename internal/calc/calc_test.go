package calc

import "testing"

func TestKalshiFee(t *testing.T) {
	if got := KalshiFee(0.5); got <= 0 {
		t.Fatalf("fee at p=0.5 should be positive, got %v", got)
	}
	if got := KalshiFee(0); got != 0 {
		t.Fatalf("fee at p=0 should be zero, got %v", got)
	}
	if got := KalshiFee(1); got != 0 {
		t.Fatalf("fee at p=1 should be zero, got %v", got)
	}
}

func TestEVPrefersYesWhenModelBullish(t *testing.T) {
	res := EV(0.70, 0.50, 0.07)
	if res == nil {
		t.Fatal("expected a positive-EV result")
	}
	if res.Direction != Yes {
		t.Fatalf("expected Yes side, got %s", res.Direction)
	}
	if res.EntryPrice != 0.50 {
		t.Fatalf("expected entry price 0.50, got %v", res.EntryPrice)
	}
}

func TestEVPrefersNoWhenModelBearish(t *testing.T) {
	res := EV(0.20, 0.50, 0.07)
	if res == nil {
		t.Fatal("expected a positive-EV result")
	}
	if res.Direction != No {
		t.Fatalf("expected No side, got %s", res.Direction)
	}
}

func TestEVReturnsNilWhenNoEdge(t *testing.T) {
	if res := EV(0.50, 0.50, 0.07); res != nil {
		t.Fatalf("expected nil for a priced-in market, got %+v", res)
	}
}

func TestEVPicksYesWhenOnlyYesClearsZero(t *testing.T) {
	// EV prices the NO leg at 1 - priceYes, so the two edges are exact
	// negatives and at most one leg can clear zero EV. With no fee, a 0.9
	// model probability against a 0.1 YES price leaves only YES, at ev=0.8.
	res := EV(0.9, 0.1, 0.0)
	if res == nil || res.Direction != Yes {
		t.Fatalf("expected Yes with ev=0.8, got %+v", res)
	}
}

func TestKellyClampsToMaxBetFraction(t *testing.T) {
	got := Kelly(Yes, 0.95, 0.50, 1.0, High, 0.05)
	if got != 0.05 {
		t.Fatalf("expected clamp to 0.05, got %v", got)
	}
}

func TestKellyNegativeEdgeReturnsZero(t *testing.T) {
	got := Kelly(Yes, 0.30, 0.50, 0.33, High, 0.05)
	if got != 0 {
		t.Fatalf("expected 0 for negative edge, got %v", got)
	}
}

func TestKellyZeroDenomReturnsZero(t *testing.T) {
	if got := Kelly(No, 0.5, 1, 0.33, High, 0.05); got != 0 {
		t.Fatalf("expected 0 when entry price leaves zero denom, got %v", got)
	}
}

func TestKellyConfidenceScalesDown(t *testing.T) {
	high := Kelly(Yes, 0.70, 0.50, 0.33, High, 1.0)
	medium := Kelly(Yes, 0.70, 0.50, 0.33, Medium, 1.0)
	low := Kelly(Yes, 0.70, 0.50, 0.33, Low, 1.0)
	if !(high > medium && medium > low) {
		t.Fatalf("expected high > medium > low, got %v %v %v", high, medium, low)
	}
}

func TestBrier(t *testing.T) {
	if got := Brier(1.0, 1.0); got != 0 {
		t.Fatalf("perfect prediction should score 0, got %v", got)
	}
	if got := Brier(0.0, 1.0); got != 1.0 {
		t.Fatalf("maximally wrong prediction should score 1, got %v", got)
	}
}

func TestPnLLoss(t *testing.T) {
	got := PnL(Yes, 100, 0.40, 2, false)
	if got != -102 {
		t.Fatalf("expected -102 on a loss, got %v", got)
	}
}

func TestPnLWinYes(t *testing.T) {
	got := PnL(Yes, 40, 0.40, 1, true)
	want := 40*(1-0.40)/0.40 - 1
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPnLWinNo(t *testing.T) {
	got := PnL(No, 40, 0.40, 1, true)
	want := 40*0.40/(1-0.40) - 1
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestShouldRecommendWeakBandRequiresHigherEV(t *testing.T) {
	if ShouldRecommend(0.50, 0.10, High, 0.05) {
		t.Fatal("expected weak-band estimate to fail the 0.12 gate even at high confidence")
	}
	if !ShouldRecommend(0.50, 0.13, High, 0.05) {
		t.Fatal("expected weak-band estimate above 0.12 to pass")
	}
}

func TestShouldRecommendLowConfidenceNeverPasses(t *testing.T) {
	if ShouldRecommend(0.80, 0.50, Low, 0.01) {
		t.Fatal("low confidence should never clear the gate regardless of EV")
	}
}

func TestShouldRecommendWeakBandIgnoresConfidence(t *testing.T) {
	if !ShouldRecommend(0.50, 0.15, Low, 0.05) {
		t.Fatal("weak-band estimate above 0.12 should pass regardless of confidence, including Low")
	}
	if ShouldRecommend(0.50, 0.10, High, 0.05) {
		t.Fatal("weak-band estimate below 0.12 should fail even at High confidence")
	}
}

func TestShouldRecommendConfidenceThresholds(t *testing.T) {
	if ShouldRecommend(0.80, 0.07, Medium, 0.05) {
		t.Fatal("medium confidence below 0.08 should fail")
	}
	if !ShouldRecommend(0.80, 0.08, Medium, 0.05) {
		t.Fatal("medium confidence at 0.08 should pass")
	}
	if !ShouldRecommend(0.80, 0.05, High, 0.05) {
		t.Fatal("high confidence at 0.05 should pass")
	}
}

func TestShouldRecommendEmptyConfidenceFallsBackToMinEdge(t *testing.T) {
	if ShouldRecommend(0.80, 0.04, "", 0.05) {
		t.Fatal("below minEdge should fail with empty confidence")
	}
	if !ShouldRecommend(0.80, 0.06, "", 0.05) {
		t.Fatal("above minEdge should pass with empty confidence")
	}
}
