package db

import "testing"

func TestFindOpenOrderTradeFindsOrderPrefixedRef(t *testing.T) {
	d := openTestDB(t)
	marketID := insertTestMarket(t, d)

	ref := "order_abc123"
	tradeID, err := d.InsertTrade(&Trade{
		MarketID:    marketID,
		Platform:    "kalshi",
		Direction:   "yes",
		EntryPrice:  0.40,
		Wager:       25,
		Status:      "open",
		Source:      "manual",
		ExternalRef: &ref,
	})
	if err != nil {
		t.Fatalf("insert trade: %v", err)
	}

	found, err := d.FindOpenOrderTrade(marketID, "yes")
	if err != nil {
		t.Fatalf("find open order trade: %v", err)
	}
	if found == nil || found.ID != tradeID {
		t.Fatalf("expected to find trade %s, got %+v", tradeID, found)
	}
}

func TestFindOpenOrderTradeIgnoresFillPrefixedRef(t *testing.T) {
	d := openTestDB(t)
	marketID := insertTestMarket(t, d)

	ref := "fill_xyz"
	if _, err := d.InsertTrade(&Trade{
		MarketID:    marketID,
		Platform:    "kalshi",
		Direction:   "yes",
		EntryPrice:  0.40,
		Wager:       25,
		Status:      "open",
		Source:      "api_sync",
		ExternalRef: &ref,
	}); err != nil {
		t.Fatalf("insert trade: %v", err)
	}

	found, err := d.FindOpenOrderTrade(marketID, "yes")
	if err != nil {
		t.Fatalf("find open order trade: %v", err)
	}
	if found != nil {
		t.Fatalf("expected no match for an already-adopted fill, got %+v", found)
	}
}

func TestAdoptFillRewritesRefAndEntryPriceInPlace(t *testing.T) {
	d := openTestDB(t)
	marketID := insertTestMarket(t, d)

	ref := "order_abc123"
	tradeID, err := d.InsertTrade(&Trade{
		MarketID:    marketID,
		Platform:    "kalshi",
		Direction:   "yes",
		EntryPrice:  0.40,
		Wager:       25,
		Status:      "open",
		Source:      "manual",
		ExternalRef: &ref,
	})
	if err != nil {
		t.Fatalf("insert trade: %v", err)
	}

	if err := d.AdoptFill(tradeID, "fill_abc123", 0.41, 0.73); err != nil {
		t.Fatalf("adopt fill: %v", err)
	}

	updated, err := d.GetTrade(tradeID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if updated.ExternalRef == nil || *updated.ExternalRef != "fill_abc123" {
		t.Fatalf("expected external_ref fill_abc123, got %v", updated.ExternalRef)
	}
	if updated.EntryPrice != 0.41 {
		t.Fatalf("expected entry price 0.41, got %v", updated.EntryPrice)
	}
	if updated.FeesPaid != 0.73 {
		t.Fatalf("expected fees 0.73, got %v", updated.FeesPaid)
	}

	// AdoptFill must never insert a second row for the same position.
	all, err := d.ListOpenTradesForMarket(marketID)
	if err != nil {
		t.Fatalf("list open trades: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one open trade after adoption, got %d", len(all))
	}
}

func TestCancelTradesForCanceledOrdersOnlyCancelsMatchingOrderRefs(t *testing.T) {
	d := openTestDB(t)
	marketID := insertTestMarket(t, d)

	refA := "order_aaa"
	refB := "order_bbb"
	tradeA, err := d.InsertTrade(&Trade{
		MarketID: marketID, Platform: "kalshi", Direction: "yes",
		EntryPrice: 0.4, Wager: 10, Status: "open", Source: "manual", ExternalRef: &refA,
	})
	if err != nil {
		t.Fatalf("insert trade A: %v", err)
	}
	tradeB, err := d.InsertTrade(&Trade{
		MarketID: marketID, Platform: "kalshi", Direction: "no",
		EntryPrice: 0.6, Wager: 10, Status: "open", Source: "manual", ExternalRef: &refB,
	})
	if err != nil {
		t.Fatalf("insert trade B: %v", err)
	}

	cancelled, err := d.CancelTradesForCanceledOrders("kalshi", []string{"aaa"})
	if err != nil {
		t.Fatalf("cancel trades: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancellation, got %d", cancelled)
	}

	a, _ := d.GetTrade(tradeA)
	b, _ := d.GetTrade(tradeB)
	if a.Status != "cancelled" {
		t.Fatalf("expected trade A cancelled, got %s", a.Status)
	}
	if b.Status != "open" {
		t.Fatalf("expected trade B to remain open, got %s", b.Status)
	}
}

func TestCancelTradesForCanceledOrdersIgnoresUnknownOrderID(t *testing.T) {
	d := openTestDB(t)
	cancelled, err := d.CancelTradesForCanceledOrders("kalshi", []string{"does-not-exist"})
	if err != nil {
		t.Fatalf("cancel trades: %v", err)
	}
	if cancelled != 0 {
		t.Fatalf("expected 0 cancellations for an unknown order id, got %d", cancelled)
	}
}
