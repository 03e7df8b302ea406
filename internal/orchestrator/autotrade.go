package orchestrator

import (
	"context"
	"fmt"

	"augurbot/internal/calc"
	"augurbot/internal/db"
	"augurbot/internal/logger"
	"augurbot/internal/venue"

	"github.com/shopspring/decimal"
)

// contractsAndCents converts a dollar bet amount at a given decimal price
// into an integer contract count and the cent-precision limit price the
// venue's order API expects, clamped to the venue's [1, 99] cent range.
// Contract counts always round down so the placed order never exceeds the
// sized wager.
func contractsAndCents(betAmount, price float64) (contracts int, cents int) {
	amt := decimal.NewFromFloat(betAmount)
	p := decimal.NewFromFloat(price)
	if p.IsZero() {
		return 0, 0
	}
	contracts = int(amt.Div(p).Floor().IntPart())

	cents = int(p.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
	if cents < 1 {
		cents = 1
	}
	if cents > 99 {
		cents = 99
	}
	return contracts, cents
}

// placeAutoTrade submits a limit buy for a sized wager and persists the
// resulting Trade with venue_trade_id="order_"+orderID. It returns
// (nil, nil) when the order can't be sized into at least one contract.
func (o *Orchestrator) placeAutoTrade(ctx context.Context, marketID, platformID string, dir calc.Direction, price, wager float64, recID *string) (*db.Trade, error) {
	contracts, cents := contractsAndCents(wager, price)
	if contracts <= 0 {
		return nil, nil
	}

	orderID, err := o.Venue.PlaceOrder(ctx, venue.Order{
		PlatformID: platformID,
		Side:       string(dir),
		Count:      contracts,
		PriceCents: cents,
		Action:     "buy",
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	actualWager := float64(contracts) * price
	fees := calc.KalshiFee(price) * actualWager
	ref := "order_" + orderID

	tradeID, err := o.Store.InsertTrade(&db.Trade{
		MarketID:         marketID,
		RecommendationID: recID,
		Platform:         "kalshi",
		Direction:        string(dir),
		EntryPrice:       price,
		Wager:            actualWager,
		FeesPaid:         fees,
		Status:           string(db.TradeOpen),
		Source:           string(db.TradeSourceManual),
		ExternalRef:      &ref,
	})
	if err != nil {
		return nil, fmt.Errorf("persist trade: %w", err)
	}

	logger.Success("AutoTrade", fmt.Sprintf(
		"%s %s %d@%d¢ ($%.2f) order=%s", platformID, dir, contracts, cents, actualWager, orderID,
	))

	trade, err := o.Store.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	return trade, nil
}
