package orchestrator

import (
	"context"
	"fmt"

	"augurbot/internal/calc"
	"augurbot/internal/db"
	"augurbot/internal/logger"
)

// ResolutionSummary reports how many markets were checked and how they
// resolved during one resolution pass.
type ResolutionSummary struct {
	Checked   int
	Resolved  int
	Cancelled int
}

// CheckResolutions polls the venue for every active market's current
// status. Cancelled markets close their market row, expire any active
// recommendation, and cancel any open trade with no P&L impact. Resolved
// markets record the outcome, close every open trade against the realized
// price, and insert an idempotent performance row feeding the calibration
// loop.
func (o *Orchestrator) CheckResolutions(ctx context.Context) (*ResolutionSummary, error) {
	summary := &ResolutionSummary{}

	markets, err := o.Store.ListActiveMarkets("kalshi")
	if err != nil {
		return summary, fmt.Errorf("list active markets: %w", err)
	}
	if len(markets) == 0 {
		return summary, nil
	}

	platformIDs := make([]string, 0, len(markets))
	byPlatformID := make(map[string]*db.Market, len(markets))
	for _, m := range markets {
		platformIDs = append(platformIDs, m.PlatformID)
		byPlatformID[m.PlatformID] = m
	}
	summary.Checked = len(platformIDs)

	resolutions, err := o.Venue.CheckResolutions(ctx, platformIDs)
	if err != nil {
		return summary, fmt.Errorf("check resolutions: %w", err)
	}

	for _, res := range resolutions {
		market := byPlatformID[res.PlatformID]
		if market == nil {
			continue
		}

		switch res.Status {
		case "cancelled":
			if err := o.closeCancelledMarket(market); err != nil {
				logger.Warn("Resolution", fmt.Sprintf("cancel %s: %v", res.PlatformID, err))
				continue
			}
			summary.Cancelled++
		case "resolved":
			if err := o.closeResolvedMarket(market, res.Outcome); err != nil {
				logger.Warn("Resolution", fmt.Sprintf("resolve %s: %v", res.PlatformID, err))
				continue
			}
			summary.Resolved++
		}
	}

	return summary, nil
}

func (o *Orchestrator) closeCancelledMarket(market *db.Market) error {
	if err := o.Store.UpdateMarketStatus(market.ID, string(db.MarketClosed), nil); err != nil {
		return err
	}
	if _, err := o.Store.SqlDB().Exec(
		`UPDATE recommendations SET status = 'expired' WHERE market_id = ? AND status = 'active'`,
		market.ID,
	); err != nil {
		return err
	}
	trades, err := o.Store.ListOpenTradesForMarket(market.ID)
	if err != nil {
		return err
	}
	for _, t := range trades {
		if err := o.Store.CancelTrade(t.ID); err != nil {
			logger.Warn("Resolution", fmt.Sprintf("cancel trade %s: %v", t.ID, err))
		}
	}
	return nil
}

func (o *Orchestrator) closeResolvedMarket(market *db.Market, outcome string) error {
	// The active recommendation (if any) must be read before resolving it
	// below, since ResolveRecommendationsForMarket moves it out of the
	// 'active' status GetActiveRecommendation matches on.
	rec, err := o.Store.GetActiveRecommendation(market.ID)
	if err != nil {
		logger.Warn("Resolution", fmt.Sprintf("get active recommendation for %s: %v", market.ID, err))
	}

	outcomeCopy := outcome
	if err := o.Store.UpdateMarketStatus(market.ID, string(db.MarketResolved), &outcomeCopy); err != nil {
		return err
	}
	if err := o.Store.ResolveRecommendationsForMarket(market.ID, outcome); err != nil {
		return err
	}

	outcomeValue := 0.0
	if outcome == "yes" {
		outcomeValue = 1.0
	}

	trades, err := o.Store.ListOpenTradesForMarket(market.ID)
	if err != nil {
		return err
	}

	var totalPnL float64
	var anyClosed bool
	for _, t := range trades {
		exitPrice := 0.0
		won := t.Direction == outcome
		if won {
			exitPrice = 1.0
		}
		pnl := calc.PnL(calc.Direction(t.Direction), t.Wager, t.EntryPrice, t.FeesPaid, won)
		if err := o.Store.CloseTrade(t.ID, exitPrice, t.FeesPaid, pnl); err != nil {
			logger.Warn("Resolution", fmt.Sprintf("close trade %s: %v", t.ID, err))
			continue
		}
		totalPnL += pnl
		anyClosed = true
	}

	est, err := o.Store.LatestEstimate(market.ID)
	predictedProb := 0.5
	confidence := ""
	if err == nil && est != nil {
		predictedProb = est.Probability
		confidence = est.Confidence
	}

	marketPrice := 0.0
	if snap, err := o.Store.LatestSnapshot(market.ID); err == nil && snap != nil {
		marketPrice = snap.PriceYes
	}

	var pnlPtr *float64
	if anyClosed {
		pnlPtr = &totalPnL
	}

	var recID *string
	var simulatedPnL *float64
	if rec != nil {
		recID = &rec.ID
		won := rec.Direction == outcome
		sim := calc.PnL(calc.Direction(rec.Direction), rec.SuggestedWager, rec.EntryPrice, calc.KalshiFee(rec.EntryPrice)*rec.SuggestedWager, won)
		simulatedPnL = &sim
	}

	if err := o.Store.InsertPerformanceRecord(&db.PerformanceRecord{
		MarketID:         market.ID,
		RecommendationID: recID,
		PredictedProb:    predictedProb,
		MarketPrice:      marketPrice,
		Outcome:          outcomeValue,
		BrierScore:       calc.Brier(predictedProb, outcomeValue),
		PnL:              pnlPtr,
		SimulatedPnL:     simulatedPnL,
		Category:         market.Category,
		Confidence:       confidence,
	}); err != nil {
		logger.Warn("Resolution", fmt.Sprintf("record performance for market %s: %v", market.ID, err))
	}
	return nil
}
