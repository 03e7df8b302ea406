package orchestrator

import (
	"context"
	"fmt"

	"augurbot/internal/calc"
	"augurbot/internal/config"
	"augurbot/internal/logger"
)

// postScanSweep picks up any active recommendation that still has no
// associated trade — because auto-trading was off when it was created, its
// EV was below auto_trade_min_ev at the time, or a prior order attempt
// failed or sized to zero contracts — and gives it one more chance
// to be placed against the latest market snapshot. EV is re-verified
// against the current price rather than trusted from recommendation time,
// since the market can have moved in the time since the scan estimated it.
func (o *Orchestrator) postScanSweep(ctx context.Context, summary *ScanSummary) {
	recs, err := o.Store.ListActiveRecommendationsWithoutTrade()
	if err != nil {
		logger.Warn("Scan", fmt.Sprintf("post-scan sweep: list candidates: %v", err))
		return
	}

	for _, rec := range recs {
		market, err := o.Store.GetMarket(rec.MarketID)
		if err != nil || market == nil {
			continue
		}
		snap, err := o.Store.LatestSnapshot(rec.MarketID)
		if err != nil || snap == nil {
			continue
		}

		est, err := o.Store.LatestEstimate(rec.MarketID)
		if err != nil || est == nil {
			continue
		}

		evResult := calc.EV(est.Probability, snap.PriceYes, config.PlatformFee("kalshi"))
		if evResult == nil || evResult.EV < o.Cfg.AutoTradeMinEV {
			continue
		}
		if !calc.ShouldRecommend(est.Probability, evResult.EV, calc.Medium, o.Cfg.MinEdgeThreshold) {
			continue
		}
		if o.exceedsExposure(market.Category) {
			continue
		}

		kelly := calc.Kelly(evResult.Direction, est.Probability, evResult.EntryPrice, o.Cfg.KellyFraction, calc.Medium, o.Cfg.MaxSingleBetFraction)
		wager := kelly * o.Cfg.Bankroll
		if wager <= 0 {
			continue
		}

		recID := rec.ID
		if _, err := o.placeAutoTrade(ctx, rec.MarketID, market.PlatformID, evResult.Direction, evResult.EntryPrice, wager, &recID); err != nil {
			logger.Warn("AutoTrade", fmt.Sprintf("sweep place order for %s: %v", market.PlatformID, err))
			continue
		}
		summary.SweepTradesPlaced++
	}
}
