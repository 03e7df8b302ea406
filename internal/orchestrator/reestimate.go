package orchestrator

import (
	"context"
	"fmt"
	"time"

	"augurbot/internal/db"
	"augurbot/internal/llm"
	"augurbot/internal/logger"
)

// CheckPriceMovements fetches current venue prices for active markets and,
// for any whose YES price has moved by at least the configured re-estimate
// trigger since its last snapshot, records a new snapshot and re-runs the
// blind estimate, letting a recommendation's edge react to the market
// without waiting for the next full scan. Markets that have not moved get
// no new snapshot.
func (o *Orchestrator) CheckPriceMovements(ctx context.Context) (int, error) {
	markets, err := o.Store.ListActiveMarkets("kalshi")
	if err != nil {
		return 0, fmt.Errorf("list active markets: %w", err)
	}

	byPlatformID := make(map[string]string, len(markets))
	for _, m := range markets {
		byPlatformID[m.PlatformID] = m.ID
	}
	if len(byPlatformID) == 0 {
		return 0, nil
	}

	current, err := o.Venue.FetchMarkets(ctx, len(byPlatformID), 0, nil, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("fetch current prices: %w", err)
	}

	reestimated := 0
	for _, m := range current {
		marketID, ok := byPlatformID[m.PlatformID]
		if !ok {
			continue
		}
		prior, err := o.Store.LatestSnapshot(marketID)
		if err != nil || prior == nil {
			continue
		}
		if absF(m.PriceYes-prior.PriceYes) < o.Cfg.ReEstimateTrigger {
			continue
		}

		logger.Info("PriceCheck", fmt.Sprintf(
			"%s moved %.2f -> %.2f, re-estimating", m.PlatformID, prior.PriceYes, m.PriceYes,
		))

		snapshotID, err := o.Store.InsertSnapshot(&db.MarketSnapshot{
			MarketID: marketID,
			PriceYes: m.PriceYes,
			Volume:   m.Volume,
		})
		if err != nil {
			logger.Warn("PriceCheck", fmt.Sprintf("snapshot %s failed: %v", m.PlatformID, err))
			continue
		}

		pm := preparedMarket{
			market:     m,
			marketID:   marketID,
			snapshotID: snapshotID,
			blindInput: llm.BlindInput{
				Question:            m.Question,
				ResolutionCriteria:  m.ResolutionCriteria,
				CloseDate:           m.CloseDate.Format(time.RFC3339),
				Category:            m.Category,
				SportType:           m.SportType,
				CalibrationFeedback: o.calibrationFeedback(m.Category),
			},
		}

		est, err := o.Researcher.Estimate(ctx, pm.blindInput, pm.market.Volume, "")
		if err != nil {
			logger.Warn("PriceCheck", fmt.Sprintf("re-estimate %s failed: %v", m.PlatformID, err))
			continue
		}
		if _, _, err := o.finalize(ctx, pm, est); err != nil {
			logger.Warn("PriceCheck", fmt.Sprintf("finalize %s failed: %v", m.PlatformID, err))
			continue
		}
		reestimated++
	}

	return reestimated, nil
}
