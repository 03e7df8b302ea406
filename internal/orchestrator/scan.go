package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"augurbot/internal/calc"
	"augurbot/internal/config"
	"augurbot/internal/db"
	"augurbot/internal/llm"
	"augurbot/internal/logger"
	"augurbot/internal/scanprogress"
	"augurbot/internal/venue"

	"golang.org/x/sync/semaphore"
)

// preparedMarket bundles a venue market with its persisted row id and the
// fields the blind estimator is allowed to see.
type preparedMarket struct {
	market     venue.Market
	marketID   string
	snapshotID string
	blindInput llm.BlindInput
}

func (o *Orchestrator) scan(ctx context.Context) (*ScanSummary, error) {
	summary := &ScanSummary{}

	now := time.Now()
	minCloseUnix := now.Add(2 * time.Hour).Unix()
	maxCloseUnix := int64(0)
	if o.Cfg.MaxCloseHours > 0 {
		maxCloseUnix = now.Add(time.Duration(o.Cfg.MaxCloseHours * float64(time.Hour))).Unix()
	}
	rawMarkets, err := o.Venue.FetchMarkets(ctx, o.Cfg.MarketsPerPlatform, o.Cfg.MinVolume, o.Cfg.Categories, minCloseUnix, maxCloseUnix)
	if err != nil {
		return summary, fmt.Errorf("fetch markets: %w", err)
	}
	summary.MarketsFound = len(rawMarkets)
	o.Progress.SetMarketsFound(len(rawMarkets), len(rawMarkets))

	prepared := make([]preparedMarket, 0, len(rawMarkets))
	for _, m := range rawMarkets {
		marketID, err := o.Store.UpsertMarket(&db.Market{
			Platform:           "kalshi",
			PlatformID:         m.PlatformID,
			Question:           m.Question,
			Description:        m.Description,
			ResolutionCriteria: m.ResolutionCriteria,
			Category:           m.Category,
			SportType:          m.SportType,
			CloseDate:          closeDatePtr(m),
			Liquidity:          m.Liquidity,
			Status:             "active",
		})
		if err != nil {
			logger.Warn("Scan", fmt.Sprintf("upsert market %s: %v", m.PlatformID, err))
			continue
		}

		snapshotID, err := o.Store.InsertSnapshot(&db.MarketSnapshot{
			MarketID: marketID,
			PriceYes: m.PriceYes,
			Volume:   m.Volume,
		})
		if err != nil {
			logger.Warn("Scan", fmt.Sprintf("insert snapshot %s: %v", m.PlatformID, err))
			continue
		}

		if !o.needsResearch(marketID) {
			summary.MarketsSkipped++
			o.Progress.MarketDone(scanprogress.ResultSkipped)
			continue
		}

		blindInput := llm.BlindInput{
			Question:            m.Question,
			ResolutionCriteria:  m.ResolutionCriteria,
			CloseDate:           m.CloseDate.Format(time.RFC3339),
			Category:            m.Category,
			SportType:           m.SportType,
			CalibrationFeedback: o.calibrationFeedback(m.Category),
		}

		if !o.Researcher.Screen(ctx, blindInput) {
			summary.MarketsSkipped++
			o.Progress.MarketDone(scanprogress.ResultSkipped)
			continue
		}

		prepared = append(prepared, preparedMarket{
			market:     m,
			marketID:   marketID,
			snapshotID: snapshotID,
			blindInput: blindInput,
		})
	}

	if o.Cfg.BatchModeEnabled && len(prepared) > 0 {
		o.estimateBatch(ctx, prepared, summary)
	} else {
		o.estimateSync(ctx, prepared, summary)
	}

	if o.Cfg.AutoTradeEnabled {
		o.postScanSweep(ctx, summary)
	}

	return summary, nil
}

// estimateSync runs the synchronous per-market estimate path, bounded by a
// semaphore of 5 concurrent LLM calls.
func (o *Orchestrator) estimateSync(ctx context.Context, prepared []preparedMarket, summary *ScanSummary) {
	var mu sync.Mutex
	sem := semaphore.NewWeighted(5)
	var wg sync.WaitGroup

	for _, pm := range prepared {
		pm := pm
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			o.Progress.MarketProcessing(pm.market.Question)
			est, err := o.Researcher.Estimate(ctx, pm.blindInput, pm.market.Volume, "")

			mu.Lock()
			defer mu.Unlock()
			o.recordOutcome(ctx, pm, est, err, summary)
		}()
	}
	wg.Wait()
}

// estimateBatch submits every prepared market as a single Anthropic Message
// Batch. On any batch-level failure (submission, timeout, or an empty
// result set), it falls back to the synchronous path for the markets that
// still lack an estimate rather than losing the scan.
func (o *Orchestrator) estimateBatch(ctx context.Context, prepared []preparedMarket, summary *ScanSummary) {
	items := make([]llm.BatchItem, len(prepared))
	for i, pm := range prepared {
		items[i] = llm.BatchItem{CustomID: pm.marketID, Input: pm.blindInput, Volume: pm.market.Volume}
	}

	results, errs := o.Researcher.EstimateBatch(ctx, items)

	var fallback []preparedMarket
	for i, pm := range prepared {
		if errs[i] != nil || results[i] == nil {
			logger.Warn("Scan", fmt.Sprintf("batch estimate missing for %s, falling back to sync: %v", pm.market.PlatformID, errs[i]))
			fallback = append(fallback, pm)
			continue
		}
		o.recordOutcome(ctx, pm, results[i], nil, summary)
	}

	if len(fallback) > 0 {
		o.estimateSync(ctx, fallback, summary)
	}
}

// recordOutcome finalizes one market's estimate (persist, EV/Kelly gate,
// auto-trade) and updates the scan summary/progress tracker.
func (o *Orchestrator) recordOutcome(ctx context.Context, pm preparedMarket, est *llm.Estimate, err error, summary *ScanSummary) {
	if err != nil {
		logger.Warn("Scan", fmt.Sprintf("estimate failed for %s: %v", pm.market.PlatformID, err))
		o.Progress.MarketDone(scanprogress.ResultSkipped)
		return
	}

	rec, researched, err := o.finalize(ctx, pm, est)
	if err != nil {
		logger.Warn("Scan", fmt.Sprintf("finalize failed for %s: %v", pm.market.PlatformID, err))
		o.Progress.MarketDone(scanprogress.ResultSkipped)
		return
	}
	if !researched {
		o.Progress.MarketDone(scanprogress.ResultSkipped)
		return
	}
	summary.MarketsResearched++
	if rec != nil {
		summary.RecommendationsCreated++
		summary.Recommendations = append(summary.Recommendations, rec)
		o.Progress.MarketDone(scanprogress.ResultRecommended)
	} else {
		o.Progress.MarketDone(scanprogress.ResultResearched)
	}
}

// needsResearch reports whether a market's most recent estimate is older
// than the configured cache window (or doesn't exist at all).
func (o *Orchestrator) needsResearch(marketID string) bool {
	est, err := o.Store.LatestEstimate(marketID)
	if err != nil || est == nil {
		return true
	}
	return time.Since(est.CreatedAt) > time.Duration(o.Cfg.EstimateCacheHours*float64(time.Hour))
}

func (o *Orchestrator) calibrationFeedback(category string) string {
	buckets, err := o.Store.CalibrationBuckets()
	if err != nil {
		return ""
	}
	var worst *db.CalibrationBucket
	for i := range buckets {
		b := buckets[i]
		if b.Count < 5 {
			continue
		}
		bias := b.AvgPredicted - b.AvgOutcome
		if worst == nil || absF(bias) > absF(worst.AvgPredicted-worst.AvgOutcome) {
			worst = &b
		}
	}
	if worst == nil {
		return ""
	}
	return fmt.Sprintf(
		"On past estimates between %.0f%% and %.0f%%, you were on average %.0f points %s (n=%d).",
		worst.Low*100, worst.High*100, absF(worst.AvgPredicted-worst.AvgOutcome)*100,
		overUnder(worst.AvgPredicted-worst.AvgOutcome), worst.Count,
	)
}

func overUnder(bias float64) string {
	if bias > 0 {
		return "overconfident on YES"
	}
	return "underconfident on YES"
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func closeDatePtr(m venue.Market) *time.Time {
	if m.CloseDate.IsZero() {
		return nil
	}
	t := m.CloseDate
	return &t
}

// finalize persists an already-produced estimate, applies the EV/Kelly/
// exposure gates, and persists a recommendation (and, if auto-trading is
// enabled and the gates clear, a live order) when the gates clear. It
// returns (nil, true, nil) when the market was researched but did not clear
// the gates.
func (o *Orchestrator) finalize(ctx context.Context, pm preparedMarket, est *llm.Estimate) (*db.Recommendation, bool, error) {
	estimateID, err := o.Store.InsertEstimate(&db.AIEstimate{
		MarketID:         pm.marketID,
		SnapshotID:       pm.snapshotID,
		Model:            est.Model,
		Probability:      est.Probability,
		Confidence:       string(est.Confidence),
		Reasoning:        est.Reasoning,
		KeyEvidence:      est.KeyEvidence,
		KeyUncertainties: est.KeyUncertainties,
		InputTokens:      est.InputTokens,
		OutputTokens:     est.OutputTokens,
		EstimatedCost:    est.EstimatedCost,
	})
	if err != nil {
		return nil, true, fmt.Errorf("insert estimate: %w", err)
	}

	_ = o.Store.InsertCostLog(&db.CostLogEntry{
		MarketID:      &pm.marketID,
		Model:         est.Model,
		InputTokens:   est.InputTokens,
		OutputTokens:  est.OutputTokens,
		EstimatedCost: est.EstimatedCost,
	})

	evResult := calc.EV(est.Probability, pm.market.PriceYes, config.PlatformFee("kalshi"))
	if evResult == nil {
		return nil, true, nil
	}

	confidence := calc.Confidence(est.Confidence)
	if !calc.ShouldRecommend(est.Probability, evResult.EV, confidence, o.Cfg.MinEdgeThreshold) {
		return nil, true, nil
	}

	if o.exceedsExposure(pm.market.Category) {
		logger.Info("Scan", fmt.Sprintf("skipping %s: exposure cap reached", pm.market.PlatformID))
		return nil, true, nil
	}

	kelly := calc.Kelly(evResult.Direction, est.Probability, evResult.EntryPrice, o.Cfg.KellyFraction, confidence, o.Cfg.MaxSingleBetFraction)
	wager := kelly * o.Cfg.Bankroll
	if wager <= 0 {
		return nil, true, nil
	}

	_, err = o.Store.ReplaceActiveRecommendation(&db.Recommendation{
		MarketID:       pm.marketID,
		EstimateID:     estimateID,
		Direction:      string(evResult.Direction),
		EntryPrice:     evResult.EntryPrice,
		Edge:           evResult.Edge,
		EV:             evResult.EV,
		KellyFraction:  kelly,
		SuggestedWager: wager,
	})
	if err != nil {
		return nil, true, fmt.Errorf("persist recommendation: %w", err)
	}

	rec, err := o.Store.GetActiveRecommendation(pm.marketID)
	if err != nil {
		return nil, true, err
	}

	if o.Cfg.AutoTradeEnabled && evResult.EV >= o.Cfg.AutoTradeMinEV {
		if _, err := o.placeAutoTrade(ctx, pm.marketID, pm.market.PlatformID, evResult.Direction, evResult.EntryPrice, wager, &rec.ID); err != nil {
			logger.Warn("AutoTrade", fmt.Sprintf("place order for %s: %v", pm.market.PlatformID, err))
		}
	}

	return rec, true, nil
}

// exceedsExposure reports whether adding another recommendation in
// category would push total active exposure past the configured caps.
func (o *Orchestrator) exceedsExposure(category string) bool {
	total, err := o.Store.SumExposure("")
	if err != nil {
		return false
	}
	if total >= o.Cfg.MaxExposureFraction*o.Cfg.Bankroll {
		return true
	}
	catTotal, err := o.Store.SumExposure(category)
	if err != nil {
		return false
	}
	return catTotal >= o.Cfg.MaxEventExposureFrac*o.Cfg.Bankroll
}
