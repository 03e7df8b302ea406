// Package reconciler syncs executed fills from the venue into the local
// trade log, so recorded positions reflect what actually happened on the
// exchange rather than only what the pipeline recommended.
package reconciler

import (
	"context"
	"fmt"

	"augurbot/internal/calc"
	"augurbot/internal/db"
	"augurbot/internal/logger"
	"augurbot/internal/venue"
)

// Reconciler dedups venue fills against the local trades table and keeps
// the trade_sync_log audit trail current.
type Reconciler struct {
	Store *db.DB
	Venue *venue.Client
}

// New builds a Reconciler.
func New(store *db.DB, v *venue.Client) *Reconciler {
	return &Reconciler{Store: store, Venue: v}
}

// Result summarizes one sync pass.
type Result struct {
	Found   int
	Created int
	Updated int
	Skipped int
}

// SyncKalshiTrades pages through every fill the venue reports, inserting
// a local trade for any fill not yet recorded (keyed by
// "fill_<fill_id>") and resizing a trade whose venue-reported position
// differs from its recorded contract count by more than 0.01 contracts.
func (r *Reconciler) SyncKalshiTrades(ctx context.Context) (*Result, error) {
	logID, err := r.Store.StartTradeSyncLog("kalshi")
	if err != nil {
		return nil, fmt.Errorf("start sync log: %w", err)
	}

	result, syncErr := r.sync(ctx)
	if syncErr != nil {
		_ = r.Store.FailTradeSyncLog(logID, syncErr.Error())
		return result, syncErr
	}

	if err := r.syncCancellations(ctx); err != nil {
		logger.Warn("Reconciler", fmt.Sprintf("sync order cancellations: %v", err))
	}

	if err := r.Store.CompleteTradeSyncLog(logID, result.Found, result.Created, result.Updated, result.Skipped); err != nil {
		logger.Warn("Reconciler", fmt.Sprintf("complete sync log: %v", err))
	}
	return result, nil
}

// syncCancellations detects local trades whose auto-placed order the venue
// reports as canceled (insufficient balance, expiry, manual cancel) and
// transitions them to cancelled with no P&L impact.
func (r *Reconciler) syncCancellations(ctx context.Context) error {
	ids, err := r.Venue.FetchCanceledOrderIDs(ctx)
	if err != nil {
		return fmt.Errorf("fetch canceled orders: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	n, err := r.Store.CancelTradesForCanceledOrders("kalshi", ids)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("Reconciler", fmt.Sprintf("cancelled %d trade(s) for venue-canceled orders", n))
	}
	return nil
}

func (r *Reconciler) sync(ctx context.Context) (*Result, error) {
	result := &Result{}

	fills, err := r.Venue.FetchFills(ctx)
	if err != nil {
		return result, fmt.Errorf("fetch fills: %w", err)
	}
	result.Found = len(fills)

	for _, f := range fills {
		dedupKey := fmt.Sprintf("fill_%s", f.FillID)

		existing, err := r.Store.FindTradeByExternalRef("kalshi", dedupKey)
		if err != nil {
			logger.Warn("Reconciler", fmt.Sprintf("lookup fill %s: %v", f.FillID, err))
			continue
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		market, err := r.marketForPlatformID(f.PlatformID)
		if err != nil || market == nil {
			result.Skipped++
			continue
		}

		price := float64(f.PriceCents) / 100.0
		// Kalshi contracts settle at $1 each; a fill's dollar wager is its
		// contract count times its entry price.
		wager := float64(f.Count) * price
		fees := calc.KalshiFee(price) * wager

		if orderTrade, err := r.Store.FindOpenOrderTrade(market.ID, f.Side); err == nil && orderTrade != nil {
			if err := r.Store.AdoptFill(orderTrade.ID, dedupKey, price, fees); err != nil {
				logger.Warn("Reconciler", fmt.Sprintf("adopt fill %s into trade %s: %v", f.FillID, orderTrade.ID, err))
				result.Skipped++
				continue
			}
			result.Updated++
			continue
		}

		rec, _ := r.Store.GetActiveRecommendation(market.ID)
		var recID *string
		if rec != nil {
			recID = &rec.ID
		}

		ref := dedupKey
		_, err = r.Store.InsertTrade(&db.Trade{
			MarketID:         market.ID,
			RecommendationID: recID,
			Platform:         "kalshi",
			Direction:        f.Side,
			EntryPrice:       price,
			Wager:            wager,
			FeesPaid:         fees,
			Status:           string(db.TradeOpen),
			Source:           string(db.TradeSourceAPISync),
			ExternalRef:      &ref,
			OpenedAt:         f.CreatedAt,
		})
		if err != nil {
			logger.Warn("Reconciler", fmt.Sprintf("insert trade for fill %s: %v", f.FillID, err))
			result.Skipped++
			continue
		}
		result.Created++
	}

	if err := r.reconcilePositionSizes(ctx, result); err != nil {
		logger.Warn("Reconciler", fmt.Sprintf("reconcile position sizes: %v", err))
	}

	return result, nil
}

// reconcilePositionSizes compares the venue's reported open positions
// against locally recorded open trades, rewriting a trade's wager when the
// venue's contract count differs from wager/entry price by more than 0.01
// contracts in either direction (e.g. a manual top-up made outside this
// pipeline).
func (r *Reconciler) reconcilePositionSizes(ctx context.Context, result *Result) error {
	positions, err := r.Venue.FetchPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	for _, p := range positions {
		market, err := r.marketForPlatformID(p.PlatformID)
		if err != nil || market == nil {
			continue
		}
		trades, err := r.Store.ListOpenTradesForMarket(market.ID)
		if err != nil || len(trades) == 0 {
			continue
		}
		t := trades[0]
		venueShares := float64(p.Count)
		if abs(venueShares-t.Wager/t.EntryPrice) > 0.01 {
			newWager := venueShares * t.EntryPrice
			if err := r.Store.UpdateTradeSize(t.ID, newWager); err != nil {
				continue
			}
			result.Updated++
		}
	}
	return nil
}

func (r *Reconciler) marketForPlatformID(platformID string) (*db.Market, error) {
	markets, err := r.Store.ListActiveMarkets("kalshi")
	if err != nil {
		return nil, err
	}
	for _, m := range markets {
		if m.PlatformID == platformID {
			return m, nil
		}
	}
	return nil, nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// LastSyncStatus returns the most recently recorded sync log entry.
func (r *Reconciler) LastSyncStatus() (*db.TradeSyncLog, error) {
	return r.Store.LastTradeSyncStatus("kalshi")
}
