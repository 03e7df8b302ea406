package db

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertTrade records a new position, either manually entered or synced
// from a venue fill.
func (d *DB) InsertTrade(t *Trade) (string, error) {
	id := newID()
	if t.OpenedAt.IsZero() {
		t.OpenedAt = time.Now()
	}
	_, err := d.sql.Exec(`
		INSERT INTO trades (
			id, market_id, recommendation_id, platform, direction, entry_price,
			exit_price, wager, fees_paid, pnl, status, source, external_ref,
			opened_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, t.MarketID, t.RecommendationID, t.Platform, t.Direction, t.EntryPrice,
		t.ExitPrice, t.Wager, t.FeesPaid, t.PnL, t.Status, t.Source, t.ExternalRef,
		t.OpenedAt.Format(timeLayout), nullableTime(t.ClosedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert trade: %w", err)
	}
	return id, nil
}

func scanTrade(row interface {
	Scan(dest ...interface{}) error
}) (*Trade, error) {
	var t Trade
	var recID, externalRef sql.NullString
	var exitPrice, pnl sql.NullFloat64
	var openedAt string
	var closedAt sql.NullString
	err := row.Scan(
		&t.ID, &t.MarketID, &recID, &t.Platform, &t.Direction, &t.EntryPrice,
		&exitPrice, &t.Wager, &t.FeesPaid, &pnl, &t.Status, &t.Source, &externalRef,
		&openedAt, &closedAt,
	)
	if err != nil {
		return nil, err
	}
	if recID.Valid {
		t.RecommendationID = &recID.String
	}
	if externalRef.Valid {
		t.ExternalRef = &externalRef.String
	}
	if exitPrice.Valid {
		t.ExitPrice = &exitPrice.Float64
	}
	if pnl.Valid {
		t.PnL = &pnl.Float64
	}
	t.OpenedAt, _ = time.Parse(timeLayout, openedAt)
	t.ClosedAt = parseNullableTime(closedAt)
	return &t, nil
}

const tradeColumns = `id, market_id, recommendation_id, platform, direction, entry_price,
	exit_price, wager, fees_paid, pnl, status, source, external_ref, opened_at, closed_at`

// GetTrade fetches a trade by id.
func (d *DB) GetTrade(id string) (*Trade, error) {
	row := d.sql.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListOpenTradesForMarket returns every open trade against a market.
func (d *DB) ListOpenTradesForMarket(marketID string) ([]*Trade, error) {
	rows, err := d.sql.Query(
		`SELECT `+tradeColumns+` FROM trades WHERE market_id = ? AND status = 'open'`,
		marketID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindTradeByExternalRef looks up a previously synced trade by its
// (platform, external_ref) dedup key.
func (d *DB) FindTradeByExternalRef(platform, externalRef string) (*Trade, error) {
	row := d.sql.QueryRow(
		`SELECT `+tradeColumns+` FROM trades WHERE platform = ? AND external_ref = ?`,
		platform, externalRef,
	)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// CloseTrade marks a trade closed, recording its exit price, realized fees,
// and P&L.
func (d *DB) CloseTrade(tradeID string, exitPrice, feesPaid, pnl float64) error {
	now := time.Now().Format(timeLayout)
	_, err := d.sql.Exec(`
		UPDATE trades SET status = 'closed', exit_price = ?, fees_paid = ?, pnl = ?, closed_at = ?
		WHERE id = ?`,
		exitPrice, feesPaid, pnl, now, tradeID,
	)
	return err
}

// CancelTrade marks a trade cancelled with no P&L impact, used when its
// underlying market resolves as void/cancelled.
func (d *DB) CancelTrade(tradeID string) error {
	now := time.Now().Format(timeLayout)
	_, err := d.sql.Exec(
		`UPDATE trades SET status = 'cancelled', pnl = 0, closed_at = ? WHERE id = ?`,
		now, tradeID,
	)
	return err
}

// UpdateTradeSize adjusts the wager on an existing synced trade when the
// venue reports a materially different position size on a later sync pass.
func (d *DB) UpdateTradeSize(tradeID string, wager float64) error {
	_, err := d.sql.Exec(`UPDATE trades SET wager = ? WHERE id = ?`, wager, tradeID)
	return err
}

// SumOpenWager returns the total wager committed to open trades, used by
// the exposure-cap gate to account for capital already at risk.
func (d *DB) SumOpenWager() (float64, error) {
	var total float64
	err := d.sql.QueryRow(`SELECT COALESCE(SUM(wager), 0) FROM trades WHERE status = 'open'`).Scan(&total)
	return total, err
}

// FindOpenOrderTrade looks for an open trade on (marketID, direction) whose
// external_ref still carries the "order_" prefix this pipeline stamps on
// self-placed orders, i.e. one we placed ourselves but haven't yet seen a
// matching fill for. The reconciler uses this to update the trade in place
// instead of inserting a duplicate row when the fill for our own order
// comes back from the venue.
func (d *DB) FindOpenOrderTrade(marketID, direction string) (*Trade, error) {
	row := d.sql.QueryRow(
		`SELECT `+tradeColumns+` FROM trades
		 WHERE market_id = ? AND direction = ? AND status = 'open'
		   AND external_ref LIKE 'order\_%' ESCAPE '\'
		 ORDER BY opened_at DESC LIMIT 1`,
		marketID, direction,
	)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// AdoptFill rewrites a self-placed order trade in place once its fill
// arrives: the external_ref moves from "order_<id>" to "fill_<fill_id>" and
// the entry price/fees are replaced with the venue's authoritative values.
func (d *DB) AdoptFill(tradeID, newExternalRef string, entryPrice, feesPaid float64) error {
	_, err := d.sql.Exec(
		`UPDATE trades SET external_ref = ?, entry_price = ?, fees_paid = ? WHERE id = ?`,
		newExternalRef, entryPrice, feesPaid, tradeID,
	)
	return err
}

// CancelTradesForCanceledOrders transitions every open trade whose
// external_ref is "order_<id>" for one of the given canceled order ids to
// cancelled, with no P&L impact.
func (d *DB) CancelTradesForCanceledOrders(platform string, orderIDs []string) (int, error) {
	cancelled := 0
	for _, id := range orderIDs {
		ref := "order_" + id
		row := d.sql.QueryRow(
			`SELECT `+tradeColumns+` FROM trades WHERE platform = ? AND external_ref = ? AND status = 'open'`,
			platform, ref,
		)
		t, err := scanTrade(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return cancelled, err
		}
		if err := d.CancelTrade(t.ID); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}
