package db

import (
	"database/sql"
	"fmt"
	"time"
)

// ReplaceActiveRecommendation expires any currently-active recommendation
// for rec.MarketID and inserts rec as the new active one, inside a single
// transaction. The partial unique index on recommendations(market_id)
// WHERE status = 'active' backstops this against races from a concurrent
// scan of the same market; the transaction is what makes the expire+insert
// atomic from this process's point of view.
func (d *DB) ReplaceActiveRecommendation(rec *Recommendation) (string, error) {
	tx, err := d.sql.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE recommendations SET status = 'expired' WHERE market_id = ? AND status = 'active'`,
		rec.MarketID,
	); err != nil {
		return "", fmt.Errorf("expire prior recommendation: %w", err)
	}

	id := newID()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if _, err := tx.Exec(`
		INSERT INTO recommendations (
			id, market_id, estimate_id, direction, entry_price, edge, ev,
			kelly_fraction, suggested_wager, status, outcome, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', NULL, ?, NULL)`,
		id, rec.MarketID, rec.EstimateID, rec.Direction, rec.EntryPrice, rec.Edge,
		rec.EV, rec.KellyFraction, rec.SuggestedWager, rec.CreatedAt.Format(timeLayout),
	); err != nil {
		return "", fmt.Errorf("insert recommendation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func scanRecommendation(row interface {
	Scan(dest ...interface{}) error
}) (*Recommendation, error) {
	var r Recommendation
	var outcome sql.NullString
	var createdAt string
	var resolvedAt sql.NullString
	err := row.Scan(
		&r.ID, &r.MarketID, &r.EstimateID, &r.Direction, &r.EntryPrice, &r.Edge,
		&r.EV, &r.KellyFraction, &r.SuggestedWager, &r.Status, &outcome,
		&createdAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if outcome.Valid {
		r.Outcome = &outcome.String
	}
	r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	r.ResolvedAt = parseNullableTime(resolvedAt)
	return &r, nil
}

const recommendationColumns = `id, market_id, estimate_id, direction, entry_price, edge, ev,
	kelly_fraction, suggested_wager, status, outcome, created_at, resolved_at`

// GetActiveRecommendation returns the current active recommendation for a
// market, or nil if there isn't one.
func (d *DB) GetActiveRecommendation(marketID string) (*Recommendation, error) {
	row := d.sql.QueryRow(
		`SELECT `+recommendationColumns+` FROM recommendations WHERE market_id = ? AND status = 'active'`,
		marketID,
	)
	rec, err := scanRecommendation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListActiveRecommendationsWithoutTrade returns every active recommendation
// that no trade row references yet — the post-scan sweep's candidate set
// for auto-trading or notification.
func (d *DB) ListActiveRecommendationsWithoutTrade() ([]*Recommendation, error) {
	rows, err := d.sql.Query(`
		SELECT r.id, r.market_id, r.estimate_id, r.direction, r.entry_price, r.edge, r.ev,
		       r.kelly_fraction, r.suggested_wager, r.status, r.outcome, r.created_at, r.resolved_at
		FROM recommendations r
		LEFT JOIN trades t ON t.recommendation_id = r.id
		WHERE r.status = 'active' AND t.id IS NULL`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Recommendation
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResolveRecommendationsForMarket transitions every active or expired
// recommendation on a market to resolved, recording the final outcome.
func (d *DB) ResolveRecommendationsForMarket(marketID, outcome string) error {
	now := time.Now().Format(timeLayout)
	_, err := d.sql.Exec(`
		UPDATE recommendations SET status = 'resolved', outcome = ?, resolved_at = ?
		WHERE market_id = ? AND status IN ('active', 'expired')`,
		outcome, now, marketID,
	)
	return err
}

// SumExposure returns the total suggested_wager across active
// recommendations, used by the exposure-cap gate. When category is
// non-empty it is further restricted to markets in that category.
func (d *DB) SumExposure(category string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(r.suggested_wager), 0)
		FROM recommendations r
		JOIN markets m ON m.id = r.market_id
		WHERE r.status = 'active'`
	args := []interface{}{}
	if category != "" {
		query += ` AND m.category = ?`
		args = append(args, category)
	}
	var total float64
	if err := d.sql.QueryRow(query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
