package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const timeLayout = time.RFC3339Nano

func newID() string { return uuid.NewString() }

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// UpsertMarket inserts a market or updates it in place when the
// (platform, platform_id) pair already exists, returning the stored row's id.
func (d *DB) UpsertMarket(m *Market) (string, error) {
	now := time.Now()
	var existingID string
	err := d.sql.QueryRow(
		`SELECT id FROM markets WHERE platform = ? AND platform_id = ?`,
		m.Platform, m.PlatformID,
	).Scan(&existingID)

	if err == sql.ErrNoRows {
		id := newID()
		_, err := d.sql.Exec(`
			INSERT INTO markets (
				id, platform, platform_id, question, description,
				resolution_criteria, category, sport_type, outcome_label,
				close_date, liquidity, status, outcome, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, m.Platform, m.PlatformID, m.Question, m.Description,
			m.ResolutionCriteria, m.Category, m.SportType, m.OutcomeLabel,
			nullableTime(m.CloseDate), m.Liquidity, m.Status, m.Outcome,
			now.Format(timeLayout), now.Format(timeLayout),
		)
		if err != nil {
			return "", fmt.Errorf("insert market: %w", err)
		}
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup market: %w", err)
	}

	_, err = d.sql.Exec(`
		UPDATE markets SET
			question = ?, description = ?, resolution_criteria = ?,
			category = ?, sport_type = ?, close_date = ?, liquidity = ?,
			status = ?, updated_at = ?
		WHERE id = ?`,
		m.Question, m.Description, m.ResolutionCriteria,
		m.Category, m.SportType, nullableTime(m.CloseDate), m.Liquidity,
		m.Status, now.Format(timeLayout), existingID,
	)
	if err != nil {
		return "", fmt.Errorf("update market: %w", err)
	}
	return existingID, nil
}

func scanMarket(row interface {
	Scan(dest ...interface{}) error
}) (*Market, error) {
	var m Market
	var closeDate, outcome sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(
		&m.ID, &m.Platform, &m.PlatformID, &m.Question, &m.Description,
		&m.ResolutionCriteria, &m.Category, &m.SportType, &m.OutcomeLabel,
		&closeDate, &m.Liquidity, &m.Status, &outcome, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.CloseDate = parseNullableTime(closeDate)
	if outcome.Valid {
		o := outcome.String
		m.Outcome = &o
	}
	m.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	m.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &m, nil
}

const marketColumns = `id, platform, platform_id, question, description,
	resolution_criteria, category, sport_type, outcome_label,
	close_date, liquidity, status, outcome, created_at, updated_at`

// GetMarket fetches a market by id.
func (d *DB) GetMarket(id string) (*Market, error) {
	row := d.sql.QueryRow(`SELECT `+marketColumns+` FROM markets WHERE id = ?`, id)
	return scanMarket(row)
}

// ListActiveMarkets returns every market currently in the active status,
// optionally filtered to a single platform.
func (d *DB) ListActiveMarkets(platform string) ([]*Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE status = 'active'`
	args := []interface{}{}
	if platform != "" {
		query += ` AND platform = ?`
		args = append(args, platform)
	}
	rows, err := d.sql.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMarketStatus transitions a market to a new status, optionally
// recording its resolved outcome.
func (d *DB) UpdateMarketStatus(marketID, status string, outcome *string) error {
	_, err := d.sql.Exec(
		`UPDATE markets SET status = ?, outcome = ?, updated_at = ? WHERE id = ?`,
		status, outcome, time.Now().Format(timeLayout), marketID,
	)
	return err
}

// InsertSnapshot records a new price/volume reading for a market.
func (d *DB) InsertSnapshot(s *MarketSnapshot) (string, error) {
	id := newID()
	if s.TakenAt.IsZero() {
		s.TakenAt = time.Now()
	}
	_, err := d.sql.Exec(
		`INSERT INTO market_snapshots (id, market_id, price_yes, volume, scan_id, taken_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, s.MarketID, s.PriceYes, s.Volume, s.ScanID, s.TakenAt.Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// LatestSnapshot returns the most recent snapshot for a market, or nil if
// none exists.
func (d *DB) LatestSnapshot(marketID string) (*MarketSnapshot, error) {
	row := d.sql.QueryRow(`
		SELECT id, market_id, price_yes, volume, scan_id, taken_at
		FROM market_snapshots WHERE market_id = ? ORDER BY taken_at DESC LIMIT 1`,
		marketID,
	)
	var s MarketSnapshot
	var scanID sql.NullString
	var takenAt string
	err := row.Scan(&s.ID, &s.MarketID, &s.PriceYes, &s.Volume, &scanID, &takenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if scanID.Valid {
		s.ScanID = &scanID.String
	}
	s.TakenAt, _ = time.Parse(timeLayout, takenAt)
	return &s, nil
}
