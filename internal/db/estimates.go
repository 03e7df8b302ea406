package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// InsertEstimate stores a new AI estimate and returns its id.
func (d *DB) InsertEstimate(e *AIEstimate) (string, error) {
	id := newID()
	evidence, _ := json.Marshal(e.KeyEvidence)
	uncertainties, _ := json.Marshal(e.KeyUncertainties)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := d.sql.Exec(`
		INSERT INTO ai_estimates (
			id, market_id, snapshot_id, model, probability, confidence,
			reasoning, key_evidence, key_uncertainties, input_tokens,
			output_tokens, estimated_cost, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.MarketID, e.SnapshotID, e.Model, e.Probability, e.Confidence,
		e.Reasoning, string(evidence), string(uncertainties), e.InputTokens,
		e.OutputTokens, e.EstimatedCost, e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert estimate: %w", err)
	}
	return id, nil
}

// LatestEstimate returns the most recent estimate for a market, or nil if
// none exists.
func (d *DB) LatestEstimate(marketID string) (*AIEstimate, error) {
	row := d.sql.QueryRow(`
		SELECT id, market_id, snapshot_id, model, probability, confidence,
		       reasoning, key_evidence, key_uncertainties, input_tokens,
		       output_tokens, estimated_cost, created_at
		FROM ai_estimates WHERE market_id = ? ORDER BY created_at DESC LIMIT 1`,
		marketID,
	)
	var e AIEstimate
	var evidence, uncertainties, createdAt string
	err := row.Scan(
		&e.ID, &e.MarketID, &e.SnapshotID, &e.Model, &e.Probability, &e.Confidence,
		&e.Reasoning, &evidence, &uncertainties, &e.InputTokens,
		&e.OutputTokens, &e.EstimatedCost, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(evidence), &e.KeyEvidence)
	json.Unmarshal([]byte(uncertainties), &e.KeyUncertainties)
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &e, nil
}

// InsertCostLog records the dollar cost of one LLM call.
func (d *DB) InsertCostLog(c *CostLogEntry) error {
	id := newID()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := d.sql.Exec(`
		INSERT INTO cost_log (id, market_id, model, input_tokens, output_tokens, estimated_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, c.MarketID, c.Model, c.InputTokens, c.OutputTokens, c.EstimatedCost,
		c.CreatedAt.Format(timeLayout),
	)
	return err
}

// TotalCostSince returns the sum of estimated_cost for all LLM calls logged
// at or after since, used for simple daily spend reporting.
func (d *DB) TotalCostSince(since time.Time) (float64, error) {
	var total sql.NullFloat64
	err := d.sql.QueryRow(
		`SELECT SUM(estimated_cost) FROM cost_log WHERE created_at >= ?`,
		since.Format(timeLayout),
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}
