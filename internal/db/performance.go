package db

import (
	"time"
)

// InsertPerformanceRecord idempotently records the realized outcome of a
// resolved market. A market can only ever produce one performance row; a
// conflict on market_id is treated as already-recorded and silently skipped,
// matching the resolution pass's retry-safe re-entrancy requirement.
func (d *DB) InsertPerformanceRecord(p *PerformanceRecord) error {
	id := newID()
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now()
	}
	_, err := d.sql.Exec(`
		INSERT INTO performance_log (
			id, market_id, recommendation_id, predicted_prob, market_price,
			outcome, brier_score, pnl, simulated_pnl, category, confidence, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id) DO NOTHING`,
		id, p.MarketID, p.RecommendationID, p.PredictedProb, p.MarketPrice,
		p.Outcome, p.BrierScore, p.PnL, p.SimulatedPnL, p.Category, p.Confidence,
		p.RecordedAt.Format(timeLayout),
	)
	return err
}

// CalibrationBucket aggregates realized outcomes for estimates whose
// predicted probability fell in [Low, High).
type CalibrationBucket struct {
	Low          float64
	High         float64
	Count        int
	AvgPredicted float64
	AvgOutcome   float64
	AvgBrier     float64
}

// CalibrationBuckets groups every performance record into decile buckets
// of predicted probability, used to build the textual calibration feedback
// fed back into future estimate prompts.
func (d *DB) CalibrationBuckets() ([]CalibrationBucket, error) {
	rows, err := d.sql.Query(`SELECT predicted_prob, outcome, brier_score FROM performance_log`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	const nBuckets = 10
	sums := make([]struct {
		count          int
		sumPredicted   float64
		sumOutcome     float64
		sumBrier       float64
	}, nBuckets)

	for rows.Next() {
		var predicted, outcome, brier float64
		if err := rows.Scan(&predicted, &outcome, &brier); err != nil {
			return nil, err
		}
		idx := int(predicted * nBuckets)
		if idx >= nBuckets {
			idx = nBuckets - 1
		}
		if idx < 0 {
			idx = 0
		}
		sums[idx].count++
		sums[idx].sumPredicted += predicted
		sums[idx].sumOutcome += outcome
		sums[idx].sumBrier += brier
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]CalibrationBucket, 0, nBuckets)
	for i := 0; i < nBuckets; i++ {
		b := CalibrationBucket{
			Low:  float64(i) / nBuckets,
			High: float64(i+1) / nBuckets,
		}
		if sums[i].count > 0 {
			b.Count = sums[i].count
			b.AvgPredicted = sums[i].sumPredicted / float64(sums[i].count)
			b.AvgOutcome = sums[i].sumOutcome / float64(sums[i].count)
			b.AvgBrier = sums[i].sumBrier / float64(sums[i].count)
		}
		out = append(out, b)
	}
	return out, nil
}

// CategoryAccuracy summarizes win rate and average Brier score per market
// category, used in the daily digest.
type CategoryAccuracy struct {
	Category   string
	Count      int
	AvgBrier   float64
	WinRate    float64
	TotalPnL   float64
}

// CategoryPerformance aggregates the performance log by market category.
func (d *DB) CategoryPerformance() ([]CategoryAccuracy, error) {
	rows, err := d.sql.Query(`
		SELECT category,
		       COUNT(*),
		       AVG(brier_score),
		       AVG(CASE WHEN pnl > 0 THEN 1.0 ELSE 0.0 END),
		       COALESCE(SUM(pnl), 0)
		FROM performance_log
		GROUP BY category`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryAccuracy
	for rows.Next() {
		var c CategoryAccuracy
		if err := rows.Scan(&c.Category, &c.Count, &c.AvgBrier, &c.WinRate, &c.TotalPnL); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
