package db

import (
	"database/sql"
	"time"
)

// StartTradeSyncLog opens a new running sync log entry for a platform and
// returns its id.
func (d *DB) StartTradeSyncLog(platform string) (string, error) {
	id := newID()
	_, err := d.sql.Exec(`
		INSERT INTO trade_sync_log (id, platform, status, started_at)
		VALUES (?, ?, 'running', ?)`,
		id, platform, time.Now().Format(timeLayout),
	)
	return id, err
}

// CompleteTradeSyncLog finalizes a sync log entry with its result counts.
func (d *DB) CompleteTradeSyncLog(id string, found, created, updated, skipped int) error {
	_, err := d.sql.Exec(`
		UPDATE trade_sync_log SET status = 'completed', trades_found = ?,
			trades_created = ?, trades_updated = ?, trades_skipped = ?, completed_at = ?
		WHERE id = ?`,
		found, created, updated, skipped, time.Now().Format(timeLayout), id,
	)
	return err
}

// FailTradeSyncLog marks a sync log entry failed with an error message.
func (d *DB) FailTradeSyncLog(id, errMsg string) error {
	_, err := d.sql.Exec(`
		UPDATE trade_sync_log SET status = 'failed', error_message = ?, completed_at = ?
		WHERE id = ?`,
		errMsg, time.Now().Format(timeLayout), id,
	)
	return err
}

// LastTradeSyncStatus returns the most recent sync log entry for a
// platform, or nil if none has run yet.
func (d *DB) LastTradeSyncStatus(platform string) (*TradeSyncLog, error) {
	row := d.sql.QueryRow(`
		SELECT id, platform, status, trades_found, trades_created, trades_updated,
		       trades_skipped, error_message, started_at, completed_at
		FROM trade_sync_log WHERE platform = ? ORDER BY started_at DESC LIMIT 1`,
		platform,
	)
	var l TradeSyncLog
	var errMsg, completedAt sql.NullString
	var startedAt string
	err := row.Scan(
		&l.ID, &l.Platform, &l.Status, &l.TradesFound, &l.TradesCreated,
		&l.TradesUpdated, &l.TradesSkipped, &errMsg, &startedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if errMsg.Valid {
		l.ErrorMessage = &errMsg.String
	}
	l.StartedAt, _ = time.Parse(timeLayout, startedAt)
	l.CompletedAt = parseNullableTime(completedAt)
	return &l, nil
}
