// Package db provides the SQLite-backed persistence layer for markets,
// snapshots, estimates, recommendations, trades, and performance history.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"augurbot/internal/logger"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	sql *sql.DB
}

func dbPath() string {
	// Prefer working directory so the DB is stable across go run / go build.
	// Fall back to executable directory for deployed builds.
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "augurbot.db")
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), "augurbot.db")
}

// Open opens (or creates) the SQLite database and runs migrations.
func Open() (*DB, error) {
	path := dbPath()
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("DB", fmt.Sprintf("Opened %s", path))
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate() error {
	version := 0
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS config (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS markets (
				id                   TEXT PRIMARY KEY,
				platform             TEXT NOT NULL,
				platform_id          TEXT NOT NULL,
				question             TEXT NOT NULL,
				description          TEXT NOT NULL DEFAULT '',
				resolution_criteria  TEXT NOT NULL DEFAULT '',
				category             TEXT NOT NULL DEFAULT '',
				sport_type           TEXT NOT NULL DEFAULT '',
				outcome_label        TEXT NOT NULL DEFAULT '',
				close_date           TEXT,
				liquidity            REAL NOT NULL DEFAULT 0,
				status               TEXT NOT NULL DEFAULT 'active',
				outcome              TEXT,
				created_at           TEXT NOT NULL,
				updated_at           TEXT NOT NULL,
				UNIQUE(platform, platform_id)
			);
			CREATE INDEX IF NOT EXISTS idx_markets_status ON markets(status);
			CREATE INDEX IF NOT EXISTS idx_markets_platform ON markets(platform, platform_id);

			CREATE TABLE IF NOT EXISTS market_snapshots (
				id          TEXT PRIMARY KEY,
				market_id   TEXT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
				price_yes   REAL NOT NULL,
				volume      REAL NOT NULL DEFAULT 0,
				scan_id     TEXT,
				taken_at    TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_snapshots_market ON market_snapshots(market_id, taken_at DESC);

			CREATE TABLE IF NOT EXISTS ai_estimates (
				id               TEXT PRIMARY KEY,
				market_id        TEXT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
				snapshot_id      TEXT NOT NULL REFERENCES market_snapshots(id),
				model            TEXT NOT NULL,
				probability      REAL NOT NULL,
				confidence       TEXT NOT NULL,
				reasoning        TEXT NOT NULL DEFAULT '',
				key_evidence     TEXT NOT NULL DEFAULT '[]',
				key_uncertainties TEXT NOT NULL DEFAULT '[]',
				input_tokens     INTEGER NOT NULL DEFAULT 0,
				output_tokens    INTEGER NOT NULL DEFAULT 0,
				estimated_cost   REAL NOT NULL DEFAULT 0,
				created_at       TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_estimates_market ON ai_estimates(market_id, created_at DESC);

			CREATE TABLE IF NOT EXISTS recommendations (
				id              TEXT PRIMARY KEY,
				market_id       TEXT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
				estimate_id     TEXT NOT NULL REFERENCES ai_estimates(id),
				direction       TEXT NOT NULL,
				entry_price     REAL NOT NULL,
				edge            REAL NOT NULL,
				ev              REAL NOT NULL,
				kelly_fraction  REAL NOT NULL,
				suggested_wager REAL NOT NULL,
				status          TEXT NOT NULL DEFAULT 'active',
				outcome         TEXT,
				created_at      TEXT NOT NULL,
				resolved_at     TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_recommendations_market ON recommendations(market_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations(status);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_recommendations_active
				ON recommendations(market_id) WHERE status = 'active';

			CREATE TABLE IF NOT EXISTS trades (
				id               TEXT PRIMARY KEY,
				market_id        TEXT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
				recommendation_id TEXT REFERENCES recommendations(id),
				platform         TEXT NOT NULL,
				direction        TEXT NOT NULL,
				entry_price      REAL NOT NULL,
				exit_price       REAL,
				wager            REAL NOT NULL,
				fees_paid        REAL NOT NULL DEFAULT 0,
				pnl              REAL,
				status           TEXT NOT NULL DEFAULT 'open',
				source           TEXT NOT NULL DEFAULT 'manual',
				external_ref     TEXT,
				opened_at        TEXT NOT NULL,
				closed_at        TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_trades_market ON trades(market_id);
			CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_external_ref
				ON trades(platform, external_ref) WHERE external_ref IS NOT NULL;

			CREATE TABLE IF NOT EXISTS performance_log (
				id                TEXT PRIMARY KEY,
				market_id         TEXT NOT NULL UNIQUE REFERENCES markets(id),
				recommendation_id TEXT REFERENCES recommendations(id),
				predicted_prob    REAL NOT NULL,
				market_price      REAL NOT NULL DEFAULT 0,
				outcome           REAL NOT NULL,
				brier_score       REAL NOT NULL,
				pnl               REAL,
				simulated_pnl     REAL,
				category          TEXT NOT NULL DEFAULT '',
				confidence        TEXT NOT NULL DEFAULT '',
				recorded_at       TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_performance_category ON performance_log(category);

			CREATE TABLE IF NOT EXISTS cost_log (
				id             TEXT PRIMARY KEY,
				market_id      TEXT REFERENCES markets(id),
				model          TEXT NOT NULL,
				input_tokens   INTEGER NOT NULL DEFAULT 0,
				output_tokens  INTEGER NOT NULL DEFAULT 0,
				estimated_cost REAL NOT NULL DEFAULT 0,
				created_at     TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS trade_sync_log (
				id                 TEXT PRIMARY KEY,
				platform           TEXT NOT NULL,
				status             TEXT NOT NULL DEFAULT 'running',
				trades_found       INTEGER NOT NULL DEFAULT 0,
				trades_created     INTEGER NOT NULL DEFAULT 0,
				trades_updated     INTEGER NOT NULL DEFAULT 0,
				trades_skipped     INTEGER NOT NULL DEFAULT 0,
				error_message      TEXT,
				started_at         TEXT NOT NULL,
				completed_at       TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_sync_log_platform ON trade_sync_log(platform, started_at DESC);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("DB", "Applied migration v1 (core schema)")
	}

	return nil
}

func (d *DB) tableExists(tableName string) (bool, error) {
	var name string
	err := d.sql.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ? LIMIT 1`,
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DB) ensureTableColumn(tableName, columnName, columnDef string) error {
	rows, err := d.sql.Query("PRAGMA table_info(" + tableName + ")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, typ string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, columnName) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = d.sql.Exec("ALTER TABLE " + tableName + " ADD COLUMN " + columnName + " " + columnDef)
	return err
}

// SqlDB returns the underlying *sql.DB for use by other packages.
func (d *DB) SqlDB() *sql.DB {
	return d.sql
}
