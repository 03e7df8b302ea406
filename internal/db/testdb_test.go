package db

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// openTestDB builds an in-memory DB with migrations applied, for tests
// that need real SQL semantics (unique indexes, dedup queries) rather than
// a hand-rolled fake.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func insertTestMarket(t *testing.T, d *DB) string {
	t.Helper()
	id, err := d.UpsertMarket(&Market{
		Platform:   "kalshi",
		PlatformID: "MKT-1",
		Question:   "Will it happen?",
		Status:     "active",
	})
	if err != nil {
		t.Fatalf("insert market: %v", err)
	}
	return id
}
