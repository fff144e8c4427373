// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/iliyamo/taskflow/internal/database"
)

// New returns a fresh, migrated database that is closed when the test ends.
func New(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.Open(database.SQLite, filepath.Join(t.TempDir(), "taskflow.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(context.Background(), db, database.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
