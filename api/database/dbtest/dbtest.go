// Package dbtest provides a migrated, file-backed SQLite database for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tbeaudouin05/billing-reconciler/api/database"
)

// Open returns a fresh database with the full schema applied. It is closed
// when the test finishes.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	url := "sqlite://" + filepath.Join(t.TempDir(), "billing.db")
	require.NoError(t, database.Migrate(url), "migrate test database")

	db, dialect, err := database.Open(url)
	require.NoError(t, err, "open test database")
	require.Equal(t, database.DialectSQLite, dialect)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
