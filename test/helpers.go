package test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/HummdG/tazaticket-final/internal/storage/sqlite"
	"github.com/stretchr/testify/require"
)

const DatabaseName = "tazamem.db"

// DatabasePath returns a database location inside a per-test directory.
func DatabasePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), DatabaseName)
}

// OpenTable opens, migrating if needed, the sqlite store at path. The caller
// closes the returned handle to simulate a process exit.
func OpenTable(t *testing.T, path string) (*sqlite.Table, *sql.DB) {
	t.Helper()
	db, err := sqlite.NewDB(context.Background(), path)
	require.NoError(t, err)
	return sqlite.NewTable(db), db
}
