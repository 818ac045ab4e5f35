package testutil

import (
	"path/filepath"
	"testing"

	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/stretchr/testify/require"
)

// SetupTestDB creates a test database and returns it.
func SetupTestDB(t *testing.T) *db.SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// SetupBadger creates an in-memory Badger store.
func SetupBadger(t *testing.T) *db.BadgerStore {
	t.Helper()
	store, err := db.OpenBadger(db.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// Ptr returns a pointer to the value.
func Ptr[T any](v T) *T {
	return &v
}
