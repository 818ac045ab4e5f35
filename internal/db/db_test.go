package db_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesDirectoryAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "store.db")

	d, err := db.Open(path)
	require.NoError(t, err)
	require.NoError(t, d.Push(context.Background(), db.ZoneClusters, &db.RawItem{ID: "a", Name: "a"}, false))
	require.NoError(t, d.Close())

	// Migrations are idempotent and data survives a reopen.
	d, err = db.Open(path)
	require.NoError(t, err)
	defer d.Close()

	items, err := d.GetItems(context.Background(), db.ZoneClusters)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestOpenBadger_RequiresDir(t *testing.T) {
	_, err := db.OpenBadger(db.BadgerConfig{})
	assert.Error(t, err)
}

func TestOpenBadger_Persistent(t *testing.T) {
	dir := t.TempDir()

	store, err := db.OpenBadger(db.BadgerConfig{Dir: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, store.Push(context.Background(), db.ZoneEmulators, &db.RawItem{ID: "e", Name: "local"}, false))
	require.NoError(t, store.Close())

	store, err = db.OpenBadger(db.BadgerConfig{Dir: dir})
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetItem(context.Background(), db.ZoneEmulators, "e")
	require.NoError(t, err)
	assert.Equal(t, "local", got.Name)
}
