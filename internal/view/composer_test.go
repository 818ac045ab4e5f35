package view_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/view"
	"github.com/microsoft/vscode-documentdb-sub002/testutil"
)

func seed(t *testing.T) *catalog.Tree {
	t.Helper()
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	push := func(item *catalog.StoredItem) {
		item.Zone = db.ZoneClusters
		require.NoError(t, store.Push(ctx, db.ZoneClusters, catalog.Encode(item), false))
	}
	push(&catalog.StoredItem{ID: "F1", Name: "Team", Type: catalog.ItemTypeFolder})
	push(&catalog.StoredItem{ID: "F2", Name: "Empty", Type: catalog.ItemTypeFolder})
	push(&catalog.StoredItem{ID: "F3", Name: "Nested", Type: catalog.ItemTypeFolder, ParentID: "F1"})
	push(&catalog.StoredItem{ID: "C1", Name: "prod", Type: catalog.ItemTypeConnection, ParentID: "F3"})
	push(&catalog.StoredItem{ID: "C2", Name: "dev", Type: catalog.ItemTypeConnection, ParentID: "F1"})
	push(&catalog.StoredItem{ID: "C3", Name: "local", Type: catalog.ItemTypeConnection,
		Properties: catalog.Properties{EmulatorConfiguration: &catalog.EmulatorConfiguration{IsEmulator: true}}})
	push(&catalog.StoredItem{ID: "C4", Name: "lost", Type: catalog.ItemTypeConnection, ParentID: "gone"})

	c := catalog.New(store, catalog.WithMaintenanceOptions(catalog.MaintenanceOptions{Disabled: true}))
	tree, err := c.Snapshot(ctx, db.ZoneClusters)
	require.NoError(t, err)
	return tree
}

func TestCompose(t *testing.T) {
	v, err := view.Compose(seed(t), view.ComposeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, v.FolderCount)
	assert.Equal(t, 3, v.ConnectionCount)
	require.Len(t, v.Roots, 3)
	assert.Equal(t, "Empty", v.Roots[0].Item.Name)
	assert.Equal(t, "Team", v.Roots[1].Item.Name)
	assert.Equal(t, "local", v.Roots[2].Item.Name)
	require.Len(t, v.Orphans, 1)
	assert.Equal(t, "C4", v.Orphans[0].ID)

	team := v.Roots[1]
	require.Len(t, team.Children, 2)
	assert.Equal(t, "Team/Nested", team.Children[0].Path)
	assert.Equal(t, "Team/Nested/prod", team.Children[0].Children[0].Path)
}

func TestCompose_Options(t *testing.T) {
	tree := seed(t)

	v, err := view.Compose(tree, view.ComposeOptions{ConnectionsOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, v.FolderCount)
	for _, r := range v.Roots {
		assert.NotEqual(t, "Empty", r.Item.Name)
	}

	v, err = view.Compose(tree, view.ComposeOptions{Under: "F1"})
	require.NoError(t, err)
	assert.Len(t, v.Roots, 2)
	assert.Empty(t, v.Orphans)

	_, err = view.Compose(tree, view.ComposeOptions{Under: "C1"})
	assert.Error(t, err)
	_, err = view.Compose(tree, view.ComposeOptions{Under: "nope"})
	assert.Error(t, err)
}

func TestRenderText(t *testing.T) {
	v, err := view.Compose(seed(t), view.ComposeOptions{})
	require.NoError(t, err)

	want := "Clusters (3 folders, 3 connections)\n" +
		"├── Empty/\n" +
		"├── Team/\n" +
		"│   ├── Nested/\n" +
		"│   │   └── prod [C1]\n" +
		"│   └── dev [C2]\n" +
		"└── local [C3] (emulator)\n" +
		"orphaned (1):\n" +
		"  lost [C4] parent=gone\n"
	assert.Equal(t, want, view.RenderTemplate(v, "text"))
}

func TestRenderMarkdown(t *testing.T) {
	v, err := view.Compose(seed(t), view.ComposeOptions{})
	require.NoError(t, err)

	out := view.RenderTemplate(v, "markdown")
	assert.Contains(t, out, "## Clusters\n")
	assert.Contains(t, out, "- **Team/**\n  - **Nested/**\n    - prod `C1`\n")
	assert.Contains(t, out, "### Orphaned")
	assert.Contains(t, out, "- lost `C4` (missing parent `gone`)")
}
