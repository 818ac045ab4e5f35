package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/testutil"
)

const zone = db.ZoneClusters

func setupCatalog(t *testing.T) (*catalog.Catalog, db.Store) {
	t.Helper()
	store := testutil.SetupTestDB(t)
	return catalog.New(store, catalog.WithMaintenanceOptions(catalog.MaintenanceOptions{Disabled: true})), store
}

func mkFolder(t *testing.T, c *catalog.Catalog, name, parentID string) *catalog.StoredItem {
	t.Helper()
	f, err := c.CreateFolder(context.Background(), catalog.CreateFolderInput{Zone: zone, Name: name, ParentID: parentID})
	require.NoError(t, err)
	return f
}

func mkConn(t *testing.T, c *catalog.Catalog, name, parentID string) *catalog.StoredItem {
	t.Helper()
	conn, err := c.CreateConnection(context.Background(), catalog.CreateConnectionInput{
		Zone: zone, Name: name, ParentID: parentID, ConnectionString: "mongodb://localhost:27017",
	})
	require.NoError(t, err)
	return conn
}

// pushRaw writes an item straight to the store, bypassing catalog checks.
func pushRaw(t *testing.T, store db.Store, item *catalog.StoredItem) {
	t.Helper()
	if item.Zone == "" {
		item.Zone = zone
	}
	require.NoError(t, store.Push(context.Background(), item.Zone, catalog.Encode(item), true))
}

func TestCatalog_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)

	folder := mkFolder(t, c, "Team", "")
	conn, err := c.CreateConnection(ctx, catalog.CreateConnectionInput{
		Zone:             zone,
		Name:             "  prod  ",
		ParentID:         folder.ID,
		ConnectionString: "mongodb://admin:pw@db.example.com:27017/?tls=true&tls=true",
		API:              "DocumentDB",
	})
	require.NoError(t, err)
	assert.Len(t, conn.ID, 26)
	assert.Equal(t, "prod", conn.Name)

	got, err := c.Get(ctx, zone, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, conn, got)
	assert.Equal(t, "mongodb://db.example.com:27017/?tls=true", got.Secrets.ConnectionString)
	assert.Equal(t, &catalog.NativeAuth{Username: "admin", Password: "pw"}, got.Secrets.NativeAuth)
	assert.Equal(t, catalog.AuthMethodNativeAuth, got.Properties.SelectedAuthMethod)

	gotFolder, err := c.Get(ctx, zone, folder.ID)
	require.NoError(t, err)
	assert.True(t, gotFolder.IsFolder())
	assert.Equal(t, catalog.FolderPlaceholderConnectionString, gotFolder.Secrets.ConnectionString)
}

func TestCatalog_CreateValidation(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)
	conn := mkConn(t, c, "conn", "")

	_, err := c.CreateFolder(ctx, catalog.CreateFolderInput{Zone: zone, Name: "   "})
	assert.Error(t, err)

	_, err = c.CreateConnection(ctx, catalog.CreateConnectionInput{Zone: zone, Name: "x", ConnectionString: "http://nope"})
	assert.Error(t, err)

	_, err = c.CreateFolder(ctx, catalog.CreateFolderInput{Zone: zone, Name: "child", ParentID: conn.ID})
	assert.True(t, errors.Is(err, catalog.ErrInvalidParent))

	_, err = c.CreateFolder(ctx, catalog.CreateFolderInput{Zone: zone, Name: "child", ParentID: "missing"})
	assert.True(t, errors.Is(err, catalog.ErrInvalidParent))
}

func TestCatalog_CreateRejectsDuplicateSibling(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)
	parent := mkFolder(t, c, "P", "")
	mkFolder(t, c, "Dup", parent.ID)

	_, err := c.CreateFolder(ctx, catalog.CreateFolderInput{Zone: zone, Name: "Dup", ParentID: parent.ID})
	assert.True(t, errors.Is(err, catalog.ErrDuplicateName))

	// same name, different type or parent is allowed
	mkConn(t, c, "Dup", parent.ID)
	mkFolder(t, c, "Dup", "")
}

func TestCatalog_GetMissing(t *testing.T) {
	c, _ := setupCatalog(t)
	_, err := c.Get(context.Background(), zone, "nope")
	assert.True(t, errors.Is(err, db.ErrNotFound))

	items, err := c.GetAll(context.Background(), db.ZoneEmulators)
	require.NoError(t, err)
	assert.Empty(t, items)

	kids, err := c.GetChildren(context.Background(), db.ZoneEmulators, "")
	require.NoError(t, err)
	assert.Empty(t, kids)
}

func TestCatalog_UnknownVersionIsHidden(t *testing.T) {
	ctx := context.Background()
	c, store := setupCatalog(t)
	mkConn(t, c, "ok", "")
	require.NoError(t, store.Push(ctx, zone, &db.RawItem{ID: "future", Name: "future", Version: "9.0"}, false))

	items, err := c.GetAll(ctx, zone)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ok", items[0].Name)

	_, err = c.Get(ctx, zone, "future")
	assert.True(t, errors.Is(err, db.ErrNotFound))
}

func TestCatalog_GetChildrenAndConnectionsOnly(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)
	root := mkFolder(t, c, "Root", "")
	sub := mkFolder(t, c, "Sub", root.ID)
	a := mkConn(t, c, "a", root.ID)
	mkConn(t, c, "b", sub.ID)
	mkConn(t, c, "top", "")

	kids, err := c.GetChildren(ctx, zone, root.ID)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, sub.ID, kids[0].ID, "folders sort first")
	assert.Equal(t, a.ID, kids[1].ID)

	conns, err := c.GetChildren(ctx, zone, root.ID, catalog.ItemTypeConnection)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, a.ID, conns[0].ID)

	rootLevel, err := c.GetChildren(ctx, zone, "")
	require.NoError(t, err)
	assert.Len(t, rootLevel, 2)

	all, err := c.GetAllConnectionsOnly(ctx, zone)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, item := range all {
		assert.True(t, item.IsConnection())
	}
}

func TestCatalog_IsNameDuplicateInParent(t *testing.T) {
	ctx := context.Background()
	c, store := setupCatalog(t)
	f := mkFolder(t, c, "F", "")

	// Scenario C: two root connections named X, seeded directly.
	pushRaw(t, store, &catalog.StoredItem{ID: "A", Name: "X", Type: catalog.ItemTypeConnection})
	pushRaw(t, store, &catalog.StoredItem{ID: "B", Name: "X", Type: catalog.ItemTypeConnection})
	pushRaw(t, store, &catalog.StoredItem{ID: "C", Name: "Y", Type: catalog.ItemTypeConnection, ParentID: f.ID})

	tests := []struct {
		name      string
		itemName  string
		parentID  string
		typ       catalog.ItemType
		excludeID string
		want      bool
	}{
		{"same parent and type, other id", "X", "", catalog.ItemTypeConnection, "A", true},
		{"no exclusion", "X", "", catalog.ItemTypeConnection, "", true},
		{"different type", "X", "", catalog.ItemTypeFolder, "", false},
		{"different parent", "X", f.ID, catalog.ItemTypeConnection, "", false},
		{"name only in folder", "Y", "", catalog.ItemTypeConnection, "", false},
		{"sole match excluded", "Y", f.ID, catalog.ItemTypeConnection, "C", false},
		{"case-sensitive", "x", "", catalog.ItemTypeConnection, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.IsNameDuplicateInParent(ctx, zone, tt.itemName, tt.parentID, tt.typ, tt.excludeID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalog_UpdateParentID_RejectsCycle(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)

	// Scenario B
	f1 := mkFolder(t, c, "F1", "")
	f2 := mkFolder(t, c, "F2", f1.ID)
	f3 := mkFolder(t, c, "F3", f2.ID)

	for _, target := range []string{f1.ID, f2.ID, f3.ID} {
		err := c.UpdateParentID(ctx, zone, f1.ID, target)
		assert.True(t, errors.Is(err, catalog.ErrCircularReference), "target %s", target)
	}

	got, err := c.Get(ctx, zone, f1.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ParentID)

	err = c.UpdateParentID(ctx, zone, f2.ID, f3.ID)
	assert.True(t, errors.Is(err, catalog.ErrCircularReference))
	got, err = c.Get(ctx, zone, f2.ID)
	require.NoError(t, err)
	assert.Equal(t, f1.ID, got.ParentID)
}

func TestCatalog_UpdateParentID_SiblingPrefixIsNotCycle(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)
	a := mkFolder(t, c, "A", "")
	ab := mkFolder(t, c, "AB", "")

	require.NoError(t, c.UpdateParentID(ctx, zone, a.ID, ab.ID))
	path, err := c.GetPath(ctx, zone, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "AB/A", path)
}

func TestCatalog_UpdateParentID_OnlyChangesParent(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)
	dest := mkFolder(t, c, "Dest", "")
	conn, err := c.CreateConnection(ctx, catalog.CreateConnectionInput{
		Zone: zone, Name: "conn", ConnectionString: "mongodb://h", API: "DocumentDB",
		Username: "u", Password: "p", TenantID: "t", IsEmulator: true,
	})
	require.NoError(t, err)

	before, err := c.Get(ctx, zone, conn.ID)
	require.NoError(t, err)

	require.NoError(t, c.UpdateParentID(ctx, zone, conn.ID, dest.ID))

	after, err := c.Get(ctx, zone, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, dest.ID, after.ParentID)
	after.ParentID = before.ParentID
	assert.Equal(t, before, after)

	require.NoError(t, c.UpdateParentID(ctx, zone, conn.ID, ""))
	back, err := c.Get(ctx, zone, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, before, back)
}

func TestCatalog_UpdateParentID_InvalidParent(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)
	a := mkConn(t, c, "a", "")
	b := mkConn(t, c, "b", "")

	err := c.UpdateParentID(ctx, zone, a.ID, b.ID)
	assert.True(t, errors.Is(err, catalog.ErrInvalidParent))

	err = c.UpdateParentID(ctx, zone, a.ID, "ghost")
	assert.True(t, errors.Is(err, catalog.ErrInvalidParent))

	err = c.UpdateParentID(ctx, zone, "ghost", "")
	assert.True(t, errors.Is(err, db.ErrNotFound))
}

func TestCatalog_GetPathAndDescendants(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)
	a := mkFolder(t, c, "A", "")
	b := mkFolder(t, c, "B", a.ID)
	conn := mkConn(t, c, "name", b.ID)
	mkConn(t, c, "other", a.ID)
	mkConn(t, c, "outside", "")

	path, err := c.GetPath(ctx, zone, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "A/B/name", path)

	_, err = c.GetPath(ctx, zone, "missing")
	assert.True(t, errors.Is(err, db.ErrNotFound))

	n, err := c.CountDescendants(ctx, zone, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	desc, err := c.GetDescendants(ctx, zone, b.ID)
	require.NoError(t, err)
	require.Len(t, desc, 1)
	assert.Equal(t, conn.ID, desc[0].ID)
}

func TestCatalog_Rename(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)
	a := mkConn(t, c, "a", "")
	mkConn(t, c, "b", "")

	renamed, err := c.Rename(ctx, zone, a.ID, "c")
	require.NoError(t, err)
	assert.Equal(t, a.ID, renamed.ID)
	assert.Equal(t, "c", renamed.Name)

	_, err = c.Rename(ctx, zone, a.ID, "b")
	assert.True(t, errors.Is(err, catalog.ErrDuplicateName))

	_, err = c.Rename(ctx, zone, a.ID, "")
	assert.Error(t, err)
}

func TestCatalog_SaveAndDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)
	item := &catalog.StoredItem{
		ID: "manual", Name: "manual", Type: catalog.ItemTypeConnection, Zone: zone,
		Secrets: catalog.Secrets{ConnectionString: "mongodb://h"},
	}
	require.NoError(t, c.Save(ctx, item, false))
	assert.True(t, errors.Is(c.Save(ctx, item, false), db.ErrAlreadyExists))

	item.Name = "changed"
	require.NoError(t, c.Save(ctx, item, true))

	require.NoError(t, c.Delete(ctx, zone, "manual"))
	assert.True(t, errors.Is(c.Delete(ctx, zone, "manual"), db.ErrNotFound))
}

func TestCatalog_DeleteDoesNotCascade(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCatalog(t)
	f := mkFolder(t, c, "F", "")
	child := mkConn(t, c, "child", f.ID)

	require.NoError(t, c.Delete(ctx, zone, f.ID))

	got, err := c.Get(ctx, zone, child.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ParentID)
}

func TestCatalog_WorksOnBadger(t *testing.T) {
	ctx := context.Background()
	c := catalog.New(testutil.SetupBadger(t))
	f, err := c.CreateFolder(ctx, catalog.CreateFolderInput{Zone: db.ZoneEmulators, Name: "Local"})
	require.NoError(t, err)
	_, err = c.CreateConnection(ctx, catalog.CreateConnectionInput{
		Zone: db.ZoneEmulators, Name: "emu", ParentID: f.ID,
		ConnectionString: "mongodb://localhost:10255", IsEmulator: true,
	})
	require.NoError(t, err)

	kids, err := c.GetChildren(ctx, db.ZoneEmulators, f.ID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.True(t, kids[0].Properties.EmulatorConfiguration.IsEmulator)
}
