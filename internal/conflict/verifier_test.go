package conflict_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/conflict"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/tasks"
	"github.com/microsoft/vscode-documentdb-sub002/testutil"
)

const zone = db.ZoneClusters

type fixture struct {
	catalog  *catalog.Catalog
	registry *tasks.Registry
	verifier *conflict.Verifier

	root, sub, empty    *catalog.StoredItem
	c1, c2, c3, topConn *catalog.StoredItem
}

// root/{c1, sub/{c2, c3}}, empty/, topConn
func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	c := catalog.New(testutil.SetupTestDB(t))
	reg := tasks.NewRegistry()
	f := &fixture{catalog: c, registry: reg, verifier: conflict.NewVerifier(c, reg)}

	folder := func(name, parent string) *catalog.StoredItem {
		item, err := c.CreateFolder(ctx, catalog.CreateFolderInput{Zone: zone, Name: name, ParentID: parent})
		require.NoError(t, err)
		return item
	}
	conn := func(name, parent string) *catalog.StoredItem {
		item, err := c.CreateConnection(ctx, catalog.CreateConnectionInput{
			Zone: zone, Name: name, ParentID: parent, ConnectionString: "mongodb://localhost",
		})
		require.NoError(t, err)
		return item
	}

	f.root = folder("root", "")
	f.sub = folder("sub", f.root.ID)
	f.empty = folder("empty", "")
	f.c1 = conn("c1", f.root.ID)
	f.c2 = conn("c2", f.sub.ID)
	f.c3 = conn("c3", f.sub.ID)
	f.topConn = conn("top", "")
	return f
}

func TestEnumerateAffectedConnectionIDs(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	ids, err := f.verifier.EnumerateAffectedConnectionIDs(ctx, []*catalog.StoredItem{f.root})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{f.c1.ID, f.c2.ID, f.c3.ID}, ids)

	ids, err = f.verifier.EnumerateAffectedConnectionIDs(ctx, []*catalog.StoredItem{f.topConn, f.empty})
	require.NoError(t, err)
	assert.Equal(t, []string{f.topConn.ID}, ids)

	// overlapping selections may repeat ids
	ids, err = f.verifier.EnumerateAffectedConnectionIDs(ctx, []*catalog.StoredItem{f.root, f.sub})
	require.NoError(t, err)
	assert.Len(t, ids, 5)
}

func TestVerifyDelete_FindsNestedTaskConflicts(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.registry.Register(tasks.TaskInfo{TaskID: "t1", TaskName: "copy"}, []tasks.ResourceUsage{
		{ConnectionID: f.c2.ID, DatabaseName: "db"},
		{ConnectionID: f.c3.ID, DatabaseName: "db"},
	})
	require.NoError(t, err)

	report, err := f.verifier.VerifyDelete(ctx, []*catalog.StoredItem{f.root})
	require.NoError(t, err)
	assert.True(t, report.HasTaskConflicts())
	require.Len(t, report.Tasks, 1)
	assert.Equal(t, "t1", report.Tasks[0].TaskID)
	assert.Len(t, report.AffectedConnections, 3)

	report, err = f.verifier.VerifyDelete(ctx, []*catalog.StoredItem{f.empty, f.topConn})
	require.NoError(t, err)
	assert.False(t, report.Blocked())
}

func TestVerifyMove_ConnectionInUse(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.registry.Register(tasks.TaskInfo{TaskID: "t1", TaskName: "query"}, []tasks.ResourceUsage{{ConnectionID: f.c1.ID}})
	require.NoError(t, err)

	report, err := f.verifier.VerifyMove(ctx, []*catalog.StoredItem{f.c1}, f.empty.ID, zone)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Tasks)
	assert.Empty(t, report.NamingConflicts)
}

func TestFindNamingConflicts(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	// a root-level connection named c1 collides with root/c1 when moved there
	clash, err := f.catalog.CreateConnection(ctx, catalog.CreateConnectionInput{
		Zone: zone, Name: "c1", ConnectionString: "mongodb://other",
	})
	require.NoError(t, err)
	// a folder named c2 does not collide with connection c2
	_, err = f.catalog.CreateFolder(ctx, catalog.CreateFolderInput{Zone: zone, Name: "c2"})
	require.NoError(t, err)

	names, err := f.verifier.FindNamingConflicts(ctx, []*catalog.StoredItem{clash, f.topConn}, f.root.ID, zone)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, names)

	names, err = f.verifier.FindNamingConflicts(ctx, []*catalog.StoredItem{f.c2}, "", zone)
	require.NoError(t, err)
	assert.Empty(t, names)

	// an item never conflicts with itself
	names, err = f.verifier.FindNamingConflicts(ctx, []*catalog.StoredItem{f.c1}, f.root.ID, zone)
	require.NoError(t, err)
	assert.Empty(t, names)

	// two selected connections with one name collide with each other
	twin, err := f.catalog.CreateConnection(ctx, catalog.CreateConnectionInput{
		Zone: zone, Name: "twin", ConnectionString: "mongodb://a",
	})
	require.NoError(t, err)
	twinFolder, err := f.catalog.CreateFolder(ctx, catalog.CreateFolderInput{Zone: zone, Name: "other"})
	require.NoError(t, err)
	twin2, err := f.catalog.CreateConnection(ctx, catalog.CreateConnectionInput{
		Zone: zone, Name: "twin", ParentID: twinFolder.ID, ConnectionString: "mongodb://b",
	})
	require.NoError(t, err)
	names, err = f.verifier.FindNamingConflicts(ctx, []*catalog.StoredItem{twin, twin2, twin}, f.root.ID, zone)
	require.NoError(t, err)
	assert.Equal(t, []string{"twin"}, names)

	report, err := f.verifier.VerifyMove(ctx, []*catalog.StoredItem{clash}, f.root.ID, zone)
	require.NoError(t, err)
	assert.True(t, report.HasNamingConflicts())
	assert.False(t, report.HasTaskConflicts())
	assert.True(t, report.Blocked())
}
