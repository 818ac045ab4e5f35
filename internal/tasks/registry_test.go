package tasks

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var n int
	var mu sync.Mutex
	r.timeNow = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return r
}

func TestRegistry_RegisterAssignsID(t *testing.T) {
	r := newTestRegistry()
	info, err := r.Register(TaskInfo{TaskName: "copy", TaskType: "copy-paste"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, info.TaskID)

	_, err = r.Register(TaskInfo{TaskID: info.TaskID, TaskName: "again"}, nil)
	assert.True(t, errors.Is(err, ErrTaskExists))

	_, err = r.Register(TaskInfo{}, nil)
	assert.Error(t, err)
}

func TestRegistry_FindConflictsDeduplicatesTasks(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(TaskInfo{TaskID: "t1", TaskName: "import"}, []ResourceUsage{
		{ConnectionID: "c1", DatabaseName: "db"},
		{ConnectionID: "c2", DatabaseName: "db", CollectionName: "coll"},
	})
	require.NoError(t, err)
	_, err = r.Register(TaskInfo{TaskID: "t2", TaskName: "export"}, []ResourceUsage{{ConnectionID: "c3"}})
	require.NoError(t, err)
	_, err = r.Register(TaskInfo{TaskID: "t3", TaskName: "idle"}, []ResourceUsage{{DatabaseName: "db"}})
	require.NoError(t, err)

	got := r.FindConflictingTasksForConnections([]string{"c1", "c2"})
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TaskID)

	got = r.FindConflictingTasksForConnections([]string{"c2", "c3"})
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].TaskID)
	assert.Equal(t, "t2", got[1].TaskID)

	assert.Empty(t, r.FindConflictingTasksForConnections([]string{"c9"}))
	assert.Empty(t, r.FindConflictingTasksForConnections(nil))
}

func TestRegistry_StartAndUnregister(t *testing.T) {
	r := newTestRegistry()
	info, done, err := r.Start(TaskInfo{TaskName: "query"}, ResourceUsage{ConnectionID: "c1"})
	require.NoError(t, err)

	resources := r.GetAllUsedResources()
	require.Len(t, resources, 1)
	assert.Equal(t, info, resources[0].Task)
	assert.Equal(t, []ResourceUsage{{ConnectionID: "c1"}}, resources[0].Resources)

	done()
	assert.Empty(t, r.List())
	assert.Empty(t, r.FindConflictingTasksForConnections([]string{"c1"}))

	r.Unregister("unknown")
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(TaskInfo{TaskID: "t1", TaskName: "x"}, []ResourceUsage{{ConnectionID: "c1"}})
	require.NoError(t, err)

	all := r.GetAllUsedResources()
	all[0].Resources[0].ConnectionID = "mutated"

	assert.Len(t, r.FindConflictingTasksForConnections([]string{"c1"}), 1)
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, done, err := r.Start(TaskInfo{TaskName: "worker"}, ResourceUsage{ConnectionID: "c"})
			if err != nil {
				return
			}
			r.FindConflictingTasksForConnections([]string{"c"})
			done()
		}()
	}
	wg.Wait()
	assert.Empty(t, r.List())
}

func TestRegistry_UsageWithoutConnectionNeverConflicts(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(TaskInfo{TaskName: "unscoped"}, []ResourceUsage{{DatabaseName: "shop"}})
	require.NoError(t, err)

	assert.Empty(t, r.FindConflictingTasksForConnections([]string{"c1", ""}))
}
