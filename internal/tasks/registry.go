// Package tasks tracks long-running operations and the connections,
// databases and collections they hold.
package tasks

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/microsoft/vscode-documentdb-sub002/internal/metrics"
)

// ErrTaskExists indicates a task id is already registered.
var ErrTaskExists = errors.New("task already registered")

// TaskInfo identifies a running task.
type TaskInfo struct {
	TaskID   string `json:"task_id"`
	TaskName string `json:"task_name"`
	TaskType string `json:"task_type"`
}

// ResourceUsage names something a task holds. Empty fields leave that level
// unspecified; a usage without a ConnectionID never matches a connection.
type ResourceUsage struct {
	ConnectionID   string `json:"connection_id,omitempty"`
	DatabaseName   string `json:"database_name,omitempty"`
	CollectionName string `json:"collection_name,omitempty"`
}

// TaskResources pairs a task with the resources it uses.
type TaskResources struct {
	Task      TaskInfo        `json:"task"`
	Resources []ResourceUsage `json:"resources"`
	StartedAt time.Time       `json:"started_at"`
}

// Registry is an in-memory, concurrency-safe set of running tasks.
type Registry struct {
	mu      sync.RWMutex
	tasks   map[string]*TaskResources
	timeNow func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		tasks:   make(map[string]*TaskResources),
		timeNow: time.Now,
	}
}

// Register records a running task. An empty TaskID is replaced with a new
// UUID; the effective info is returned.
func (r *Registry) Register(task TaskInfo, resources []ResourceUsage) (TaskInfo, error) {
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	if task.TaskName == "" {
		return TaskInfo{}, errors.New("task: name is required")
	}

	record := &TaskResources{
		Task:      task,
		Resources: append([]ResourceUsage(nil), resources...),
		StartedAt: r.timeNow(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.TaskID]; exists {
		return TaskInfo{}, fmt.Errorf("%w: %s", ErrTaskExists, task.TaskID)
	}
	r.tasks[task.TaskID] = record
	metrics.ActiveTasks.Set(float64(len(r.tasks)))
	return task, nil
}

// Start registers a task and returns a function that unregisters it.
func (r *Registry) Start(task TaskInfo, resources ...ResourceUsage) (TaskInfo, func(), error) {
	info, err := r.Register(task, resources)
	if err != nil {
		return TaskInfo{}, func() {}, err
	}
	return info, func() { r.Unregister(info.TaskID) }, nil
}

// Unregister removes the task. Unknown ids are ignored.
func (r *Registry) Unregister(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskID]; !ok {
		return
	}
	delete(r.tasks, taskID)
	metrics.ActiveTasks.Set(float64(len(r.tasks)))
}

// GetAllUsedResources returns a copy of every task and its resources, oldest
// first.
func (r *Registry) GetAllUsedResources() []TaskResources {
	r.mu.RLock()
	out := make([]TaskResources, 0, len(r.tasks))
	for _, t := range r.tasks {
		cp := *t
		cp.Resources = append([]ResourceUsage(nil), t.Resources...)
		out = append(out, cp)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].Task.TaskID < out[j].Task.TaskID
	})
	return out
}

// List returns the running tasks.
func (r *Registry) List() []TaskInfo {
	all := r.GetAllUsedResources()
	out := make([]TaskInfo, len(all))
	for i, t := range all {
		out[i] = t.Task
	}
	return out
}

// FindConflictingTasksForConnections returns each task that uses any of the
// given connections. A task appears once even if it holds several of them.
func (r *Registry) FindConflictingTasksForConnections(connectionIDs []string) []TaskInfo {
	if len(connectionIDs) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(connectionIDs))
	for _, id := range connectionIDs {
		wanted[id] = true
	}

	var out []TaskInfo
	seen := make(map[string]bool)
	for _, t := range r.GetAllUsedResources() {
		for _, res := range t.Resources {
			if res.ConnectionID != "" && wanted[res.ConnectionID] && !seen[t.Task.TaskID] {
				seen[t.Task.TaskID] = true
				out = append(out, t.Task)
			}
		}
	}
	return out
}
