// Package conflict answers whether a delete or move can run right now,
// without mutating anything.
package conflict

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/logger"
	"github.com/microsoft/vscode-documentdb-sub002/internal/metrics"
	"github.com/microsoft/vscode-documentdb-sub002/internal/tasks"
)

// Catalog is the part of the catalog the verifier reads.
type Catalog interface {
	GetChildren(ctx context.Context, zone db.Zone, parentID string, filter ...catalog.ItemType) ([]*catalog.StoredItem, error)
	IsNameDuplicateInParent(ctx context.Context, zone db.Zone, name, parentID string, typ catalog.ItemType, excludeID string) (bool, error)
}

// TaskFinder reports running tasks that hold any of the given connections.
type TaskFinder interface {
	FindConflictingTasksForConnections(connectionIDs []string) []tasks.TaskInfo
}

// Report lists what blocks an operation. Tasks are hard blocks; naming
// conflicts only block a move to that destination.
type Report struct {
	AffectedConnections []string         `json:"affected_connections"`
	Tasks               []tasks.TaskInfo `json:"tasks,omitempty"`
	NamingConflicts     []string         `json:"naming_conflicts,omitempty"`
}

func (r *Report) HasTaskConflicts() bool {
	return len(r.Tasks) > 0
}

func (r *Report) HasNamingConflicts() bool {
	return len(r.NamingConflicts) > 0
}

func (r *Report) Blocked() bool {
	return r.HasTaskConflicts() || r.HasNamingConflicts()
}

type Verifier struct {
	catalog Catalog
	tasks   TaskFinder
	log     *zap.Logger
}

func NewVerifier(c Catalog, t TaskFinder) *Verifier {
	return &Verifier{
		catalog: c,
		tasks:   t,
		log:     logger.WithModule("conflict"),
	}
}

// EnumerateAffectedConnectionIDs returns the ids of every connection among
// items or below any folder in items. Duplicates are possible.
func (v *Verifier) EnumerateAffectedConnectionIDs(ctx context.Context, items []*catalog.StoredItem) ([]string, error) {
	var ids []string
	for _, item := range items {
		switch item.Type {
		case catalog.ItemTypeConnection:
			ids = append(ids, item.ID)
		case catalog.ItemTypeFolder:
			nested, err := v.descendantConnections(ctx, item.Zone, item.ID, map[string]bool{item.ID: true})
			if err != nil {
				return nil, err
			}
			ids = append(ids, nested...)
		default:
			return nil, fmt.Errorf("item %s has unknown type %q", item.ID, item.Type)
		}
	}
	return ids, nil
}

func (v *Verifier) descendantConnections(ctx context.Context, zone db.Zone, folderID string, visited map[string]bool) ([]string, error) {
	children, err := v.catalog.GetChildren(ctx, zone, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", folderID, err)
	}
	var ids []string
	for _, child := range children {
		if visited[child.ID] {
			continue
		}
		visited[child.ID] = true
		switch child.Type {
		case catalog.ItemTypeConnection:
			ids = append(ids, child.ID)
		case catalog.ItemTypeFolder:
			nested, err := v.descendantConnections(ctx, zone, child.ID, visited)
			if err != nil {
				return nil, err
			}
			ids = append(ids, nested...)
		}
	}
	return ids, nil
}

// FindInUseConflicts returns the running tasks that use any of the
// connections, one entry per task.
func (v *Verifier) FindInUseConflicts(connectionIDs []string) []tasks.TaskInfo {
	if v.tasks == nil {
		return nil
	}
	return v.tasks.FindConflictingTasksForConnections(dedupe(connectionIDs))
}

// FindNamingConflicts returns the names of items that would collide with a
// same-type sibling under destinationParentID, including collisions between
// the moved items themselves.
func (v *Verifier) FindNamingConflicts(ctx context.Context, items []*catalog.StoredItem, destinationParentID string, zone db.Zone) ([]string, error) {
	type nameKey struct {
		name string
		typ  catalog.ItemType
	}
	seen := make(map[nameKey]string, len(items))
	reported := make(map[nameKey]bool)
	var names []string
	report := func(k nameKey) {
		if !reported[k] {
			reported[k] = true
			names = append(names, k.name)
		}
	}

	for _, item := range items {
		k := nameKey{item.Name, item.Type}
		if id, ok := seen[k]; ok && id != item.ID {
			report(k)
			continue
		}
		seen[k] = item.ID

		dup, err := v.catalog.IsNameDuplicateInParent(ctx, zone, item.Name, destinationParentID, item.Type, item.ID)
		if err != nil {
			return nil, err
		}
		if dup {
			report(k)
		}
	}
	return names, nil
}

// VerifyDelete checks items scheduled for deletion against running tasks.
func (v *Verifier) VerifyDelete(ctx context.Context, items []*catalog.StoredItem) (*Report, error) {
	ids, err := v.EnumerateAffectedConnectionIDs(ctx, items)
	if err != nil {
		return nil, err
	}
	report := &Report{AffectedConnections: dedupe(ids)}
	report.Tasks = v.FindInUseConflicts(report.AffectedConnections)
	v.record("delete", report)
	return report, nil
}

// VerifyMove checks items against running tasks and against names already
// used under the destination.
func (v *Verifier) VerifyMove(ctx context.Context, items []*catalog.StoredItem, destinationParentID string, zone db.Zone) (*Report, error) {
	ids, err := v.EnumerateAffectedConnectionIDs(ctx, items)
	if err != nil {
		return nil, err
	}
	report := &Report{AffectedConnections: dedupe(ids)}
	report.Tasks = v.FindInUseConflicts(report.AffectedConnections)
	report.NamingConflicts, err = v.FindNamingConflicts(ctx, items, destinationParentID, zone)
	if err != nil {
		return nil, err
	}
	v.record("move", report)
	return report, nil
}

func (v *Verifier) record(op string, report *Report) {
	if report.HasTaskConflicts() {
		metrics.Conflicts.WithLabelValues(op, "task").Inc()
		v.log.Info("operation blocked by running tasks",
			zap.String("op", op), zap.Int("tasks", len(report.Tasks)))
	}
	if report.HasNamingConflicts() {
		metrics.Conflicts.WithLabelValues(op, "naming").Inc()
		v.log.Info("operation blocked by naming conflicts",
			zap.String("op", op), zap.Strings("names", report.NamingConflicts))
	}
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
