// Package orchestrate sequences verification, confirmation and execution of
// delete and move operations on the catalog.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/conflict"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/logger"
)

var (
	ErrCancelled      = errors.New("operation cancelled")
	ErrInUse          = errors.New("items are in use by running tasks")
	ErrNamingConflict = errors.New("names already used at destination")
	ErrNothingToDo    = errors.New("no items selected")
)

// Catalog is the part of the catalog the orchestrator mutates.
type Catalog interface {
	Snapshot(ctx context.Context, zone db.Zone) (*catalog.Tree, error)
	Delete(ctx context.Context, zone db.Zone, id string) error
	UpdateParentID(ctx context.Context, zone db.Zone, id, newParentID string) error
}

// ConflictError carries the verification report that blocked an operation.
// It unwraps to ErrInUse for task conflicts and ErrNamingConflict otherwise.
type ConflictError struct {
	Op     string
	Report *conflict.Report
}

func (e *ConflictError) Error() string {
	if e.Report.HasTaskConflicts() {
		names := make([]string, len(e.Report.Tasks))
		for i, t := range e.Report.Tasks {
			names[i] = t.TaskName
		}
		return fmt.Sprintf("cannot %s: %d running task(s) use affected connections: %s",
			e.Op, len(e.Report.Tasks), strings.Join(names, ", "))
	}
	return fmt.Sprintf("cannot %s: names already used at destination: %s",
		e.Op, strings.Join(e.Report.NamingConflicts, ", "))
}

func (e *ConflictError) Unwrap() error {
	if e.Report.HasTaskConflicts() {
		return ErrInUse
	}
	return ErrNamingConflict
}

// Orchestrator runs delete and move flows. Execution is serialized per
// orchestrator since several front ends may share one catalog.
type Orchestrator struct {
	catalog  Catalog
	verifier *conflict.Verifier
	log      *zap.Logger

	mu sync.Mutex
}

func New(c Catalog, v *conflict.Verifier) *Orchestrator {
	return &Orchestrator{
		catalog:  c,
		verifier: v,
		log:      logger.WithModule("orchestrate"),
	}
}

// resolve looks up ids in the snapshot and drops any item that is already
// covered by another selected folder.
func resolve(tree *catalog.Tree, ids []string) ([]*catalog.StoredItem, error) {
	if len(ids) == 0 {
		return nil, ErrNothingToDo
	}
	selected := make(map[string]bool, len(ids))
	var items []*catalog.StoredItem
	for _, id := range ids {
		if selected[id] {
			continue
		}
		item, ok := tree.Get(id)
		if !ok {
			return nil, fmt.Errorf("item %s: %w", id, db.ErrNotFound)
		}
		selected[id] = true
		items = append(items, item)
	}

	out := items[:0]
	for _, item := range items {
		covered := false
		for _, a := range tree.Ancestors(item.ID) {
			if selected[a] {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, item)
		}
	}
	return out, nil
}

func (o *Orchestrator) confirm(ctx context.Context, c Confirmer, p Prompt) error {
	if c == nil {
		return nil
	}
	ok, err := c.Confirm(ctx, p)
	if err != nil {
		return fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		o.log.Info("operation cancelled by user", zap.String("op", p.Op))
		return ErrCancelled
	}
	return nil
}
