package orchestrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/conflict"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
)

// DeletePlan lists the deletions for a selection, children before parents.
type DeletePlan struct {
	Zone   db.Zone               `json:"zone"`
	Items  []*catalog.StoredItem `json:"items"`
	Steps  []Step                `json:"steps"`
	Report *conflict.Report      `json:"report"`
}

// DescendantCount is the number of planned deletions beyond the selection.
func (p *DeletePlan) DescendantCount() int {
	return len(p.Steps) - len(p.Items)
}

// PlanDelete builds the post-order deletion plan for ids and checks it
// against running tasks.
func (o *Orchestrator) PlanDelete(ctx context.Context, zone db.Zone, ids []string) (*DeletePlan, error) {
	tree, err := o.catalog.Snapshot(ctx, zone)
	if err != nil {
		return nil, err
	}
	items, err := resolve(tree, ids)
	if err != nil {
		return nil, err
	}

	plan := &DeletePlan{Zone: zone, Items: items}
	for _, item := range items {
		plan.Steps = appendPostOrder(plan.Steps, tree, item, map[string]bool{})
	}

	plan.Report, err = o.verifier.VerifyDelete(ctx, items)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func appendPostOrder(steps []Step, tree *catalog.Tree, item *catalog.StoredItem, visited map[string]bool) []Step {
	if visited[item.ID] {
		return steps
	}
	visited[item.ID] = true
	if item.IsFolder() {
		for _, child := range tree.Children(item.ID) {
			steps = appendPostOrder(steps, tree, child, visited)
		}
	}
	return append(steps, Step{
		ID:   item.ID,
		Name: item.Name,
		Type: item.Type,
		Path: tree.Path(item.ID),
	})
}

// Delete verifies, confirms and executes the deletion of ids and everything
// below them. Running tasks on any affected connection block the operation.
func (o *Orchestrator) Delete(ctx context.Context, zone db.Zone, ids []string, confirmer Confirmer) (*Result, error) {
	plan, err := o.PlanDelete(ctx, zone, ids)
	if err != nil {
		return nil, err
	}
	if plan.Report.HasTaskConflicts() {
		return nil, &ConflictError{Op: OpDelete, Report: plan.Report}
	}

	err = o.confirm(ctx, confirmer, Prompt{
		Op:                  OpDelete,
		Zone:                zone,
		Items:               plan.Items,
		DescendantCount:     plan.DescendantCount(),
		AffectedConnections: len(plan.Report.AffectedConnections),
	})
	if err != nil {
		return nil, err
	}
	return o.ExecuteDelete(ctx, plan)
}

// ExecuteDelete applies the plan in order. The first failure stops the run
// and marks every later step skipped, so a parent is never removed after one
// of its children could not be.
func (o *Orchestrator) ExecuteDelete(ctx context.Context, plan *DeletePlan) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := &Result{Op: OpDelete, Zone: plan.Zone, Steps: make([]StepResult, len(plan.Steps))}
	var firstErr error
	for i, step := range plan.Steps {
		result.Steps[i] = StepResult{Step: step, Status: StepPending}
		if firstErr != nil {
			result.Steps[i].Status = StepSkipped
			continue
		}
		if err := o.catalog.Delete(ctx, plan.Zone, step.ID); err != nil {
			firstErr = fmt.Errorf("failed to delete %q: %w", step.Path, err)
			result.Steps[i].Status = StepFailed
			result.Steps[i].Error = err.Error()
			continue
		}
		result.Steps[i].Status = StepApplied
	}

	if firstErr != nil {
		o.log.Warn("delete partially applied",
			zap.String("zone", string(plan.Zone)),
			zap.Int("applied", result.Applied()),
			zap.Int("skipped", result.Skipped()),
			zap.Error(firstErr))
		return result, &PartialFailureError{Result: result, Err: firstErr}
	}
	o.log.Info("items deleted", zap.String("zone", string(plan.Zone)), zap.Int("count", result.Applied()))
	return result, nil
}
