package orchestrate

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/conflict"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
)

// RootPath is the display path of the root move target.
const RootPath = "/"

// Target is a destination offered for a move. An empty ID is the root.
type Target struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// MoveTargets lists the folders ids can be moved into. The moved items,
// everything below them and the parent they all share are left out. The root
// is offered unless every item already sits there.
func (o *Orchestrator) MoveTargets(ctx context.Context, zone db.Zone, ids []string) ([]Target, error) {
	tree, err := o.catalog.Snapshot(ctx, zone)
	if err != nil {
		return nil, err
	}
	items, err := resolve(tree, ids)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool)
	for _, item := range items {
		excluded[item.ID] = true
		for _, d := range tree.Descendants(item.ID) {
			excluded[d.ID] = true
		}
	}
	sharedParent, shared := commonParent(items)
	if shared {
		excluded[sharedParent] = true
	}

	var targets []Target
	if !shared || sharedParent != "" {
		targets = append(targets, Target{ID: "", Path: RootPath})
	}
	for _, f := range tree.Folders() {
		if !excluded[f.ID] {
			targets = append(targets, Target{ID: f.ID, Path: tree.Path(f.ID)})
		}
	}
	return targets, nil
}

func commonParent(items []*catalog.StoredItem) (string, bool) {
	if len(items) == 0 {
		return "", false
	}
	parent := items[0].ParentID
	for _, item := range items[1:] {
		if item.ParentID != parent {
			return "", false
		}
	}
	return parent, true
}

// MovePlan holds the reparent steps for a selection and the conflicts found
// at the destination.
type MovePlan struct {
	Zone            db.Zone               `json:"zone"`
	Items           []*catalog.StoredItem `json:"items"`
	DestinationID   string                `json:"destination_id"`
	DestinationPath string                `json:"destination_path"`
	Steps           []Step                `json:"steps"`
	Report          *conflict.Report      `json:"report"`
}

// PlanMove validates the destination and checks the selection against
// running tasks and sibling names at the destination.
func (o *Orchestrator) PlanMove(ctx context.Context, zone db.Zone, ids []string, destinationID string) (*MovePlan, error) {
	tree, err := o.catalog.Snapshot(ctx, zone)
	if err != nil {
		return nil, err
	}
	items, err := resolve(tree, ids)
	if err != nil {
		return nil, err
	}

	plan := &MovePlan{Zone: zone, Items: items, DestinationID: destinationID, DestinationPath: RootPath}
	if destinationID != "" {
		dest, ok := tree.Get(destinationID)
		if !ok || !dest.IsFolder() {
			return nil, fmt.Errorf("destination %s is not a folder: %w", destinationID, catalog.ErrInvalidParent)
		}
		plan.DestinationPath = tree.Path(destinationID)
	}

	for _, item := range items {
		if item.ID == destinationID || (item.IsFolder() && tree.IsAncestor(item.ID, destinationID)) {
			return nil, fmt.Errorf("cannot move %q into %q: %w",
				tree.Path(item.ID), plan.DestinationPath, catalog.ErrCircularReference)
		}
		plan.Steps = append(plan.Steps, Step{
			ID:          item.ID,
			Name:        item.Name,
			Type:        item.Type,
			Path:        tree.Path(item.ID),
			NewParentID: destinationID,
		})
	}

	plan.Report, err = o.verifier.VerifyMove(ctx, items, destinationID, zone)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// Move verifies, confirms and executes a move. Task conflicts and naming
// conflicts both stop the flow before confirmation; the caller may retry
// with another destination.
func (o *Orchestrator) Move(ctx context.Context, zone db.Zone, ids []string, destinationID string, confirmer Confirmer) (*Result, error) {
	plan, err := o.PlanMove(ctx, zone, ids, destinationID)
	if err != nil {
		return nil, err
	}
	if plan.Report.Blocked() {
		return nil, &ConflictError{Op: OpMove, Report: plan.Report}
	}

	err = o.confirm(ctx, confirmer, Prompt{
		Op:                  OpMove,
		Zone:                zone,
		Items:               plan.Items,
		AffectedConnections: len(plan.Report.AffectedConnections),
		Destination:         plan.DestinationPath,
	})
	if err != nil {
		return nil, err
	}
	return o.ExecuteMove(ctx, plan)
}

// ExecuteMove reparents every item in the plan. Failures do not stop the
// remaining items; all errors are combined into a PartialFailureError.
func (o *Orchestrator) ExecuteMove(ctx context.Context, plan *MovePlan) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := &Result{Op: OpMove, Zone: plan.Zone, Steps: make([]StepResult, len(plan.Steps))}
	var errs error
	for i, step := range plan.Steps {
		result.Steps[i] = StepResult{Step: step, Status: StepApplied}
		if err := o.catalog.UpdateParentID(ctx, plan.Zone, step.ID, step.NewParentID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to move %q: %w", step.Path, err))
			result.Steps[i].Status = StepFailed
			result.Steps[i].Error = err.Error()
		}
	}

	if errs != nil {
		o.log.Warn("move partially applied",
			zap.String("zone", string(plan.Zone)),
			zap.Int("applied", result.Applied()),
			zap.Int("failed", result.Failed()),
			zap.Error(errs))
		return result, &PartialFailureError{Result: result, Err: errs}
	}
	o.log.Info("items moved",
		zap.String("zone", string(plan.Zone)),
		zap.String("destination", plan.DestinationPath),
		zap.Int("count", result.Applied()))
	return result, nil
}
