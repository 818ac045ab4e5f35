package orchestrate

import (
	"fmt"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
)

const (
	OpDelete = "delete"
	OpMove   = "move"
)

type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepApplied StepStatus = "applied"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// Step is one planned single-item mutation.
type Step struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        catalog.ItemType `json:"type"`
	Path        string           `json:"path"`
	NewParentID string           `json:"new_parent_id,omitempty"`
}

type StepResult struct {
	Step
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// Result reports the outcome of every planned step.
type Result struct {
	Op    string       `json:"op"`
	Zone  db.Zone      `json:"zone"`
	Steps []StepResult `json:"steps"`
}

func (r *Result) count(s StepStatus) int {
	n := 0
	for _, step := range r.Steps {
		if step.Status == s {
			n++
		}
	}
	return n
}

func (r *Result) Applied() int { return r.count(StepApplied) }
func (r *Result) Failed() int  { return r.count(StepFailed) }
func (r *Result) Skipped() int { return r.count(StepSkipped) }

// IDs returns the ids of the steps with the given status.
func (r *Result) IDs(s StepStatus) []string {
	var ids []string
	for _, step := range r.Steps {
		if step.Status == s {
			ids = append(ids, step.ID)
		}
	}
	return ids
}

// PartialFailureError is returned when some steps were applied and others
// failed or were skipped. Applied steps are not rolled back.
type PartialFailureError struct {
	Result *Result
	Err    error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s partially applied: %d applied, %d failed, %d skipped: %v",
		e.Result.Op, e.Result.Applied(), e.Result.Failed(), e.Result.Skipped(), e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}
