package orchestrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
)

// Prompt describes what the user is asked to confirm.
type Prompt struct {
	Op                  string                `json:"op"`
	Zone                db.Zone               `json:"zone"`
	Items               []*catalog.StoredItem `json:"items"`
	DescendantCount     int                   `json:"descendant_count"`
	AffectedConnections int                   `json:"affected_connections"`
	Destination         string                `json:"destination,omitempty"`
}

// Message renders the prompt as a single question.
func (p Prompt) Message() string {
	names := make([]string, len(p.Items))
	for i, item := range p.Items {
		names[i] = fmt.Sprintf("%q", item.Name)
	}
	subject := strings.Join(names, ", ")

	switch p.Op {
	case OpDelete:
		if p.DescendantCount > 0 {
			return fmt.Sprintf("Delete %s and %d nested item(s)?", subject, p.DescendantCount)
		}
		return fmt.Sprintf("Delete %s?", subject)
	case OpMove:
		return fmt.Sprintf("Move %s to %s?", subject, p.Destination)
	default:
		return fmt.Sprintf("%s %s?", p.Op, subject)
	}
}

// Confirmer asks the user to approve an operation before it runs.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) (bool, error) {
	return f(ctx, p)
}

// AutoConfirm approves every prompt, for non-interactive callers that pass
// an explicit confirmation flag.
var AutoConfirm = ConfirmFunc(func(context.Context, Prompt) (bool, error) { return true, nil })

// Decline rejects every prompt.
var Decline = ConfirmFunc(func(context.Context, Prompt) (bool, error) { return false, nil })
