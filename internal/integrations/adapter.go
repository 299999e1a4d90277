// Package integrations connects the optimizer to external tools.
package integrations

import (
	"context"

	"github.com/SlNPacifist/icfpc2023/internal/integrations/assignment"
)

// AssignmentAdapter hands assignment inputs to an external solver and
// collects its outputs, one problem at a time.
type AssignmentAdapter interface {
	Name() string
	WriteInput(ctx context.Context, problemID string, in assignment.Input) error
	ReadInput(ctx context.Context, problemID string) (assignment.Input, error)
	ReadOutput(ctx context.Context, problemID string) (assignment.Output, error)
}
