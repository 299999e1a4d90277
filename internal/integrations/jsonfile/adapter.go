// Package jsonfile exchanges assignment problems through JSON files in a
// directory shared with the external solver: input-<id>.json is written for
// the solver, output-<id>.json is read back.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/SlNPacifist/icfpc2023/internal/integrations"
	"github.com/SlNPacifist/icfpc2023/internal/integrations/assignment"
)

type Adapter struct {
	Dir string
}

var _ integrations.AssignmentAdapter = Adapter{}

func (a Adapter) Name() string { return "json-file" }

func (a Adapter) InputPath(problemID string) string {
	return filepath.Join(a.Dir, "input-"+problemID+".json")
}

func (a Adapter) OutputPath(problemID string) string {
	return filepath.Join(a.Dir, "output-"+problemID+".json")
}

func (a Adapter) WriteInput(ctx context.Context, problemID string, in assignment.Input) error {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return os.WriteFile(a.InputPath(problemID), b, 0o644)
}

func (a Adapter) ReadInput(ctx context.Context, problemID string) (assignment.Input, error) {
	var in assignment.Input
	err := readJSON(a.InputPath(problemID), &in)
	return in, err
}

func (a Adapter) ReadOutput(ctx context.Context, problemID string) (assignment.Output, error) {
	var out assignment.Output
	err := readJSON(a.OutputPath(problemID), &out)
	return out, err
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
