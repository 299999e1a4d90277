// Package assignment exchanges musician-to-position problems with external
// assignment solvers.
//
// Export freezes the current positions and, for every musician, sums the
// contributions it would collect at each position. A solver returns either a
// position index per musician or the placements directly, and Apply turns
// that back into a solution with optimal volumes.
package assignment

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/score"
	"github.com/SlNPacifist/icfpc2023/internal/visibility"
)

// Input is handed to the external solver. Matrix[i][p] is the value of
// putting musician i at Positions[p].
type Input struct {
	Positions []geom.Point `json:"positions"`
	Musicians []int        `json:"musicians"`
	Matrix    [][]int64    `json:"matrix"`
}

// Output is the solver's answer. Exactly one field is set.
type Output struct {
	// Assignment[i] is the position index for musician i.
	Assignment []int `json:"assignment,omitempty"`
	// Placements lists the position of every musician directly.
	Placements []geom.Point `json:"placements,omitempty"`
}

// UnmarshalJSON also accepts a bare array of points.
func (o *Output) UnmarshalJSON(b []byte) error {
	if t := bytes.TrimSpace(b); len(t) > 0 && t[0] == '[' {
		o.Assignment = nil
		return json.Unmarshal(t, &o.Placements)
	}
	type plain Output
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*o = Output(p)
	return nil
}

// Export builds the assignment input from sol's positions.
func Export(task *model.Task, sol model.Solution) (Input, error) {
	if err := score.Validate(task, sol); err != nil {
		return Input{}, err
	}
	vis := visibility.Compute(task, sol)
	n := len(task.Musicians)
	matrix := make([][]int64, n)
	var g errgroup.Group
	for i := range matrix {
		g.Go(func() error {
			row := make([]int64, n)
			inst := task.Musicians[i]
			for p, pos := range sol.Placements {
				for a, att := range task.Attendees {
					if vis.Visible(a, p) {
						row[p] += score.PerContribution(att, inst, pos)
					}
				}
			}
			matrix[i] = row
			return nil
		})
	}
	_ = g.Wait()
	return Input{
		Positions: append([]geom.Point(nil), sol.Placements...),
		Musicians: append([]int(nil), task.Musicians...),
		Matrix:    matrix,
	}, nil
}

// Apply builds a solution from the solver output, validates it and assigns
// optimal volumes. It returns the solution and its score.
func Apply(task *model.Task, in Input, out Output) (model.Solution, int64, error) {
	var placements []geom.Point
	switch {
	case out.Assignment != nil:
		if len(out.Assignment) != len(task.Musicians) {
			return model.Solution{}, 0, fmt.Errorf("assignment has %d entries for %d musicians", len(out.Assignment), len(task.Musicians))
		}
		used := make([]bool, len(in.Positions))
		placements = make([]geom.Point, len(out.Assignment))
		for i, p := range out.Assignment {
			if p < 0 || p >= len(in.Positions) {
				return model.Solution{}, 0, fmt.Errorf("musician %d: position %d out of range", i, p)
			}
			if used[p] {
				return model.Solution{}, 0, fmt.Errorf("musician %d: position %d assigned twice", i, p)
			}
			used[p] = true
			placements[i] = in.Positions[p]
		}
	case out.Placements != nil:
		placements = append([]geom.Point(nil), out.Placements...)
	default:
		return model.Solution{}, 0, fmt.Errorf("empty assignment output")
	}

	sol := model.NewSolution(placements)
	if err := score.Validate(task, sol); err != nil {
		return model.Solution{}, 0, err
	}
	vis := visibility.Compute(task, sol)
	sol.Volumes = score.OptimalVolumes(task, sol, vis)
	s, err := score.Score(task, sol, vis)
	if err != nil {
		return model.Solution{}, 0, err
	}
	return sol, s, nil
}

// Value sums the matrix entries selected by an assignment.
func (in Input) Value(assignment []int) int64 {
	var v int64
	for i, p := range assignment {
		v += in.Matrix[i][p]
	}
	return v
}
