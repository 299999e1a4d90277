package opt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/score"
)

// Border tries to move the weakest musician of every instrument onto a free
// point of the stage perimeter and keeps the best strict improvement.
type Border struct {
	// MaxCandidates bounds the perimeter points tried per musician; 0 tries all.
	MaxCandidates int `yaml:"max_candidates" json:"max_candidates"`
}

func (Border) Kind() MoveKind { return KindBorder }

// BorderPoints returns the inset perimeter sampled every MinSeparation,
// starting from the bottom-left corner and going counter-clockwise.
func BorderPoints(task *model.Task) []geom.Point {
	left, right := task.StageLeft()+model.MusicianRadius, task.StageRight()-model.MusicianRadius
	bottom, top := task.StageBottom()+model.MusicianRadius, task.StageTop()-model.MusicianRadius
	if left > right || bottom > top {
		return nil
	}
	var out []geom.Point
	add := func(p geom.Point) {
		if len(out) == 0 || geom.Dist2(out[0], p) >= model.MinSeparation*model.MinSeparation {
			out = append(out, p)
		}
	}
	for x := left; x <= right; x += lattice {
		add(geom.Point{X: x, Y: bottom})
	}
	for y := bottom + lattice; y <= top; y += lattice {
		add(geom.Point{X: right, Y: y})
	}
	for x := right - lattice; x >= left && top-bottom >= lattice; x -= lattice {
		add(geom.Point{X: x, Y: top})
	}
	for y := top - lattice; y > bottom && right-left >= lattice; y -= lattice {
		add(geom.Point{X: left, Y: y})
	}
	return out
}

func (b Border) Apply(task *model.Task, c Candidate, rng *rand.Rand) (Candidate, error) {
	if len(c.Solution.Placements) != len(task.Musicians) || len(task.Musicians) == 0 {
		return c, nil
	}
	breakdown, err := score.ScoreBreakdown(task, c.Solution, c.Vis)
	if err != nil {
		return c, nil
	}
	var free []geom.Point
	for _, p := range BorderPoints(task) {
		if isFree(c.Solution.Placements, p, -1) {
			free = append(free, p)
		}
	}
	if len(free) == 0 {
		return c, fmt.Errorf("border: no free perimeter point for %d musicians: %w", len(task.Musicians), score.ErrNoFeasibleCandidate)
	}
	if b.MaxCandidates > 0 && len(free) > b.MaxCandidates {
		rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
		free = free[:b.MaxCandidates]
	}

	best, bestScore := c, breakdown.Total
	for _, group := range task.MusicianByInstrument() {
		weakest, weakestScore := -1, int64(math.MaxInt64)
		for _, k := range group {
			if breakdown.PerMusician[k] < weakestScore {
				weakest, weakestScore = k, breakdown.PerMusician[k]
			}
		}
		if weakest < 0 {
			continue
		}
		for _, p := range free {
			if !isFree(c.Solution.Placements, p, weakest) {
				continue
			}
			sol := c.Solution.Clone()
			sol.Placements[weakest] = p
			cand := NewCandidate(task, sol)
			if s := Evaluate(task, cand); s > bestScore {
				best, bestScore = cand, s
			}
		}
	}
	return best, nil
}
