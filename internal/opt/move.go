// Package opt holds the placement moves and the search that chains them.
package opt

import (
	"fmt"
	"math/rand"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/score"
	"github.com/SlNPacifist/icfpc2023/internal/visibility"
)

// MinScore stands in for the score of a candidate that cannot be scored.
const MinScore int64 = -1_000_000_000_000

// MoveKind enumerates the available moves.
type MoveKind int

const (
	KindGreedy MoveKind = iota
	KindForce
	KindSwap
	KindRelocate
	KindBorder
	KindGenetic
	KindPhysics
	KindVolumes
)

var kindNames = [...]string{"greedy", "force", "swap", "relocate", "border", "genetic", "physics", "volumes"}

func (k MoveKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("move(%d)", int(k))
}

// ParseMoveKind maps a configuration name to its kind.
func ParseMoveKind(name string) (MoveKind, error) {
	for i, n := range kindNames {
		if n == name {
			return MoveKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown move %q", name)
}

// Candidate pairs a solution with the visibility of its placements.
type Candidate struct {
	Solution model.Solution
	Vis      *visibility.Visibility
}

// NewCandidate computes the visibility for sol.
func NewCandidate(task *model.Task, sol model.Solution) Candidate {
	return Candidate{Solution: sol, Vis: visibility.Compute(task, sol)}
}

// Move transforms a candidate. Implementations never modify c and return it
// unchanged when they have nothing to offer. A non-nil error is informational
// (typically score.ErrNoFeasibleCandidate); the returned candidate is still usable.
type Move interface {
	Kind() MoveKind
	Apply(task *model.Task, c Candidate, rng *rand.Rand) (Candidate, error)
}

// Evaluate scores c, mapping constraint violations to MinScore.
func Evaluate(task *model.Task, c Candidate) int64 {
	s, err := score.Score(task, c.Solution, c.Vis)
	if err != nil {
		return MinScore
	}
	return s
}

// isFree reports whether p keeps MinSeparation from every placement except skip.
func isFree(placements []geom.Point, p geom.Point, skip int) bool {
	const min2 = model.MinSeparation * model.MinSeparation
	for j, q := range placements {
		if j != skip && geom.Dist2(p, q) < min2 {
			return false
		}
	}
	return true
}

// randomStagePoint samples uniformly from the stage inset.
func randomStagePoint(task *model.Task, rng *rand.Rand) geom.Point {
	return geom.Point{
		X: task.StageLeft() + model.MusicianRadius + rng.Float64()*max(0, task.InnerWidth()),
		Y: task.StageBottom() + model.MusicianRadius + rng.Float64()*max(0, task.InnerHeight()),
	}
}

// RandomValidPoint samples the stage inset until it finds a point clear of
// every placement except skip.
func RandomValidPoint(task *model.Task, placements []geom.Point, skip, attempts int, rng *rand.Rand) (geom.Point, error) {
	for i := 0; i < attempts; i++ {
		p := randomStagePoint(task, rng)
		if isFree(placements, p, skip) {
			return p, nil
		}
	}
	return geom.Point{}, score.ErrNoFeasibleCandidate
}

// contribution sums the raw contribution of instrument at pos over the
// attendees that see slot k.
func contribution(task *model.Task, vis *visibility.Visibility, k, instrument int, pos geom.Point) int64 {
	var sum int64
	for a, att := range task.Attendees {
		if vis.Visible(a, k) {
			sum += score.PerContribution(att, instrument, pos)
		}
	}
	return sum
}
