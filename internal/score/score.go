// Package score validates placements and evaluates the objective.
package score

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/visibility"
)

// Validate checks the placement count, stage containment, volume range and
// minimum separation.
func Validate(task *model.Task, sol model.Solution) error {
	if len(sol.Placements) != len(task.Musicians) {
		return &ConstraintViolation{Kind: StructuralMismatch, Musician: -1, Other: -1,
			Detail: fmt.Sprintf("%d placements for %d musicians", len(sol.Placements), len(task.Musicians))}
	}
	if len(sol.Volumes) != len(sol.Placements) {
		return &ConstraintViolation{Kind: StructuralMismatch, Musician: -1, Other: -1,
			Detail: fmt.Sprintf("%d volumes for %d placements", len(sol.Volumes), len(sol.Placements))}
	}
	for i, p := range sol.Placements {
		if !task.MusicianInStage(p) {
			return &ConstraintViolation{Kind: OutOfBounds, Musician: i, Other: -1,
				Detail: fmt.Sprintf("(%g, %g) is outside the stage inset", p.X, p.Y)}
		}
	}
	for i, v := range sol.Volumes {
		if v < 0 || v > model.MaxVolume || math.IsNaN(v) {
			return &ConstraintViolation{Kind: InvalidVolume, Musician: i, Other: -1,
				Detail: fmt.Sprintf("volume %g not in [0, %g]", v, model.MaxVolume)}
		}
	}
	if i, j, ok := closePair(sol.Placements); ok {
		return &ConstraintViolation{Kind: Overlap, Musician: i, Other: j,
			Detail: fmt.Sprintf("distance %g < %g", geom.Dist(sol.Placements[i], sol.Placements[j]), model.MinSeparation)}
	}
	return nil
}

// closePair finds two placements closer than MinSeparation with a sweep along x.
func closePair(ps []geom.Point) (int, int, bool) {
	idx := make([]int, len(ps))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return ps[idx[a]].X < ps[idx[b]].X })
	const min2 = model.MinSeparation * model.MinSeparation
	for a := range idx {
		for b := a + 1; b < len(idx) && ps[idx[b]].X-ps[idx[a]].X < model.MinSeparation; b++ {
			if geom.Dist2(ps[idx[a]], ps[idx[b]]) < min2 {
				i, j := idx[a], idx[b]
				if i > j {
					i, j = j, i
				}
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// PerContribution is the raw happiness attendee att gets from instrument
// played at pos, before volume and closeness.
func PerContribution(att model.Attendee, instrument int, pos geom.Point) int64 {
	d2 := geom.Dist2(att.Pos(), pos)
	return int64(math.Ceil(att.Tastes[instrument] * model.ScoreScale / d2))
}

// Closeness returns the amplification factor per musician. It is 1 for every
// musician unless the task has pillars.
func Closeness(task *model.Task, sol model.Solution) []float64 {
	out := make([]float64, len(sol.Placements))
	for i := range out {
		out[i] = 1
	}
	if len(task.Pillars) == 0 {
		return out
	}
	for _, group := range task.MusicianByInstrument() {
		for _, i := range group {
			for _, j := range group {
				if i != j && i < len(sol.Placements) && j < len(sol.Placements) {
					out[i] += 1 / geom.Dist(sol.Placements[i], sol.Placements[j])
				}
			}
		}
	}
	return out
}

// Breakdown keeps the partial sums behind a score.
type Breakdown struct {
	Total       int64   `json:"total"`
	PerAttendee []int64 `json:"perAttendee"`
	PerMusician []int64 `json:"perMusician"`
}

// Score validates sol and returns its objective value.
func Score(task *model.Task, sol model.Solution, vis *visibility.Visibility) (int64, error) {
	b, err := evaluate(task, sol, vis, false)
	if err != nil {
		return 0, err
	}
	return b.Total, nil
}

// ScoreBreakdown is Score with per-attendee and per-musician sums retained.
func ScoreBreakdown(task *model.Task, sol model.Solution, vis *visibility.Visibility) (Breakdown, error) {
	return evaluate(task, sol, vis, true)
}

func evaluate(task *model.Task, sol model.Solution, vis *visibility.Visibility, detailed bool) (Breakdown, error) {
	if err := Validate(task, sol); err != nil {
		return Breakdown{}, err
	}
	m, n := len(sol.Placements), len(task.Attendees)
	if vis.Musicians() != m || vis.Attendees() != n {
		return Breakdown{}, &ConstraintViolation{Kind: StructuralMismatch, Musician: -1, Other: -1,
			Detail: fmt.Sprintf("visibility is %dx%d, want %dx%d", vis.Attendees(), vis.Musicians(), n, m)}
	}
	closeness := Closeness(task, sol)
	b := Breakdown{}
	if detailed {
		b.PerAttendee = make([]int64, n)
	}
	workers := runtime.GOMAXPROCS(0)
	chunk := max(1, (n+workers-1)/workers)
	nChunks := (n + chunk - 1) / chunk
	totals := make([]int64, nChunks)
	var perMusician [][]int64
	if detailed {
		perMusician = make([][]int64, nChunks)
	}
	var g errgroup.Group
	for c := 0; c < nChunks; c++ {
		g.Go(func() error {
			var pm []int64
			if detailed {
				pm = make([]int64, m)
				perMusician[c] = pm
			}
			for a := c * chunk; a < min(n, (c+1)*chunk); a++ {
				att := task.Attendees[a]
				var row int64
				for k := 0; k < m; k++ {
					if !vis.Visible(a, k) {
						continue
					}
					pc := PerContribution(att, task.Musicians[k], sol.Placements[k])
					term := int64(math.Ceil(float64(pc) * sol.Volumes[k] * closeness[k]))
					row += term
					if detailed {
						pm[k] += term
					}
				}
				if detailed {
					b.PerAttendee[a] = row
				}
				totals[c] += row
			}
			return nil
		})
	}
	_ = g.Wait()
	for _, t := range totals {
		b.Total += t
	}
	if detailed {
		b.PerMusician = make([]int64, m)
		for _, pm := range perMusician {
			for k, v := range pm {
				b.PerMusician[k] += v
			}
		}
	}
	return b, nil
}

// Potential is an optimistic ranking bound for a task: every musician is
// assumed to stand at the stage point nearest each attendee, at full volume,
// with nothing in the way.
func Potential(task *model.Task) int64 {
	var total int64
	for _, att := range task.Attendees {
		best := task.ClampToStage(att.Pos())
		for _, instrument := range task.Musicians {
			if pc := PerContribution(att, instrument, best); pc > 0 {
				total += int64(float64(pc) * model.MaxVolume)
			}
		}
	}
	return total
}

// OptimalVolumes returns full volume for musicians whose visible contribution
// is positive and zero for the rest.
func OptimalVolumes(task *model.Task, sol model.Solution, vis *visibility.Visibility) []float64 {
	closeness := Closeness(task, sol)
	out := make([]float64, len(sol.Placements))
	for k := range sol.Placements {
		var sum int64
		for a, att := range task.Attendees {
			if vis.Visible(a, k) {
				sum += int64(math.Ceil(float64(PerContribution(att, task.Musicians[k], sol.Placements[k])) * closeness[k]))
			}
		}
		if sum > 0 {
			out[k] = model.MaxVolume
		}
	}
	return out
}
