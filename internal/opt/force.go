package opt

import (
	"math"
	"math/rand"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/score"
	"github.com/SlNPacifist/icfpc2023/internal/visibility"
)

// relaxBase scales the inverse-square repulsion between musicians.
const relaxBase = 1e7

// Force moves every musician along the sum of an attraction towards the
// attendees that hear it and a repulsion from the other musicians.
type Force struct {
	Steps        int     `yaml:"steps" json:"steps"`
	RefreshEvery int     `yaml:"refresh_every" json:"refresh_every"`
	Attract      float64 `yaml:"attract" json:"attract"`
	AttractDecay float64 `yaml:"attract_decay" json:"attract_decay"`
	Relax        float64 `yaml:"relax" json:"relax"`
	RelaxDecay   float64 `yaml:"relax_decay" json:"relax_decay"`
	// MaxStep caps the displacement of the fastest musician in one step.
	MaxStep float64 `yaml:"max_step" json:"max_step"`
}

// DefaultForce returns the tuned defaults.
func DefaultForce() Force {
	return Force{
		Steps:        25,
		RefreshEvery: 5,
		Attract:      1e-7,
		AttractDecay: 0.999,
		Relax:        0.5e-7,
		RelaxDecay:   0.999,
		MaxStep:      5,
	}
}

func (Force) Kind() MoveKind { return KindForce }

func (f Force) Apply(task *model.Task, c Candidate, _ *rand.Rand) (Candidate, error) {
	m := len(c.Solution.Placements)
	if m == 0 || f.Steps <= 0 {
		return c, nil
	}
	sol := c.Solution.Clone()
	vis := c.Vis
	refresh := max(1, f.RefreshEvery)
	attract, relax := f.Attract, f.Relax
	forces := make([]geom.Vector, m)
	for step := 0; step < f.Steps; step++ {
		if step > 0 && step%refresh == 0 {
			vis = visibility.Compute(task, sol)
		}
		maxNorm := 0.0
		for i := range forces {
			forces[i] = attraction(task, sol, vis, i).Scale(attract).Add(repulsion(sol.Placements, i).Scale(relax))
			maxNorm = math.Max(maxNorm, forces[i].Norm())
		}
		if maxNorm == 0 || math.IsNaN(maxNorm) || math.IsInf(maxNorm, 0) {
			break
		}
		scale := 1.0
		if maxNorm > f.MaxStep {
			scale = f.MaxStep / maxNorm
		}
		for i, fv := range forces {
			next := task.ClampToStage(sol.Placements[i].Add(fv.Scale(scale)))
			if isFree(sol.Placements, next, i) {
				sol.Placements[i] = next
			}
		}
		attract *= f.AttractDecay
		relax *= f.RelaxDecay
	}
	return NewCandidate(task, sol), nil
}

// attraction pulls musician i towards every attendee that hears it, weighted
// by the contribution that attendee receives. Negative tastes push away.
func attraction(task *model.Task, sol model.Solution, vis *visibility.Visibility, i int) geom.Vector {
	var f geom.Vector
	pos := sol.Placements[i]
	for a, att := range task.Attendees {
		if !vis.Visible(a, i) {
			continue
		}
		pc := score.PerContribution(att, task.Musicians[i], pos)
		f = f.Add(att.Pos().Sub(pos).Scale(float64(pc)))
	}
	return f
}

// repulsion pushes musician i away from the others with inverse-square weight.
func repulsion(placements []geom.Point, i int) geom.Vector {
	var f geom.Vector
	for j, q := range placements {
		if j == i {
			continue
		}
		d := q.Sub(placements[i])
		n2 := d.Norm2()
		if n2 == 0 {
			continue
		}
		f = f.Add(d.Scale(-relaxBase / n2))
	}
	return f
}
