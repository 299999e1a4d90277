package opt

import (
	"math"
	"math/rand"

	"github.com/jakecoffman/cp"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/score"
	"github.com/SlNPacifist/icfpc2023/internal/visibility"
)

// Physics simulates the musicians as colliding disks inside the stage walls,
// driven by the same attraction as Force, and keeps the settled layout when
// it is valid.
type Physics struct {
	Steps        int     `yaml:"steps" json:"steps"`
	Dt           float64 `yaml:"dt" json:"dt"`
	RefreshEvery int     `yaml:"refresh_every" json:"refresh_every"`
	// MaxForce is the force applied to the most strongly attracted musician.
	MaxForce float64 `yaml:"max_force" json:"max_force"`
	Damping  float64 `yaml:"damping" json:"damping"`
}

// DefaultPhysics returns the tuned defaults.
func DefaultPhysics() Physics {
	return Physics{Steps: 60, Dt: 0.1, RefreshEvery: 10, MaxForce: 100, Damping: 0.2}
}

func (Physics) Kind() MoveKind { return KindPhysics }

func (p Physics) Apply(task *model.Task, c Candidate, _ *rand.Rand) (Candidate, error) {
	m := len(c.Solution.Placements)
	if m == 0 || m != len(task.Musicians) || p.Steps <= 0 || p.Dt <= 0 {
		return c, nil
	}
	space := cp.NewSpace()
	space.SetGravity(cp.Vector{})
	space.SetDamping(p.Damping)
	space.Iterations = 20

	l, r := task.StageLeft(), task.StageRight()
	b, t := task.StageBottom(), task.StageTop()
	corners := []cp.Vector{{X: l, Y: b}, {X: r, Y: b}, {X: r, Y: t}, {X: l, Y: t}}
	for i := range corners {
		wall := space.AddShape(cp.NewSegment(space.StaticBody, corners[i], corners[(i+1)%4], 0))
		wall.SetElasticity(0)
		wall.SetFriction(0)
	}

	bodies := make([]*cp.Body, m)
	for i, pos := range c.Solution.Placements {
		body := space.AddBody(cp.NewBody(1, cp.MomentForCircle(1, 0, model.MusicianRadius, cp.Vector{})))
		body.SetPosition(cp.Vector{X: pos.X, Y: pos.Y})
		disk := space.AddShape(cp.NewCircle(body, model.MusicianRadius, cp.Vector{}))
		disk.SetElasticity(0)
		disk.SetFriction(0)
		bodies[i] = body
	}

	sol := c.Solution.Clone()
	vis := c.Vis
	refresh := max(1, p.RefreshEvery)
	forces := make([]geom.Vector, m)
	for step := 0; step < p.Steps; step++ {
		for i, body := range bodies {
			pos := body.Position()
			sol.Placements[i] = geom.Point{X: pos.X, Y: pos.Y}
		}
		if step > 0 && step%refresh == 0 {
			vis = visibility.Compute(task, sol)
		}
		maxNorm := 0.0
		for i := range forces {
			forces[i] = attraction(task, sol, vis, i)
			maxNorm = math.Max(maxNorm, forces[i].Norm())
		}
		if maxNorm == 0 || math.IsNaN(maxNorm) || math.IsInf(maxNorm, 0) {
			break
		}
		for i, body := range bodies {
			f := forces[i].Scale(p.MaxForce / maxNorm)
			body.SetForce(cp.Vector{X: f.X, Y: f.Y})
		}
		space.Step(p.Dt)
	}

	for i, body := range bodies {
		pos := body.Position()
		sol.Placements[i] = task.ClampToStage(geom.Point{X: pos.X, Y: pos.Y})
	}
	if score.Validate(task, sol) != nil {
		return c, nil
	}
	return NewCandidate(task, sol), nil
}
