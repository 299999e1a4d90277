package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/score"
	"github.com/SlNPacifist/icfpc2023/internal/visibility"
)

// Genetic hands the placement to the mayfly optimizer. A genome holds two
// stage-relative coordinates in [0,1] per musician.
type Genetic struct {
	Generations int `yaml:"generations" json:"generations"`
	Population  int `yaml:"population" json:"population"`
	// Jitter perturbs the seeded copies of the current placement, in genome units.
	Jitter float64 `yaml:"jitter" json:"jitter"`
}

// DefaultGenetic returns the tuned defaults.
func DefaultGenetic() Genetic {
	return Genetic{Generations: 20, Population: 10, Jitter: 0.01}
}

func (Genetic) Kind() MoveKind { return KindGenetic }

// encode maps placements into genome space.
func encode(task *model.Task, ps []geom.Point) []float64 {
	w, h := task.InnerWidth(), task.InnerHeight()
	out := make([]float64, 2*len(ps))
	for i, p := range ps {
		out[2*i] = unit((p.X - task.StageLeft() - model.MusicianRadius) / w)
		out[2*i+1] = unit((p.Y - task.StageBottom() - model.MusicianRadius) / h)
	}
	return out
}

// decode is the inverse of encode.
func decode(task *model.Task, genome []float64) []geom.Point {
	out := make([]geom.Point, len(genome)/2)
	for i := range out {
		out[i] = geom.Point{
			X: task.StageLeft() + model.MusicianRadius + unit(genome[2*i])*task.InnerWidth(),
			Y: task.StageBottom() + model.MusicianRadius + unit(genome[2*i+1])*task.InnerHeight(),
		}
	}
	return out
}

func unit(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

func (g Genetic) Apply(task *model.Task, c Candidate, rng *rand.Rand) (Candidate, error) {
	m := len(c.Solution.Placements)
	if m == 0 || m != len(task.Musicians) || task.InnerWidth() <= 0 || task.InnerHeight() <= 0 {
		return c, nil
	}
	startScore := Evaluate(task, c)
	best, bestScore := c, startScore

	objective := func(genome []float64) float64 {
		sol := model.Solution{Placements: decode(task, genome), Volumes: c.Solution.Volumes}
		if score.Validate(task, sol) != nil {
			return -float64(MinScore)
		}
		cand := Candidate{Solution: sol, Vis: visibility.Compute(task, sol)}
		s := Evaluate(task, cand)
		if s > bestScore {
			best, bestScore = Candidate{Solution: sol.Clone(), Vis: cand.Vis}, s
		}
		return -float64(s)
	}

	pop := max(2, g.Population)
	seed := rng.Int63()
	cfg := mayfly.NewDefaultConfig()
	cfg.ObjectiveFunc = objective
	cfg.ProblemSize = 2 * m
	cfg.LowerBound = 0
	cfg.UpperBound = 1
	cfg.MaxIterations = max(1, g.Generations)
	cfg.NPop = pop
	cfg.NPopF = pop
	cfg.MaxWorkers = 1
	cfg.Seed = &seed

	base := encode(task, c.Solution.Placements)
	males := make([][]float64, pop)
	females := make([][]float64, pop)
	for i := range males {
		males[i] = jitter(base, g.Jitter*float64(min(i, 1)), rng)
		females[i] = jitter(base, g.Jitter, rng)
	}
	if _, err := mayfly.OptimizeContext(context.Background(), cfg, mayfly.WithInitialPopulation(males, females)); err != nil {
		return c, fmt.Errorf("genetic: %w", err)
	}
	if bestScore > startScore {
		return best, nil
	}
	return c, nil
}

// jitter copies genome with uniform noise of the given amplitude, clamped to [0,1].
func jitter(genome []float64, amp float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(genome))
	for i, v := range genome {
		out[i] = unit(v + (rng.Float64()*2-1)*amp)
	}
	return out
}
