package opt

import (
	"math/rand"

	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/score"
)

// Swap exchanges the positions and volumes of two musicians playing
// different instruments.
type Swap struct {
	Attempts int `yaml:"attempts" json:"attempts"`
}

func (Swap) Kind() MoveKind { return KindSwap }

func (s Swap) Apply(task *model.Task, c Candidate, rng *rand.Rand) (Candidate, error) {
	m := len(c.Solution.Placements)
	if m < 2 || m != len(task.Musicians) {
		return c, nil
	}
	for attempt := 0; attempt < max(1, s.Attempts); attempt++ {
		i, j := rng.Intn(m), rng.Intn(m)
		if task.Musicians[i] == task.Musicians[j] {
			continue
		}
		sol := c.Solution.Clone()
		sol.Placements[i], sol.Placements[j] = sol.Placements[j], sol.Placements[i]
		sol.Volumes[i], sol.Volumes[j] = sol.Volumes[j], sol.Volumes[i]
		return Candidate{Solution: sol, Vis: c.Vis.SwapMusicians(i, j)}, nil
	}
	return c, nil
}

// Relocate moves one random musician to a random free point of the stage.
type Relocate struct {
	Attempts int `yaml:"attempts" json:"attempts"`
}

func (Relocate) Kind() MoveKind { return KindRelocate }

func (r Relocate) Apply(task *model.Task, c Candidate, rng *rand.Rand) (Candidate, error) {
	m := len(c.Solution.Placements)
	if m == 0 {
		return c, nil
	}
	k := rng.Intn(m)
	p, err := RandomValidPoint(task, c.Solution.Placements, k, max(1, r.Attempts), rng)
	if err != nil {
		return c, err
	}
	sol := c.Solution.Clone()
	sol.Placements[k] = p
	return NewCandidate(task, sol), nil
}

// Volumes sets every musician to full or zero volume depending on the sign
// of its contribution.
type Volumes struct{}

func (Volumes) Kind() MoveKind { return KindVolumes }

func (Volumes) Apply(task *model.Task, c Candidate, _ *rand.Rand) (Candidate, error) {
	if len(c.Solution.Placements) != len(task.Musicians) {
		return c, nil
	}
	sol := c.Solution.Clone()
	sol.Volumes = score.OptimalVolumes(task, sol, c.Vis)
	return Candidate{Solution: sol, Vis: c.Vis}, nil
}
