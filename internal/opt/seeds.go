package opt

import (
	"fmt"
	"math"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/score"
)

// lattice is the seed and perimeter spacing. The slack keeps neighbours at
// or beyond MinSeparation after rounding.
const lattice = model.MinSeparation + 1e-6

// Spreads are the hex spacing multipliers SpreadSeed tries, loosest first.
var Spreads = []float64{5, 3, 2, 1.5, 1.1, 1.05, 1.01, 1.005, 1.001, 1}

// GridSeed packs the musicians on a square lattice from the bottom-left corner.
func GridSeed(task *model.Task) (model.Solution, error) {
	var ps []geom.Point
	for y := task.StageBottom() + model.MusicianRadius; y <= task.StageTop()-model.MusicianRadius && len(ps) < len(task.Musicians); y += lattice {
		for x := task.StageLeft() + model.MusicianRadius; x <= task.StageRight()-model.MusicianRadius && len(ps) < len(task.Musicians); x += lattice {
			ps = append(ps, geom.Point{X: x, Y: y})
		}
	}
	return finishSeed(task, ps, "grid")
}

// HexSeed packs the musicians on a hexagonal lattice whose spacing is
// MinSeparation times spread.
func HexSeed(task *model.Task, spread float64) (model.Solution, error) {
	return finishSeed(task, hexPoints(task, spread, len(task.Musicians)), fmt.Sprintf("hex(%g)", spread))
}

func hexPoints(task *model.Task, spread float64, limit int) []geom.Point {
	step := lattice * math.Max(1, spread)
	rowStep := step*math.Sin(math.Pi/3) + 1e-6
	var ps []geom.Point
	row := 0
	for y := task.StageBottom() + model.MusicianRadius; y <= task.StageTop()-model.MusicianRadius && len(ps) < limit; y += rowStep {
		x0 := task.StageLeft() + model.MusicianRadius
		if row%2 == 1 {
			x0 += step / 2
		}
		for x := x0; x <= task.StageRight()-model.MusicianRadius && len(ps) < limit; x += step {
			ps = append(ps, geom.Point{X: x, Y: y})
		}
		row++
	}
	return ps
}

// SpreadSeed uses the loosest hex lattice that still fits every musician.
func SpreadSeed(task *model.Task) (model.Solution, error) {
	for _, s := range Spreads {
		if ps := hexPoints(task, s, len(task.Musicians)); len(ps) == len(task.Musicians) {
			return finishSeed(task, ps, fmt.Sprintf("spread(%g)", s))
		}
	}
	return model.Solution{}, fmt.Errorf("spread seed: %d musicians do not fit: %w", len(task.Musicians), score.ErrNoFeasibleCandidate)
}

// NarrowSeed fills the stage perimeter first, where musicians are closest to
// the audience, and continues on an inner grid.
func NarrowSeed(task *model.Task) (model.Solution, error) {
	ps := BorderPoints(task)
	if len(ps) > len(task.Musicians) {
		ps = ps[:len(task.Musicians)]
	}
	for y := task.StageBottom() + model.MusicianRadius + lattice; y <= task.StageTop()-model.MusicianRadius && len(ps) < len(task.Musicians); y += lattice {
		for x := task.StageLeft() + model.MusicianRadius + lattice; x <= task.StageRight()-model.MusicianRadius && len(ps) < len(task.Musicians); x += lattice {
			p := geom.Point{X: x, Y: y}
			if isFree(ps, p, -1) {
				ps = append(ps, p)
			}
		}
	}
	return finishSeed(task, ps, "narrow")
}

// Seed builds an initial solution by name: grid, hex, spread or narrow.
func Seed(task *model.Task, name string) (model.Solution, error) {
	switch name {
	case "grid", "dummy":
		return GridSeed(task)
	case "hex":
		return HexSeed(task, 1)
	case "spread", "":
		return SpreadSeed(task)
	case "narrow":
		return NarrowSeed(task)
	default:
		return model.Solution{}, fmt.Errorf("unknown seed %q", name)
	}
}

func finishSeed(task *model.Task, ps []geom.Point, name string) (model.Solution, error) {
	if len(ps) < len(task.Musicians) {
		return model.Solution{}, fmt.Errorf("%s seed: room for %d of %d musicians: %w", name, len(ps), len(task.Musicians), score.ErrNoFeasibleCandidate)
	}
	return model.NewSolution(ps), nil
}
