package visibility

import (
	"golang.org/x/sync/errgroup"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
)

// Exact tests every line of sight against every occluder. It costs
// O(m*m*n) and serves as the reference for Sweep.
func Exact(task *model.Task, sol model.Solution) *Visibility {
	m, n := len(sol.Placements), len(task.Attendees)
	vis := newVisibility(n, m)
	if m == 0 || n == 0 {
		return vis
	}
	chunk := (n + workers() - 1) / workers()
	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			var obs []obstacle
			for k, p := range sol.Placements {
				obs = obstaclesFor(task, sol.Placements, k, obs)
				for a := lo; a < hi; a++ {
					seg := geom.Segment{From: p, To: task.Attendees[a].Pos()}
					visible := true
					for _, o := range obs {
						if blocks(o, seg) {
							visible = false
							break
						}
					}
					vis.cells[a*m+k] = visible
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return vis
}
