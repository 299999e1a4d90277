// Package visibility computes which musicians each attendee can hear.
//
// A Visibility is an immutable snapshot for one placement. Anything that moves
// a musician must build a new one.
package visibility

import (
	"runtime"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
)

// exactLimit bounds m*m*n below which Compute uses the exact oracle.
const exactLimit = 200_000

// Visibility is a row-major attendee x musician matrix.
type Visibility struct {
	attendees int
	musicians int
	cells     []bool
}

func newVisibility(attendees, musicians int) *Visibility {
	return &Visibility{attendees: attendees, musicians: musicians, cells: make([]bool, attendees*musicians)}
}

// Visible reports whether attendee a hears musician k.
func (v *Visibility) Visible(a, k int) bool { return v.cells[a*v.musicians+k] }

func (v *Visibility) Attendees() int { return v.attendees }
func (v *Visibility) Musicians() int { return v.musicians }

// Equal reports whether both matrices have the same shape and cells.
func (v *Visibility) Equal(o *Visibility) bool {
	if v.attendees != o.attendees || v.musicians != o.musicians {
		return false
	}
	for i := range v.cells {
		if v.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

// SwapMusicians returns a copy with columns i and j exchanged. It matches a
// recomputation after swapping the placements of i and j.
func (v *Visibility) SwapMusicians(i, j int) *Visibility {
	src := make([]int, v.musicians)
	for k := range src {
		src[k] = k
	}
	src[i], src[j] = j, i
	return v.PermuteMusicians(src)
}

// PermuteMusicians returns a copy whose column k is column src[k] of v. Valid
// whenever the new placement of k equals the old placement of src[k].
func (v *Visibility) PermuteMusicians(src []int) *Visibility {
	out := newVisibility(v.attendees, v.musicians)
	for a := 0; a < v.attendees; a++ {
		row := v.cells[a*v.musicians : (a+1)*v.musicians]
		dst := out.cells[a*v.musicians : (a+1)*v.musicians]
		for k, s := range src {
			dst[k] = row[s]
		}
	}
	return out
}

// VisibleCount returns how many attendees hear musician k.
func (v *Visibility) VisibleCount(k int) int {
	n := 0
	for a := 0; a < v.attendees; a++ {
		if v.Visible(a, k) {
			n++
		}
	}
	return n
}

// Compute picks the exact oracle for small inputs and the sweep otherwise.
func Compute(task *model.Task, sol model.Solution) *Visibility {
	m, n := len(sol.Placements), len(task.Attendees)
	if m*m*n <= exactLimit {
		return Exact(task, sol)
	}
	return Sweep(task, sol)
}

// obstacle is any disk that can occlude a line of sight.
type obstacle struct {
	center geom.Point
	radius float64
}

// obstaclesFor lists every occluder for musician k: the other musicians and the pillars.
func obstaclesFor(task *model.Task, placements []geom.Point, k int, buf []obstacle) []obstacle {
	buf = buf[:0]
	for j, p := range placements {
		if j != k {
			buf = append(buf, obstacle{center: p, radius: model.BlockingRadius})
		}
	}
	for _, p := range task.Pillars {
		buf = append(buf, obstacle{center: p.Center, radius: p.Radius})
	}
	return buf
}

func blocks(o obstacle, s geom.Segment) bool {
	return s.DistToPoint(o.center) < o.radius
}

func workers() int { return runtime.GOMAXPROCS(0) }
