package visibility

import (
	"math"
	"sort"

	"github.com/google/btree"
	"golang.org/x/sync/errgroup"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
)

type eventKind uint8

const (
	enter eventKind = iota
	exit
)

type event struct {
	angle float64
	kind  eventKind
	id    int
}

// active is an occluder currently swept over, ordered by (dist, id).
type active struct {
	dist float64
	id   int
}

func activeLess(a, b active) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.id < b.id
}

type attendeeAngle struct {
	angle float64
	dist  float64
	idx   int
}

// sweeper holds the scratch state of one musician's sweep.
type sweeper struct {
	task   *model.Task
	obs    []obstacle
	dists  []float64
	events []event
	order  []attendeeAngle
	set    *btree.BTreeG[active]
	maxR   float64
}

func newSweeper(task *model.Task) *sweeper {
	return &sweeper{task: task, set: btree.NewG[active](16, activeLess)}
}

// Sweep computes visibility with one angular sweep per musician, in parallel
// over musicians. Each sweep writes only its own column.
func Sweep(task *model.Task, sol model.Solution) *Visibility {
	m, n := len(sol.Placements), len(task.Attendees)
	vis := newVisibility(n, m)
	if m == 0 || n == 0 {
		return vis
	}
	var g errgroup.Group
	g.SetLimit(workers())
	next := make(chan int, m)
	for k := 0; k < m; k++ {
		next <- k
	}
	close(next)
	for w := 0; w < min(workers(), m); w++ {
		g.Go(func() error {
			sw := newSweeper(task)
			for k := range next {
				sw.run(sol.Placements, k, vis)
			}
			return nil
		})
	}
	_ = g.Wait()
	return vis
}

func (s *sweeper) run(placements []geom.Point, k int, vis *Visibility) {
	origin := placements[k]
	s.obs = obstaclesFor(s.task, placements, k, s.obs)
	s.events = s.events[:0]
	s.dists = s.dists[:0]
	s.maxR = 0
	s.set.Clear(true)

	m := vis.musicians
	for id, o := range s.obs {
		off := o.center.Sub(origin)
		d := off.Norm()
		s.dists = append(s.dists, d)
		if d < o.radius {
			// The origin sits inside an occluder: nothing is audible.
			for a := 0; a < vis.attendees; a++ {
				vis.cells[a*m+k] = false
			}
			return
		}
		s.maxR = math.Max(s.maxR, o.radius)
		half := math.Asin(math.Min(1, o.radius/d))
		mid := off.Angle()
		lo, hi := mid-half, mid+half
		switch {
		case lo < -math.Pi:
			s.set.ReplaceOrInsert(active{dist: d, id: id})
			s.events = append(s.events, event{angle: hi, kind: exit, id: id}, event{angle: lo + 2*math.Pi, kind: enter, id: id})
		case hi > math.Pi:
			s.set.ReplaceOrInsert(active{dist: d, id: id})
			s.events = append(s.events, event{angle: hi - 2*math.Pi, kind: exit, id: id}, event{angle: lo, kind: enter, id: id})
		default:
			s.events = append(s.events, event{angle: lo, kind: enter, id: id}, event{angle: hi, kind: exit, id: id})
		}
	}
	sort.Slice(s.events, func(i, j int) bool { return s.events[i].angle < s.events[j].angle })

	s.order = s.order[:0]
	for a, att := range s.task.Attendees {
		off := att.Pos().Sub(origin)
		s.order = append(s.order, attendeeAngle{angle: off.Angle(), dist: off.Norm(), idx: a})
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i].angle < s.order[j].angle })

	e := 0
	for _, at := range s.order {
		for e < len(s.events) && s.events[e].angle <= at.angle {
			ev := s.events[e]
			item := active{dist: s.dists[ev.id], id: ev.id}
			if ev.kind == enter {
				s.set.ReplaceOrInsert(item)
			} else {
				s.set.Delete(item)
			}
			e++
		}
		vis.cells[at.idx*m+k] = !s.occluded(origin, at)
	}
}

// occluded reports whether an active occluder cuts the line to the attendee.
// Anything nearer than the attendee blocks; occluders slightly beyond it can
// still reach the segment near its end and need the exact test.
func (s *sweeper) occluded(origin geom.Point, at attendeeAngle) bool {
	nearest, ok := s.set.Min()
	if !ok {
		return false
	}
	if nearest.dist <= at.dist {
		return true
	}
	seg := geom.Segment{From: origin, To: s.task.Attendees[at.idx].Pos()}
	blocked := false
	s.set.AscendGreaterOrEqual(active{dist: at.dist, id: -1}, func(it active) bool {
		if it.dist >= at.dist+s.maxR {
			return false
		}
		if blocks(s.obs[it.id], seg) {
			blocked = true
			return false
		}
		return true
	})
	return blocked
}
