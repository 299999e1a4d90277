package opt

import (
	"container/heap"
	"math/rand"

	"github.com/SlNPacifist/icfpc2023/internal/model"
)

// Greedy reassigns musicians to the current set of positions. Every
// (instrument, position) pair is ranked by the visible contribution the
// instrument would collect there, and pairs are taken best first.
type Greedy struct{}

func (Greedy) Kind() MoveKind { return KindGreedy }

type slotScore struct {
	score      int64
	instrument int
	pos        int
}

type slotHeap []slotScore

func (h slotHeap) Len() int { return len(h) }
func (h slotHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	if h[i].pos != h[j].pos {
		return h[i].pos < h[j].pos
	}
	return h[i].instrument < h[j].instrument
}
func (h slotHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *slotHeap) Push(x any)   { *h = append(*h, x.(slotScore)) }
func (h *slotHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

func (Greedy) Apply(task *model.Task, c Candidate, _ *rand.Rand) (Candidate, error) {
	m := len(c.Solution.Placements)
	if m == 0 || m != len(task.Musicians) {
		return c, nil
	}
	byInstrument := task.MusicianByInstrument()
	h := make(slotHeap, 0, len(byInstrument)*m)
	for pos, p := range c.Solution.Placements {
		for inst, group := range byInstrument {
			if len(group) == 0 {
				continue
			}
			h = append(h, slotScore{score: contribution(task, c.Vis, pos, inst, p), instrument: inst, pos: pos})
		}
	}
	heap.Init(&h)

	// next[inst] indexes the first unassigned musician of that instrument.
	next := make([]int, len(byInstrument))
	posUsed := make([]bool, m)
	src := make([]int, m)
	assigned := 0
	for h.Len() > 0 && assigned < m {
		top := heap.Pop(&h).(slotScore)
		if posUsed[top.pos] || next[top.instrument] >= len(byInstrument[top.instrument]) {
			continue
		}
		musician := byInstrument[top.instrument][next[top.instrument]]
		next[top.instrument]++
		posUsed[top.pos] = true
		src[musician] = top.pos
		assigned++
	}

	out := Candidate{Solution: c.Solution.Clone()}
	for k, pos := range src {
		out.Solution.Placements[k] = c.Solution.Placements[pos]
	}
	out.Vis = c.Vis.PermuteMusicians(src)
	return out, nil
}
