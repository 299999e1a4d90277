// Package model defines the problem and placement types shared across the solver.
package model

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
)

const (
	// MusicianRadius is the collision radius of a placed musician and the stage inset.
	MusicianRadius = 10.0
	// MinSeparation is the minimum distance between two placements.
	MinSeparation = 2 * MusicianRadius
	// BlockingRadius is the musician disk radius used for line-of-sight tests.
	BlockingRadius = 5.0
	// ScoreScale scales every per-contribution term.
	ScoreScale = 1_000_000.0
	// MaxVolume bounds Solution.Volumes from above.
	MaxVolume = 10.0
)

// Attendee is a listener with per-instrument tastes.
type Attendee struct {
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Tastes []float64 `json:"tastes"`
}

func (a Attendee) Pos() geom.Point { return geom.Point{X: a.X, Y: a.Y} }

// Pillar is a static circular occluder.
type Pillar struct {
	Center geom.Point
	Radius float64
}

type pillarWire struct {
	Center [2]float64 `json:"center"`
	Radius float64    `json:"radius"`
}

func (p Pillar) MarshalJSON() ([]byte, error) {
	return json.Marshal(pillarWire{Center: [2]float64{p.Center.X, p.Center.Y}, Radius: p.Radius})
}

func (p *Pillar) UnmarshalJSON(b []byte) error {
	var w pillarWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = Pillar{Center: geom.Point{X: w.Center[0], Y: w.Center[1]}, Radius: w.Radius}
	return nil
}

// Task is one problem instance. It is read-only for the duration of a run.
type Task struct {
	RoomWidth       float64
	RoomHeight      float64
	StageWidth      float64
	StageHeight     float64
	StageBottomLeft geom.Point
	Musicians       []int
	Attendees       []Attendee
	Pillars         []Pillar
}

type taskWire struct {
	RoomWidth       float64    `json:"room_width"`
	RoomHeight      float64    `json:"room_height"`
	StageWidth      float64    `json:"stage_width"`
	StageHeight     float64    `json:"stage_height"`
	StageBottomLeft [2]float64 `json:"stage_bottom_left"`
	Musicians       []int      `json:"musicians"`
	Attendees       []Attendee `json:"attendees"`
	Pillars         []Pillar   `json:"pillars"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	w := taskWire{
		RoomWidth:       t.RoomWidth,
		RoomHeight:      t.RoomHeight,
		StageWidth:      t.StageWidth,
		StageHeight:     t.StageHeight,
		StageBottomLeft: [2]float64{t.StageBottomLeft.X, t.StageBottomLeft.Y},
		Musicians:       t.Musicians,
		Attendees:       t.Attendees,
		Pillars:         t.Pillars,
	}
	if w.Pillars == nil {
		w.Pillars = []Pillar{}
	}
	return json.Marshal(w)
}

func (t *Task) UnmarshalJSON(b []byte) error {
	var w taskWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*t = Task{
		RoomWidth:       w.RoomWidth,
		RoomHeight:      w.RoomHeight,
		StageWidth:      w.StageWidth,
		StageHeight:     w.StageHeight,
		StageBottomLeft: geom.Point{X: w.StageBottomLeft[0], Y: w.StageBottomLeft[1]},
		Musicians:       w.Musicians,
		Attendees:       w.Attendees,
		Pillars:         w.Pillars,
	}
	return nil
}

func (t *Task) StageLeft() float64   { return t.StageBottomLeft.X }
func (t *Task) StageRight() float64  { return t.StageBottomLeft.X + t.StageWidth }
func (t *Task) StageBottom() float64 { return t.StageBottomLeft.Y }
func (t *Task) StageTop() float64    { return t.StageBottomLeft.Y + t.StageHeight }

// MusicianInStage reports whether a musician disk centred at p stays on stage.
func (t *Task) MusicianInStage(p geom.Point) bool {
	return p.X >= t.StageLeft()+MusicianRadius && p.X <= t.StageRight()-MusicianRadius &&
		p.Y >= t.StageBottom()+MusicianRadius && p.Y <= t.StageTop()-MusicianRadius
}

// ClampToStage projects p onto the inset stage rectangle.
func (t *Task) ClampToStage(p geom.Point) geom.Point {
	return geom.Point{
		X: math.Min(math.Max(p.X, t.StageLeft()+MusicianRadius), t.StageRight()-MusicianRadius),
		Y: math.Min(math.Max(p.Y, t.StageBottom()+MusicianRadius), t.StageTop()-MusicianRadius),
	}
}

// InnerWidth and InnerHeight are the extents available to musician centres.
func (t *Task) InnerWidth() float64  { return t.StageWidth - 2*MusicianRadius }
func (t *Task) InnerHeight() float64 { return t.StageHeight - 2*MusicianRadius }

// Transpose mirrors the task across the diagonal. Applying it twice yields the original task.
func (t *Task) Transpose() *Task {
	out := &Task{
		RoomWidth:       t.RoomHeight,
		RoomHeight:      t.RoomWidth,
		StageWidth:      t.StageHeight,
		StageHeight:     t.StageWidth,
		StageBottomLeft: t.StageBottomLeft.Transpose(),
		Musicians:       append([]int(nil), t.Musicians...),
		Attendees:       make([]Attendee, len(t.Attendees)),
		Pillars:         make([]Pillar, len(t.Pillars)),
	}
	for i, a := range t.Attendees {
		out.Attendees[i] = Attendee{X: a.Y, Y: a.X, Tastes: append([]float64(nil), a.Tastes...)}
	}
	for i, p := range t.Pillars {
		out.Pillars[i] = Pillar{Center: p.Center.Transpose(), Radius: p.Radius}
	}
	return out
}

// IsWide reports whether the stage is at least as wide as it is tall.
func (t *Task) IsWide() bool { return t.StageWidth >= t.StageHeight }

// InstrumentsLen is the number of distinct instrument ids, max(id)+1.
func (t *Task) InstrumentsLen() int {
	n := 0
	for _, m := range t.Musicians {
		if m+1 > n {
			n = m + 1
		}
	}
	return n
}

// MusicianByInstrument groups musician indices by instrument id.
func (t *Task) MusicianByInstrument() [][]int {
	out := make([][]int, t.InstrumentsLen())
	for i, m := range t.Musicians {
		out[m] = append(out[m], i)
	}
	return out
}

// Subtask returns the task restricted to the first n musicians.
func (t *Task) Subtask(n int) *Task {
	if n > len(t.Musicians) {
		n = len(t.Musicians)
	}
	out := *t
	out.Musicians = t.Musicians[:n:n]
	return &out
}

// Validate checks the structural invariants of a decoded task.
func (t *Task) Validate() error {
	if t.StageWidth <= 0 || t.StageHeight <= 0 {
		return fmt.Errorf("stage must have positive size, got %vx%v", t.StageWidth, t.StageHeight)
	}
	for i, m := range t.Musicians {
		if m < 0 {
			return fmt.Errorf("musician %d: negative instrument %d", i, m)
		}
	}
	need := t.InstrumentsLen()
	for i, a := range t.Attendees {
		if len(a.Tastes) < need {
			return fmt.Errorf("attendee %d: %d tastes, need %d", i, len(a.Tastes), need)
		}
	}
	for i, p := range t.Pillars {
		if p.Radius <= 0 {
			return fmt.Errorf("pillar %d: radius must be positive, got %v", i, p.Radius)
		}
	}
	return nil
}

// ReadTask decodes and validates a task.
func ReadTask(r io.Reader) (*Task, error) {
	var t Task
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}
	return &t, nil
}
