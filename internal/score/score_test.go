package score

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/visibility"
)

func smallTask() *model.Task {
	return &model.Task{
		RoomWidth: 2000, RoomHeight: 5000,
		StageWidth: 1000, StageHeight: 200,
		StageBottomLeft: geom.Point{X: 500, Y: 0},
		Musicians:       []int{0, 1, 0},
		Attendees: []model.Attendee{
			{X: 100, Y: 500, Tastes: []float64{1000, -1000}},
			{X: 200, Y: 1000, Tastes: []float64{200, 200}},
			{X: 1100, Y: 800, Tastes: []float64{800, 1500}},
		},
	}
}

func smallSolution() model.Solution {
	return model.NewSolution([]geom.Point{{X: 590, Y: 10}, {X: 1100, Y: 100}, {X: 1100, Y: 150}})
}

func TestScoreContestExample(t *testing.T) {
	task, sol := smallTask(), smallSolution()
	got, err := Score(task, sol, visibility.Exact(task, sol))
	require.NoError(t, err)
	assert.Equal(t, int64(5343), got)
}

func TestValidate(t *testing.T) {
	task := smallTask()
	cases := []struct {
		name     string
		mutate   func(*model.Solution)
		kind     ViolationKind
		musician int
	}{
		{"missing placement", func(s *model.Solution) { s.Placements = s.Placements[:2]; s.Volumes = s.Volumes[:2] }, StructuralMismatch, -1},
		{"volumes length", func(s *model.Solution) { s.Volumes = s.Volumes[:1] }, StructuralMismatch, -1},
		{"left of inset", func(s *model.Solution) { s.Placements[1].X = 509 }, OutOfBounds, 1},
		{"above inset", func(s *model.Solution) { s.Placements[2].Y = 190.5 }, OutOfBounds, 2},
		{"volume too loud", func(s *model.Solution) { s.Volumes[0] = 10.5 }, InvalidVolume, 0},
		{"negative volume", func(s *model.Solution) { s.Volumes[2] = -1 }, InvalidVolume, 2},
		{"overlap", func(s *model.Solution) { s.Placements[2] = geom.Point{X: 1110, Y: 115} }, Overlap, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sol := smallSolution()
			tc.mutate(&sol)
			err := Validate(task, sol)
			cv, ok := AsViolation(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tc.kind, cv.Kind)
			assert.Equal(t, tc.musician, cv.Musician)
		})
	}
	require.NoError(t, Validate(task, smallSolution()))
}

func TestValidateTouchingIsAllowed(t *testing.T) {
	task := smallTask()
	sol := model.NewSolution([]geom.Point{{X: 600, Y: 100}, {X: 620, Y: 100}, {X: 510, Y: 10}})
	assert.NoError(t, Validate(task, sol))
}

func TestScoreRejectsInvalid(t *testing.T) {
	task, sol := smallTask(), smallSolution()
	sol.Placements[0] = geom.Point{X: 0, Y: 0}
	_, err := Score(task, sol, visibility.Exact(task, sol))
	cv, ok := AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, OutOfBounds, cv.Kind)
	assert.Contains(t, err.Error(), "musician 0")
}

func TestPerContributionCeil(t *testing.T) {
	att := model.Attendee{X: 0, Y: 0, Tastes: []float64{1, -1}}
	assert.Equal(t, int64(111112), PerContribution(att, 0, geom.Point{X: 0, Y: 3}))
	assert.Equal(t, int64(0), PerContribution(att, 1, geom.Point{X: 3000, Y: 0}))
	assert.Equal(t, int64(-2), PerContribution(att, 1, geom.Point{X: 500, Y: 500}))
}

func TestDoubleCeilingWithVolume(t *testing.T) {
	task := &model.Task{
		StageWidth: 100, StageHeight: 100,
		Musicians: []int{0},
		Attendees: []model.Attendee{{X: 50, Y: 3050, Tastes: []float64{1}}},
	}
	sol := model.Solution{Placements: []geom.Point{{X: 50, Y: 50}}, Volumes: []float64{0.5}}
	got, err := Score(task, sol, visibility.Exact(task, sol))
	require.NoError(t, err)
	// ceil(1e6/9e6) = 1, then ceil(1*0.5) = 1.
	assert.Equal(t, int64(1), got)
}

func TestClosenessOnlyWithPillars(t *testing.T) {
	task, sol := smallTask(), smallSolution()
	assert.Equal(t, []float64{1, 1, 1}, Closeness(task, sol))

	task.Pillars = []model.Pillar{{Center: geom.Point{X: 0, Y: 4000}, Radius: 1}}
	c := Closeness(task, sol)
	d := geom.Dist(sol.Placements[0], sol.Placements[2])
	assert.InDelta(t, 1+1/d, c[0], 1e-12)
	assert.InDelta(t, 1+1/d, c[2], 1e-12)
	assert.Equal(t, 1.0, c[1])
}

func TestBreakdownMatchesScore(t *testing.T) {
	task, sol := smallTask(), smallSolution()
	task.Pillars = []model.Pillar{{Center: geom.Point{X: 800, Y: 600}, Radius: 20}}
	vis := visibility.Exact(task, sol)
	total, err := Score(task, sol, vis)
	require.NoError(t, err)
	b, err := ScoreBreakdown(task, sol, vis)
	require.NoError(t, err)
	assert.Equal(t, total, b.Total)
	var sa, sm int64
	for _, v := range b.PerAttendee {
		sa += v
	}
	for _, v := range b.PerMusician {
		sm += v
	}
	assert.Equal(t, total, sa)
	assert.Equal(t, total, sm)
}

func TestVolumeMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for iter := 0; iter < 50; iter++ {
		task := &model.Task{
			StageWidth: 200, StageHeight: 200,
			StageBottomLeft: geom.Point{X: 400, Y: 400},
			Musicians:       []int{0, 1},
		}
		sign := 1.0
		if iter%2 == 1 {
			sign = -1
		}
		for i := 0; i < 10; i++ {
			task.Attendees = append(task.Attendees, model.Attendee{
				X: rng.Float64() * 300, Y: rng.Float64() * 300,
				Tastes: []float64{sign * rng.Float64() * 1000, rng.NormFloat64() * 1000},
			})
		}
		sol := model.Solution{
			Placements: []geom.Point{{X: 450, Y: 450}, {X: 550, Y: 550}},
			Volumes:    []float64{0, 1 + rng.Float64()},
		}
		vis := visibility.Exact(task, sol)
		before, err := Score(task, sol, vis)
		require.NoError(t, err)
		sol.Volumes[0] = 1 + rng.Float64()*9
		after, err := Score(task, sol, vis)
		require.NoError(t, err)
		if sign > 0 {
			assert.GreaterOrEqual(t, after, before)
		} else {
			assert.LessOrEqual(t, after, before)
		}
	}
}

func TestPotentialBoundsScore(t *testing.T) {
	task, sol := smallTask(), smallSolution()
	sol.Volumes = []float64{10, 10, 10}
	got, err := Score(task, sol, visibility.Exact(task, sol))
	require.NoError(t, err)
	assert.Greater(t, Potential(task), got)
}

func TestOptimalVolumes(t *testing.T) {
	task, sol := smallTask(), smallSolution()
	vis := visibility.Exact(task, sol)
	vols := OptimalVolumes(task, sol, vis)
	for _, v := range vols {
		assert.True(t, v == 0 || v == model.MaxVolume)
	}
	before, err := Score(task, sol, vis)
	require.NoError(t, err)
	sol.Volumes = vols
	after, err := Score(task, sol, vis)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after, before)
	assert.False(t, math.IsNaN(float64(after)))
}
