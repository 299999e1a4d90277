package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/opt"
	"github.com/SlNPacifist/icfpc2023/internal/store"
)

func smallTask() *model.Task {
	return &model.Task{
		RoomWidth:       300,
		RoomHeight:      300,
		StageWidth:      100,
		StageHeight:     100,
		StageBottomLeft: geom.Point{X: 100, Y: 100},
		Musicians:       []int{0, 1, 0},
		Attendees: []model.Attendee{
			{X: 50, Y: 150, Tastes: []float64{1000, -500}},
			{X: 250, Y: 150, Tastes: []float64{-200, 800}},
			{X: 150, Y: 260, Tastes: []float64{300, 300}},
		},
	}
}

func fastConfig() opt.Config {
	cfg := opt.DefaultConfig()
	cfg.Moves = []string{"greedy", "swap", "relocate", "volumes"}
	cfg.Weights = nil
	cfg.Patience = 10
	cfg.TimeBudget = 2 * time.Second
	return cfg
}

func newRunner(t *testing.T) (*Runner, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	require.NoError(t, m.PutTask(context.Background(), "1", smallTask()))
	return New(m, fastConfig(), nil), m
}

func TestOptimizeStoresAndNeverRegresses(t *testing.T) {
	r, m := newRunner(t)
	var mu sync.Mutex
	var improved []int64
	r.OnImproved = func(_ context.Context, rec store.Record, _ *int64) {
		mu.Lock()
		improved = append(improved, rec.Score)
		mu.Unlock()
	}
	ctx := context.Background()

	first, err := r.Optimize(ctx, "1", Options{Base: BaseSpread, Seed: 1})
	require.NoError(t, err)
	require.True(t, first.Saved)
	require.NotNil(t, first.Metrics)
	assert.Nil(t, first.Previous)

	second, err := r.Optimize(ctx, "1", Options{Base: BaseBest, Mode: ModePass, Seed: 2})
	require.NoError(t, err)
	require.NotNil(t, second.Previous)
	assert.Equal(t, first.Score, *second.Previous)
	assert.GreaterOrEqual(t, second.Score, first.Score, "search from best never ends below it")

	rec, err := m.GetBest(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, max(first.Score, second.Score), rec.Score)
	assert.Equal(t, first.Score, improved[0])

	runs, err := m.ListRunMetrics(ctx, "1")
	require.NoError(t, err)
	assert.Contains(t, runs, ModeChain)
	assert.Contains(t, runs, ModePass)
	assert.Contains(t, opt.GetMetrics("1"), ModeChain)
}

func TestOptimizeIncremental(t *testing.T) {
	r, _ := newRunner(t)
	out, err := r.Optimize(context.Background(), "1", Options{Mode: ModeIncremental, Chunk: 2, Seed: 3})
	require.NoError(t, err)
	assert.True(t, out.Saved)
	assert.Len(t, out.Solution.Placements, 3)
	assert.Equal(t, 2, out.Metrics.Incremental)
}

func TestOptimizeErrors(t *testing.T) {
	r, _ := newRunner(t)
	_, err := r.Optimize(context.Background(), "404", Options{})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = r.Optimize(context.Background(), "1", Options{Mode: "annealing"})
	assert.ErrorContains(t, err, "unknown mode")
	_, err = r.Optimize(context.Background(), "1", Options{Base: "moon"})
	assert.Error(t, err)
}

func TestSubmit(t *testing.T) {
	r, m := newRunner(t)
	ctx := context.Background()

	overlap := model.NewSolution([]geom.Point{{X: 120, Y: 120}, {X: 125, Y: 120}, {X: 170, Y: 170}})
	out, err := r.Submit(ctx, "1", overlap)
	require.NoError(t, err)
	assert.Equal(t, opt.MinScore, out.Score)
	assert.False(t, out.Saved)
	assert.Contains(t, out.Error, "overlap")
	_, err = m.GetBest(ctx, "1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	good := model.NewSolution([]geom.Point{{X: 120, Y: 120}, {X: 150, Y: 150}, {X: 180, Y: 180}})
	out, err = r.Submit(ctx, "1", good)
	require.NoError(t, err)
	assert.True(t, out.Saved)

	again, err := r.Submit(ctx, "1", good)
	require.NoError(t, err)
	assert.False(t, again.Saved, "equal score is not an improvement")
	assert.Equal(t, out.Score, *again.Previous)
}

func TestRecalcVolumesNeverLowersScore(t *testing.T) {
	r, m := newRunner(t)
	ctx := context.Background()
	sol := model.NewSolution([]geom.Point{{X: 120, Y: 120}, {X: 150, Y: 150}, {X: 180, Y: 180}})
	first, err := r.Submit(ctx, "1", sol)
	require.NoError(t, err)

	out, err := r.RecalcVolumes(ctx, "1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.Score, first.Score)
	rec, err := m.GetBest(ctx, "1")
	require.NoError(t, err)
	for _, v := range rec.Solution.Volumes {
		assert.Contains(t, []float64{0, 1, model.MaxVolume}, v)
	}
}

func TestOptimizeAllReportsPerProblemErrors(t *testing.T) {
	r, _ := newRunner(t)
	out := r.OptimizeAll(context.Background(), []string{"1", "missing"}, Options{Seed: 5}, 2)
	require.Len(t, out, 2)
	assert.Empty(t, out[0].Error)
	assert.Equal(t, "1", out[0].ProblemID)
	assert.Equal(t, "missing", out[1].ProblemID)
	assert.NotEmpty(t, out[1].Error)
}

func TestSelection(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3", "10"} {
		require.NoError(t, m.PutTask(ctx, id, smallTask()))
	}
	ids, err := Selection(ctx, m, nil, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids)

	ids, err = Selection(ctx, m, []string{"10"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, ids)

	ids, err = Selection(ctx, m, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "10"}, ids)
}

func TestRank(t *testing.T) {
	r, m := newRunner(t)
	ctx := context.Background()
	require.NoError(t, m.PutTask(ctx, "2", smallTask()))
	_, err := r.Submit(ctx, "1", model.NewSolution([]geom.Point{{X: 120, Y: 120}, {X: 150, Y: 150}, {X: 180, Y: 180}}))
	require.NoError(t, err)

	rows, err := Rank(ctx, m)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[0].ProblemID, "unsolved problem has the larger gap")
	assert.Nil(t, rows[0].Best)
	assert.Equal(t, rows[0].Potential, rows[0].Gap)
	require.NotNil(t, rows[1].Best)
}
