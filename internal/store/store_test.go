package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/opt"
)

func testTask() *model.Task {
	return &model.Task{
		RoomWidth:       200,
		RoomHeight:      200,
		StageWidth:      100,
		StageHeight:     100,
		StageBottomLeft: geom.Point{X: 50, Y: 50},
		Musicians:       []int{0, 1},
		Attendees: []model.Attendee{
			{X: 10, Y: 10, Tastes: []float64{100, -50}},
		},
	}
}

func testSolution() model.Solution {
	return model.NewSolution([]geom.Point{{X: 70, Y: 70}, {X: 100, Y: 100}})
}

// stores returns a fresh instance of every non-database Store.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	f, err := NewFiles(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{"memory": NewMemory(), "files": f}
}

func TestStoreTasks(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetTask(ctx, "1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.PutTask(ctx, "10", testTask()))
			require.NoError(t, s.PutTask(ctx, "2", testTask()))
			got, err := s.GetTask(ctx, "10")
			require.NoError(t, err)
			assert.Equal(t, testTask().Musicians, got.Musicians)
			assert.Equal(t, 50.0, got.StageBottomLeft.X)

			ids, err := s.ListProblems(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"2", "10"}, ids)
		})
	}
}

func TestStoreSaveIfBetterIsMonotonic(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetBest(ctx, "1")
			assert.ErrorIs(t, err, ErrNotFound)

			sol := testSolution()
			ok, err := s.SaveIfBetter(ctx, "1", sol, 100)
			require.NoError(t, err)
			assert.True(t, ok)

			worse := testSolution()
			worse.Volumes[0] = 0
			ok, err = s.SaveIfBetter(ctx, "1", worse, 50)
			require.NoError(t, err)
			assert.False(t, ok)
			ok, err = s.SaveIfBetter(ctx, "1", worse, 100)
			require.NoError(t, err)
			assert.False(t, ok, "equal score must not replace")

			rec, err := s.GetBest(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, int64(100), rec.Score)
			assert.Equal(t, 1.0, rec.Solution.Volumes[0])

			ok, err = s.SaveIfBetter(ctx, "1", worse, 101)
			require.NoError(t, err)
			assert.True(t, ok)
			rec, err = s.GetBest(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, int64(101), rec.Score)
			assert.Equal(t, 0.0, rec.Solution.Volumes[0])
		})
	}
}

func TestStoreRunMetrics(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			m := opt.Metrics{Chains: 7, BestScore: 42}
			require.NoError(t, s.SaveRunMetrics(ctx, "3", "chain", m))
			got, err := s.ListRunMetrics(ctx, "3")
			require.NoError(t, err)
			require.Contains(t, got, "chain")
			assert.Equal(t, 7, got["chain"].Chains)
			empty, err := s.ListRunMetrics(ctx, "4")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestFilesLayout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := NewFiles(dir)
	require.NoError(t, err)
	require.NoError(t, f.PutTask(ctx, "5", testTask()))
	_, err = f.SaveIfBetter(ctx, "5", testSolution(), -12)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "problems", "5.json"))
	assert.FileExists(t, filepath.Join(dir, "solutions", "5.json"))
	raw, err := os.ReadFile(filepath.Join(dir, "solutions", "5.score"))
	require.NoError(t, err)
	assert.Equal(t, "-12", string(raw))
	assert.NoFileExists(t, filepath.Join(dir, "solutions", "5.json.tmp"))
}

func TestFilesSolutionWithoutScoreIsReplaced(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := NewFiles(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "solutions", "9.json"),
		[]byte(`{"placements":[{"x":70,"y":70}]}`), 0o644))

	rec, err := f.GetBest(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), rec.Score)
	assert.Equal(t, []float64{1}, rec.Solution.Volumes)

	ok, err := f.SaveIfBetter(ctx, "9", testSolution(), math.MinInt64+1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryNotificationLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.EnqueueNotification(ctx, "solution.improved", "http://example.test/hook", "s3cr3t", []byte(`{"id":"e1"}`))
	require.NoError(t, err)

	due, err := m.FetchDueNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	assert.Equal(t, "pending", due[0].Status)

	require.NoError(t, m.MarkNotification(ctx, id, false, nil, "boom", 500, 3))
	due, err = m.FetchDueNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "retry is scheduled in the future")

	require.NoError(t, m.FailNotification(ctx, id, "gave up", 500, 3))
	assert.Len(t, m.DeadLetters(), 1)
	assert.ErrorIs(t, m.MarkNotification(ctx, "missing", true, nil, "", 200, 1), ErrNotFound)
}
