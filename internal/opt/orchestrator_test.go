package opt

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/score"
	"github.com/SlNPacifist/icfpc2023/internal/visibility"
)

func cheapOrchestrator() *Orchestrator {
	return &Orchestrator{
		Moves:       []Move{Greedy{}, DefaultForce(), Swap{Attempts: 10}, Relocate{Attempts: 20}, Volumes{}},
		ChainLength: 2,
		Patience:    15,
		TimeBudget:  time.Minute,
	}
}

// recording wraps a move and remembers every score it produced.
type recording struct {
	Move
	scores *[]int64
}

func (r recording) Apply(task *model.Task, c Candidate, rng *rand.Rand) (Candidate, error) {
	out, err := r.Move.Apply(task, c, rng)
	*r.scores = append(*r.scores, Evaluate(task, out))
	return out, err
}

type panicky struct{}

func (panicky) Kind() MoveKind { return KindPhysics }
func (panicky) Apply(*model.Task, Candidate, *rand.Rand) (Candidate, error) {
	panic("engine exploded")
}

func TestRunImprovesAndConverges(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	task := fixture(rng, false)
	sol, err := GridSeed(task)
	require.NoError(t, err)
	initial := Evaluate(task, NewCandidate(task, sol))

	res, err := cheapOrchestrator().Run(context.Background(), task, sol, rng)
	require.NoError(t, err)
	assert.Equal(t, Converged, res.State)
	assert.Equal(t, StopConverged, res.Metrics.StopReason)
	assert.GreaterOrEqual(t, res.Score, initial)
	assert.Equal(t, initial, res.Metrics.InitialScore)
	require.NoError(t, score.Validate(task, res.Solution))
	got, err := score.Score(task, res.Solution, visibility.Exact(task, res.Solution))
	require.NoError(t, err)
	assert.Equal(t, res.Score, got)
	assert.GreaterOrEqual(t, res.Metrics.Chains, 15)
}

func TestRunIsReproducible(t *testing.T) {
	task := fixture(rand.New(rand.NewSource(8)), true)
	sol, err := SpreadSeed(task)
	require.NoError(t, err)
	a, err := cheapOrchestrator().Run(context.Background(), task, sol, rand.New(rand.NewSource(77)))
	require.NoError(t, err)
	b, err := cheapOrchestrator().Run(context.Background(), task, sol, rand.New(rand.NewSource(77)))
	require.NoError(t, err)
	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Solution, b.Solution)
	assert.Equal(t, a.Metrics.Chains, b.Metrics.Chains)
}

func TestBestScoreNeverDecreases(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	task := fixture(rng, true)
	sol, err := SpreadSeed(task)
	require.NoError(t, err)
	var seen []int64
	o := cheapOrchestrator()
	for i, mv := range o.Moves {
		o.Moves[i] = recording{Move: mv, scores: &seen}
	}
	res, err := o.Run(context.Background(), task, sol, rng)
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	best := res.Metrics.InitialScore
	for _, s := range seen {
		if s > best {
			best = s
		}
	}
	assert.GreaterOrEqual(t, res.Score, res.Metrics.InitialScore)
	assert.LessOrEqual(t, res.Score, best)
}

func TestRunRecoversPanickingMove(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	task := fixture(rng, false)
	sol, err := GridSeed(task)
	require.NoError(t, err)
	o := &Orchestrator{Moves: []Move{panicky{}, Swap{Attempts: 5}}, ChainLength: 2, Patience: 5}
	res, err := o.Run(context.Background(), task, sol, rng)
	require.NoError(t, err)
	assert.Positive(t, res.Metrics.MoveErrors)
	assert.NoError(t, score.Validate(task, res.Solution))
}

func TestRunStopsOnCancel(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	task := fixture(rng, false)
	sol, err := GridSeed(task)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := cheapOrchestrator().Run(ctx, task, sol, rng)
	require.NoError(t, err)
	assert.Equal(t, StopCancelled, res.Metrics.StopReason)
	assert.Equal(t, Improving, res.State)
	assert.Equal(t, sol, res.Solution)
}

func TestRunRejectsBadConfig(t *testing.T) {
	task := fixture(rand.New(rand.NewSource(1)), false)
	_, err := (&Orchestrator{}).Run(context.Background(), task, model.Solution{}, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
	_, err = (&Orchestrator{Moves: []Move{Greedy{}}, Weights: []float64{1, 2}}).Run(context.Background(), task, model.Solution{}, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestRunTallStageIsSolvedTransposed(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	wide := fixture(rng, true)
	tall := wide.Transpose()
	sol, err := GridSeed(tall)
	require.NoError(t, err)
	res, err := cheapOrchestrator().Run(context.Background(), tall, sol, rng)
	require.NoError(t, err)
	assert.True(t, res.Metrics.Transposed)
	require.NoError(t, score.Validate(tall, res.Solution))
	got, err := score.Score(tall, res.Solution, visibility.Exact(tall, res.Solution))
	require.NoError(t, err)
	assert.Equal(t, res.Score, got)
	assert.True(t, res.Vis.Equal(visibility.Exact(tall, res.Solution)))
}

func TestPassConverges(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	task := fixture(rng, false)
	sol, err := GridSeed(task)
	require.NoError(t, err)
	res, err := cheapOrchestrator().Pass(context.Background(), task, sol, rng)
	require.NoError(t, err)
	assert.Equal(t, Converged, res.State)
	assert.GreaterOrEqual(t, res.Score, res.Metrics.InitialScore)
	assert.NoError(t, score.Validate(task, res.Solution))
}

func TestIncrementalBuildsFullSolution(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	task := fixture(rng, false)
	o := cheapOrchestrator()
	o.Patience = 5
	res, err := o.Incremental(context.Background(), task, 2, rng)
	require.NoError(t, err)
	require.Len(t, res.Solution.Placements, len(task.Musicians))
	assert.NoError(t, score.Validate(task, res.Solution))
	assert.Equal(t, 3, res.Metrics.Incremental)
	assert.Len(t, res.Metrics.PartialScores, 3)
}

func TestIncrementalFailsWhenStageIsFull(t *testing.T) {
	task := &model.Task{StageWidth: 40, StageHeight: 40, Musicians: make([]int, 5)}
	_, err := cheapOrchestrator().Incremental(context.Background(), task, 1, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, score.ErrNoFeasibleCandidate)
}

func TestSampleChainAvoidsRepeats(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	weights := []float64{5, 0.01, 1}
	for i := 0; i < 100; i++ {
		chain := sampleChain(weights, 6, rng)
		require.Len(t, chain, 6)
		for j := 1; j < len(chain); j++ {
			assert.NotEqual(t, chain[j-1], chain[j])
		}
	}
	assert.Equal(t, []int{0, 0, 0}, sampleChain([]float64{1}, 3, rng))
}

func TestConfigBuildsOrchestrator(t *testing.T) {
	c := DefaultConfig()
	o, err := NewOrchestrator(c, nil)
	require.NoError(t, err)
	assert.Len(t, o.Moves, len(c.Moves))
	assert.Equal(t, 0.3, o.Weights[6])

	c.Moves = append(c.Moves, "teleport")
	_, err = NewOrchestrator(c, nil)
	assert.ErrorContains(t, err, "teleport")
}

func TestMetricsStore(t *testing.T) {
	RecordMetrics("p1", "chain", Metrics{BestScore: 10})
	RecordMetrics("p1", "pass", Metrics{BestScore: 12})
	RecordMetrics("p2", "chain", Metrics{BestScore: 1})
	got := GetMetrics("p1")
	assert.Len(t, got, 2)
	assert.Equal(t, int64(12), got["pass"].BestScore)
}
