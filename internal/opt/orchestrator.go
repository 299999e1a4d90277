package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/score"
)

// State is the orchestrator's search state.
type State int

const (
	Improving State = iota
	Converged
)

func (s State) String() string {
	if s == Converged {
		return "converged"
	}
	return "improving"
}

// Stop reasons reported in Metrics.StopReason.
const (
	StopConverged = "converged"
	StopBudget    = "budget"
	StopCancelled = "cancelled"
)

// Orchestrator samples chains of moves and keeps strict improvements until
// Patience chains in a row fail to improve.
type Orchestrator struct {
	Moves []Move
	// Weights are the initial roulette weights, one per move. Nil means uniform.
	Weights     []float64
	ChainLength int
	Patience    int
	// TimeBudget bounds a run; zero means no limit.
	TimeBudget time.Duration
	Logger     *slog.Logger
}

// Result is the best candidate found.
type Result struct {
	Candidate
	Score   int64
	State   State
	Metrics Metrics
}

// Metrics summarizes one run.
type Metrics struct {
	Chains        int              `json:"chains"`
	Improvements  int              `json:"improvements"`
	MoveErrors    int              `json:"moveErrors"`
	Selects       map[string]int   `json:"selects"`
	InitialScore  int64            `json:"initialScore"`
	BestScore     int64            `json:"bestScore"`
	FinalWeights  []float64        `json:"finalWeights"`
	Snapshots     []WeightSnapshot `json:"snapshots,omitempty"`
	DurationMs    int64            `json:"durationMs"`
	StopReason    string           `json:"stopReason"`
	Transposed    bool             `json:"transposed"`
	Incremental   int              `json:"incrementalSteps,omitempty"`
	PartialScores []int64          `json:"partialScores,omitempty"`
}

// WeightSnapshot records the roulette weights after a chain.
type WeightSnapshot struct {
	Chain   int       `json:"chain"`
	Weights []float64 `json:"weights"`
}

const snapshotEvery = 50

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Run searches from sol. The stage is solved in its wide orientation and the
// result is mapped back, so callers always see the task as given.
func (o *Orchestrator) Run(ctx context.Context, task *model.Task, sol model.Solution, rng *rand.Rand) (Result, error) {
	if len(o.Moves) == 0 {
		return Result{}, errors.New("orchestrator: no moves configured")
	}
	if o.Weights != nil && len(o.Weights) != len(o.Moves) {
		return Result{}, fmt.Errorf("orchestrator: %d weights for %d moves", len(o.Weights), len(o.Moves))
	}
	if task.IsWide() {
		return o.run(ctx, task, sol, rng), nil
	}
	res := o.run(ctx, task.Transpose(), sol.Transpose(), rng)
	// Reflection preserves every distance, so the visibility carries over.
	res.Solution = res.Solution.Transpose()
	res.Metrics.Transposed = true
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, task *model.Task, sol model.Solution, rng *rand.Rand) Result {
	start := time.Now()
	log := o.logger()
	best := NewCandidate(task, sol)
	bestScore := Evaluate(task, best)

	weights := make([]float64, len(o.Moves))
	for i := range weights {
		weights[i] = 1
		if o.Weights != nil {
			weights[i] = math.Max(0.01, o.Weights[i])
		}
	}
	m := Metrics{Selects: map[string]int{}, InitialScore: bestScore}
	var deadline time.Time
	if o.TimeBudget > 0 {
		deadline = start.Add(o.TimeBudget)
	}
	chainLen := max(1, o.ChainLength)
	patience := max(1, o.Patience)
	state := Improving
	failures := 0
	for state == Improving {
		if ctx.Err() != nil {
			m.StopReason = StopCancelled
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			m.StopReason = StopBudget
			break
		}
		m.Chains++
		chain := sampleChain(weights, chainLen, rng)
		cand := best
		for _, idx := range chain {
			mv := o.Moves[idx]
			m.Selects[mv.Kind().String()]++
			var err error
			cand, err = o.apply(mv, task, cand, rng)
			if err != nil {
				m.MoveErrors++
				log.Debug("move skipped", "move", mv.Kind().String(), "err", err)
			}
		}
		s := Evaluate(task, cand)
		if s > bestScore {
			log.Debug("chain accepted", "chain", m.Chains, "score", s, "gain", s-bestScore)
			best, bestScore = cand, s
			m.Improvements++
			failures = 0
			for _, idx := range chain {
				weights[idx] += 0.1
			}
		} else {
			failures++
			for _, idx := range chain {
				weights[idx] = math.Max(0.01, weights[idx]*0.999)
			}
			if failures >= patience {
				state = Converged
				m.StopReason = StopConverged
			}
		}
		if m.Chains%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, WeightSnapshot{Chain: m.Chains, Weights: append([]float64(nil), weights...)})
		}
	}
	m.BestScore = bestScore
	m.FinalWeights = weights
	m.DurationMs = time.Since(start).Milliseconds()
	log.Info("search finished", "state", state.String(), "reason", m.StopReason, "chains", m.Chains,
		"improvements", m.Improvements, "initial", m.InitialScore, "best", bestScore)
	return Result{Candidate: best, Score: bestScore, State: state, Metrics: m}
}

// apply runs one move and turns a panic inside it into a no-op.
func (o *Orchestrator) apply(mv Move, task *model.Task, c Candidate, rng *rand.Rand) (out Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger().Warn("move panicked", "move", mv.Kind().String(), "panic", r)
			out, err = c, fmt.Errorf("%s panicked: %v", mv.Kind(), r)
		}
	}()
	return mv.Apply(task, c, rng)
}

// sampleChain draws n move indices by roulette; consecutive draws differ
// whenever more than one move is available.
func sampleChain(weights []float64, n int, rng *rand.Rand) []int {
	chain := make([]int, 0, n)
	masked := make([]float64, len(weights))
	prev := -1
	for len(chain) < n {
		copy(masked, weights)
		if prev >= 0 && len(weights) > 1 {
			masked[prev] = 0
		}
		idx := selectOp(masked, rng)
		chain = append(chain, idx)
		prev = idx
	}
	return chain
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		last = i
		if r <= acc {
			return i
		}
	}
	return last
}

// Pass applies every move in order, keeping improvements, and repeats until a
// full round gains nothing.
func (o *Orchestrator) Pass(ctx context.Context, task *model.Task, sol model.Solution, rng *rand.Rand) (Result, error) {
	if len(o.Moves) == 0 {
		return Result{}, errors.New("orchestrator: no moves configured")
	}
	start := time.Now()
	log := o.logger()
	best := NewCandidate(task, sol)
	bestScore := Evaluate(task, best)
	m := Metrics{Selects: map[string]int{}, InitialScore: bestScore}
	var deadline time.Time
	if o.TimeBudget > 0 {
		deadline = start.Add(o.TimeBudget)
	}
	state := Improving
	for state == Improving {
		improved := false
		for _, mv := range o.Moves {
			if ctx.Err() != nil {
				m.StopReason = StopCancelled
				break
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				m.StopReason = StopBudget
				break
			}
			m.Chains++
			m.Selects[mv.Kind().String()]++
			cand, err := o.apply(mv, task, best, rng)
			if err != nil {
				m.MoveErrors++
				log.Debug("move skipped", "move", mv.Kind().String(), "err", err)
			}
			if s := Evaluate(task, cand); s > bestScore {
				log.Debug("move accepted", "move", mv.Kind().String(), "score", s)
				best, bestScore = cand, s
				m.Improvements++
				improved = true
			}
		}
		if m.StopReason != "" {
			break
		}
		if !improved {
			state = Converged
			m.StopReason = StopConverged
		}
	}
	m.BestScore = bestScore
	m.DurationMs = time.Since(start).Milliseconds()
	log.Info("pass finished", "state", state.String(), "reason", m.StopReason, "best", bestScore)
	return Result{Candidate: best, Score: bestScore, State: state, Metrics: m}, nil
}

// Incremental grows the solution chunk musicians at a time. Each new musician
// starts at a random free point and the search runs on every partial task.
func (o *Orchestrator) Incremental(ctx context.Context, task *model.Task, chunk int, rng *rand.Rand) (Result, error) {
	if chunk <= 0 {
		chunk = 1
	}
	total := len(task.Musicians)
	var sol model.Solution
	var (
		res    Result
		err    error
		scores []int64
	)
	for n := min(chunk, total); ; n = min(n+chunk, total) {
		sub := task.Subtask(n)
		for len(sol.Placements) < n {
			p, perr := placeNew(task, sol, rng)
			if perr != nil {
				return Result{}, fmt.Errorf("incremental: musician %d: %w", len(sol.Placements), perr)
			}
			sol.Placements = append(sol.Placements, p)
			sol.Volumes = append(sol.Volumes, 1)
		}
		res, err = o.Run(ctx, sub, sol, rng)
		if err != nil {
			return Result{}, err
		}
		sol = res.Solution.Clone()
		scores = append(scores, res.Score)
		if n == total || ctx.Err() != nil {
			break
		}
	}
	if len(sol.Placements) < total {
		return Result{}, fmt.Errorf("incremental: stopped at %d of %d musicians: %w", len(sol.Placements), total, ctx.Err())
	}
	res.Metrics.Incremental = len(scores)
	res.Metrics.PartialScores = scores
	return res, nil
}

// placeNew finds a spot for one more musician: random sampling first, then a
// scan of the hex lattice.
func placeNew(task *model.Task, sol model.Solution, rng *rand.Rand) (p geom.Point, err error) {
	if p, err = RandomValidPoint(task, sol.Placements, -1, 200, rng); err == nil {
		return p, nil
	}
	for _, q := range hexPoints(task, 1, math.MaxInt) {
		if isFree(sol.Placements, q, -1) {
			return q, nil
		}
	}
	return p, score.ErrNoFeasibleCandidate
}
