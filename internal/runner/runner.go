// Package runner drives optimizer runs against a store: it loads a problem,
// picks a starting solution, searches, and keeps the result if it improves
// on the stored best.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/SlNPacifist/icfpc2023/internal/metrics"
	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/opt"
	"github.com/SlNPacifist/icfpc2023/internal/score"
	"github.com/SlNPacifist/icfpc2023/internal/store"
	"github.com/SlNPacifist/icfpc2023/internal/visibility"
)

// Search modes.
const (
	ModeChain       = "chain"
	ModePass        = "pass"
	ModeIncremental = "incremental"
)

// Starting points. Any opt.Seed name is accepted as well.
const (
	BaseDummy  = "dummy"
	BaseSpread = "spread"
	BaseBest   = "best"
)

type Options struct {
	Mode   string        `json:"mode"`
	Base   string        `json:"base"`
	Seed   int64         `json:"seed"`
	Budget time.Duration `json:"budget"`
	Chunk  int           `json:"chunk"`
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeChain
	}
	if o.Base == "" {
		o.Base = BaseBest
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.Chunk <= 0 {
		o.Chunk = 10
	}
	return o
}

func (o Options) Validate() error {
	switch o.Mode {
	case "", ModeChain, ModePass, ModeIncremental:
	default:
		return fmt.Errorf("unknown mode %q", o.Mode)
	}
	if o.Budget < 0 {
		return fmt.Errorf("budget must not be negative, got %s", o.Budget)
	}
	return nil
}

// Outcome reports one run or submission.
type Outcome struct {
	ProblemID string         `json:"problemId"`
	Score     int64          `json:"score"`
	Previous  *int64         `json:"previous,omitempty"`
	Saved     bool           `json:"saved"`
	Error     string         `json:"error,omitempty"`
	Metrics   *opt.Metrics   `json:"metrics,omitempty"`
	Solution  model.Solution `json:"-"`
}

// ImprovedFunc is called after a strictly better solution has been stored.
type ImprovedFunc func(ctx context.Context, rec store.Record, previous *int64)

type Runner struct {
	Store      store.Store
	Config     opt.Config
	Logger     *slog.Logger
	OnImproved ImprovedFunc
}

func New(s store.Store, cfg opt.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Store: s, Config: cfg, Logger: logger}
}

// Optimize runs one search for problem id and stores the result when it is
// strictly better than the stored best.
func (r *Runner) Optimize(ctx context.Context, id string, o Options) (Outcome, error) {
	if err := o.Validate(); err != nil {
		return Outcome{}, err
	}
	o = o.withDefaults()
	log := r.Logger.With("problem", id, "mode", o.Mode, "base", o.Base)

	task, err := r.Store.GetTask(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("problem %s: %w", id, err)
	}
	cfg := r.Config
	if o.Budget > 0 {
		cfg.TimeBudget = o.Budget
	}
	orch, err := opt.NewOrchestrator(cfg, log)
	if err != nil {
		return Outcome{}, err
	}
	rng := rand.New(rand.NewSource(o.Seed))

	var res opt.Result
	if o.Mode == ModeIncremental {
		res, err = orch.Incremental(ctx, task, o.Chunk, rng)
	} else {
		var start model.Solution
		start, err = r.base(ctx, id, task, o.Base)
		if err != nil {
			return Outcome{}, err
		}
		if o.Mode == ModePass {
			res, err = orch.Pass(ctx, task, start, rng)
		} else {
			res, err = orch.Run(ctx, task, start, rng)
		}
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("problem %s: %w", id, err)
	}

	opt.RecordMetrics(id, o.Mode, res.Metrics)
	metrics.ObserveRun(o.Mode, res.Metrics)
	if err := r.Store.SaveRunMetrics(ctx, id, o.Mode, res.Metrics); err != nil {
		log.Warn("save run metrics", "err", err)
	}

	out, err := r.keep(context.WithoutCancel(ctx), id, res.Solution, res.Score)
	if err != nil {
		return Outcome{}, err
	}
	m := res.Metrics
	out.Metrics = &m
	log.Info("optimize finished", "score", out.Score, "saved", out.Saved, "chains", m.Chains, "reason", m.StopReason)
	return out, nil
}

// base picks the starting solution. "best" falls back to the spread seed
// when nothing usable is stored.
func (r *Runner) base(ctx context.Context, id string, task *model.Task, name string) (model.Solution, error) {
	if name == BaseBest {
		rec, err := r.Store.GetBest(ctx, id)
		switch {
		case err == nil && score.Validate(task, rec.Solution) == nil:
			return rec.Solution, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return model.Solution{}, err
		}
		name = BaseSpread
	}
	return opt.Seed(task, name)
}

// Submit scores sol for problem id and stores it when it is strictly better.
// An unscorable solution counts as opt.MinScore and is never stored.
func (r *Runner) Submit(ctx context.Context, id string, sol model.Solution) (Outcome, error) {
	task, err := r.Store.GetTask(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("problem %s: %w", id, err)
	}
	s, serr := score.Score(task, sol, visibility.Compute(task, sol))
	if serr != nil {
		out := Outcome{ProblemID: id, Score: opt.MinScore, Error: serr.Error()}
		if rec, err := r.Store.GetBest(ctx, id); err == nil {
			out.Previous = &rec.Score
		}
		return out, nil
	}
	return r.keep(ctx, id, sol, s)
}

// RecalcVolumes reassigns optimal volumes to the stored best solution.
func (r *Runner) RecalcVolumes(ctx context.Context, id string) (Outcome, error) {
	task, err := r.Store.GetTask(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("problem %s: %w", id, err)
	}
	rec, err := r.Store.GetBest(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("solution %s: %w", id, err)
	}
	sol := rec.Solution.Clone()
	vis := visibility.Compute(task, sol)
	sol.Volumes = score.OptimalVolumes(task, sol, vis)
	s, err := score.Score(task, sol, vis)
	if err != nil {
		return Outcome{}, fmt.Errorf("solution %s: %w", id, err)
	}
	return r.keep(ctx, id, sol, s)
}

func (r *Runner) keep(ctx context.Context, id string, sol model.Solution, s int64) (Outcome, error) {
	out := Outcome{ProblemID: id, Score: s, Solution: sol}
	prev, err := r.Store.GetBest(ctx, id)
	if err == nil {
		out.Previous = &prev.Score
	} else if !errors.Is(err, store.ErrNotFound) {
		return Outcome{}, err
	}
	if s <= opt.MinScore {
		return out, nil
	}
	saved, err := r.Store.SaveIfBetter(ctx, id, sol, s)
	if err != nil {
		return Outcome{}, fmt.Errorf("save %s: %w", id, err)
	}
	out.Saved = saved
	if saved {
		metrics.BestScore.WithLabelValues(id).Set(float64(s))
		if r.OnImproved != nil {
			r.OnImproved(ctx, store.Record{ProblemID: id, Solution: sol, Score: s, UpdatedAt: time.Now().UTC()}, out.Previous)
		}
	}
	return out, nil
}

// Selection lists problem ids between from and to inclusive, plus explicit ids.
func Selection(ctx context.Context, s store.Store, ids []string, from, to int) ([]string, error) {
	out := append([]string(nil), ids...)
	if from <= 0 && to <= 0 {
		if len(out) > 0 {
			return out, nil
		}
		return s.ListProblems(ctx)
	}
	all, err := s.ListProblems(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range all {
		n, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		if (from <= 0 || n >= from) && (to <= 0 || n <= to) {
			out = append(out, id)
		}
	}
	return out, nil
}
