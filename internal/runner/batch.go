package runner

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/score"
	"github.com/SlNPacifist/icfpc2023/internal/store"
)

// OptimizeAll runs Optimize for every id with at most concurrency runs in
// flight. A failing problem is reported in its Outcome and does not stop the
// others. Problem ids get distinct seeds derived from o.Seed.
func (r *Runner) OptimizeAll(ctx context.Context, ids []string, o Options, concurrency int) []Outcome {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	o = o.withDefaults()
	out := make([]Outcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			po := o
			po.Seed = o.Seed + int64(i)
			res, err := r.Optimize(gctx, id, po)
			if err != nil {
				r.Logger.Error("optimize failed", "problem", id, "err", err)
				res = Outcome{ProblemID: id, Error: err.Error()}
			}
			out[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Ranked is one row of the potential ranking.
type Ranked struct {
	ProblemID string `json:"problemId"`
	Potential int64  `json:"potential"`
	Best      *int64 `json:"best,omitempty"`
	// Gap is Potential minus Best, or Potential when nothing is stored.
	Gap int64 `json:"gap"`
}

// Rank orders the stored problems by the room left between their potential
// and their best score, largest first.
func Rank(ctx context.Context, s store.Store) ([]Ranked, error) {
	ids, err := s.ListProblems(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]*model.Task, len(ids))
	for i, id := range ids {
		if tasks[i], err = s.GetTask(ctx, id); err != nil {
			return nil, err
		}
	}
	out := make([]Ranked, len(ids))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range ids {
		g.Go(func() error {
			out[i] = Ranked{ProblemID: ids[i], Potential: score.Potential(tasks[i])}
			return nil
		})
	}
	_ = g.Wait()
	for i := range out {
		out[i].Gap = out[i].Potential
		if rec, err := s.GetBest(ctx, out[i].ProblemID); err == nil {
			best := rec.Score
			out[i].Best = &best
			out[i].Gap = out[i].Potential - max(best, 0)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Gap > out[j].Gap })
	return out, nil
}
