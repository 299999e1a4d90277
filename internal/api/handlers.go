package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/opt"
	"github.com/SlNPacifist/icfpc2023/internal/runner"
	"github.com/SlNPacifist/icfpc2023/internal/score"
	"github.com/SlNPacifist/icfpc2023/internal/store"
	"github.com/SlNPacifist/icfpc2023/internal/visibility"
)

// ProblemHandler serves the task in contest JSON.
func (s *Server) ProblemHandler(w http.ResponseWriter, r *http.Request) {
	task, err := s.Store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ProblemsHandler lists problems ranked by the gap between potential and best.
func (s *Server) ProblemsHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := runner.Rank(r.Context(), s.Store)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"problems": rows})
}

// SolutionHandler serves the best stored solution and its score.
func (s *Server) SolutionHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Store.GetBest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ScoreHandler scores the posted solution without storing it.
func (s *Server) ScoreHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := s.Store.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var sol model.Solution
	if !decodeJSON(w, r, &sol) {
		return
	}
	if err := score.Validate(task, sol); err != nil {
		writeError(w, r, err)
		return
	}
	bd, err := score.ScoreBreakdown(task, sol, visibility.Compute(task, sol))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bd)
}

// UpdateHandler scores the posted solution and stores it when it beats the
// stored best. An invalid solution is answered with score MinScore.
func (s *Server) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	var sol model.Solution
	if !decodeJSON(w, r, &sol) {
		return
	}
	out, err := s.Runner.Submit(r.Context(), r.PathValue("id"), sol)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// OptimizeHandler runs the optimizer within the request budget and stores
// the result when it improves.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	o, err := req.options(s.Config.HTTP.OptimizeBudget)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	ctx := r.Context()
	if o.Budget > 0 {
		// grace for the final evaluation and save
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Budget+5*time.Second)
		defer cancel()
	}
	out, err := s.Runner.Optimize(ctx, r.PathValue("id"), o)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, score.ErrNoFeasibleCandidate) {
			writeError(w, r, err)
			return
		}
		writeProblem(w, http.StatusBadRequest, "Optimize failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// RunMetricsHandler reports the latest optimizer metrics per mode.
func (s *Server) RunMetricsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	runs, err := s.Store.ListRunMetrics(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// runs of this process that a remote store may not have yet
	for mode, m := range opt.GetMetrics(id) {
		if _, ok := runs[mode]; !ok {
			runs[mode] = m
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"problemId": id, "runs": runs})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler checks the database and Redis when they are in use.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping(ctx context.Context) error }
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	for _, dep := range []any{s.Store, s.Broker} {
		if p, ok := dep.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "store": storeKind(s.Store)})
}

func storeKind(s store.Store) string {
	switch s.(type) {
	case *store.Postgres:
		return "postgres"
	case *store.Files:
		return "files"
	case *store.Memory:
		return "memory"
	default:
		return "custom"
	}
}
