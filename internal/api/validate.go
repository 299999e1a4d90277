package api

import (
	"fmt"
	"time"

	"github.com/SlNPacifist/icfpc2023/internal/runner"
)

// OptimizeRequest is the body of POST /api/problem/{id}/optimize. Every
// field is optional.
type OptimizeRequest struct {
	Mode     string `json:"mode"`
	Base     string `json:"base"`
	Seed     int64  `json:"seed"`
	BudgetMs int64  `json:"budgetMs"`
	Chunk    int    `json:"chunk"`
}

// options validates req and clamps its budget to limit.
func (req OptimizeRequest) options(limit time.Duration) (runner.Options, error) {
	if req.BudgetMs < 0 {
		return runner.Options{}, fmt.Errorf("budgetMs must be >= 0")
	}
	if req.Chunk < 0 {
		return runner.Options{}, fmt.Errorf("chunk must be >= 0")
	}
	budget := time.Duration(req.BudgetMs) * time.Millisecond
	if budget == 0 || (limit > 0 && budget > limit) {
		budget = limit
	}
	o := runner.Options{Mode: req.Mode, Base: req.Base, Seed: req.Seed, Budget: budget, Chunk: req.Chunk}
	if err := o.Validate(); err != nil {
		return runner.Options{}, err
	}
	return o, nil
}
