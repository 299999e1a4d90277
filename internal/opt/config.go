package opt

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config describes an orchestrator and the parameters of every move.
type Config struct {
	ChainLength int           `yaml:"chain_length" json:"chain_length"`
	Patience    int           `yaml:"patience" json:"patience"`
	TimeBudget  time.Duration `yaml:"time_budget" json:"time_budget"`
	// Moves lists the enabled moves by name, in Pass order.
	Moves   []string           `yaml:"moves" json:"moves"`
	Weights map[string]float64 `yaml:"weights" json:"weights"`

	Force    Force    `yaml:"force" json:"force"`
	Swap     Swap     `yaml:"swap" json:"swap"`
	Relocate Relocate `yaml:"relocate" json:"relocate"`
	Border   Border   `yaml:"border" json:"border"`
	Genetic  Genetic  `yaml:"genetic" json:"genetic"`
	Physics  Physics  `yaml:"physics" json:"physics"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		ChainLength: 3,
		Patience:    40,
		TimeBudget:  5 * time.Minute,
		Moves:       []string{"greedy", "force", "swap", "relocate", "border", "volumes", "genetic", "physics"},
		Weights:     map[string]float64{"genetic": 0.3, "physics": 0.5},
		Force:       DefaultForce(),
		Swap:        Swap{Attempts: 20},
		Relocate:    Relocate{Attempts: 50},
		Border:      Border{MaxCandidates: 64},
		Genetic:     DefaultGenetic(),
		Physics:     DefaultPhysics(),
	}
}

// Validate reports the first invalid value.
func (c Config) Validate() error {
	if c.ChainLength <= 0 {
		return fmt.Errorf("chain_length must be positive, got %d", c.ChainLength)
	}
	if c.Patience <= 0 {
		return fmt.Errorf("patience must be positive, got %d", c.Patience)
	}
	if c.TimeBudget < 0 {
		return fmt.Errorf("time_budget must not be negative, got %s", c.TimeBudget)
	}
	if len(c.Moves) == 0 {
		return errors.New("at least one move is required")
	}
	for _, name := range c.Moves {
		if _, err := ParseMoveKind(name); err != nil {
			return err
		}
	}
	for name, w := range c.Weights {
		if _, err := ParseMoveKind(name); err != nil {
			return fmt.Errorf("weights: %w", err)
		}
		if w < 0 {
			return fmt.Errorf("weights: %s must not be negative", name)
		}
	}
	if c.Force.MaxStep <= 0 {
		return fmt.Errorf("force.max_step must be positive, got %g", c.Force.MaxStep)
	}
	return nil
}

// BuildMoves instantiates the configured moves.
func (c Config) BuildMoves() ([]Move, []float64, error) {
	moves := make([]Move, 0, len(c.Moves))
	weights := make([]float64, 0, len(c.Moves))
	for _, name := range c.Moves {
		kind, err := ParseMoveKind(name)
		if err != nil {
			return nil, nil, err
		}
		var mv Move
		switch kind {
		case KindGreedy:
			mv = Greedy{}
		case KindForce:
			mv = c.Force
		case KindSwap:
			mv = c.Swap
		case KindRelocate:
			mv = c.Relocate
		case KindBorder:
			mv = c.Border
		case KindGenetic:
			mv = c.Genetic
		case KindPhysics:
			mv = c.Physics
		case KindVolumes:
			mv = Volumes{}
		}
		w, ok := c.Weights[name]
		if !ok {
			w = 1
		}
		moves = append(moves, mv)
		weights = append(weights, w)
	}
	return moves, weights, nil
}

// NewOrchestrator builds an orchestrator from c.
func NewOrchestrator(c Config, logger *slog.Logger) (*Orchestrator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	moves, weights, err := c.BuildMoves()
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		Moves:       moves,
		Weights:     weights,
		ChainLength: c.ChainLength,
		Patience:    c.Patience,
		TimeBudget:  c.TimeBudget,
		Logger:      logger,
	}, nil
}
