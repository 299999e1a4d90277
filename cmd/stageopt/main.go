// Command stageopt optimizes musician placements for a set of problems and
// serves the results over HTTP.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SlNPacifist/icfpc2023/internal/config"
	"github.com/SlNPacifist/icfpc2023/internal/runner"
	"github.com/SlNPacifist/icfpc2023/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by every subcommand.
type app struct {
	configPath string
	dataDir    string

	cfg    config.Config
	logger *slog.Logger
	out    io.Writer
	st     store.Store
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "stageopt",
		Short:        "Place musicians on stage to maximize audience happiness",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("STAGEOPT_CONFIG"), "YAML config file")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (overrides config and STAGEOPT_DATA_DIR)")

	root.AddCommand(
		a.optimizeCmd(),
		a.potentialCmd(),
		a.scoreCmd(),
		a.recalcVolumesCmd(),
		a.makeAssignmentInputCmd(),
		a.applyAssignmentOutputCmd(),
		a.importCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	a.cfg = cfg
	a.logger = cfg.Log.NewLogger()
	slog.SetDefault(a.logger)
	a.out = cmd.OutOrStdout()
	return nil
}

// store opens the configured store on first use.
func (a *app) store(ctx context.Context) (store.Store, error) {
	if a.st != nil {
		return a.st, nil
	}
	st, err := store.Open(ctx, a.cfg.DatabaseURL, a.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	a.st = st
	return st, nil
}

func (a *app) runner(ctx context.Context) (*runner.Runner, error) {
	st, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	return runner.New(st, a.cfg.Optimizer, a.logger), nil
}

// selectionFlags adds --from/--to to commands that take problem ids.
type selectionFlags struct {
	from, to int
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.from, "from", 0, "first problem id of a numeric range")
	cmd.Flags().IntVar(&f.to, "to", 0, "last problem id of a numeric range")
}

func (f selectionFlags) ids(ctx context.Context, st store.Store, args []string) ([]string, error) {
	ids, err := runner.Selection(ctx, st, args, f.from, f.to)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no problems selected")
	}
	return ids, nil
}

func formatPrev(p *int64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}
