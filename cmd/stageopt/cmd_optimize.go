package main

import (
	"fmt"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/SlNPacifist/icfpc2023/internal/runner"
)

func (a *app) optimizeCmd() *cobra.Command {
	var (
		sel  selectionFlags
		o    runner.Options
		jobs int
	)
	cmd := &cobra.Command{
		Use:   "optimize [ids...]",
		Short: "Run the optimizer and keep strictly better solutions",
		Long: `Runs the move orchestrator for every selected problem.

Modes: chain (weighted random move chains until convergence), pass (every
move in order until none improves), incremental (grow the solution a chunk
of musicians at a time). Bases: dummy, spread, best (stored best, falling
back to spread), hex, narrow.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := a.runner(ctx)
			if err != nil {
				return err
			}
			ids, err := sel.ids(ctx, r.Store, args)
			if err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			if o.Seed == 0 {
				o.Seed = time.Now().UnixNano()
			}
			a.logger.Info("optimizing", "problems", len(ids), "mode", o.Mode, "base", o.Base, "seed", o.Seed, "jobs", jobs)

			outcomes := r.OptimizeAll(ctx, ids, o, jobs)
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROBLEM\tSCORE\tPREVIOUS\tSAVED\tERROR")
			failed := 0
			for _, out := range outcomes {
				if out.Error != "" {
					failed++
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%t\t%s\n", out.ProblemID, out.Score, formatPrev(out.Previous), out.Saved, out.Error)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d problems failed", failed, len(ids))
			}
			return nil
		},
	}
	sel.register(cmd)
	f := cmd.Flags()
	f.StringVar(&o.Mode, "mode", runner.ModeChain, "chain|pass|incremental")
	f.StringVar(&o.Base, "base", runner.BaseBest, "dummy|spread|best|hex|narrow")
	f.Int64Var(&o.Seed, "seed", 0, "random seed (0 picks one)")
	f.DurationVar(&o.Budget, "budget", 0, "time budget per problem (0 uses the config)")
	f.IntVar(&o.Chunk, "chunk", 10, "musicians added per incremental step")
	f.IntVar(&jobs, "jobs", runtime.GOMAXPROCS(0), "problems optimized concurrently")
	return cmd
}
