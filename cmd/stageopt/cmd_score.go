package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/runner"
	"github.com/SlNPacifist/icfpc2023/internal/score"
	"github.com/SlNPacifist/icfpc2023/internal/visibility"
)

func (a *app) scoreCmd() *cobra.Command {
	var breakdown bool
	cmd := &cobra.Command{
		Use:   "score <id> [solution.json]",
		Short: "Score the stored best, or a solution file, for one problem",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.store(ctx)
			if err != nil {
				return err
			}
			task, err := st.GetTask(ctx, args[0])
			if err != nil {
				return fmt.Errorf("problem %s: %w", args[0], err)
			}
			var sol model.Solution
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				if sol, err = model.ReadSolution(f); err != nil {
					return err
				}
			} else {
				rec, err := st.GetBest(ctx, args[0])
				if err != nil {
					return fmt.Errorf("solution %s: %w", args[0], err)
				}
				sol = rec.Solution
			}
			if err := score.Validate(task, sol); err != nil {
				return err
			}
			bd, err := score.ScoreBreakdown(task, sol, visibility.Compute(task, sol))
			if err != nil {
				return err
			}
			if breakdown {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(bd)
			}
			fmt.Fprintln(a.out, bd.Total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&breakdown, "breakdown", false, "print per-attendee and per-musician totals as JSON")
	return cmd
}

func (a *app) potentialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "potential",
		Short: "Rank problems by the gap between their potential and best score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.store(ctx)
			if err != nil {
				return err
			}
			rows, err := runner.Rank(ctx, st)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROBLEM\tPOTENTIAL\tBEST\tGAP")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%d\n", r.ProblemID, r.Potential, formatPrev(r.Best), r.Gap)
			}
			return tw.Flush()
		},
	}
}

func (a *app) recalcVolumesCmd() *cobra.Command {
	var sel selectionFlags
	cmd := &cobra.Command{
		Use:   "recalc-volumes [ids...]",
		Short: "Reassign optimal volumes to stored solutions",
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
			failed := 0
			for _, id := range ids {
				out, err := r.RecalcVolumes(ctx, id)
				if err != nil {
					failed++
					a.logger.Error("recalc volumes", "problem", id, "err", err)
					continue
				}
				fmt.Fprintf(a.out, "%s\t%d\tsaved=%t\n", id, out.Score, out.Saved)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d problems failed", failed, len(ids))
			}
			return nil
		},
	}
	sel.register(cmd)
	return cmd
}
