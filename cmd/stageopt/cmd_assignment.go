package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/SlNPacifist/icfpc2023/internal/integrations"
	"github.com/SlNPacifist/icfpc2023/internal/integrations/assignment"
	"github.com/SlNPacifist/icfpc2023/internal/integrations/jsonfile"
)

func (a *app) adapter(dir string) integrations.AssignmentAdapter {
	if dir == "" {
		dir = filepath.Join(a.cfg.DataDir, "assignment")
	}
	return jsonfile.Adapter{Dir: dir}
}

func (a *app) makeAssignmentInputCmd() *cobra.Command {
	var (
		sel selectionFlags
		dir string
	)
	cmd := &cobra.Command{
		Use:   "make-assignment-input [ids...]",
		Short: "Export the stored best placements as assignment problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.store(ctx)
			if err != nil {
				return err
			}
			ids, err := sel.ids(ctx, st, args)
			if err != nil {
				return err
			}
			ad := a.adapter(dir)
			for _, id := range ids {
				task, err := st.GetTask(ctx, id)
				if err != nil {
					return fmt.Errorf("problem %s: %w", id, err)
				}
				rec, err := st.GetBest(ctx, id)
				if err != nil {
					return fmt.Errorf("solution %s: %w", id, err)
				}
				in, err := assignment.Export(task, rec.Solution)
				if err != nil {
					return fmt.Errorf("export %s: %w", id, err)
				}
				if err := ad.WriteInput(ctx, id, in); err != nil {
					return err
				}
				a.logger.Info("assignment input written", "problem", id, "adapter", ad.Name(), "positions", len(in.Positions))
			}
			return nil
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVar(&dir, "dir", "", "exchange directory (default <data-dir>/assignment)")
	return cmd
}

func (a *app) applyAssignmentOutputCmd() *cobra.Command {
	var (
		sel selectionFlags
		dir string
	)
	cmd := &cobra.Command{
		Use:   "apply-assignment-output [ids...]",
		Short: "Read solver outputs back and keep them if they score better",
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
			ad := a.adapter(dir)
			for _, id := range ids {
				task, err := r.Store.GetTask(ctx, id)
				if err != nil {
					return fmt.Errorf("problem %s: %w", id, err)
				}
				in, err := ad.ReadInput(ctx, id)
				if err != nil {
					return fmt.Errorf("assignment input %s: %w", id, err)
				}
				out, err := ad.ReadOutput(ctx, id)
				if err != nil {
					return fmt.Errorf("assignment output %s: %w", id, err)
				}
				sol, _, err := assignment.Apply(task, in, out)
				if err != nil {
					return fmt.Errorf("apply %s: %w", id, err)
				}
				res, err := r.Submit(ctx, id, sol)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s\t%d\tprevious=%s\tsaved=%t\n", id, res.Score, formatPrev(res.Previous), res.Saved)
			}
			return nil
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVar(&dir, "dir", "", "exchange directory (default <data-dir>/assignment)")
	return cmd
}
