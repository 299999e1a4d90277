package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SlNPacifist/icfpc2023/internal/model"
)

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir|file.json>...",
		Short: "Load problem files named <id>.json into the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.store(ctx)
			if err != nil {
				return err
			}
			var files []string
			for _, arg := range args {
				info, err := os.Stat(arg)
				if err != nil {
					return err
				}
				if !info.IsDir() {
					files = append(files, arg)
					continue
				}
				matches, err := filepath.Glob(filepath.Join(arg, "*.json"))
				if err != nil {
					return err
				}
				files = append(files, matches...)
			}
			for _, path := range files {
				id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				task, err := readTaskFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := st.PutTask(ctx, id, task); err != nil {
					return err
				}
				a.logger.Info("imported problem", "problem", id, "musicians", len(task.Musicians), "attendees", len(task.Attendees))
			}
			fmt.Fprintf(a.out, "imported %d problems\n", len(files))
			return nil
		},
	}
}

func readTaskFile(path string) (*model.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return model.ReadTask(f)
}
