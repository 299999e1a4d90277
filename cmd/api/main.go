package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/SlNPacifist/icfpc2023/internal/api"
	"github.com/SlNPacifist/icfpc2023/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("STAGEOPT_CONFIG"))
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)

	srv, err := api.NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to init server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
