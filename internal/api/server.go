// Package api serves problems, best solutions, scoring and optimizer runs over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/SlNPacifist/icfpc2023/internal/config"
	"github.com/SlNPacifist/icfpc2023/internal/metrics"
	"github.com/SlNPacifist/icfpc2023/internal/runner"
	"github.com/SlNPacifist/icfpc2023/internal/store"
	"github.com/SlNPacifist/icfpc2023/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker
	Runner *runner.Runner
	Config config.Config
	Logger *slog.Logger

	limiter *rate.Limiter
}

// NewServer wires a Server from cfg. Postgres is used when a database URL is
// configured, the data directory otherwise; Redis backs the event broker when
// a Redis URL is set.
func NewServer(cfg config.Config, logger *slog.Logger) (*Server, error) {
	s, err := store.Open(context.Background(), cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return newServer(cfg, logger, s)
}

func newServer(cfg config.Config, logger *slog.Logger, s store.Store) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL, logger)
		if err != nil {
			logger.Warn("redis broker unavailable, using in-process broker", "err", err)
		} else {
			broker = rb
		}
	}
	srv := &Server{
		Store:  s,
		Pub:    webhooks.NewPublisher(s, cfg.Webhooks.URLs, cfg.Webhooks.Secret),
		Broker: broker,
		Config: cfg,
		Logger: logger,
	}
	srv.Pub.Logger = logger
	if cfg.HTTP.RateRPS > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(cfg.HTTP.RateRPS), max(cfg.HTTP.RateBurst, 1))
	}
	srv.Runner = runner.New(s, cfg.Optimizer, logger)
	srv.Runner.OnImproved = srv.improved
	metrics.RegisterDefault()
	return srv, nil
}

// improved broadcasts a stored improvement to stream subscribers and webhooks.
func (s *Server) improved(ctx context.Context, rec store.Record, previous *int64) {
	data := map[string]any{
		"problemId": rec.ProblemID,
		"score":     rec.Score,
		"updatedAt": rec.UpdatedAt,
	}
	if previous != nil {
		data["previous"] = *previous
	}
	s.Broker.Publish(rec.ProblemID, Event{Type: webhooks.EventSolutionImproved, Data: data})
	s.Pub.Emit(ctx, webhooks.EventSolutionImproved, data)
}

// Routes returns the HTTP handler with every route and middleware attached.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/problems", s.ProblemsHandler)
	mux.HandleFunc("GET /api/problem/{id}", s.ProblemHandler)
	mux.Handle("POST /api/problem/{id}/optimize", s.requireToken(http.HandlerFunc(s.OptimizeHandler)))
	mux.HandleFunc("GET /api/problem/{id}/metrics", s.RunMetricsHandler)

	mux.HandleFunc("GET /api/solution/{id}", s.SolutionHandler)
	mux.HandleFunc("POST /api/solution/{id}/score", s.ScoreHandler)
	mux.Handle("POST /api/solution/{id}/update", s.requireToken(http.HandlerFunc(s.UpdateHandler)))
	mux.HandleFunc("GET /api/solution/{id}/events", s.EventsHandler)
	mux.HandleFunc("GET /ws", s.WSHandler)

	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /debug", s.DebugJSON)

	return s.logRequests(s.instrument(s.rateLimit(mux)))
}

// NewWebhookWorker creates the background outbox worker.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	w := webhooks.NewWorker(s.Store, s.Config.Webhooks.MaxAttempts)
	w.Logger = s.Logger
	return w
}
