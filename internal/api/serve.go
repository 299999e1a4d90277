package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// ListenAndServe runs the HTTP server and the webhook worker until ctx is
// done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + strconv.Itoa(s.Config.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if len(s.Config.Webhooks.URLs) > 0 {
		go s.NewWebhookWorker().Run(workerCtx)
	}

	errc := make(chan error, 1)
	go func() {
		s.Logger.Info("API listening", "addr", addr, "store", storeKind(s.Store))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if c, ok := s.Broker.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	return err
}
