package cycle

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/agentstation/syncbridge/pkg/constants"
)

// NewHandler serves Prometheus metrics on /metrics and dependency health
// on /health.
func NewHandler(health func() error) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if health != nil {
			if err := health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error() + "\n"))
				return
			}
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// NewServer creates the metrics server.
func NewServer(addr string, health func() error) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(health),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Serve starts srv in the background. The returned function shuts it down
// and is also called when ctx is done.
func Serve(ctx context.Context, srv *http.Server, logger *zerolog.Logger) func() {
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("addr", srv.Addr).Msg("metrics server failed")
		}
	}()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
		case <-done:
		}
		// The parent context may already be cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown failed")
		}
	}()

	return func() {
		select {
		case <-done:
		default:
			close(done)
		}
		<-stopped
	}
}
