// Package ops serves the operational HTTP endpoints: Prometheus metrics and
// a health check that pings the bot's backing services.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/eventbot/core/logger"
)

const checkTimeout = 2 * time.Second

// Check is a named dependency probe used by /healthz.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter mounts /metrics and /healthz.
func NewRouter(checks ...Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler(checks))
	return r
}

func healthHandler(checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		report := healthReport{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for _, c := range checks {
			if c.Ping == nil {
				continue
			}
			if err := c.Ping(ctx); err != nil {
				report.Checks[c.Name] = err.Error()
				report.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			report.Checks[c.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// Server runs the ops router on its own listener.
type Server struct {
	srv  *http.Server
	done chan struct{}
}

// Start serves h on listen in the background.
func Start(listen string, h http.Handler) *Server {
	s := &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		logger.Ops.Info("ops listener started",
			slog.String("event", "ops.start"),
			slog.String("listen", listen),
		)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Ops.Error("ops listener failed",
				slog.String("event", "ops.fail"),
				slog.String("err", err.Error()),
			)
		}
	}()
	return s
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
