// Package http serves the operational endpoints of a pipeline process:
// liveness, readiness, Prometheus metrics and the outcome of the last run.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/raster-pipeline/internal/pipeline"
)

// RunStatus is the view of a pipeline the server reports on.
type RunStatus interface {
	sharedobs.ReadinessChecker
	// LastSummary returns the summary of the most recent finished run.
	LastSummary() (pipeline.Summary, bool)
}

// Server exposes health, readiness, metrics and run status endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /runs/last routes.
func NewServer(addr string, status RunStatus, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(status))
	mux.HandleFunc("GET /runs/last", handleLastRun(status))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type runResponse struct {
	RunID       string   `json:"run_id"`
	Product     string   `json:"product"`
	Dates       int      `json:"dates"`
	Processed   int      `json:"processed"`
	Skipped     int      `json:"skipped"`
	Cached      int      `json:"cached"`
	CoveragePct *float64 `json:"coverage_pct,omitempty"`
	Missing     []string `json:"missing,omitempty"`
}

func handleLastRun(status RunStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sum, ok := status.LastSummary()
		if !ok {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"status": "no run has finished yet"})
			return
		}
		resp := runResponse{
			RunID:     sum.RunID,
			Product:   sum.Product,
			Dates:     sum.Dates,
			Processed: sum.Processed,
			Skipped:   sum.Skipped,
			Cached:    sum.Cached,
		}
		if sum.Coverage != nil {
			pct := sum.Coverage.CoveragePct
			resp.CoveragePct = &pct
			for _, d := range sum.Coverage.Missing {
				resp.Missing = append(resp.Missing, d.Format(time.DateOnly))
			}
		}
		sharedobs.WriteJSON(w, http.StatusOK, resp)
	}
}
