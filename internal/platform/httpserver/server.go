// Package httpserver exposes the shared ops surface every process in this
// repository runs alongside its stream/DB work: liveness, readiness, and
// the generated swagger document. There is no vertical REST API here by
// design (spec §1 Out-of-scope: HTTP-facing projection-reading APIs).
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"corehub/internal/platform/logging"
)

// Checker reports whether a dependency (DB, bus) this process relies on is
// currently reachable. Adapters implement it; Server only calls it.
type Checker interface {
	Ping(ctx context.Context) error
}

// Server is the ops HTTP surface: /healthz (process is up), /readyz
// (dependencies are reachable), and /swagger/ (generated doc).
type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	httpServer *http.Server
	checks     map[string]Checker
}

// New builds the ops server. checks is a name -> dependency map consulted
// on every /readyz call; an empty map means readiness always succeeds.
func New(serviceName string, checks map[string]Checker, logger *slog.Logger, addr string) *Server {
	if addr == "" {
		addr = ":8080"
	}
	s := &Server{
		mux:    http.NewServeMux(),
		logger: logging.Resolve(logger),
		addr:   addr,
		checks: checks,
	}
	s.registerRoutes(serviceName)
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.mux}
	return s
}

func (s *Server) registerRoutes(serviceName string) {
	s.mux.Handle("/swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// @Summary Liveness probe
	// @Success 200 {object} map[string]string
	// @Router /healthz [get]
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
	})

	// @Summary Readiness probe
	// @Success 200 {object} map[string]string
	// @Failure 503 {object} map[string]string
	// @Router /readyz [get]
	s.mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		failures := map[string]string{}
		for name, checker := range s.checks {
			if err := checker.Ping(r.Context()); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			s.logger.WarnContext(r.Context(), "readiness check failed", "event", "readyz_failed", "module", "platform/httpserver", "layer", "http", "failures", failures)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "failures": failures})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
}

// Start runs the HTTP server until Shutdown is called or it fails.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "event", "http_server_starting", "module", "platform/httpserver", "layer", "platform", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Mux exposes the underlying router so a process can register additional
// routes (e.g. the messaging webhook ingress) alongside /healthz and /readyz.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
