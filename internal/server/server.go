// Package server exposes the engine's operational HTTP surface: health,
// statistics and Prometheus metrics. Data-plane traffic never goes through
// HTTP; consumers call the orchestrator directly.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cache-engine/internal/cache"
	"cache-engine/internal/common/logging"
)

// HealthChecker reports remote tier reachability
type HealthChecker interface {
	Health() error
}

// Server is the ops HTTP server
type Server struct {
	httpServer *http.Server
	engine     *cache.Orchestrator
	remote     HealthChecker // nil when running local-only
	logger     logging.Logger
}

// New builds the server on the given port
func New(port string, engine *cache.Orchestrator, remote HealthChecker, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		engine: engine,
		remote: remote,
		logger: logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/stats/reset", s.handleStatsReset).Methods("POST")
	api.HandleFunc("/cache/clear", s.handleClear).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Ops server listening", logging.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status       string `json:"status"`
	RemoteTier   string `json:"remote_tier"`
	LocalEntries int    `json:"local_entries"`
}

// handleHealth reports overall and remote tier health. A degraded remote
// tier still answers 200: the engine keeps serving from the local tier.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "ok",
		RemoteTier:   "disabled",
		LocalEntries: s.engine.LocalLen(),
	}
	if s.remote != nil {
		if err := s.remote.Health(); err != nil {
			resp.Status = "degraded"
			resp.RemoteTier = "unreachable"
		} else {
			resp.RemoteTier = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetStats())
}

func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	s.engine.ResetStats()
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.Context()); err != nil {
		s.logger.Error("Cache clear failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
