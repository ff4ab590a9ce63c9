package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/linaldb/linal/internal/config"
	"github.com/linaldb/linal/pkg/engine"
)

// Server fronts one engine with an HTTP query API. Each request runs one
// script under the configured command timeout; per-database exclusion is
// the engine's instance mutex.
type Server struct {
	config     *config.Config
	engine     *engine.Engine
	logger     *zap.Logger
	httpServer *http.Server
}

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	Query    string `json:"query"`
	Database string `json:"database,omitempty"`
}

// QueryResponse carries one output envelope per executed statement plus
// the database the session ended on.
type QueryResponse struct {
	Outputs  []*engine.Output `json:"outputs"`
	Database string           `json:"database"`
}

// New creates a new server instance.
func New(cfg *config.Config, eng *engine.Engine, logger *zap.Logger) *Server {
	srv := &Server{
		config: cfg,
		engine: eng,
		logger: logger,
	}
	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	srv.setupRoutes()
	return srv
}

// Start starts serving in the background.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger.Info("starting HTTP server", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

// setupRoutes sets up HTTP routes.
func (s *Server) setupRoutes() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/query", s.handleQuery)
	mux.HandleFunc("/api/v1/databases", s.handleDatabases)
	s.httpServer.Handler = mux
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleDatabases lists the known databases.
func (s *Server) handleDatabases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"databases": s.engine.Databases()})
}

// handleQuery executes one script per request.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess := s.engine.Session()
	if req.Database != "" {
		out := sess.ExecuteScript(r.Context(), fmt.Sprintf("USE %s;", req.Database))
		if len(out) == 1 && out[0].Kind == engine.KindError {
			writeJSON(w, http.StatusOK, QueryResponse{Outputs: out, Database: sess.Current()})
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Server.CommandTimeout)
	defer cancel()

	start := time.Now()
	outputs := sess.ExecuteScript(ctx, req.Query)
	s.logger.Debug("executed query",
		zap.String("database", sess.Current()),
		zap.Int("statements", len(outputs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, QueryResponse{Outputs: outputs, Database: sess.Current()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
