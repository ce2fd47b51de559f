// Package api provides the HTTP server for the encoder service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/iasik/hierarchical-encoder/internal/config"
	"github.com/iasik/hierarchical-encoder/internal/encoder"
	"github.com/iasik/hierarchical-encoder/internal/indexer"
	"github.com/iasik/hierarchical-encoder/internal/metrics"
	"github.com/iasik/hierarchical-encoder/internal/vectordb"
)

// Server represents the HTTP API server.
type Server struct {
	cfg        *config.Manager
	docEncoder *indexer.DocumentEncoder
	base       encoder.Provider
	vectorDB   vectordb.Provider
	metrics    *metrics.Metrics
	logger     *slog.Logger
	httpServer *http.Server
	mu         sync.RWMutex
	version    string
}

// NewServer creates a new API server. base is the provider behind
// docEncoder and is only used for health checks and model info.
func NewServer(
	cfg *config.Manager,
	docEncoder *indexer.DocumentEncoder,
	base encoder.Provider,
	vdb vectordb.Provider,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	return &Server{
		cfg:        cfg,
		docEncoder: docEncoder,
		base:       base,
		vectorDB:   vdb,
		metrics:    m,
		logger:     logger,
		version:    "1.0.0",
	}
}

// Handler returns the routed handler wrapped in the request logger.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /encode", s.handleEncode)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("GET /", s.handleRoot)

	return s.loggingMiddleware(mux)
}

// Start starts the HTTP server with graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Get()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	stopReload := s.setupHotReload()
	defer stopReload()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"port", cfg.Server.Port,
			"version", s.version,
			"segment_encoder", cfg.Model.SegmentEncoder)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown.
func (s *Server) shutdown() error {
	cfg := s.cfg.Get()
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	_, base, vdb := s.getProviders()
	if err := base.Close(); err != nil {
		s.logger.Warn("base encoder close error", "error", err)
	}
	if err := vdb.Close(); err != nil {
		s.logger.Warn("vectordb close error", "error", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// setupHotReload configures a SIGHUP handler for config reload. The
// returned func stops it.
func (s *Server) setupHotReload() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for range sigCh {
			s.logger.Info("received SIGHUP, reloading config")
			if err := s.cfg.Reload(); err != nil {
				s.logger.Error("config reload failed", "error", err)
			} else {
				s.logger.Info("config reloaded successfully")
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}

// UpdateVectorDB swaps the vector database provider (for hot reload). The
// previous provider is closed.
func (s *Server) UpdateVectorDB(vdb vectordb.Provider) {
	s.mu.Lock()
	old := s.vectorDB
	s.vectorDB = vdb
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("vectordb close error", "error", err)
		}
	}
}

// getProviders returns thread-safe access to providers.
func (s *Server) getProviders() (*indexer.DocumentEncoder, encoder.Provider, vectordb.Provider) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docEncoder, s.base, s.vectorDB
}

// loggingMiddleware logs all HTTP requests and records them in metrics.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(route, wrapped.status, duration)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", duration.Milliseconds())
	})
}

// statusResponseWriter captures the response status code.
type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
