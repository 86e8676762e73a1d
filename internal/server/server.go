// Package server provides the HTTP API for work-type resolution and catalog reads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/worktype-resolver/internal/resolution"
	"github.com/jonathan/worktype-resolver/internal/server/ratelimit"
	"github.com/jonathan/worktype-resolver/internal/types"
)

// Resolver runs the resolution pipeline.
type Resolver interface {
	Resolve(ctx context.Context, fragments []string, opts resolution.Options) ([]types.ResolvedItem, error)
}

// Catalog is the read side of the catalog store.
type Catalog interface {
	GetAll(ctx context.Context) ([]*types.WorkType, error)
	GetWorkType(ctx context.Context, id uuid.UUID) (*types.WorkType, error)
	ListCostHistory(ctx context.Context, workTypeID uuid.UUID) ([]types.CostSnapshot, error)
}

// Config holds server configuration
type Config struct {
	Port int
	// Options are the defaults for resolve requests; requests may override thresholds and k
	Options resolution.Options
	// RateLimit is loaded from the environment when nil
	RateLimit *ratelimit.Config
	// MaxFragments bounds the fragments accepted per request
	MaxFragments int
}

// Server represents the HTTP server
type Server struct {
	httpServer   *http.Server
	resolver     Resolver
	drafter      resolution.Drafter
	catalog      Catalog
	options      resolution.Options
	maxFragments int
	rateLimiter  *ratelimit.Limiter
	logger       *slog.Logger
}

// New creates a new server instance. drafter and catalog may be nil; their
// endpoints then answer 503.
func New(cfg Config, resolver Resolver, drafter resolution.Drafter, catalog Catalog) *Server {
	rlConfig := cfg.RateLimit
	if rlConfig == nil {
		rlConfig = ratelimit.LoadConfig()
	}
	maxFragments := cfg.MaxFragments
	if maxFragments <= 0 {
		maxFragments = 100
	}

	s := &Server{
		resolver:     resolver,
		drafter:      drafter,
		catalog:      catalog,
		options:      cfg.Options,
		maxFragments: maxFragments,
		rateLimiter:  ratelimit.NewLimiter(rlConfig),
		logger:       slog.Default().With("component", "server"),
	}

	// Setup router
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Resolution endpoints
	mux.HandleFunc("POST /resolve", s.handleResolve)
	mux.HandleFunc("POST /resolve/stream", s.handleResolveStream)
	mux.HandleFunc("POST /drafts", s.handleDrafts)

	// Catalog read endpoints
	mux.HandleFunc("GET /work-types", s.handleListWorkTypes)
	mux.HandleFunc("GET /work-types/{id}", s.handleGetWorkType)
	mux.HandleFunc("GET /work-types/{id}/cost-history", s.handleCostHistory)

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Drafting can wait on the model
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves requests until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop rate limiter cleanup goroutine
	defer s.rateLimiter.Stop()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server: stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming responses working through the recorder
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.InfoContext(r.Context(), "server: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("server: failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// errorFrom writes err with the status HTTPStatus assigns to it
func (s *Server) errorFrom(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("server: request failed", "error", err)
		s.errorResponse(w, status, "internal error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}

	s.logger.Warn("server: rate limit exceeded", "limit", info.Limit, "reset", info.ResetTime)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
