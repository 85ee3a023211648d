// Package server mounts the claim lifecycle and forum guard behind the HTTP
// API. Handlers decode and shape-check requests, delegate to the domain
// packages, and translate domain errors into problem details.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/campuskeep/campuskeep/pkg/api"
	"github.com/campuskeep/campuskeep/pkg/auth"
	"github.com/campuskeep/campuskeep/pkg/claims"
	"github.com/campuskeep/campuskeep/pkg/forum"
	"github.com/campuskeep/campuskeep/pkg/identity"
)

// Server holds the wired domain services.
type Server struct {
	lifecycle *claims.Lifecycle
	guard     *forum.Guard
	validator *api.Validator
	resolver  identity.Resolver
	limiter   auth.Limiter
	rpm       int
	ready     func(ctx context.Context) error
	logger    *slog.Logger
}

// Options carries the optional collaborators.
type Options struct {
	// Resolver authenticates bearer tokens; nil rejects all tokens.
	Resolver identity.Resolver
	// Limiter enables per-actor backpressure; nil disables it.
	Limiter auth.Limiter
	// RPM is the advertised rate used for Retry-After hints.
	RPM int
	// Ready is polled by /readiness; nil means always ready.
	Ready func(ctx context.Context) error
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// New builds a server over the given lifecycle and guard.
func New(lifecycle *claims.Lifecycle, guard *forum.Guard, opts Options) (*Server, error) {
	validator, err := api.NewValidator()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rpm := opts.RPM
	if rpm <= 0 {
		rpm = 60
	}
	return &Server{
		lifecycle: lifecycle,
		guard:     guard,
		validator: validator,
		resolver:  opts.Resolver,
		limiter:   opts.Limiter,
		rpm:       rpm,
		ready:     opts.Ready,
		logger:    logger.With("component", "server"),
	}, nil
}

// Routes returns the full handler chain: request ID, auth, rate limit, then
// the route mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/readiness", s.handleReadiness)

	mux.HandleFunc("/claims", s.handleClaims)
	mux.HandleFunc("/claims/", s.handleClaimByID)
	mux.HandleFunc("/forum/posts", s.handlePosts)
	mux.HandleFunc("/forum/posts/", s.handlePostByID)
	mux.HandleFunc("/forum/comments/", s.handleCommentByID)

	var h http.Handler = mux
	h = auth.RateLimitMiddleware(s.limiter, s.rpm)(h)
	h = auth.NewMiddleware(s.resolver)(h)
	h = auth.CORSMiddleware(nil)(h)
	h = auth.RequestIDMiddleware(h)
	return h
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "readiness probe failed", "error", err)
			api.WriteError(w, http.StatusServiceUnavailable, "Service Unavailable", "dependencies not ready")
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
