// Package http serves the finance session to a UI: session and snapshot
// reads, refresh triggers, mutations and the toast feed.
package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"finsession/internal/auth"
	"finsession/internal/finance"
	"finsession/internal/log"
	"finsession/internal/metrics"
	"finsession/internal/middleware/ratelimit"
	"finsession/internal/middleware/security"
	"finsession/internal/middleware/trace"
	"finsession/internal/notify"
)

const DefaultRefreshTimeout = 30 * time.Second

type Deps struct {
	Provider *finance.Provider
	Auth     *auth.Service
	Toasts   *notify.Recorder
	Metrics  *metrics.Metrics
	Logger   *log.Logger
	// Ready reports whether backing storage is usable.
	Ready func(ctx context.Context) error

	RateLimitPerMinute int
	RefreshTimeout     time.Duration
}

type Server struct {
	http.Server

	provider       *finance.Provider
	auth           *auth.Service
	toasts         *notify.Recorder
	metrics        *metrics.Metrics
	logger         *log.Logger
	ready          func(ctx context.Context) error
	refreshTimeout time.Duration

	rateLimiter   *ratelimit.Limiter
	shutdownOnce  sync.Once
}

// NewServer wires routes and middleware and returns a server ready for
// ListenAndServe.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if deps.Toasts == nil {
		deps.Toasts = notify.NewRecorder(0)
	}
	if deps.RefreshTimeout <= 0 {
		deps.RefreshTimeout = DefaultRefreshTimeout
	}

	s := &Server{
		provider:       deps.Provider,
		auth:           deps.Auth,
		toasts:         deps.Toasts,
		metrics:        deps.Metrics,
		logger:         logger.WithComponent(log.ComponentHTTP),
		ready:          deps.Ready,
		refreshTimeout: deps.RefreshTimeout,
		rateLimiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /api/session", s.handleGetSession)
	mux.HandleFunc("POST /api/session", s.handleLogin)
	mux.HandleFunc("DELETE /api/session", s.handleLogout)

	mux.HandleFunc("GET /api/snapshot", s.requireSession(s.handleSnapshot))
	mux.HandleFunc("POST /api/refresh", s.requireSession(s.handleRefresh))
	mux.HandleFunc("POST /api/categories/refresh", s.requireSession(s.handleRefreshCategories))
	mux.HandleFunc("DELETE /api/categories/cache", s.requireSession(s.handleClearCategoriesCache))
	mux.HandleFunc("GET /api/toasts", s.handleToasts)

	s.registerMutations(mux)

	detector := security.NewDetector(logger)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(logger, detector.ClientIP)
	limit := s.rateLimiter.Middleware(detector.ClientIP, func(r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ClientIP(r),
			log.FieldPath, r.URL.Path)
	})

	var handler http.Handler = mux
	handler = limit(handler)
	handler = detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      deps.RefreshTimeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background goroutines and the HTTP server once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// work returns a context for provider calls that outlives a disconnecting
// client but not the refresh timeout.
func (s *Server) work(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), s.refreshTimeout)
}

// snapshotETag derives a strong validator from the snapshot body itself, so
// the tag always matches the bytes it is sent with.
func snapshotETag(snap finance.Snapshot) (string, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`, nil
}

// etagMatches reports whether an If-None-Match header value covers etag.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	handleHealth(w, r)
}

func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.provider.Session(r.Context()).IsAuthenticated {
			writeError(w, http.StatusUnauthorized, "Not signed in")
			return
		}
		next(w, r)
	}
}

var errBadBody = errors.New("invalid request body")
