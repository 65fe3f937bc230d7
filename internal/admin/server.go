// Package admin serves operator endpoints on a listener separate from the
// webhook port: Prometheus metrics, recent sync attempts and a health check.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/pullhook/internal/history"
	"github.com/mattjoyce/pullhook/internal/metrics"
)

// HistorySource lists recent sync attempts, newest first.
type HistorySource interface {
	Recent() []history.Entry
}

// QueueReporter reports how many syncs are waiting on the repository lock.
type QueueReporter interface {
	Waiting() int
}

// HealthzResponse is the body of GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	SyncsWaiting  int    `json:"syncs_waiting"`
}

// Server is the admin HTTP listener.
type Server struct {
	listen    string
	metrics   *metrics.Metrics
	history   HistorySource
	queue     QueueReporter
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates an admin server bound to listen once started.
func New(listen string, m *metrics.Metrics, h HistorySource, q QueueReporter, logger *slog.Logger) *Server {
	return &Server{
		listen:    listen,
		metrics:   m,
		history:   h,
		queue:     q,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("admin listen on %s: %w", s.listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	s.logger.Info("admin server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("admin server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("admin server shutdown incomplete; closing connections", "error", err)
			_ = s.server.Close()
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("admin server error: %w", err)
	}
}

// Handler returns the routed handler without binding a socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/syncs", s.handleSyncs)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.queue != nil {
		resp.SyncsWaiting = s.queue.Waiting()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleSyncs handles GET /syncs.
func (s *Server) handleSyncs(w http.ResponseWriter, r *http.Request) {
	entries := []history.Entry{}
	if s.history != nil {
		entries = s.history.Recent()
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("admin response encoding failed", "error", err)
	}
}
