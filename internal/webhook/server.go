package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/pullhook/internal/config"
	"github.com/mattjoyce/pullhook/internal/metrics"
)

const (
	healthBody    = "webhook listener OK\n"
	forbiddenBody = "Forbidden: bad signature\n"

	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second

	// DefaultReadTimeout bounds reading a whole request, including a body
	// shorter than its declared Content-Length.
	DefaultReadTimeout = 30 * time.Second

	// DefaultShutdownTimeout is how long Shutdown waits for in-flight
	// requests when no longer wait is configured.
	DefaultShutdownTimeout = 5 * time.Second
)

// Server is the webhook HTTP listener.
type Server struct {
	cfg     config.Config
	router  *Router
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server

	readTimeout     time.Duration
	shutdownTimeout time.Duration
	onShutdown      []func()
}

// New creates a listener for cfg that hands authenticated deliveries to
// router. m may be nil.
func New(cfg config.Config, router *Router, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		router:  router,
		metrics: m,
		logger:  logger,

		readTimeout:     DefaultReadTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
	}
}

// WithReadTimeout overrides DefaultReadTimeout. Call before Serve.
func (s *Server) WithReadTimeout(d time.Duration) *Server {
	if d > 0 {
		s.readTimeout = d
	}
	return s
}

// WithShutdownTimeout sets how long shutdown waits for requests still
// in flight, typically a running pull. Call before Serve.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	if d > 0 {
		s.shutdownTimeout = d
	}
	return s
}

// OnShutdown registers f to run as soon as shutdown begins, while
// in-flight requests are still draining.
func (s *Server) OnShutdown(f func()) {
	s.onShutdown = append(s.onShutdown, f)
}

// Start binds cfg.Listen() and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen())
	if err != nil {
		return fmt.Errorf("webhook listen on %s: %w", s.cfg.Listen(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. It returns ctx.Err() once shutdown is over; a shutdown that
// outlives its timeout is logged and the remaining connections are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// No WriteTimeout: a push response waits for git, and possibly for a
	// sync queued ahead of it.
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: min(readHeaderTimeout, s.readTimeout),
		ReadTimeout:       s.readTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	for _, f := range s.onShutdown {
		s.server.RegisterOnShutdown(f)
	}

	s.logger.Info("webhook server starting",
		"listen", ln.Addr().String(),
		"repo", s.cfg.RepoPath,
		"branch", s.cfg.Branch,
		"signed", s.cfg.Signed(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down", "timeout", s.shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("webhook server shutdown incomplete; closing connections", "error", err)
			_ = s.server.Close()
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the routed handler without binding a socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(keepPeerAddr)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverer)
	r.Use(middleware.GetHead)

	r.Get("/*", s.handleHealth)
	r.Post("/*", s.handleWebhook)

	return r
}

// loggingMiddleware writes the one log line per request. Bodies are never
// logged.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if r.Method != http.MethodPost {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", peerAddr(r),
			"client_ip", r.RemoteAddr,
			"event", r.Header.Get(EventHeader),
			"delivery", r.Header.Get(DeliveryHeader),
		)
	})
}

// recoverer turns a handler panic into a JSON 500 so the client always
// gets a well-formed response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			s.logger.Error("panic in webhook handler",
				"panic", fmt.Sprint(rvr),
				"request_id", middleware.GetReqID(r.Context()),
			)
			s.respondError(w, http.StatusInternalServerError, "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, healthBody)
}

// handleWebhook authenticates a POST and hands it to the router.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	event := metricsEvent(r.Header.Get(EventHeader))
	limit := int64(s.cfg.MaxBodySize)

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		s.logger.Warn("webhook body read failed", "remote_addr", peerAddr(r), "error", err)
		s.metrics.ObserveRequest(event, http.StatusBadRequest)
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > limit {
		s.logger.Warn("webhook body too large", "remote_addr", peerAddr(r), "limit", limit)
		s.metrics.ObserveRequest(event, http.StatusRequestEntityTooLarge)
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	if s.cfg.Signed() {
		sig := r.Header.Get(SignatureHeader)
		if !VerifySignature(body, sig, s.cfg.Secret) {
			s.logger.Warn("webhook signature verification failed",
				"remote_addr", peerAddr(r),
				"client_ip", r.RemoteAddr,
				"signature_present", sig != "",
				"delivery", r.Header.Get(DeliveryHeader),
			)
			s.metrics.SignatureFailed()
			s.metrics.ObserveRequest(event, http.StatusForbidden)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, forbiddenBody)
			return
		}
	}

	status, resp := s.router.Route(r.Context(), r.Header, body)
	s.metrics.ObserveRequest(event, status)
	s.respondJSON(w, status, resp)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("response encoding failed", "error", err)
		status = http.StatusInternalServerError
		payload = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

// metricsEvent bounds the event label to known values.
func metricsEvent(event string) string {
	switch event {
	case EventPing, EventPush:
		return event
	case "":
		return "none"
	default:
		return "other"
	}
}
