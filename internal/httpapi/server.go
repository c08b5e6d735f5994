// Package httpapi exposes the chat orchestration core over HTTP: a
// streaming SSE chat endpoint, an elicitation-resume endpoint, and a
// conversation CRUD surface, all gated by bearer auth and per-user rate
// limiting.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/haasonsaas/chatcore/internal/authctx"
	"github.com/haasonsaas/chatcore/internal/convo"
	"github.com/haasonsaas/chatcore/internal/observability"
	"github.com/haasonsaas/chatcore/internal/orchestrator"
	"github.com/haasonsaas/chatcore/internal/ratelimit"
)

// Server wires the orchestrator, conversation store, auth, and rate
// limiting into a single net/http.Handler.
type Server struct {
	orch     *orchestrator.Orchestrator
	store    convo.Store
	auth     *authctx.Service
	throttle *ratelimit.UserThrottle
	log      *observability.Logger
	metrics  *observability.Metrics

	httpServer   *http.Server
	httpListener net.Listener
}

// Config names the address the server binds.
type Config struct {
	Host string
	Port int
}

// NewServer builds a Server. throttle may be nil to disable rate limiting;
// log and metrics may be nil to disable, respectively, failure logging and
// request instrumentation.
func NewServer(orch *orchestrator.Orchestrator, store convo.Store, auth *authctx.Service, throttle *ratelimit.UserThrottle, log *observability.Logger, metrics *observability.Metrics) *Server {
	return &Server{orch: orch, store: store, auth: auth, throttle: throttle, log: log, metrics: metrics}
}

// Mount builds the routed http.Handler: public healthz, then bearer-gated
// chat/elicit/conversation routes, wrapped with request-duration metrics.
func (s *Server) Mount() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)

	protected := http.NewServeMux()
	protected.HandleFunc("/v1/chat", s.handleChat)
	protected.HandleFunc("/v1/elicit", s.handleElicit)
	protected.HandleFunc("/v1/conversations", s.handleConversations)
	protected.HandleFunc("/v1/conversations/", s.handleConversationByID)

	mux.Handle("/v1/", authctx.Middleware(s.auth)(protected))
	return s.instrument(mux)
}

// instrument records request duration/count per method+path+status via the
// observability metrics registry. A no-op when metrics is nil.
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(sw.status), time.Since(start).Seconds())
	})
}

// statusWriter captures the status code written so it can be attached to
// the metrics label after the handler returns.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush propagates to the underlying http.Flusher so SSE handlers wrapped
// by instrument still stream incrementally instead of buffering.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Start binds the listener and begins serving in a background goroutine.
func (s *Server) Start(cfg Config) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen: %w", err)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Mount(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logError(context.Background(), "http server error", err)
		}
	}()
	s.logInfo(context.Background(), "httpapi server started", "addr", addr)
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) logError(ctx context.Context, msg string, err error) {
	if s.log == nil {
		return
	}
	s.log.Error(ctx, msg, "error", err)
}

func (s *Server) logInfo(ctx context.Context, msg string, kv ...any) {
	if s.log == nil {
		return
	}
	s.log.Info(ctx, msg, kv...)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
