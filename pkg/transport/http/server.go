package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/rhuss/trianswer/pkg/observability"
	"github.com/rhuss/trianswer/pkg/transport"
)

// Server wraps an http.Server with the transport adapter and manages
// the full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout time.Duration
	WaitTimeout     time.Duration
	Logger          *slog.Logger

	// AllowedOrigins enables CORS for browser clients. Empty disables CORS
	// handling entirely.
	AllowedOrigins []string

	// HealthCheck backs GET /healthz. Nil always reports healthy.
	HealthCheck func(ctx context.Context) error

	// Metrics mounts GET /metrics.
	Metrics bool

	handlers   map[string]http.Handler
	middleware []func(http.Handler) http.Handler
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     DefaultConfig().MaxBodySize,
		ShutdownTimeout: 30 * time.Second,
		WaitTimeout:     DefaultConfig().WaitTimeout,
		Logger:          slog.Default(),
		Metrics:         true,
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithWaitTimeout bounds ?wait=true submissions.
func WithWaitTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.WaitTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithCORS allows cross-origin requests from the given origins.
func WithCORS(origins ...string) ServerOption {
	return func(s *Server) { s.config.AllowedOrigins = origins }
}

// WithHealthCheck sets the probe behind /healthz.
func WithHealthCheck(fn func(ctx context.Context) error) ServerOption {
	return func(s *Server) { s.config.HealthCheck = fn }
}

// WithMetrics toggles the /metrics endpoint.
func WithMetrics(enabled bool) ServerOption {
	return func(s *Server) { s.config.Metrics = enabled }
}

// WithHandler mounts an extra handler, such as the MCP endpoint, on the
// server's route table.
func WithHandler(pattern string, h http.Handler) ServerOption {
	return func(s *Server) {
		if s.config.handlers == nil {
			s.config.handlers = make(map[string]http.Handler)
		}
		s.config.handlers[pattern] = h
	}
}

// WithHTTPMiddleware wraps every route, for example with authentication.
// Middleware run in the order given.
func WithHTTPMiddleware(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.config.middleware = append(s.config.middleware, mw...) }
}

// NewServer creates a new transport server for the given submitter and
// conversation manager. Default middleware (recovery, request ID, logging)
// is applied to submissions automatically.
func NewServer(submitter transport.TurnSubmitter, manager transport.ConversationManager, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	adapterCfg := DefaultConfig()
	adapterCfg.Addr = s.config.Addr
	adapterCfg.MaxBodySize = s.config.MaxBodySize
	adapterCfg.ShutdownTimeout = int(s.config.ShutdownTimeout.Seconds())
	adapterCfg.WaitTimeout = s.config.WaitTimeout
	adapterCfg.OriginPatterns = s.config.AllowedOrigins

	defaultMW := []transport.Middleware{
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	}

	s.adapter = NewAdapter(submitter, manager, adapterCfg, defaultMW...)

	mux := s.adapter.Mux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.config.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	for pattern, h := range s.config.handlers {
		mux.Handle(pattern, h)
	}

	// Metrics sit directly on the mux so they see the matched pattern.
	var handler http.Handler = observability.MetricsMiddleware(mux)
	handler = httpRequestIDMiddleware(handler)
	for i := len(s.config.middleware) - 1; i >= 0; i-- {
		handler = s.config.middleware[i](handler)
	}
	if len(s.config.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Request-ID", "Last-Event-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
		}).Handler(handler)
	}

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(s.adapter.CloseStreams)

	return s
}

// Handler returns the fully wrapped handler. Useful with httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.config.HealthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.config.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then gracefully shuts down,
// waiting for in-flight requests to complete within the configured timeout.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.ListenAndServeContext(ctx)
}

// ListenAndServeContext is ListenAndServe with the shutdown trigger
// supplied by the caller.
func (s *Server) ListenAndServeContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

// ServeOn serves on the given listener until ctx is done. Used for testing.
func (s *Server) ServeOn(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
