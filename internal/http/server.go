// Package http serves the loopcast REST API, the event stream and the
// Prometheus metrics endpoint.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmylchreest/loopcast/internal/config"
	"github.com/jmylchreest/loopcast/internal/http/middleware"
	"github.com/jmylchreest/loopcast/internal/version"
)

const defaultIdleTimeout = 120 * time.Second

// Server is the HTTP server.
type Server struct {
	config     config.ServerConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router, middleware chain and Huma API. Metrics from
// gatherer are served on /metrics; a nil gatherer disables the endpoint.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))

	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSOrigins
	}
	router.Use(middleware.CORS(cors))
	router.Use(middleware.SkipCompressionForSSE(chimiddleware.Compress(5)))

	humaConfig := huma.DefaultConfig("loopcast API", version.Version)
	humaConfig.Info.Description = "Schedules looped video streams to RTMP endpoints"
	// Docs are served by handlers.DocsHandler.
	humaConfig.DocsPath = ""
	api := humachi.New(router, humaConfig)

	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
		}))
	}

	// Request contexts are cancelled at shutdown so event streams end.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	httpServer.RegisterOnShutdown(cancelRequests)

	return &Server{
		config:     cfg,
		router:     router,
		api:        api,
		logger:     logger,
		httpServer: httpServer,
	}
}

// API returns the Huma API for registering operations.
func (s *Server) API() huma.API {
	return s.api
}

// Router returns the chi router for plain handlers such as SSE.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server", slog.String("address", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server", slog.Duration("timeout", s.config.ShutdownTimeout))

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	select {
	case <-ctx.Done():
		if err := s.Shutdown(context.Background()); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
