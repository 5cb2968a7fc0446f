package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/spectra/internal/api/http"
	"github.com/GriffinCanCode/spectra/internal/api/middleware"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/config"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spectra/internal/pipeline"
)

const readHeaderTimeout = 5 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	tracer     *tracing.Tracer
	logger     *zap.Logger
	config     config.ServerConfig

	mu       sync.Mutex
	listener net.Listener
}

// NewServer builds the router around p. Nothing is bound until Listen or Run.
func NewServer(cfg *config.Config, p *pipeline.Pipeline, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := p.Metrics()
	tracer := tracing.New("spectra", logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins)))

	handlers := apihttp.NewHandlers(p, p.Display(), metrics, logger, cfg.Server.CORSOrigins)

	api := router.Group("/")
	api.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	api.GET("/", handlers.Root)
	api.GET("/health", handlers.Health)
	api.GET("/spectrum", handlers.Spectrum)
	api.GET("/sources", handlers.Sources)
	api.GET("/metrics/json", handlers.MetricsJSON)

	router.GET("/stream", middleware.GlobalRateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.Server.StreamLimit,
		Burst:             cfg.Server.StreamBurst,
	}), handlers.Stream)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return &Server{
		router: router,
		httpServer: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		tracer: tracer,
		logger: logger,
		config: cfg.Server,
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the configured address. Run calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Listen, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Run() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, waits for in-flight requests until
// ctx ends, and flushes pending trace spans.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.httpServer.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// Force the remaining connections closed.
		err = multierr.Append(err, s.httpServer.Close())
	}
	s.tracer.Close()
	return err
}
