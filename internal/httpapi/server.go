package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/a2rchi"
	"github.com/a2rchi/a2rchi/internal/logging"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// GradingPipeline names the registry entry Facade.InvokeNamed uses
	// for POST /api/v1/grade. Empty disables the endpoint.
	GradingPipeline string
}

// Server is a2rchi's HTTP surface: a chat endpoint, a grading endpoint,
// health, and Prometheus metrics.
type Server struct {
	echo *echo.Echo

	facade       *a2rchi.Facade
	conversation *a2rchi.ConversationStore
	logger       *logging.Logger
	config       Config
}

// NewServer builds a Server with routes registered and ready to Start.
// registry is the Prometheus registerer metrics are attached to; pass
// prometheus.NewRegistry() in tests to avoid colliding with any process
// global, and prometheus.DefaultRegisterer in production so /metrics
// exposes Go runtime stats alongside the httpapi collectors.
func NewServer(facade *a2rchi.Facade, conversation *a2rchi.ConversationStore, logger *logging.Logger, cfg Config, registry prometheus.Registerer) (*Server, error) {
	if facade == nil {
		return nil, fmt.Errorf("httpapi: facade is required")
	}
	if conversation == nil {
		return nil, fmt.Errorf("httpapi: conversation store is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics(registry)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:         e,
		facade:       facade,
		conversation: conversation,
		logger:       logger,
		config:       cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/chat", s.handleChat)
	v1.POST("/grade", s.handleGrade)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(200, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server and blocks until it stops or errors.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
