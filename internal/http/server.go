// Package http provides the HTTP API for ragd.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ratelimit"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

// Server exposes the document and query API.
type Server struct {
	echo        *echo.Echo
	ingest      *ingest.Service
	engine      *retrieval.Engine
	synthesizer *answer.Synthesizer
	limiter     *ratelimit.Limiter
	logger      *logging.Logger
	config      config.Config
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(ing *ingest.Service, engine *retrieval.Engine, synth *answer.Synthesizer, limiter *ratelimit.Limiter, logger *logging.Logger, cfg config.Config) (*Server, error) {
	if ing == nil {
		return nil, fmt.Errorf("ingest service is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("retrieval engine is required")
	}
	if synth == nil {
		return nil, fmt.Errorf("answer synthesizer is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if limiter == nil {
		limiter = ratelimit.New(config.RateLimitConfig{})
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:        e,
		ingest:      ing,
		engine:      engine,
		synthesizer: synth,
		limiter:     limiter,
		logger:      logger.Named("http"),
		config:      cfg,
	}

	s.registerRoutes()
	return s, nil
}

// requestLogger attaches the request id to the context and logs one line
// per request.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.ContextWithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleUpload)
	v1.GET("/documents", s.handleList)
	v1.GET("/documents/:id", s.handleGet)
	v1.DELETE("/documents/:id", s.handleDelete)
	v1.POST("/search", s.handleSearch)
	v1.POST("/query", s.handleQuery)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
