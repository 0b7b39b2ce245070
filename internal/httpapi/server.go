// Package httpapi provides the HTTP API for docsight.
package httpapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsight/internal/ingest"
	"github.com/fyrsmithlabs/docsight/internal/service"
)

// Backend is the pipeline surface consumed by the HTTP handlers.
type Backend interface {
	AnswerQuestion(ctx context.Context, question string, image []byte) (string, error)
	IngestDocuments(ctx context.Context, sourceDir string) (*ingest.Stats, error)
	ClearStore(ctx context.Context) error
	Stats(ctx context.Context) (*service.StoreStats, error)
}

// Server provides HTTP endpoints for docsight.
type Server struct {
	echo    *echo.Echo
	backend Backend
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(backend Backend, logger *zap.Logger, cfg *Config) (*Server, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8099,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		backend: backend,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ask", s.handleAsk)
	v1.POST("/ingest", s.handleIngest)
	v1.DELETE("/store", s.handleClear)
	v1.GET("/stats", s.handleStats)
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`

	// Image is an optional base64-encoded PNG.
	Image string `json:"image,omitempty"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	Answer string `json:"answer"`
}

// IngestRequest is the request body for POST /api/v1/ingest.
type IngestRequest struct {
	SourceDir string `json:"source_dir"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleAsk answers a question with optional image support.
func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	var image []byte
	if req.Image != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "image must be base64-encoded")
		}
		image = decoded
	}

	answer, err := s.backend.AnswerQuestion(c.Request().Context(), req.Question, image)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, AskResponse{Answer: answer})
}

// handleIngest loads documents from a directory on the server host.
func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ingest request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.SourceDir == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source_dir field is required")
	}

	stats, err := s.backend.IngestDocuments(c.Request().Context(), req.SourceDir)
	if err != nil {
		s.logger.Error("ingestion failed", zap.String("dir", req.SourceDir), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, stats)
}

// handleClear removes all documents from the index.
func (s *Server) handleClear(c echo.Context) error {
	if err := s.backend.ClearStore(c.Request().Context()); err != nil {
		s.logger.Error("clearing store failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// handleStats returns index document counts.
func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.backend.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
