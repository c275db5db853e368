// Package httpapi exposes the conversation engine over HTTP: one endpoint to
// process an inbound message, plus health and metrics.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lumehq/lume/internal/orchestrator"
)

// Processor runs one conversation turn. Satisfied by orchestrator.Service.
type Processor interface {
	ProcessMessage(ctx context.Context, msg orchestrator.InboundMessage) (*orchestrator.TurnResult, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server serves the message API.
type Server struct {
	echo      *echo.Echo
	processor Processor
	logger    *zap.Logger
	config    *Config
}

// NewServer creates the HTTP server.
func NewServer(processor Processor, logger *zap.Logger, cfg *Config) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8420}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
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
		echo:      e,
		processor: processor,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/messages", s.handleMessage)
}

// MessageRequest is the request body for POST /api/v1/messages.
type MessageRequest struct {
	ThreadID string         `json:"thread_id"`
	Text     string         `json:"message_text"`
	Platform map[string]any `json:"raw_platform_payload,omitempty"`
}

// MessageResponse is the response body for POST /api/v1/messages.
type MessageResponse struct {
	ThreadID            string `json:"thread_id"`
	Response            string `json:"response"`
	ActiveNode          string `json:"active_node"`
	Suspended           bool   `json:"suspended"`
	ClarificationPrompt string `json:"clarification_prompt,omitempty"`
	Error               string `json:"error,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid message request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ThreadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread_id field is required")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message_text field is required")
	}

	result, err := s.processor.ProcessMessage(c.Request().Context(), orchestrator.InboundMessage{
		ThreadID: req.ThreadID,
		Text:     req.Text,
		Platform: req.Platform,
	})
	if err != nil {
		s.logger.Error("turn processing failed",
			zap.String("thread_id", req.ThreadID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process message")
	}

	resp := MessageResponse{
		ThreadID:   req.ThreadID,
		Response:   result.Response,
		ActiveNode: string(result.ActiveNode),
		Suspended:  result.Suspended,
		Error:      result.Err,
	}
	if result.Suspended {
		resp.ClarificationPrompt = result.State.ClarificationPrompt
	}
	return c.JSON(http.StatusOK, resp)
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

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
