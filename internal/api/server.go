// Package api serves the ops HTTP surface: health, status, and Prometheus
// metrics. It carries no user-facing functionality; users interact through
// the Telegram bot only.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mailherald/mailherald/internal/config"
	"github.com/mailherald/mailherald/internal/errors"
	"github.com/mailherald/mailherald/internal/logging"
	"github.com/mailherald/mailherald/internal/metrics"
)

// StatusReport is the payload of GET /status.
type StatusReport struct {
	Version         string `json:"version"`
	AuthorizedUsers int    `json:"authorized_users"`
	ActiveSessions  int    `json:"active_auth_sessions"`
	PollerRunning   bool   `json:"poller_running"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// StatusFunc produces the current status report.
type StatusFunc func() StatusReport

// Server is the ops HTTP server.
type Server struct {
	router     *gin.Engine
	cfg        config.ServerConfig
	metrics    *metrics.Metrics
	logger     *logging.Logger
	status     StatusFunc
	httpServer *http.Server
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates the ops server.
func NewServer(cfg config.ServerConfig, m *metrics.Metrics, logger *logging.Logger, status StatusFunc) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		router:  gin.New(),
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		status:  status,
	}

	server.router.Use(gin.Recovery())
	server.router.Use(loggingMiddleware(logger))
	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(start).Seconds(),
		)
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/status", s.handleStatus)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status not available"})
		return
	}
	c.JSON(http.StatusOK, s.status())
}

// Start runs the server until Shutdown is called. It blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.HTTPPort)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting ops HTTP server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down ops HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return &errors.ErrServerShutdown{Err: err}
	}
	return nil
}
