// Package http provides the ops HTTP server: health, readiness and the operator
// work remediation endpoints.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	coordinatorHTTP "github.com/allisson/whizbang/internal/coordinator/http"
	"github.com/allisson/whizbang/internal/messaging"
	"github.com/allisson/whizbang/internal/metrics"
)

// Server represents the ops HTTP server
type Server struct {
	db        *sql.DB
	transport messaging.Transport
	server    *http.Server
	router    *gin.Engine
	logger    *slog.Logger
}

// NewServer creates a new ops HTTP server. Call SetupRouter before Start.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: newHTTPServer(host, port),
	}
}

func newHTTPServer(host string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// SetupRouter builds the gin engine. transport may be nil when the process does not
// publish; metricsProvider may be nil when metrics are disabled.
func (s *Server) SetupRouter(
	workHandler *coordinatorHTTP.WorkHandler,
	transport messaging.Transport,
	metricsProvider *metrics.Provider,
) {
	s.transport = transport

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))
	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), metricsProvider.Namespace()))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	if workHandler != nil {
		workHandler.RegisterRoutes(v1)
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		s.SetupRouter(nil, nil, nil)
	}
	s.server.Handler = s.router
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports ready when the database answers a ping and the transport,
// if any, is connected.
func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	components := gin.H{}
	ready := true

	if s.db == nil || s.db.PingContext(ctx) != nil {
		components["database"] = "error"
		ready = false
	} else {
		components["database"] = "ok"
	}

	if s.transport != nil {
		if s.transport.IsReady(ctx) {
			components["transport"] = "ok"
		} else {
			components["transport"] = "error"
			ready = false
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
