// Package api is the HTTP adapter over the task trackers. It holds no state
// of its own: every request is routed to the actor's Tracker.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/internal/app/tasks"
	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/pkg/common/logger"
	"github.com/ahrav/castverify/pkg/common/otel"
)

// Sessions resolves the Tracker of an actor.
type Sessions interface {
	Get(actor engagement.ActorID) (*tasks.Tracker, error)
	Lookup(actor engagement.ActorID) (*tasks.Tracker, bool)
}

// Config contains the settings of the HTTP server.
type Config struct {
	Addr        string
	Build       string
	ServiceName string
	// ShutdownTimeout bounds graceful shutdown. Zero means 30s.
	ShutdownTimeout time.Duration
}

// Server serves the task endpoints.
type Server struct {
	cfg      Config
	router   *gin.Engine
	sessions Sessions
	metrics  APIMetrics
	logger   *logger.Logger
	tracer   trace.Tracer
}

// NewServer builds the router and binds every route.
func NewServer(
	cfg Config,
	sessions Sessions,
	metrics APIMetrics,
	log *logger.Logger,
	tracer trace.Tracer,
) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "castverify"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))

	s := &Server{
		cfg:      cfg,
		router:   r,
		sessions: sessions,
		metrics:  metrics,
		logger:   log.With("component", "http_api"),
		tracer:   tracer,
	}
	r.Use(s.loggerMiddleware())

	s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)

		s.metrics.IncRequestsTotal(ctx, c.Request.Method, path, status)
		s.metrics.ObserveRequestDuration(ctx, c.Request.Method, path, duration)
		s.logger.Info(ctx, "Request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", duration,
			"trace_id", otel.GetTraceID(ctx),
		)
	}
}

func (s *Server) routes() {
	v1 := s.router.Group("/v1")
	v1.GET("/health", s.handleHealth)
	v1.GET("/readiness", s.handleHealth)

	v1.GET("/tasks", s.handleList)
	v1.POST("/tasks/load", s.handleLoad)
	v1.POST("/tasks/open", s.handleOpen)
	v1.POST("/tasks/verify", s.handleVerify)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.NewStdLogger(s.logger, logger.LevelError),
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info(ctx, "starting server", "addr", server.Addr, "build", s.cfg.Build)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
