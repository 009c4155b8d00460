// Package server exposes the HTTP run trigger, health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ppiankov/factharvest/internal/model"
	"github.com/ppiankov/factharvest/internal/pipeline"
)

const (
	readTimeout     = 10 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Runner is what the server triggers; *pipeline.Runner implements it
type Runner interface {
	Run(ctx context.Context, trigger model.Trigger) (*model.RunOutcome, error)
	LastOutcome() *model.RunOutcome
}

// Server serves the run API
type Server struct {
	router *gin.Engine
	http   *http.Server
	runner Runner
	logger *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	active  atomic.Bool
	wg      sync.WaitGroup
}

// New builds the router. gatherer backs /metrics; nil uses the default registry.
func New(cfg model.ServerConfig, runner Runner, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:  router,
		runner:  runner,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	v1.POST("/runs", s.startRun)
	v1.GET("/runs/last", s.lastRun)

	s.http = &http.Server{
		Addr:        cfg.Addr,
		Handler:     router,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down and waits
// for background runs to stop
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.cancel()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close cancels background runs and waits for them
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// startRun triggers a run. By default it returns 202 and runs in the
// background; with ?wait=true it responds with the outcome.
func (s *Server) startRun(c *gin.Context) {
	if !s.active.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": pipeline.ErrRunInProgress.Error()})
		return
	}

	if c.Query("wait") == "true" {
		defer s.active.Store(false)
		outcome, err := s.runner.Run(c.Request.Context(), model.TriggerHTTP)
		s.respondOutcome(c, outcome, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Store(false)
		if _, err := s.runner.Run(s.baseCtx, model.TriggerHTTP); err != nil {
			s.logger.Warn("triggered run failed", zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) respondOutcome(c *gin.Context, outcome *model.RunOutcome, err error) {
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case outcome == nil && err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, outcome)
	default:
		c.JSON(http.StatusOK, outcome)
	}
}

func (s *Server) lastRun(c *gin.Context) {
	outcome := s.runner.LastOutcome()
	if outcome == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run has finished yet"})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
