// Package server exposes runs, their day view and traces over a JSON API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/eventradar/internal/city"
	"github.com/FranksOps/eventradar/internal/metrics"
	"github.com/FranksOps/eventradar/internal/pipeline"
	"github.com/FranksOps/eventradar/internal/report"
	"github.com/FranksOps/eventradar/internal/storage"
	"github.com/gin-gonic/gin"
)

// Runner submits and executes runs. *pipeline.Service implements it.
type Runner interface {
	Submit(ctx context.Context, req pipeline.Request) (*storage.Run, error)
	Execute(ctx context.Context, run *storage.Run) error
}

var _ Runner = (*pipeline.Service)(nil)

// CityLister lists the configured cities.
type CityLister interface {
	List() []city.City
}

// Config wires a Server.
type Config struct {
	Addr    string
	Backend storage.Backend
	Runner  Runner
	// Cities, when set, is served at /api/cities.
	Cities CityLister
	Logger *slog.Logger
}

// Server is the HTTP API. Submitted runs execute in background goroutines
// that Shutdown waits for.
type Server struct {
	cfg    Config
	logger *slog.Logger
	engine *gin.Engine
	srv    *http.Server

	// runCtx outlives individual requests; Shutdown cancels it only after
	// its own deadline passes.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
}

// New builds the router.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, logger: logger, engine: gin.New()}
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())

	r := s.engine
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/cities", s.listCities)
		api.POST("/runs", s.createRun)
		api.GET("/runs", s.listRuns)
		api.GET("/runs/:id", s.getRun)
		api.GET("/runs/:id/days", s.getDays)
		api.GET("/runs/:id/trace", s.getTrace)
		api.DELETE("/runs/:id", s.deleteRun)
	}

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("api listening", "addr", s.cfg.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for background runs. Runs still
// going when ctx expires are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.cancelRun()
		<-done
	}
	s.cancelRun()
	return err
}

// Wait blocks until every background run has finished.
func (s *Server) Wait() {
	s.runs.Wait()
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func (s *Server) listCities(c *gin.Context) {
	if s.cfg.Cities == nil {
		c.JSON(http.StatusOK, []city.City{})
		return
	}
	c.JSON(http.StatusOK, s.cfg.Cities.List())
}

func (s *Server) createRun(c *gin.Context) {
	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := s.cfg.Runner.Submit(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.runs.Go(func() {
		if err := s.cfg.Runner.Execute(s.runCtx, run); err != nil {
			s.logger.Error("run failed", "run_id", run.ID, "err", err)
		}
	})

	c.JSON(http.StatusAccepted, run)
}

func (s *Server) listRuns(c *gin.Context) {
	filter := storage.RunFilter{Status: storage.RunCompleted}
	switch status := c.Query("status"); status {
	case "":
	case "all":
		filter.Status = ""
	default:
		filter.Status = storage.RunStatus(status)
	}
	var err error
	if filter.Limit, err = strconv.Atoi(c.DefaultQuery("limit", "50")); err != nil || filter.Limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	if filter.Offset, err = strconv.Atoi(c.DefaultQuery("offset", "0")); err != nil || filter.Offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	runs, err := s.cfg.Backend.ListRuns(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.cfg.Backend.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getDays(c *gin.Context) {
	days, err := report.Load(c.Request.Context(), s.cfg.Backend, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, days)
}

func (s *Server) getTrace(c *gin.Context) {
	run, err := s.cfg.Backend.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if run.Trace == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trace not yet recorded", "status": run.Status})
		return
	}
	c.JSON(http.StatusOK, run.Trace)
}

func (s *Server) deleteRun(c *gin.Context) {
	ctx := c.Request.Context()
	run, err := s.cfg.Backend.GetRun(ctx, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !run.Status.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "run is still " + string(run.Status)})
		return
	}
	if err := s.cfg.Backend.DeleteRun(ctx, run.ID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, city.ErrNotFound), errors.Is(err, storage.ErrRunNotFound):
		status = http.StatusNotFound
	default:
		s.logger.Error("api error", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
