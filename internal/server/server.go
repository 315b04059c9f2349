package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"go-jobpilot/internal/orchestrator"
	"go-jobpilot/internal/progress"
)

// keptReports bounds the finished run reports served by GET /api/runs/:runId.
const keptReports = 100

type Runner interface {
	Run(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.Report, error)
}

type runOutcome struct {
	Report *orchestrator.Report `json:"report"`
	Error  string               `json:"error,omitempty"`
}

// Server exposes run progress and triggers detached runs. Runs for the same
// configuration id are coalesced into one.
type Server struct {
	tracker *progress.Tracker
	runner  Runner
	log     *zap.Logger
	// runs outlive the request that started them
	baseCtx context.Context

	group singleflight.Group
	wg    sync.WaitGroup

	mu       sync.Mutex
	active   map[string]string // config id -> run id
	finished map[string]runOutcome
	order    []string
}

func New(baseCtx context.Context, tracker *progress.Tracker, runner Runner, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		tracker:  tracker,
		runner:   runner,
		log:      log,
		baseCtx:  baseCtx,
		active:   make(map[string]string),
		finished: make(map[string]runOutcome),
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "JobPilot API is running!",
			"status":  "healthy",
		})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/progress", s.listProgress)
	api.GET("/progress/:configId", s.getProgress)
	api.DELETE("/progress/:configId", s.clearProgress)
	api.POST("/runs", s.startRun)
	api.GET("/runs/:runId", s.getRun)
	return r
}

// Wait blocks until every detached run has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) listProgress(c *gin.Context) {
	recs, err := s.tracker.All(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": recs})
}

func (s *Server) getProgress(c *gin.Context) {
	rec, ok, err := s.tracker.Get(c.Request.Context(), c.Param("configId"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no progress for this configuration"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) clearProgress(c *gin.Context) {
	if err := s.tracker.Clear(c.Request.Context(), c.Param("configId")); err != nil {
		s.internalError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type runRequest struct {
	ConfigID          string `json:"configId" binding:"required"`
	UseRealAutomation bool   `json:"useRealAutomation"`
}

func (s *Server) startRun(c *gin.Context) {
	var body runRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	runID, coalesced := s.trigger(orchestrator.RunRequest{
		ConfigID:          body.ConfigID,
		UseRealAutomation: body.UseRealAutomation,
	})
	c.JSON(http.StatusAccepted, gin.H{
		"runId":     runID,
		"configId":  body.ConfigID,
		"coalesced": coalesced,
	})
}

func (s *Server) getRun(c *gin.Context) {
	runID := c.Param("runId")
	s.mu.Lock()
	outcome, done := s.finished[runID]
	running := false
	for _, id := range s.active {
		if id == runID {
			running = true
		}
	}
	s.mu.Unlock()

	switch {
	case done:
		c.JSON(http.StatusOK, outcome)
	case running:
		c.JSON(http.StatusAccepted, gin.H{"runId": runID, "status": "running"})
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
	}
}

// trigger starts a detached run, or joins the one in flight for the same
// configuration and returns its run id.
func (s *Server) trigger(req orchestrator.RunRequest) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req.RunID = uuid.NewString()
	ch := s.group.DoChan(req.ConfigID, func() (any, error) {
		return s.execute(req)
	})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ch
	}()

	if id, ok := s.active[req.ConfigID]; ok {
		return id, true
	}
	s.active[req.ConfigID] = req.RunID
	return req.RunID, false
}

func (s *Server) execute(req orchestrator.RunRequest) (*orchestrator.Report, error) {
	rlog := s.log.With(zap.String("run_id", req.RunID), zap.String("config_id", req.ConfigID))
	rlog.Info("🚀 Detached run started")
	started := time.Now()

	report, err := s.runner.Run(s.baseCtx, req)

	outcome := runOutcome{Report: report}
	if err != nil {
		outcome.Error = err.Error()
		rlog.Warn("⚠️ Detached run failed", zap.Error(err))
	} else {
		rlog.Info("✅ Detached run finished", zap.Duration("took", time.Since(started)))
	}

	s.mu.Lock()
	// later triggers must start a new flight, not join this finished one
	s.group.Forget(req.ConfigID)
	delete(s.active, req.ConfigID)
	s.finished[req.RunID] = outcome
	s.order = append(s.order, req.RunID)
	if len(s.order) > keptReports {
		delete(s.finished, s.order[0])
		s.order = s.order[1:]
	}
	s.mu.Unlock()
	return report, err
}

func (s *Server) internalError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.Status(499)
		return
	}
	s.log.Error("❌ request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

// ListenAndServe serves until ctx is done, then drains HTTP requests and waits
// for detached runs, bounded by shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpSrv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("🌐 Server listening", zap.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.log.Info("🛑 Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("⚠️ HTTP shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.log.Warn("⚠️ Detached runs still active at shutdown")
	}
	return nil
}
