// Package server exposes the task registry, checklist engine, heartbeat
// monitor, and cron scheduler over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	hzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	hzprom "github.com/hertz-contrib/monitor-prometheus"

	"github.com/clawdeck/clawdeck/internal/checklist"
	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/cronjob"
	"github.com/clawdeck/clawdeck/internal/heartbeat"
	"github.com/clawdeck/clawdeck/internal/pkg/logs"
	"github.com/clawdeck/clawdeck/internal/pkg/prometheus"
	"github.com/clawdeck/clawdeck/internal/task"
)

// Server wires the core components into an HTTP API.
type Server struct {
	cfg       config.ServerConfig
	registry  *task.Registry
	steps     *checklist.Engine
	monitor   *heartbeat.Monitor
	scheduler *cronjob.Scheduler

	hz *hzServer.Hertz
}

func New(cfg config.ServerConfig, registry *task.Registry, steps *checklist.Engine,
	monitor *heartbeat.Monitor, scheduler *cronjob.Scheduler) *Server {

	hlog.SetLogger(logs.NewHlogLogger(logs.DefaultLogger()))

	opts := []hzconfig.Option{
		hzServer.WithHostPorts(cfg.Bind),
		hzServer.WithReadTimeout(cfg.Timeout()),
		hzServer.WithWriteTimeout(cfg.Timeout()),
		hzServer.WithExitWaitTime(5 * time.Second),
	}
	if cfg.MetricsBind != "" {
		opts = append(opts, hzServer.WithTracer(
			hzprom.NewServerTracer(cfg.MetricsBind, "/metrics",
				hzprom.WithRegistry(prometheus.GetRegistry()),
				hzprom.WithEnableGoCollector(true),
			)))
	}

	s := &Server{
		cfg:       cfg,
		registry:  registry,
		steps:     steps,
		monitor:   monitor,
		scheduler: scheduler,
		hz:        hzServer.Default(opts...),
	}
	s.registerRoutes()
	return s
}

// Run starts serving and blocks until Shutdown.
func (s *Server) Run() {
	logs.Info("[server] listening on %s", s.cfg.Bind)
	s.hz.Spin()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.hz.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.hz.Use(s.withLogID)

	s.hz.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api := s.hz.Group("/api", s.auth)

	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks", s.handleListTasks)
	api.GET("/tasks/active", s.handleActiveTasks)
	api.GET("/tasks/:id", s.handleGetTask)
	api.DELETE("/tasks/:id", s.handleDeleteTask)
	api.POST("/tasks/:id/action", s.handleTaskAction)
	api.GET("/tasks/:id/actions", s.handleTaskActions)
	api.POST("/heartbeat", s.handleHeartbeat)

	api.GET("/tasks/:id/checklist", s.handleListSteps)
	api.POST("/tasks/:id/checklist", s.handleAddStep)
	api.POST("/checklist/:stepId/action", s.handleStepAction)
	api.DELETE("/checklist/:stepId", s.handleDeleteStep)

	api.GET("/zombies", s.handleListZombies)
	api.POST("/zombies/resolve", s.handleResolveZombie)

	api.GET("/cron/jobs", s.handleListJobs)
	api.POST("/cron/jobs", s.handleCreateJob)
	api.GET("/cron/jobs/:id", s.handleGetJob)
	api.PUT("/cron/jobs/:id", s.handleUpdateJob)
	api.DELETE("/cron/jobs/:id", s.handleDeleteJob)
	api.POST("/cron/jobs/:id/toggle", s.handleToggleJob)
	api.POST("/cron/jobs/:id/run", s.handleRunJobNow)
	api.GET("/cron/jobs/:id/runs", s.handleListJobRuns)
}

// withLogID stamps each request with a log id for correlation.
func (s *Server) withLogID(ctx context.Context, c *app.RequestContext) {
	c.Next(logs.SetLogID(ctx, logs.NewLogID()))
}

// auth enforces the bearer token when one is configured.
func (s *Server) auth(ctx context.Context, c *app.RequestContext) {
	if s.cfg.AuthToken == "" {
		c.Next(ctx)
		return
	}
	header := string(c.GetHeader("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token != s.cfg.AuthToken {
		c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "unauthorized"})
		return
	}
	c.Next(ctx)
}

// writeError maps a domain error onto an HTTP status.
func writeError(c *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch {
	case errors.Is(err, task.ErrNotFound),
		errors.Is(err, checklist.ErrNotFound),
		errors.Is(err, cronjob.ErrNotFound),
		errors.Is(err, heartbeat.ErrNoOpenSuspicion):
		status = consts.StatusNotFound
	case errors.Is(err, task.ErrInvalidTransition),
		errors.Is(err, task.ErrCommitConflict),
		errors.Is(err, checklist.ErrInvalidStepTransition),
		errors.Is(err, checklist.ErrStepNotDeletable):
		status = consts.StatusConflict
	case errors.Is(err, cronjob.ErrInvalidSchedule):
		status = consts.StatusBadRequest
	}
	c.JSON(status, utils.H{"error": err.Error()})
}

func badRequest(c *app.RequestContext, format string, v ...interface{}) {
	c.JSON(consts.StatusBadRequest, utils.H{"error": fmt.Sprintf(format, v...)})
}
