package server

import (
	"context"

	"github.com/bytedance/gg/gconv"
	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/clawdeck/clawdeck/internal/cronjob"
)

type jobRequest struct {
	Name          string          `json:"name"`
	Kind          string          `json:"kind"`
	Schedule      string          `json:"schedule"`
	Timezone      string          `json:"timezone,omitempty"`
	SessionTarget string          `json:"sessionTarget,omitempty"`
	Payload       cronjob.Payload `json:"payload"`
	Enabled       *bool           `json:"enabled,omitempty"`
}

func (r *jobRequest) apply(j *cronjob.Job) error {
	kind, err := cronjob.ParseKind(r.Kind)
	if err != nil {
		return err
	}
	j.Name = r.Name
	j.Kind = kind
	j.Schedule = r.Schedule
	j.Timezone = r.Timezone
	j.Payload = r.Payload
	if r.SessionTarget != "" {
		target, err := cronjob.ParseSessionTarget(r.SessionTarget)
		if err != nil {
			return err
		}
		j.SessionTarget = target
	}
	if r.Enabled != nil {
		j.Enabled = *r.Enabled
	}
	return nil
}

func (s *Server) handleListJobs(ctx context.Context, c *app.RequestContext) {
	jobs, err := s.scheduler.ListJobs(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleCreateJob(ctx context.Context, c *app.RequestContext) {
	var req jobRequest
	if err := sonic.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "parse body: %v", err)
		return
	}

	job := &cronjob.Job{Enabled: true}
	if err := req.apply(job); err != nil {
		badRequest(c, "%v", err)
		return
	}
	created, err := s.scheduler.CreateJob(ctx, job)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusCreated, created)
}

func (s *Server) handleGetJob(ctx context.Context, c *app.RequestContext) {
	job, err := s.scheduler.GetJob(ctx, gconv.To[int64](c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, job)
}

func (s *Server) handleUpdateJob(ctx context.Context, c *app.RequestContext) {
	job, err := s.scheduler.GetJob(ctx, gconv.To[int64](c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}

	var req jobRequest
	if err := sonic.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "parse body: %v", err)
		return
	}
	if err := req.apply(job); err != nil {
		badRequest(c, "%v", err)
		return
	}

	updated, err := s.scheduler.UpdateJob(ctx, job)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, updated)
}

func (s *Server) handleDeleteJob(ctx context.Context, c *app.RequestContext) {
	if err := s.scheduler.DeleteJob(ctx, gconv.To[int64](c.Param("id"))); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"deleted": true})
}

type toggleJobRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleToggleJob(ctx context.Context, c *app.RequestContext) {
	var req toggleJobRequest
	if err := sonic.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "parse body: %v", err)
		return
	}
	job, err := s.scheduler.ToggleJob(ctx, gconv.To[int64](c.Param("id")), req.Enabled)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, job)
}

func (s *Server) handleRunJobNow(ctx context.Context, c *app.RequestContext) {
	run, err := s.scheduler.RunNow(ctx, gconv.To[int64](c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, run)
}

func (s *Server) handleListJobRuns(ctx context.Context, c *app.RequestContext) {
	runs, err := s.scheduler.ListRuns(ctx, gconv.To[int64](c.Param("id")), gconv.To[int](c.Query("limit")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"runs": runs, "count": len(runs)})
}
