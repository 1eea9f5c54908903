package server

import (
	"context"

	"github.com/bytedance/gg/gconv"
	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/clawdeck/clawdeck/internal/heartbeat"
	"github.com/clawdeck/clawdeck/internal/task"
)

type createTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Project     string   `json:"project,omitempty"`
	AgentID     string   `json:"agent_id,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	Status      string   `json:"status,omitempty"`
	ParentID    *int64   `json:"parent_id,omitempty"`
	TimeoutSec  int      `json:"timeout_seconds,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (s *Server) handleCreateTask(ctx context.Context, c *app.RequestContext) {
	var req createTaskRequest
	if err := sonic.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "parse body: %v", err)
		return
	}

	t := &task.Task{
		Title:       req.Title,
		Description: req.Description,
		Project:     req.Project,
		AgentID:     req.AgentID,
		Priority:    req.Priority,
		ParentID:    req.ParentID,
		TimeoutSec:  req.TimeoutSec,
		Notes:       req.Notes,
		Tags:        req.Tags,
	}
	if req.Status != "" {
		status, err := task.ParseStatus(req.Status)
		if err != nil {
			badRequest(c, "%v", err)
			return
		}
		t.Status = status
	}

	created, err := s.registry.Create(ctx, t)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusCreated, created)
}

func (s *Server) handleListTasks(ctx context.Context, c *app.RequestContext) {
	filter := task.Filter{
		Project: c.Query("project"),
		AgentID: c.Query("agent"),
		Limit:   gconv.To[int](c.Query("limit")),
		Offset:  gconv.To[int](c.Query("offset")),
	}
	if q := c.Query("status"); q != "" {
		status, err := task.ParseStatus(q)
		if err != nil {
			badRequest(c, "%v", err)
			return
		}
		filter.Status = &status
	}

	tasks, err := s.registry.List(ctx, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleGetTask(ctx context.Context, c *app.RequestContext) {
	t, err := s.registry.Get(ctx, gconv.To[int64](c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, t)
}

func (s *Server) handleDeleteTask(ctx context.Context, c *app.RequestContext) {
	if err := s.registry.Delete(ctx, gconv.To[int64](c.Param("id"))); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"deleted": true})
}

type taskActionRequest struct {
	Action string      `json:"action"`
	Fields *task.Patch `json:"fields,omitempty"`
}

func (s *Server) handleTaskAction(ctx context.Context, c *app.RequestContext) {
	var req taskActionRequest
	if err := sonic.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "parse body: %v", err)
		return
	}
	action, err := task.ParseAction(req.Action)
	if err != nil {
		badRequest(c, "%v", err)
		return
	}

	t, err := s.registry.Apply(ctx, gconv.To[int64](c.Param("id")), action, req.Fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, t)
}

func (s *Server) handleTaskActions(ctx context.Context, c *app.RequestContext) {
	t, err := s.registry.Get(ctx, gconv.To[int64](c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"status": t.Status, "actions": task.ValidActions(t.Status)})
}

type heartbeatRequest struct {
	TaskID       int64  `json:"task_id"`
	HeartbeatMsg string `json:"heartbeat_msg,omitempty"`
}

func (s *Server) handleHeartbeat(ctx context.Context, c *app.RequestContext) {
	var req heartbeatRequest
	if err := sonic.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "parse body: %v", err)
		return
	}
	if err := s.registry.Heartbeat(ctx, req.TaskID, req.HeartbeatMsg); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"ok": true})
}

func (s *Server) handleActiveTasks(ctx context.Context, c *app.RequestContext) {
	active, err := s.monitor.Snapshot(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"active": active, "count": len(active)})
}

func (s *Server) handleListZombies(ctx context.Context, c *app.RequestContext) {
	events, err := s.monitor.Events(ctx, gconv.To[int](c.Query("limit")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"events": events, "count": len(events)})
}

type resolveZombieRequest struct {
	SessionKey string `json:"session_key"`
	Resolution string `json:"resolution"`
}

func (s *Server) handleResolveZombie(ctx context.Context, c *app.RequestContext) {
	var req resolveZombieRequest
	if err := sonic.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "parse body: %v", err)
		return
	}
	verdict, err := heartbeat.ParseResolution(req.Resolution)
	if err != nil {
		badRequest(c, "%v", err)
		return
	}

	ev, err := s.monitor.Resolve(ctx, req.SessionKey, verdict)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, ev)
}
