package server

import (
	"context"

	"github.com/bytedance/gg/gconv"
	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/clawdeck/clawdeck/internal/checklist"
)

func (s *Server) handleListSteps(ctx context.Context, c *app.RequestContext) {
	taskID := gconv.To[int64](c.Param("id"))
	if _, err := s.registry.Get(ctx, taskID); err != nil {
		writeError(c, err)
		return
	}
	steps, err := s.steps.List(ctx, taskID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{
		"steps":   steps,
		"summary": checklist.Summarize(steps),
	})
}

type addStepRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order,omitempty"`
}

func (s *Server) handleAddStep(ctx context.Context, c *app.RequestContext) {
	taskID := gconv.To[int64](c.Param("id"))
	if _, err := s.registry.Get(ctx, taskID); err != nil {
		writeError(c, err)
		return
	}

	var req addStepRequest
	if err := sonic.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "parse body: %v", err)
		return
	}
	step, err := s.steps.Add(ctx, taskID, req.Title, req.Description, req.Order)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusCreated, step)
}

type stepActionRequest struct {
	Action      string `json:"action"`
	CompletedBy string `json:"completed_by,omitempty"`
}

func (s *Server) handleStepAction(ctx context.Context, c *app.RequestContext) {
	var req stepActionRequest
	if err := sonic.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "parse body: %v", err)
		return
	}
	action, err := checklist.ParseAction(req.Action)
	if err != nil {
		badRequest(c, "%v", err)
		return
	}

	step, err := s.steps.Apply(ctx, gconv.To[int64](c.Param("stepId")), action, req.CompletedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, step)
}

func (s *Server) handleDeleteStep(ctx context.Context, c *app.RequestContext) {
	if err := s.steps.Delete(ctx, gconv.To[int64](c.Param("stepId"))); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"deleted": true})
}
