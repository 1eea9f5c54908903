package checklist

import (
	"context"
	"fmt"
	"time"

	"github.com/clawdeck/clawdeck/internal/pkg/logs"
)

// Engine is the write path for checklist steps.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Add appends a step to a task's checklist. A zero Order means append: the
// step lands after every existing one. Explicit orders are taken as-is for
// insertion between neighbours.
func (e *Engine) Add(ctx context.Context, taskID int64, title, description string, order int) (*Step, error) {
	if title == "" {
		return nil, fmt.Errorf("step title is required")
	}
	if order <= 0 {
		max, err := e.store.MaxOrder(ctx, taskID)
		if err != nil {
			return nil, err
		}
		order = max + 1
	}
	step := &Step{
		TaskID:      taskID,
		Order:       order,
		Title:       title,
		Description: description,
		Status:      StepPending,
	}
	if _, err := e.store.Create(ctx, step); err != nil {
		return nil, err
	}
	logs.CtxInfo(ctx, "task %d: checklist step %d added at order %d", taskID, step.ID, order)
	return step, nil
}

// Apply runs one action against a step and persists the result.
func (e *Engine) Apply(ctx context.Context, stepID int64, action Action, by string) (*Step, error) {
	step, err := e.store.Get(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if err := step.transition(action, by, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := e.store.Update(ctx, step); err != nil {
		return nil, err
	}
	logs.CtxDebug(ctx, "task %d: step %d %s -> %s", step.TaskID, step.ID, action, step.Status)
	return step, nil
}

// Delete removes a step. Done and running steps are protected; they must be
// reset, completed, or skipped before removal.
func (e *Engine) Delete(ctx context.Context, stepID int64) error {
	step, err := e.store.Get(ctx, stepID)
	if err != nil {
		return err
	}
	if !step.Deletable() {
		return fmt.Errorf("%w: step %d is %s", ErrStepNotDeletable, stepID, step.Status)
	}
	return e.store.Delete(ctx, stepID)
}

// List returns a task's steps in checklist order.
func (e *Engine) List(ctx context.Context, taskID int64) ([]*Step, error) {
	return e.store.ListByTask(ctx, taskID)
}

// Progress reads one consistent snapshot of the task's steps and derives
// the summary from it.
func (e *Engine) Progress(ctx context.Context, taskID int64) (Summary, error) {
	steps, err := e.store.ListByTask(ctx, taskID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(steps), nil
}
