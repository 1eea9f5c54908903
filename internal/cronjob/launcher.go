package cronjob

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/clawdeck/clawdeck/internal/task"
)

// TaskRegistry is the slice of the task registry a firing needs.
type TaskRegistry interface {
	Create(ctx context.Context, t *task.Task) (*task.Task, error)
	Apply(ctx context.Context, id int64, action task.Action, patch *task.Patch) (*task.Task, error)
}

// TaskLauncher converts a fired job's payload into a task and starts it.
type TaskLauncher struct {
	registry TaskRegistry
}

func NewTaskLauncher(registry TaskRegistry) *TaskLauncher {
	return &TaskLauncher{registry: registry}
}

var _ Launcher = (*TaskLauncher)(nil)

func (l *TaskLauncher) Launch(ctx context.Context, job *Job) (string, error) {
	sessionKey := fmt.Sprintf("cron:%d", job.ID)
	if job.SessionTarget == TargetMain {
		sessionKey = "main"
	}

	// the full payload rides in the progress blob so the executing agent
	// sees the model and payload type, not just the message
	progress, _ := sonic.Marshal(map[string]any{
		"cron_job_id":  job.ID,
		"model":        job.Payload.Model,
		"payload_type": job.Payload.Type,
	})

	t, err := l.registry.Create(ctx, &task.Task{
		Title:       job.Name,
		Description: job.Payload.Message,
		Project:     "cron",
		Status:      task.StatusPlanned,
		SessionKey:  sessionKey,
		Progress:    string(progress),
		Tags:        []string{"cron"},
	})
	if err != nil {
		return "", fmt.Errorf("create task for job %d: %w", job.ID, err)
	}
	if _, err := l.registry.Apply(ctx, t.ID, task.ActionRun, nil); err != nil {
		return fmt.Sprintf("created task #%d", t.ID), fmt.Errorf("start task %d: %w", t.ID, err)
	}
	return fmt.Sprintf("created task #%d and started it in session %s", t.ID, sessionKey), nil
}
