package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/pkg/logs"
	"github.com/clawdeck/clawdeck/internal/pkg/prometheus"
)

// Notifier receives lifecycle transitions worth surfacing to a human.
// The registry calls it after the transition has been committed.
type Notifier interface {
	TaskTransition(ctx context.Context, t *Task, action Action)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) TaskTransition(context.Context, *Task, Action) {}

// Registry is the single write path for tasks. Every status change goes
// through the transition table, holds the task's lock, and commits with a
// status check so a concurrent writer loses cleanly instead of clobbering.
type Registry struct {
	store    Store
	notifier Notifier
	dispatch config.DispatchConfig

	// one mutex per task id, created on demand
	locks sync.Map
}

func NewRegistry(store Store, notifier Notifier, dispatch config.DispatchConfig) *Registry {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Registry{store: store, notifier: notifier, dispatch: dispatch}
}

func (r *Registry) lock(id int64) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create validates and persists a new task. Priority defaults to the middle
// of the range, timeout to the standard heartbeat window, and status to
// backlog; a parent id must reference an existing task.
func (r *Registry) Create(ctx context.Context, t *Task) (*Task, error) {
	if t.Title == "" {
		return nil, fmt.Errorf("task title is required")
	}
	if t.Priority == 0 {
		t.Priority = PriorityDefault
	}
	if t.Priority < PriorityMin || t.Priority > PriorityMax {
		return nil, fmt.Errorf("priority %d out of range [%d,%d]", t.Priority, PriorityMin, PriorityMax)
	}
	if t.TimeoutSec <= 0 {
		t.TimeoutSec = DefaultTimeoutSec
	}
	switch t.Status {
	case "":
		t.Status = StatusBacklog
	case StatusBacklog, StatusPlanned:
	default:
		return nil, fmt.Errorf("tasks cannot be created in status %s", t.Status)
	}
	if t.ParentID != nil {
		parent, err := r.store.Get(ctx, *t.ParentID)
		if err != nil {
			return nil, fmt.Errorf("parent task: %w", err)
		}
		if parent.ParentID != nil {
			return nil, fmt.Errorf("task %d is itself a subtask and cannot have children", parent.ID)
		}
	}
	if t.Progress == "" {
		t.Progress = "{}"
	}

	id, err := r.store.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	logs.CtxInfo(ctx, "task %d created: %q status=%s priority=%d", id, t.Title, t.Status, t.Priority)
	return t, nil
}

func (r *Registry) Get(ctx context.Context, id int64) (*Task, error) {
	return r.store.Get(ctx, id)
}

func (r *Registry) List(ctx context.Context, filter Filter) ([]*Task, error) {
	return r.store.List(ctx, filter)
}

// Apply runs one lifecycle action against the task. The transition is
// validated against the live record under the task's lock, and the write is
// re-checked against the loaded status at commit time. One retry covers a
// writer that slipped in between load and commit from outside this process.
func (r *Registry) Apply(ctx context.Context, id int64, action Action, patch *Patch) (*Task, error) {
	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	var t *Task
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		t, err = r.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		prev := t.Status

		if err := Apply(t, action, patch, time.Now().UTC()); err != nil {
			prometheus.TaskTransitions.WithLabelValues(string(action), "rejected").Inc()
			return nil, err
		}

		landed, err := r.store.Update(ctx, t, prev)
		if err != nil {
			return nil, err
		}
		if !landed {
			logs.CtxWarn(ctx, "task %d: %s raced by concurrent writer, retrying", id, action)
			continue
		}

		prometheus.TaskTransitions.WithLabelValues(string(action), "ok").Inc()
		if prev != StatusRunning && t.Status == StatusRunning {
			prometheus.TasksRunning.Inc()
		}
		if prev == StatusRunning && t.Status != StatusRunning {
			prometheus.TasksRunning.Dec()
		}
		logs.CtxInfo(ctx, "task %d: %s (%s -> %s)", id, action, prev, t.Status)

		if action == ActionPlan || action == ActionRun {
			r.notifier.TaskTransition(ctx, t, action)
		}
		if t.Status.Terminal() {
			r.autoDispatch(ctx)
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s on task %d", ErrCommitConflict, action, id)
}

// Heartbeat records liveness for a running task and marks it acked.
func (r *Registry) Heartbeat(ctx context.Context, id int64, msg string) error {
	if err := r.store.Heartbeat(ctx, id, msg, time.Now().UTC()); err != nil {
		return err
	}
	prometheus.HeartbeatsIngested.Inc()
	return nil
}

// Delete removes a task and everything hanging off it, from any status.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	t, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	if t.Status == StatusRunning {
		prometheus.TasksRunning.Dec()
	}
	r.locks.Delete(id)
	logs.CtxInfo(ctx, "task %d deleted (was %s)", id, t.Status)
	return nil
}

// autoDispatch promotes planned tasks into free run slots when a terminal
// transition frees capacity. Best effort: a dispatch failure is logged and
// the remaining slots are left for the next trigger.
func (r *Registry) autoDispatch(ctx context.Context) {
	if !r.dispatch.Auto {
		return
	}
	for {
		running, err := r.store.CountByStatus(ctx, StatusRunning)
		if err != nil {
			logs.CtxError(ctx, "auto-dispatch: count running: %v", err)
			return
		}
		if running >= r.dispatch.MaxSlots {
			return
		}
		next, err := r.store.NextPlanned(ctx)
		if err != nil {
			logs.CtxError(ctx, "auto-dispatch: next planned: %v", err)
			return
		}
		if next == nil {
			return
		}
		if _, err := r.Apply(ctx, next.ID, ActionRun, nil); err != nil {
			logs.CtxError(ctx, "auto-dispatch: run task %d: %v", next.ID, err)
			return
		}
	}
}
