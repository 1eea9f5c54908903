package task

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/clawdeck/clawdeck/internal/config"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Action
}

func (n *recordingNotifier) TaskTransition(_ context.Context, _ *Task, action Action) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, action)
}

func newTestRegistry(t *testing.T, dispatch config.DispatchConfig) (*Registry, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	return NewRegistry(newTestStore(t), n, dispatch), n
}

func TestRegistryCreateDefaults(t *testing.T) {
	r, _ := newTestRegistry(t, config.DispatchConfig{})
	ctx := context.Background()

	got, err := r.Create(ctx, &Task{Title: "set up repo"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.Status != StatusBacklog || got.Priority != PriorityDefault || got.TimeoutSec != DefaultTimeoutSec {
		t.Fatalf("defaults not applied: %+v", got)
	}

	if _, err := r.Create(ctx, &Task{}); err == nil {
		t.Error("empty title accepted")
	}
	if _, err := r.Create(ctx, &Task{Title: "x", Priority: 42}); err == nil {
		t.Error("priority 42 accepted")
	}
	if _, err := r.Create(ctx, &Task{Title: "x", Status: StatusDone}); err == nil {
		t.Error("creation directly in done accepted")
	}

	missing := int64(777)
	if _, err := r.Create(ctx, &Task{Title: "x", ParentID: &missing}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing parent: want ErrNotFound, got %v", err)
	}
}

func TestRegistryFullLifecycle(t *testing.T) {
	r, notifier := newTestRegistry(t, config.DispatchConfig{})
	ctx := context.Background()

	created, err := r.Create(ctx, &Task{Title: "ship the feature"})
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		action Action
		want   Status
	}{
		{ActionPlan, StatusPlanned},
		{ActionRun, StatusRunning},
		{ActionReview, StatusReview},
		{ActionComplete, StatusDone},
	}
	for _, st := range steps {
		got, err := r.Apply(ctx, created.ID, st.action, nil)
		if err != nil {
			t.Fatalf("%s: %v", st.action, err)
		}
		if got.Status != st.want {
			t.Fatalf("%s: status = %s, want %s", st.action, got.Status, st.want)
		}
	}

	final, err := r.Get(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.StartedAt == nil || final.CompletedAt == nil {
		t.Fatalf("timestamps missing after lifecycle: %+v", final)
	}
	if final.StartedAt.After(*final.CompletedAt) {
		t.Fatal("started_at after completed_at")
	}

	// plan and run are the transitions a human wants to hear about
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 2 || notifier.events[0] != ActionPlan || notifier.events[1] != ActionRun {
		t.Fatalf("notifications = %v", notifier.events)
	}
}

func TestRegistryRejectsInvalidAction(t *testing.T) {
	r, _ := newTestRegistry(t, config.DispatchConfig{})
	ctx := context.Background()

	created, err := r.Create(ctx, &Task{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Apply(ctx, created.ID, ActionComplete, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete from backlog: want ErrInvalidTransition, got %v", err)
	}

	got, _ := r.Get(ctx, created.ID)
	if got.Status != StatusBacklog {
		t.Fatalf("rejected action changed persisted status to %s", got.Status)
	}
}

func TestRegistryAutoDispatch(t *testing.T) {
	r, _ := newTestRegistry(t, config.DispatchConfig{Auto: true, MaxSlots: 1})
	ctx := context.Background()

	first, err := r.Create(ctx, &Task{Title: "first"})
	if err != nil {
		t.Fatal(err)
	}
	waiting, err := r.Create(ctx, &Task{Title: "waiting", Priority: 2, Status: StatusPlanned})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Apply(ctx, first.ID, ActionRun, nil); err != nil {
		t.Fatal(err)
	}
	// the slot is full, so the planned task stays planned
	got, _ := r.Get(ctx, waiting.ID)
	if got.Status != StatusPlanned {
		t.Fatalf("dispatched past capacity: %s", got.Status)
	}

	if _, err := r.Apply(ctx, first.ID, ActionCancel, nil); err != nil {
		t.Fatal(err)
	}
	// cancelling freed the slot; the most urgent planned task runs
	got, _ = r.Get(ctx, waiting.ID)
	if got.Status != StatusRunning {
		t.Fatalf("freed slot not dispatched: %s", got.Status)
	}
}

func TestRegistryDeleteFromAnyStatus(t *testing.T) {
	r, _ := newTestRegistry(t, config.DispatchConfig{})
	ctx := context.Background()

	// deletion is unconditional, even mid-run
	running, err := r.Create(ctx, &Task{Title: "mid-run"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Apply(ctx, running.ID, ActionRun, nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, running.ID); err != nil {
		t.Fatalf("Delete running task: %v", err)
	}
	if _, err := r.Get(ctx, running.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}

	done, err := r.Create(ctx, &Task{Title: "finished"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Apply(ctx, done.ID, ActionCancel, nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, done.ID); err != nil {
		t.Fatalf("Delete cancelled task: %v", err)
	}
}

// racingStore loses every commit, as if an outside writer always slips in
// between load and update.
type racingStore struct {
	Store
	task Task
}

func (s *racingStore) Get(context.Context, int64) (*Task, error) {
	cp := s.task
	return &cp, nil
}

func (s *racingStore) Update(context.Context, *Task, Status) (bool, error) {
	return false, nil
}

func TestRegistryReportsCommitConflict(t *testing.T) {
	st := &racingStore{task: Task{ID: 1, Title: "contested", Status: StatusBacklog}}
	r := NewRegistry(st, nil, config.DispatchConfig{})

	_, err := r.Apply(context.Background(), 1, ActionPlan, nil)
	if !errors.Is(err, ErrCommitConflict) {
		t.Fatalf("want ErrCommitConflict, got %v", err)
	}
	if errors.Is(err, ErrInvalidTransition) {
		t.Fatal("contention misreported as an invalid transition")
	}
}

func TestRegistryHeartbeat(t *testing.T) {
	r, _ := newTestRegistry(t, config.DispatchConfig{})
	ctx := context.Background()

	created, err := r.Create(ctx, &Task{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Heartbeat(ctx, created.ID, "warming up"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("heartbeat on non-running task: want ErrNotFound, got %v", err)
	}

	if _, err := r.Apply(ctx, created.ID, ActionRun, nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Heartbeat(ctx, created.ID, "step 1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	got, _ := r.Get(ctx, created.ID)
	if got.LastHeartbeat == nil || !got.Acked {
		t.Fatalf("heartbeat not recorded: %+v", got)
	}
}
