package checklist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/storage"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := storage.Open(config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "clawdeck.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewEngine(NewSQLStore(db))
}

func TestStepTransitions(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		from    StepStatus
		action  Action
		want    StepStatus
		wantErr bool
	}{
		{"start from pending", StepPending, ActionStart, StepRunning, false},
		{"complete from pending", StepPending, ActionComplete, StepDone, false},
		{"complete from running", StepRunning, ActionComplete, StepDone, false},
		{"skip from pending", StepPending, ActionSkip, StepSkipped, false},
		{"skip from running", StepRunning, ActionSkip, StepSkipped, false},
		{"fail from running", StepRunning, ActionFail, StepFailed, false},
		{"reset from done", StepDone, ActionReset, StepPending, false},
		{"reset from skipped", StepSkipped, ActionReset, StepPending, false},
		{"reset from failed", StepFailed, ActionReset, StepPending, false},
		{"reset from running", StepRunning, ActionReset, StepPending, false},

		{"start from done rejected", StepDone, ActionStart, "", true},
		{"complete from done rejected", StepDone, ActionComplete, "", true},
		{"skip from done rejected", StepDone, ActionSkip, "", true},
		{"fail from pending rejected", StepPending, ActionFail, "", true},
		{"reset from pending rejected", StepPending, ActionReset, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Step{Status: tt.from}
			err := s.transition(tt.action, "tester", now)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidStepTransition) {
					t.Fatalf("want ErrInvalidStepTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("transition: %v", err)
			}
			if s.Status != tt.want {
				t.Fatalf("status = %s, want %s", s.Status, tt.want)
			}
		})
	}
}

func TestStepCompletionMetadata(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	s := &Step{Status: StepPending}

	if err := s.transition(ActionComplete, "claw-1", now); err != nil {
		t.Fatal(err)
	}
	if s.CompletedAt == nil || !s.CompletedAt.Equal(now) || s.CompletedBy != "claw-1" {
		t.Fatalf("completion metadata: %+v", s)
	}

	if err := s.transition(ActionReset, "", now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if s.CompletedAt != nil || s.CompletedBy != "" {
		t.Fatalf("reset left completion metadata: %+v", s)
	}
}

func TestSummarize(t *testing.T) {
	mk := func(statuses ...StepStatus) []*Step {
		steps := make([]*Step, len(statuses))
		for i, st := range statuses {
			steps[i] = &Step{Status: st}
		}
		return steps
	}

	tests := []struct {
		name        string
		steps       []*Step
		wantPercent int
	}{
		{"empty", nil, 0},
		{"two done one skipped one pending", mk(StepDone, StepDone, StepSkipped, StepPending), 75},
		{"all done", mk(StepDone, StepDone), 100},
		{"failed counts as no progress", mk(StepDone, StepFailed), 50},
		{"rounding", mk(StepDone, StepPending, StepPending), 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.steps)
			if got.Percent != tt.wantPercent {
				t.Fatalf("percent = %d, want %d", got.Percent, tt.wantPercent)
			}
			if got.Total != len(tt.steps) {
				t.Fatalf("total = %d, want %d", got.Total, len(tt.steps))
			}
		})
	}
}

func TestEngineAddAppendsOrder(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Add(ctx, 1, "clone the repo", "", 0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := e.Add(ctx, 1, "run the tests", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if first.Order != 1 || second.Order != 2 {
		t.Fatalf("orders = %d, %d", first.Order, second.Order)
	}

	// another task's checklist starts its own order sequence
	other, err := e.Add(ctx, 2, "unrelated", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if other.Order != 1 {
		t.Fatalf("cross-task order leak: %d", other.Order)
	}

	if _, err := e.Add(ctx, 1, "", "", 0); err == nil {
		t.Error("empty title accepted")
	}
}

func TestEngineProgressScenario(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var ids []int64
	for _, title := range []string{"a", "b", "c", "d"} {
		step, err := e.Add(ctx, 7, title, "", 0)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, step.ID)
	}

	for _, id := range ids[:2] {
		if _, err := e.Apply(ctx, id, ActionComplete, "claw-1"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.Apply(ctx, ids[2], ActionSkip, "operator"); err != nil {
		t.Fatal(err)
	}

	sum, err := e.Progress(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	want := Summary{Total: 4, Done: 2, Pending: 1, Skipped: 1, Percent: 75}
	if sum != want {
		t.Fatalf("summary = %+v, want %+v", sum, want)
	}

	// reset is the only way percent goes down
	if _, err := e.Apply(ctx, ids[0], ActionReset, ""); err != nil {
		t.Fatal(err)
	}
	sum, err = e.Progress(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Percent != 50 {
		t.Fatalf("percent after reset = %d, want 50", sum.Percent)
	}
}

func TestEngineDeleteGuard(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	step, err := e.Add(ctx, 1, "protected", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Apply(ctx, step.ID, ActionComplete, "claw-1"); err != nil {
		t.Fatal(err)
	}
	if err := e.Delete(ctx, step.ID); !errors.Is(err, ErrStepNotDeletable) {
		t.Fatalf("delete done step: want ErrStepNotDeletable, got %v", err)
	}

	if _, err := e.Apply(ctx, step.ID, ActionReset, ""); err != nil {
		t.Fatal(err)
	}
	if err := e.Delete(ctx, step.ID); err != nil {
		t.Fatalf("delete after reset: %v", err)
	}
	if _, err := e.Apply(ctx, step.ID, ActionStart, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
}
