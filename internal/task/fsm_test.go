package task

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestApplyTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		action  Action
		want    Status
		wantErr bool
	}{
		{"plan from backlog", StatusBacklog, ActionPlan, StatusPlanned, false},
		{"run from backlog", StatusBacklog, ActionRun, StatusRunning, false},
		{"run from planned", StatusPlanned, ActionRun, StatusRunning, false},
		{"requeue from planned", StatusPlanned, ActionRequeue, StatusBacklog, false},
		{"requeue from failed", StatusFailed, ActionRequeue, StatusBacklog, false},
		{"requeue from cancelled", StatusCancelled, ActionRequeue, StatusBacklog, false},
		{"pause from running", StatusRunning, ActionPause, StatusPlanned, false},
		{"review from running", StatusRunning, ActionReview, StatusReview, false},
		{"human from running", StatusRunning, ActionHuman, StatusReview, false},
		{"complete from review", StatusReview, ActionComplete, StatusDone, false},
		{"reject from review", StatusReview, ActionReject, StatusRunning, false},
		{"cancel from backlog", StatusBacklog, ActionCancel, StatusCancelled, false},
		{"cancel from planned", StatusPlanned, ActionCancel, StatusCancelled, false},
		{"cancel from running", StatusRunning, ActionCancel, StatusCancelled, false},
		{"fail from running", StatusRunning, ActionFail, StatusFailed, false},
		{"spec keeps backlog", StatusBacklog, ActionSpec, StatusBacklog, false},

		{"plan from running rejected", StatusRunning, ActionPlan, "", true},
		{"run from done rejected", StatusDone, ActionRun, "", true},
		{"complete from running rejected", StatusRunning, ActionComplete, "", true},
		{"complete from backlog rejected", StatusBacklog, ActionComplete, "", true},
		{"requeue from done rejected", StatusDone, ActionRequeue, "", true},
		{"reject from done rejected", StatusDone, ActionReject, "", true},
		{"cancel from done rejected", StatusDone, ActionCancel, "", true},
		{"pause from planned rejected", StatusPlanned, ActionPause, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{ID: 1, Title: "t", Status: tt.from}
			err := Apply(task, tt.action, nil, testNow)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("want ErrInvalidTransition, got %v", err)
				}
				if task.Status != tt.from {
					t.Fatalf("rejected action mutated status to %s", task.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if task.Status != tt.want {
				t.Fatalf("status = %s, want %s", task.Status, tt.want)
			}
		})
	}
}

func TestApplySideEffects(t *testing.T) {
	t.Run("run stamps started_at once", func(t *testing.T) {
		task := &Task{Status: StatusBacklog}
		if err := Apply(task, ActionRun, nil, testNow); err != nil {
			t.Fatal(err)
		}
		if task.StartedAt == nil || !task.StartedAt.Equal(testNow) {
			t.Fatalf("started_at = %v, want %v", task.StartedAt, testNow)
		}

		later := testNow.Add(time.Hour)
		if err := Apply(task, ActionPause, nil, later); err != nil {
			t.Fatal(err)
		}
		if err := Apply(task, ActionRun, nil, later); err != nil {
			t.Fatal(err)
		}
		if !task.StartedAt.Equal(testNow) {
			t.Fatal("second run overwrote the original started_at")
		}
	})

	t.Run("requeue clears assignment", func(t *testing.T) {
		started := testNow
		task := &Task{
			Status:    StatusFailed,
			AgentID:   "claw-1",
			Acked:     true,
			StartedAt: &started,
		}
		if err := Apply(task, ActionRequeue, nil, testNow); err != nil {
			t.Fatal(err)
		}
		if task.AgentID != "" || task.Acked || task.StartedAt != nil || task.CompletedAt != nil {
			t.Fatalf("requeue left assignment state behind: %+v", task)
		}
	})

	t.Run("human tags the task", func(t *testing.T) {
		task := &Task{Status: StatusRunning}
		if err := Apply(task, ActionHuman, nil, testNow); err != nil {
			t.Fatal(err)
		}
		if task.Status != StatusReview || !task.HasTag("human_todo") {
			t.Fatalf("human: status=%s tags=%v", task.Status, task.Tags)
		}
	})

	t.Run("reject bumps review count and clears completed_at", func(t *testing.T) {
		task := &Task{Status: StatusRunning}
		if err := Apply(task, ActionReview, nil, testNow); err != nil {
			t.Fatal(err)
		}
		if task.CompletedAt == nil {
			t.Fatal("review did not stamp completed_at")
		}
		if err := Apply(task, ActionReject, nil, testNow.Add(time.Minute)); err != nil {
			t.Fatal(err)
		}
		if task.Status != StatusRunning || task.CompletedAt != nil || task.ReviewCount != 1 {
			t.Fatalf("reject: %+v", task)
		}
	})

	t.Run("toggle_todo flips the tag", func(t *testing.T) {
		task := &Task{Status: StatusReview}
		if err := Apply(task, ActionToggleTodo, nil, testNow); err != nil {
			t.Fatal(err)
		}
		if !task.HasTag("todo") {
			t.Fatal("first toggle did not add tag")
		}
		if err := Apply(task, ActionToggleTodo, nil, testNow); err != nil {
			t.Fatal(err)
		}
		if task.HasTag("todo") {
			t.Fatal("second toggle did not remove tag")
		}
	})

	t.Run("update applies patch without status change", func(t *testing.T) {
		task := &Task{Status: StatusRunning, Priority: 5}
		title := "renamed"
		prio := 2
		if err := Apply(task, ActionUpdate, &Patch{Title: &title, Priority: &prio}, testNow); err != nil {
			t.Fatal(err)
		}
		if task.Status != StatusRunning || task.Title != "renamed" || task.Priority != 2 {
			t.Fatalf("update: %+v", task)
		}
	})

	t.Run("patch rejects out-of-range priority", func(t *testing.T) {
		task := &Task{Status: StatusBacklog, Priority: 5}
		bad := 12
		if err := Apply(task, ActionUpdate, &Patch{Priority: &bad}, testNow); err == nil {
			t.Fatal("priority 12 accepted")
		}
	})
}

func TestParseStatusSynonyms(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"backlog", StatusBacklog},
		{"queued", StatusBacklog},
		{"assigned", StatusPlanned},
		{"human_todo", StatusReview},
		{" Running ", StatusRunning},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if _, err := ParseStatus("sleeping"); err == nil {
		t.Error("ParseStatus accepted an unknown status")
	}
}

func TestValidActions(t *testing.T) {
	got := ValidActions(StatusReview)
	want := map[Action]bool{ActionComplete: true, ActionReject: true, ActionToggleTodo: true, ActionUpdate: true}
	if len(got) != len(want) {
		t.Fatalf("ValidActions(review) = %v", got)
	}
	for _, a := range got {
		if !want[a] {
			t.Errorf("unexpected action %s from review", a)
		}
	}
}
