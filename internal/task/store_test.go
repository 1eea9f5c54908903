package task

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/storage"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := storage.Open(config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "clawdeck.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db)
}

func TestStoreCreateGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := &Task{
		Title:      "wire the gateway",
		Project:    "clawdeck",
		Priority:   3,
		Status:     StatusBacklog,
		TimeoutSec: 600,
		Progress:   "{}",
		Tags:       []string{"infra"},
	}
	id, err := s.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == 0 {
		t.Fatal("Create returned id 0")
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != in.Title || got.Project != in.Project || got.Priority != 3 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.Status != StatusBacklog {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "infra" {
		t.Fatalf("tags = %v", got.Tags)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at not stamped")
	}

	if _, err := s.Get(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id: want ErrNotFound, got %v", err)
	}
}

func TestStoreListOrderAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(title string, prio int, status Status, project string) int64 {
		id, err := s.Create(ctx, &Task{Title: title, Priority: prio, Status: status, Project: project, TimeoutSec: 600, Progress: "{}"})
		if err != nil {
			t.Fatalf("Create %s: %v", title, err)
		}
		return id
	}
	mk("low", 8, StatusPlanned, "a")
	urgent := mk("urgent", 1, StatusPlanned, "a")
	mk("other project", 1, StatusPlanned, "b")
	mk("queued", 1, StatusBacklog, "a")

	planned := StatusPlanned
	got, err := s.List(ctx, Filter{Status: &planned, Project: "a"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d tasks, want 2", len(got))
	}
	if got[0].ID != urgent {
		t.Fatalf("priority order broken: first is %q", got[0].Title)
	}

	next, err := s.NextPlanned(ctx)
	if err != nil {
		t.Fatalf("NextPlanned: %v", err)
	}
	if next == nil || next.ID != urgent {
		t.Fatalf("NextPlanned = %+v, want id %d", next, urgent)
	}
}

func TestStoreUpdateStatusCheck(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, &Task{Title: "t", Priority: 5, Status: StatusBacklog, TimeoutSec: 600, Progress: "{}"})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(ctx, id)
	got.Status = StatusPlanned
	landed, err := s.Update(ctx, got, StatusBacklog)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !landed {
		t.Fatal("update with matching expected status did not land")
	}

	// The row is now planned; a write expecting backlog must be refused.
	got.Status = StatusRunning
	landed, err = s.Update(ctx, got, StatusBacklog)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if landed {
		t.Fatal("stale update landed despite status mismatch")
	}
	cur, _ := s.Get(ctx, id)
	if cur.Status != StatusPlanned {
		t.Fatalf("status = %s after refused write", cur.Status)
	}
}

func TestStoreHeartbeatOnlyWhileRunning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, &Task{Title: "t", Priority: 5, Status: StatusRunning, TimeoutSec: 600, Progress: "{}"})
	if err != nil {
		t.Fatal(err)
	}

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	if err := s.Heartbeat(ctx, id, "step 2/5", at); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	got, _ := s.Get(ctx, id)
	if got.LastHeartbeat == nil || !got.LastHeartbeat.Equal(at) {
		t.Fatalf("last_heartbeat = %v", got.LastHeartbeat)
	}
	if got.HeartbeatMsg != "step 2/5" || !got.Acked {
		t.Fatalf("heartbeat fields: %+v", got)
	}

	// Once the task leaves running, late heartbeats are refused.
	got.Status = StatusDone
	if _, err := s.Update(ctx, got, StatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := s.Heartbeat(ctx, id, "late", at.Add(time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("late heartbeat: want ErrNotFound, got %v", err)
	}
}

func TestStoreDeleteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parent, err := s.Create(ctx, &Task{Title: "parent", Priority: 5, Status: StatusBacklog, TimeoutSec: 600, Progress: "{}"})
	if err != nil {
		t.Fatal(err)
	}
	child, err := s.Create(ctx, &Task{Title: "child", Priority: 5, Status: StatusBacklog, ParentID: &parent, TimeoutSec: 600, Progress: "{}"})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, parent); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, id := range []int64{parent, child} {
		if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("task %d survived cascade: %v", id, err)
		}
	}
}

func TestStoreCountByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Create(ctx, &Task{Title: "r", Priority: 5, Status: StatusRunning, TimeoutSec: 600, Progress: "{}"}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.CountByStatus(ctx, StatusRunning)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("running count = %d, want 3", n)
	}
}
