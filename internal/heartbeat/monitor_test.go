package heartbeat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/storage"
	"github.com/clawdeck/clawdeck/internal/task"
)

func monitorFixture(t *testing.T) (*Monitor, *task.Registry, *time.Time) {
	t.Helper()
	db, err := storage.Open(config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "clawdeck.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	registry := task.NewRegistry(task.NewSQLStore(db), nil, config.DispatchConfig{})
	m := NewMonitor(registry, NewSQLZombieStore(db), config.MonitorConfig{
		TickSec:           30,
		DefaultTimeoutSec: 600,
		StalledBelow:      30,
		WarnBelow:         60,
		GraceSec:          120,
	})

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, registry, &now
}

func runningTask(t *testing.T, r *task.Registry) *task.Task {
	t.Helper()
	ctx := context.Background()
	created, err := r.Create(ctx, &task.Task{Title: "long build", AgentID: "claw-1"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Apply(ctx, created.ID, task.ActionRun, nil)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestSnapshotHealth(t *testing.T) {
	m, r, now := monitorFixture(t)
	ctx := context.Background()
	tk := runningTask(t, r)

	// heartbeat 300s ago on a 600s timeout: health 50, warning, not stalled
	*now = time.Now().UTC() // StartedAt was stamped with the real clock
	if err := r.Heartbeat(ctx, tk.ID, "halfway"); err != nil {
		t.Fatal(err)
	}
	hb, _ := r.Get(ctx, tk.ID)
	*now = hb.LastHeartbeat.Add(300 * time.Second)

	active, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("active tasks = %d, want 1", len(active))
	}
	a := active[0]
	if a.Health < 49.9 || a.Health > 50.1 {
		t.Fatalf("health = %v, want ~50", a.Health)
	}
	if a.Band != BandWarning || a.Stalled {
		t.Fatalf("band = %s, stalled = %v", a.Band, a.Stalled)
	}
}

func TestSweepFlagsAndRecovers(t *testing.T) {
	m, r, now := monitorFixture(t)
	ctx := context.Background()
	tk := runningTask(t, r)
	key := SessionKey(tk)

	// timeout 600s, stall begins at 420s stale; grace 120s puts the
	// suspicion boundary at 540s. 700s stale is well past it.
	*now = tk.StartedAt.Add(700 * time.Second)
	m.Sweep(ctx)

	events, err := m.Events(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Status != ZombieSuspected || events[0].SessionKey != key {
		t.Fatalf("events after stale sweep: %+v", events)
	}

	// a second sweep must not stack another suspicion
	m.Sweep(ctx)
	events, _ = m.Events(ctx, 10)
	if len(events) != 1 {
		t.Fatalf("duplicate suspicion recorded: %d events", len(events))
	}

	// heartbeat resumes: next sweep resolves the suspicion as recovered
	if err := r.Heartbeat(ctx, tk.ID, "back"); err != nil {
		t.Fatal(err)
	}
	hb, _ := r.Get(ctx, tk.ID)
	*now = hb.LastHeartbeat.Add(5 * time.Second)
	m.Sweep(ctx)

	events, _ = m.Events(ctx, 10)
	if len(events) != 1 || events[0].Status != ZombieRecovered {
		t.Fatalf("events after recovery sweep: %+v", events)
	}
	if events[0].ResolvedAt == nil {
		t.Fatal("recovery did not stamp resolved_at")
	}

	// the task itself was never touched by detection
	got, _ := r.Get(ctx, tk.ID)
	if got.Status != task.StatusRunning {
		t.Fatalf("detection changed task status to %s", got.Status)
	}
}

func TestSweepWithinGraceDoesNotFlag(t *testing.T) {
	m, r, now := monitorFixture(t)
	ctx := context.Background()
	tk := runningTask(t, r)

	// 450s stale: stalled (health 25) but inside the 120s grace window
	*now = tk.StartedAt.Add(450 * time.Second)
	m.Sweep(ctx)

	events, err := m.Events(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("flagged inside grace period: %+v", events)
	}
}

func TestResolveConfirmedKillCancelsTask(t *testing.T) {
	m, r, now := monitorFixture(t)
	ctx := context.Background()
	tk := runningTask(t, r)
	key := SessionKey(tk)

	*now = tk.StartedAt.Add(700 * time.Second)
	m.Sweep(ctx)

	ev, err := m.Resolve(ctx, key, ZombieConfirmedKill)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ev.Status != ZombieConfirmedKill {
		t.Fatalf("event status = %s", ev.Status)
	}

	got, _ := r.Get(ctx, tk.ID)
	if got.Status != task.StatusCancelled {
		t.Fatalf("task status after confirmed kill = %s, want cancelled", got.Status)
	}
}

func TestResolveIsFinal(t *testing.T) {
	m, r, now := monitorFixture(t)
	ctx := context.Background()
	tk := runningTask(t, r)
	key := SessionKey(tk)

	*now = tk.StartedAt.Add(700 * time.Second)
	m.Sweep(ctx)

	if _, err := m.Resolve(ctx, key, ZombieRecovered); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	// the suspicion is closed; a second verdict must not overwrite it
	if _, err := m.Resolve(ctx, key, ZombieConfirmedKill); !errors.Is(err, ErrNoOpenSuspicion) {
		t.Fatalf("second Resolve: want ErrNoOpenSuspicion, got %v", err)
	}

	events, _ := m.Events(ctx, 10)
	if len(events) != 1 || events[0].Status != ZombieRecovered {
		t.Fatalf("resolution overwritten: %+v", events)
	}
}

func TestResolveWithoutSuspicion(t *testing.T) {
	m, _, _ := monitorFixture(t)
	if _, err := m.Resolve(context.Background(), "agent:ghost:task:1", ZombieRecovered); !errors.Is(err, ErrNoOpenSuspicion) {
		t.Fatalf("want ErrNoOpenSuspicion, got %v", err)
	}
}

func TestParseResolution(t *testing.T) {
	for _, ok := range []string{"confirmed_kill", "recovered"} {
		if _, err := ParseResolution(ok); err != nil {
			t.Errorf("ParseResolution(%q): %v", ok, err)
		}
	}
	if _, err := ParseResolution("suspected"); err == nil {
		t.Error("ParseResolution accepted suspected as a resolution")
	}
}
