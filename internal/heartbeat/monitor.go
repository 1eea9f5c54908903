package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/pkg/logs"
	"github.com/clawdeck/clawdeck/internal/pkg/prometheus"
	"github.com/clawdeck/clawdeck/internal/task"
)

// Registry is the slice of the task registry the monitor needs: the set of
// running tasks, and the cancel transition driven by a confirmed kill.
type Registry interface {
	List(ctx context.Context, filter task.Filter) ([]*task.Task, error)
	Apply(ctx context.Context, id int64, action task.Action, patch *task.Patch) (*task.Task, error)
}

// ActiveTask is the monitor's view of one running task.
type ActiveTask struct {
	Task           *task.Task `json:"task"`
	ElapsedSec     float64    `json:"elapsed_seconds"`
	SinceHeartbeat float64    `json:"since_heartbeat_seconds"`
	TimeoutSec     int        `json:"timeout_seconds"`
	Health         float64    `json:"health"`
	Band           Band       `json:"band"`
	Stalled        bool       `json:"stalled"`
}

// SessionKey identifies the agent session executing a task. Zombie events
// are keyed by it so a resolution can find the suspicion it answers.
func SessionKey(t *task.Task) string {
	agent := t.AgentID
	if agent == "" {
		agent = "unassigned"
	}
	return fmt.Sprintf("agent:%s:task:%d", agent, t.ID)
}

// Monitor periodically re-evaluates running tasks, flags suspected zombies,
// and records recoveries. It never terminates anything on its own; a kill
// is an explicit resolution that drives the registry's cancel transition.
type Monitor struct {
	registry Registry
	zombies  ZombieStore
	cfg      config.MonitorConfig
	th       Thresholds

	now func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewMonitor(registry Registry, zombies ZombieStore, cfg config.MonitorConfig) *Monitor {
	th := Thresholds{
		StalledBelow: float64(cfg.StalledBelow),
		WarnBelow:    float64(cfg.WarnBelow),
	}
	return &Monitor{
		registry: registry,
		zombies:  zombies,
		cfg:      cfg,
		th:       th,
		now:      time.Now,
	}
}

// Start launches the sweep loop. Stop tears it down.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.stopped = make(chan struct{})

	interval := time.Duration(m.cfg.TickSec) * time.Second
	go func() {
		defer close(m.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		logs.Info("heartbeat monitor started, tick=%s", interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, stopped := m.cancel, m.stopped
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		<-stopped
		logs.Info("heartbeat monitor stopped")
	}
}

// Snapshot evaluates every running task at one instant.
func (m *Monitor) Snapshot(ctx context.Context) ([]*ActiveTask, error) {
	running := task.StatusRunning
	tasks, err := m.registry.List(ctx, task.Filter{Status: &running})
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	active := make([]*ActiveTask, 0, len(tasks))
	for _, t := range tasks {
		active = append(active, m.evaluate(t, now))
	}
	return active, nil
}

func (m *Monitor) evaluate(t *task.Task, now time.Time) *ActiveTask {
	timeoutSec := t.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = m.cfg.DefaultTimeoutSec
	}
	timeout := time.Duration(timeoutSec) * time.Second

	var elapsed, since time.Duration
	switch {
	case t.StartedAt != nil:
		elapsed = now.Sub(*t.StartedAt)
	default:
		elapsed = now.Sub(t.CreatedAt)
	}
	if t.LastHeartbeat != nil {
		since = now.Sub(*t.LastHeartbeat)
	} else {
		// never heartbeated: staleness runs from the start of execution
		since = elapsed
	}

	score := Score(since, timeout)
	return &ActiveTask{
		Task:           t,
		ElapsedSec:     elapsed.Seconds(),
		SinceHeartbeat: since.Seconds(),
		TimeoutSec:     timeoutSec,
		Health:         score,
		Band:           m.th.Band(score),
		Stalled:        m.th.Stalled(score),
	}
}

// Sweep runs one detection pass: flag tasks stalled beyond the grace period
// as suspected zombies, and resolve open suspicions whose heartbeats came
// back as recovered.
func (m *Monitor) Sweep(ctx context.Context) {
	active, err := m.Snapshot(ctx)
	if err != nil {
		logs.CtxError(ctx, "zombie sweep: %v", err)
		return
	}
	now := m.now().UTC()

	for _, a := range active {
		key := SessionKey(a.Task)
		open, err := m.zombies.OpenBySession(ctx, key)
		if err != nil {
			logs.CtxError(ctx, "zombie sweep: open suspicion for %s: %v", key, err)
			continue
		}

		switch {
		case m.suspect(a) && open == nil:
			ev := &ZombieEvent{
				SessionKey: key,
				AgentID:    a.Task.AgentID,
				TaskID:     &a.Task.ID,
				Status:     ZombieSuspected,
				Heuristic:  "heartbeat_stale",
				Details: fmt.Sprintf(`{"since_heartbeat_seconds":%.0f,"timeout_seconds":%d,"health":%.1f}`,
					a.SinceHeartbeat, a.TimeoutSec, a.Health),
				DetectedAt: now,
			}
			if _, err := m.zombies.Create(ctx, ev); err != nil {
				logs.CtxError(ctx, "zombie sweep: record suspicion for %s: %v", key, err)
				continue
			}
			prometheus.ZombieFlags.Inc()
			logs.CtxWarn(ctx, "zombie suspected: %s, no heartbeat for %.0fs (timeout %ds)",
				key, a.SinceHeartbeat, a.TimeoutSec)

		case !a.Stalled && open != nil:
			if _, err := m.zombies.Resolve(ctx, key, ZombieRecovered, now); err != nil {
				logs.CtxError(ctx, "zombie sweep: resolve %s: %v", key, err)
				continue
			}
			logs.CtxInfo(ctx, "zombie recovered: %s, health back to %.0f", key, a.Health)
		}
	}
}

// suspect reports whether the task has been stalled for longer than the
// grace period. Stall begins when staleness crosses the stalled threshold;
// the grace period runs from there.
func (m *Monitor) suspect(a *ActiveTask) bool {
	if !a.Stalled {
		return false
	}
	stallStart := float64(a.TimeoutSec) * (1 - m.th.StalledBelow/100)
	return a.SinceHeartbeat >= stallStart+float64(m.cfg.GraceSec)
}

// Resolve closes the open suspicion for a session. A confirmed kill also
// cancels the task so the registry reflects that the run is over.
func (m *Monitor) Resolve(ctx context.Context, sessionKey string, verdict ZombieStatus) (*ZombieEvent, error) {
	ev, err := m.zombies.Resolve(ctx, sessionKey, verdict, m.now().UTC())
	if err != nil {
		return nil, err
	}
	if verdict == ZombieConfirmedKill && ev.TaskID != nil {
		if _, err := m.registry.Apply(ctx, *ev.TaskID, task.ActionCancel, nil); err != nil {
			logs.CtxError(ctx, "confirmed kill %s: cancel task %d: %v", sessionKey, *ev.TaskID, err)
		}
	}
	logs.CtxInfo(ctx, "zombie %s resolved: %s", sessionKey, verdict)
	return ev, nil
}

// Events returns recent zombie events, newest first.
func (m *Monitor) Events(ctx context.Context, limit int) ([]*ZombieEvent, error) {
	return m.zombies.List(ctx, limit)
}
