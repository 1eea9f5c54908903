package cronjob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clawdeck/clawdeck/internal/config"
	"github.com/clawdeck/clawdeck/internal/pkg/logs"
	"github.com/clawdeck/clawdeck/internal/pkg/prometheus"
)

// Launcher hands a fired job's payload to the task side and returns the
// text to append to the run's log.
type Launcher interface {
	Launch(ctx context.Context, job *Job) (string, error)
}

// Scheduler manages jobs, evaluates due-ness on a fixed tick, and fires
// due jobs through the Launcher. At most one scheduler instance per
// deployment; a second instance can double-fire.
type Scheduler struct {
	store    Store
	launcher Launcher
	cfg      config.SchedulerConfig

	concurrent chan struct{} // semaphore sized to MaxConcurrent

	runningMu sync.Mutex
	running   map[int64]struct{} // job ids currently executing (singleton guard)

	now    func() time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(store Store, launcher Launcher, cfg config.SchedulerConfig) *Scheduler {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Scheduler{
		store:      store,
		launcher:   launcher,
		cfg:        cfg,
		concurrent: make(chan struct{}, maxConcurrent),
		running:    make(map[int64]struct{}),
		now:        time.Now,
	}
}

// CreateJob validates and persists a new job with its next-run cache set.
func (s *Scheduler) CreateJob(ctx context.Context, j *Job) (*Job, error) {
	if j.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if err := Validate(j.Kind, j.Schedule, j.Timezone); err != nil {
		return nil, err
	}
	if j.SessionTarget == "" {
		j.SessionTarget = TargetIsolated
	}
	s.refreshNextRun(j)
	if _, err := s.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	logs.CtxInfo(ctx, "[cron] job %d created: %q kind=%s schedule=%q", j.ID, j.Name, j.Kind, j.Schedule)
	return j, nil
}

// UpdateJob validates and persists an edit. The next-run cache is
// recomputed; a disabled job carries no next run.
func (s *Scheduler) UpdateJob(ctx context.Context, j *Job) (*Job, error) {
	if err := Validate(j.Kind, j.Schedule, j.Timezone); err != nil {
		return nil, err
	}
	s.refreshNextRun(j)
	if err := s.store.UpdateJob(ctx, j); err != nil {
		return nil, err
	}
	logs.CtxInfo(ctx, "[cron] job %d updated", j.ID)
	return j, nil
}

// ToggleJob enables or disables a job. Re-enabling never retroactively
// fires occurrences missed while disabled.
func (s *Scheduler) ToggleJob(ctx context.Context, id int64, enabled bool) (*Job, error) {
	j, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	j.Enabled = enabled
	s.refreshNextRun(j)
	if err := s.store.UpdateJob(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *Scheduler) DeleteJob(ctx context.Context, id int64) error {
	return s.store.DeleteJob(ctx, id)
}

func (s *Scheduler) GetJob(ctx context.Context, id int64) (*Job, error) {
	return s.store.GetJob(ctx, id)
}

func (s *Scheduler) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.store.ListJobs(ctx, false)
}

func (s *Scheduler) ListRuns(ctx context.Context, jobID int64, limit int) ([]*Run, error) {
	return s.store.ListRuns(ctx, jobID, limit)
}

// RunNow fires a job immediately, bypassing the schedule check. The firing
// is additional: last_run_at is left alone so the next scheduled tick is
// unaffected.
func (s *Scheduler) RunNow(ctx context.Context, id int64) (*Run, error) {
	j, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.fire(ctx, j, s.now().UTC(), true)
}

// Start begins the scheduling loop. Stop cancels it and waits for
// in-flight runs to finish.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
	logs.Info("[cron] scheduler started (tick=%ds max_concurrent=%d)", s.cfg.TickSec, cap(s.concurrent))
}

func (s *Scheduler) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logs.Warn("[cron] stop timed out waiting for running jobs")
	}
	logs.Info("[cron] scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	tick := time.Duration(s.cfg.TickSec) * time.Second
	if tick <= 0 {
		tick = 15 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick scans enabled jobs and fires those due. Exported so a tick can be
// driven directly in tests and tooling.
func (s *Scheduler) Tick(ctx context.Context) {
	jobs, err := s.store.ListJobs(ctx, true)
	if err != nil {
		logs.CtxError(ctx, "[cron] tick: list jobs: %v", err)
		return
	}
	now := s.now().UTC()

	for _, job := range jobs {
		next, err := calcNextRun(job, now)
		if err != nil {
			logs.CtxWarn(ctx, "[cron] job %d: %v, disabling", job.ID, err)
			job.Enabled = false
			job.NextRunAt = nil
			if uerr := s.store.UpdateJob(ctx, job); uerr != nil {
				logs.CtxError(ctx, "[cron] disable job %d: %v", job.ID, uerr)
			}
			continue
		}
		if next.IsZero() || next.After(now) {
			continue
		}
		if missedBy := now.Sub(next); missedBy > 2*time.Duration(s.cfg.TickSec)*time.Second {
			logs.CtxWarn(ctx, "[cron] job %d missed its firing by %s, firing once", job.ID, missedBy)
		}

		if !s.tryAcquire() {
			break // hit concurrency limit, try next tick
		}
		if s.isRunning(job.ID) {
			s.release()
			continue // singleton: still executing from a previous tick
		}

		s.markRunning(job.ID)
		j := job
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			defer s.markNotRunning(j.ID)
			if _, err := s.fire(ctx, j, now, false); err != nil {
				logs.CtxError(ctx, "[cron] fire job %d: %v", j.ID, err)
			}
		}()
	}
}

// fire records a running Run, launches the payload, and finalizes the run.
// Scheduled firings advance last_run_at to the firing time; manual ones
// leave the schedule untouched.
func (s *Scheduler) fire(ctx context.Context, job *Job, firedAt time.Time, manual bool) (*Run, error) {
	run := &Run{JobID: job.ID, Status: RunRunning, StartedAt: firedAt}
	if _, err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	timeout := time.Duration(s.cfg.JobTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	logText, err := s.launcher.Launch(runCtx, job)
	durationMs := time.Since(start).Milliseconds()

	status := RunSucceeded
	if err != nil {
		status = RunFailed
		logText = fmt.Sprintf("%s\nlaunch error: %v", logText, err)
		logs.CtxWarn(ctx, "[cron] job %d (%s) failed after %dms: %v", job.ID, job.Name, durationMs, err)
	} else {
		logs.CtxInfo(ctx, "[cron] fired job %d (%s) in %dms", job.ID, job.Name, durationMs)
	}
	prometheus.CronFirings.WithLabelValues(string(status)).Inc()

	if ferr := s.store.FinishRun(ctx, run.ID, status, durationMs, logText); ferr != nil {
		logs.CtxError(ctx, "[cron] finish run %d: %v", run.ID, ferr)
	}
	run.Status = status
	run.DurationMs = durationMs
	run.Log = logText

	if !manual {
		job.LastRunAt = &firedAt
		s.refreshNextRun(job)
		if uerr := s.store.UpdateJob(ctx, job); uerr != nil {
			logs.CtxError(ctx, "[cron] persist job %d after firing: %v", job.ID, uerr)
		}
	}
	return run, nil
}

// refreshNextRun recomputes the cached next_run_at. Disabled and exhausted
// jobs carry none.
func (s *Scheduler) refreshNextRun(job *Job) {
	if !job.Enabled {
		job.NextRunAt = nil
		return
	}
	next, err := calcNextRun(job, s.now().UTC())
	if err != nil || next.IsZero() {
		job.NextRunAt = nil
		return
	}
	job.NextRunAt = &next
}

// concurrency helpers

func (s *Scheduler) tryAcquire() bool {
	select {
	case s.concurrent <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) release() { <-s.concurrent }

func (s *Scheduler) isRunning(id int64) bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	_, ok := s.running[id]
	return ok
}

func (s *Scheduler) markRunning(id int64) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	s.running[id] = struct{}{}
}

func (s *Scheduler) markNotRunning(id int64) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	delete(s.running, id)
}
