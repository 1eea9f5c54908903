package cronjob

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clawdeck/clawdeck/internal/storage"
)

// Store persists jobs and their run history.
type Store interface {
	CreateJob(ctx context.Context, j *Job) (int64, error)
	GetJob(ctx context.Context, id int64) (*Job, error)
	ListJobs(ctx context.Context, enabledOnly bool) ([]*Job, error)
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes the job but keeps its historical runs.
	DeleteJob(ctx context.Context, id int64) error

	CreateRun(ctx context.Context, r *Run) (int64, error)
	FinishRun(ctx context.Context, id int64, status RunStatus, durationMs int64, log string) error
	ListRuns(ctx context.Context, jobID int64, limit int) ([]*Run, error)
}

const jobColumns = `id, name, kind, schedule, timezone, session_target,
	payload_type, payload_message, payload_model, enabled,
	last_run_at, next_run_at, created_at, updated_at`

// SQLStore persists jobs in the shared relational store.
type SQLStore struct {
	db *storage.DB
}

func NewSQLStore(db *storage.DB) *SQLStore {
	return &SQLStore{db: db}
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) CreateJob(ctx context.Context, j *Job) (int64, error) {
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	var id int64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO cron_jobs
			(name, kind, schedule, timezone, session_target,
			 payload_type, payload_message, payload_model, enabled,
			 last_run_at, next_run_at, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id`),
		j.Name, string(j.Kind), j.Schedule, j.Timezone, string(j.SessionTarget),
		j.Payload.Type, j.Payload.Message, j.Payload.Model, j.Enabled,
		nullTime(j.LastRunAt), nullTime(j.NextRunAt), j.CreatedAt, j.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert cron job: %w", err)
	}
	j.ID = id
	return id, nil
}

func (s *SQLStore) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+jobColumns+` FROM cron_jobs WHERE id = ?`), id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return j, err
}

func (s *SQLStore) ListJobs(ctx context.Context, enabledOnly bool) ([]*Job, error) {
	q := `SELECT ` + jobColumns + ` FROM cron_jobs`
	if enabledOnly {
		q += ` WHERE enabled = ?`
	}
	q += ` ORDER BY id ASC`

	var args []any
	if enabledOnly {
		args = append(args, true)
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list cron jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLStore) UpdateJob(ctx context.Context, j *Job) error {
	j.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE cron_jobs SET
			name=?, kind=?, schedule=?, timezone=?, session_target=?,
			payload_type=?, payload_message=?, payload_model=?, enabled=?,
			last_run_at=?, next_run_at=?, updated_at=?
		WHERE id=?`),
		j.Name, string(j.Kind), j.Schedule, j.Timezone, string(j.SessionTarget),
		j.Payload.Type, j.Payload.Message, j.Payload.Model, j.Enabled,
		nullTime(j.LastRunAt), nullTime(j.NextRunAt), j.UpdatedAt, j.ID,
	)
	if err != nil {
		return fmt.Errorf("update cron job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, j.ID)
	}
	return nil
}

func (s *SQLStore) DeleteJob(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM cron_jobs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete cron job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

func (s *SQLStore) CreateRun(ctx context.Context, r *Run) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO cron_runs (job_id, status, started_at, duration_ms, log)
		VALUES (?,?,?,?,?)
		RETURNING id`),
		r.JobID, string(r.Status), r.StartedAt, r.DurationMs, r.Log,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert cron run: %w", err)
	}
	r.ID = id
	return id, nil
}

func (s *SQLStore) FinishRun(ctx context.Context, id int64, status RunStatus, durationMs int64, log string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE cron_runs SET status=?, duration_ms=?, log=? WHERE id=?`),
		string(status), durationMs, log, id)
	if err != nil {
		return fmt.Errorf("finish cron run: %w", err)
	}
	return nil
}

func (s *SQLStore) ListRuns(ctx context.Context, jobID int64, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT id, job_id, status, started_at, duration_ms, log
		FROM cron_runs WHERE job_id = ?
		ORDER BY started_at DESC, id DESC LIMIT ?`), jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list cron runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var status string
		if err := rows.Scan(&r.ID, &r.JobID, &status, &r.StartedAt, &r.DurationMs, &r.Log); err != nil {
			return nil, err
		}
		r.Status = RunStatus(status)
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*Job, error) {
	var j Job
	var kind, target string
	var lastRun, nextRun sql.NullTime

	err := sc.Scan(
		&j.ID, &j.Name, &kind, &j.Schedule, &j.Timezone, &target,
		&j.Payload.Type, &j.Payload.Message, &j.Payload.Model, &j.Enabled,
		&lastRun, &nextRun, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Kind = Kind(kind)
	j.SessionTarget = SessionTarget(target)
	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		j.NextRunAt = &nextRun.Time
	}
	return &j, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
