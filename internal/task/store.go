package task

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/clawdeck/clawdeck/internal/storage"
)

// Store persists and retrieves tasks.
type Store interface {
	Create(ctx context.Context, t *Task) (int64, error)
	Get(ctx context.Context, id int64) (*Task, error)
	List(ctx context.Context, filter Filter) ([]*Task, error)

	// Update writes the full record but only commits if the row's status
	// still equals expect; reports whether the write landed. This is the
	// commit-time check that rejects transitions raced by another writer.
	Update(ctx context.Context, t *Task, expect Status) (bool, error)

	// Heartbeat stamps last_heartbeat/heartbeat_msg and marks the task
	// acked, but only while it is still running; a transition out of
	// running wins over a late heartbeat.
	Heartbeat(ctx context.Context, id int64, msg string, at time.Time) error

	// Delete removes the task, its subtasks, and every checklist step and
	// zombie event referencing them.
	Delete(ctx context.Context, id int64) error

	CountByStatus(ctx context.Context, status Status) (int, error)

	// NextPlanned returns the most urgent planned task, or nil.
	NextPlanned(ctx context.Context) (*Task, error)
}

// Filter controls which tasks List returns.
type Filter struct {
	Status   *Status
	Project  string
	AgentID  string
	ParentID *int64
	Limit    int
	Offset   int
}

const taskColumns = `id, title, description, project, agent_id, priority, status, parent_id,
	review_count, reviewer_id, review_feedback, speced, acked, notes, session_key,
	timeout_seconds, last_heartbeat, heartbeat_msg, progress, tags,
	created_at, started_at, completed_at`

// SQLStore persists tasks in the shared relational store.
type SQLStore struct {
	db *storage.DB
}

func NewSQLStore(db *storage.DB) *SQLStore {
	return &SQLStore{db: db}
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) Create(ctx context.Context, t *Task) (int64, error) {
	t.CreatedAt = time.Now().UTC()
	tags, _ := sonic.Marshal(t.Tags)

	var id int64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO tasks
			(title, description, project, agent_id, priority, status, parent_id,
			 review_count, reviewer_id, review_feedback, speced, acked, notes, session_key,
			 timeout_seconds, last_heartbeat, heartbeat_msg, progress, tags,
			 created_at, started_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id`),
		t.Title, t.Description, t.Project, t.AgentID, t.Priority, string(t.Status), t.ParentID,
		t.ReviewCount, t.ReviewerID, t.ReviewFeedback, t.Speced, t.Acked, t.Notes, t.SessionKey,
		t.TimeoutSec, nullTime(t.LastHeartbeat), t.HeartbeatMsg, t.Progress, string(tags),
		t.CreatedAt, nullTime(t.StartedAt), nullTime(t.CompletedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	return id, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return t, err
}

func (s *SQLStore) List(ctx context.Context, filter Filter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`)
	args := []any{}

	if filter.Status != nil {
		q.WriteString(" AND status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Project != "" {
		q.WriteString(" AND project = ?")
		args = append(args, filter.Project)
	}
	if filter.AgentID != "" {
		q.WriteString(" AND agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.ParentID != nil {
		q.WriteString(" AND parent_id = ?")
		args = append(args, *filter.ParentID)
	}
	// 1 is the most urgent priority; creation order breaks ties.
	q.WriteString(" ORDER BY priority ASC, created_at ASC, id ASC")
	if filter.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
		if filter.Offset > 0 {
			q.WriteString(fmt.Sprintf(" OFFSET %d", filter.Offset))
		}
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(q.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLStore) Update(ctx context.Context, t *Task, expect Status) (bool, error) {
	tags, _ := sonic.Marshal(t.Tags)

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET
			title=?, description=?, project=?, agent_id=?, priority=?, status=?,
			review_count=?, reviewer_id=?, review_feedback=?, speced=?, acked=?, notes=?,
			session_key=?, timeout_seconds=?, last_heartbeat=?, heartbeat_msg=?,
			progress=?, tags=?, started_at=?, completed_at=?
		WHERE id=? AND status=?`),
		t.Title, t.Description, t.Project, t.AgentID, t.Priority, string(t.Status),
		t.ReviewCount, t.ReviewerID, t.ReviewFeedback, t.Speced, t.Acked, t.Notes,
		t.SessionKey, t.TimeoutSec, nullTime(t.LastHeartbeat), t.HeartbeatMsg,
		t.Progress, string(tags), nullTime(t.StartedAt), nullTime(t.CompletedAt),
		t.ID, string(expect),
	)
	if err != nil {
		return false, fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *SQLStore) Heartbeat(ctx context.Context, id int64, msg string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET last_heartbeat=?, heartbeat_msg=?, acked=?
		WHERE id=? AND status=?`),
		at, msg, true, id, string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: no running task with id %d", ErrNotFound, id)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	// Collect the subtree (one level of subtasks is all the model allows).
	ids := []any{id}
	rows, err := tx.QueryContext(ctx, s.db.Rebind(`SELECT id FROM tasks WHERE parent_id = ?`), id)
	if err != nil {
		return fmt.Errorf("list subtasks: %w", err)
	}
	for rows.Next() {
		var child int64
		if err := rows.Scan(&child); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, child)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	for _, stmt := range []string{
		`DELETE FROM task_checklist WHERE task_id IN (` + placeholders + `)`,
		`DELETE FROM zombie_events WHERE task_id IN (` + placeholders + `)`,
		`DELETE FROM tasks WHERE id IN (` + placeholders + `)`,
	} {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(stmt), ids...); err != nil {
			return fmt.Errorf("cascade delete task %d: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT COUNT(*) FROM tasks WHERE status = ?`), string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s tasks: %w", status, err)
	}
	return n, nil
}

func (s *SQLStore) NextPlanned(ctx context.Context) (*Task, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT `+taskColumns+` FROM tasks WHERE status = ?
		 ORDER BY priority ASC, created_at ASC, id ASC LIMIT 1`),
		string(StatusPlanned))
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*Task, error) {
	var t Task
	var status, tagsJSON string
	var parentID sql.NullInt64
	var lastHeartbeat, startedAt, completedAt sql.NullTime

	err := sc.Scan(
		&t.ID, &t.Title, &t.Description, &t.Project, &t.AgentID, &t.Priority, &status, &parentID,
		&t.ReviewCount, &t.ReviewerID, &t.ReviewFeedback, &t.Speced, &t.Acked, &t.Notes, &t.SessionKey,
		&t.TimeoutSec, &lastHeartbeat, &t.HeartbeatMsg, &t.Progress, &tagsJSON,
		&t.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = Status(status)
	_ = sonic.Unmarshal([]byte(tagsJSON), &t.Tags)

	if parentID.Valid {
		t.ParentID = &parentID.Int64
	}
	if lastHeartbeat.Valid {
		t.LastHeartbeat = &lastHeartbeat.Time
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
