package checklist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clawdeck/clawdeck/internal/storage"
)

// Store persists checklist steps.
type Store interface {
	Create(ctx context.Context, s *Step) (int64, error)
	Get(ctx context.Context, id int64) (*Step, error)
	ListByTask(ctx context.Context, taskID int64) ([]*Step, error)
	Update(ctx context.Context, s *Step) error
	Delete(ctx context.Context, id int64) error
	MaxOrder(ctx context.Context, taskID int64) (int, error)
}

const stepColumns = `id, task_id, step_order, title, description, status,
	completed_at, completed_by, notes, metadata, created_at, updated_at`

// SQLStore persists steps in the shared relational store.
type SQLStore struct {
	db *storage.DB
}

func NewSQLStore(db *storage.DB) *SQLStore {
	return &SQLStore{db: db}
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) Create(ctx context.Context, step *Step) (int64, error) {
	now := time.Now().UTC()
	step.CreatedAt = now
	step.UpdatedAt = now
	if step.Metadata == "" {
		step.Metadata = "{}"
	}

	var id int64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO task_checklist
			(task_id, step_order, title, description, status,
			 completed_at, completed_by, notes, metadata, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id`),
		step.TaskID, step.Order, step.Title, step.Description, string(step.Status),
		nullTime(step.CompletedAt), step.CompletedBy, step.Notes, step.Metadata,
		step.CreatedAt, step.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert step: %w", err)
	}
	step.ID = id
	return id, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (*Step, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+stepColumns+` FROM task_checklist WHERE id = ?`), id)
	step, err := scanStep(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return step, err
}

func (s *SQLStore) ListByTask(ctx context.Context, taskID int64) ([]*Step, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT `+stepColumns+` FROM task_checklist
		 WHERE task_id = ? ORDER BY step_order ASC, created_at ASC, id ASC`), taskID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []*Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *SQLStore) Update(ctx context.Context, step *Step) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE task_checklist SET
			step_order=?, title=?, description=?, status=?,
			completed_at=?, completed_by=?, notes=?, metadata=?, updated_at=?
		WHERE id=?`),
		step.Order, step.Title, step.Description, string(step.Status),
		nullTime(step.CompletedAt), step.CompletedBy, step.Notes, step.Metadata,
		step.UpdatedAt, step.ID,
	)
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, step.ID)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM task_checklist WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete step: %w", err)
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

func (s *SQLStore) MaxOrder(ctx context.Context, taskID int64) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT MAX(step_order) FROM task_checklist WHERE task_id = ?`), taskID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max step order: %w", err)
	}
	return int(max.Int64), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStep(sc scanner) (*Step, error) {
	var step Step
	var status string
	var completedAt sql.NullTime

	err := sc.Scan(
		&step.ID, &step.TaskID, &step.Order, &step.Title, &step.Description, &status,
		&completedAt, &step.CompletedBy, &step.Notes, &step.Metadata,
		&step.CreatedAt, &step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	step.Status = StepStatus(status)
	if completedAt.Valid {
		step.CompletedAt = &completedAt.Time
	}
	return &step, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
