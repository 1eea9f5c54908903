package heartbeat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clawdeck/clawdeck/internal/storage"
)

// ZombieStatus is the verdict recorded on a ZombieEvent. The only valid
// transitions are suspected -> confirmed_kill and suspected -> recovered.
type ZombieStatus string

const (
	ZombieSuspected     ZombieStatus = "suspected"
	ZombieConfirmedKill ZombieStatus = "confirmed_kill"
	ZombieRecovered     ZombieStatus = "recovered"
)

// ParseResolution validates a resolution verdict from the wire.
func ParseResolution(s string) (ZombieStatus, error) {
	switch st := ZombieStatus(s); st {
	case ZombieConfirmedKill, ZombieRecovered:
		return st, nil
	}
	return "", fmt.Errorf("unknown zombie resolution: %q", s)
}

// ErrNoOpenSuspicion is returned when a resolution targets a session key
// with no unresolved suspected event.
var ErrNoOpenSuspicion = errors.New("no open zombie suspicion for session")

// ZombieEvent is an append-only audit record of one zombie detection and
// its eventual resolution.
type ZombieEvent struct {
	ID         int64        `json:"id"`
	SessionKey string       `json:"session_key"`
	AgentID    string       `json:"agent_id,omitempty"`
	TaskID     *int64       `json:"task_id,omitempty"`
	Status     ZombieStatus `json:"status"`
	Heuristic  string       `json:"heuristic,omitempty"`
	Details    string       `json:"details,omitempty"` // opaque JSON blob
	DetectedAt time.Time    `json:"detected_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// ZombieStore persists zombie events.
type ZombieStore interface {
	Create(ctx context.Context, ev *ZombieEvent) (int64, error)
	List(ctx context.Context, limit int) ([]*ZombieEvent, error)

	// OpenBySession returns the unresolved suspected event for a session
	// key, or nil when none exists.
	OpenBySession(ctx context.Context, sessionKey string) (*ZombieEvent, error)

	// Resolve closes the open suspected event for the session with the
	// given verdict and returns the resolved event.
	Resolve(ctx context.Context, sessionKey string, verdict ZombieStatus, at time.Time) (*ZombieEvent, error)
}

const zombieColumns = `id, session_key, agent_id, task_id, status, heuristic,
	details, detected_at, resolved_at`

// SQLZombieStore persists zombie events in the shared relational store.
type SQLZombieStore struct {
	db *storage.DB
}

func NewSQLZombieStore(db *storage.DB) *SQLZombieStore {
	return &SQLZombieStore{db: db}
}

var _ ZombieStore = (*SQLZombieStore)(nil)

func (s *SQLZombieStore) Create(ctx context.Context, ev *ZombieEvent) (int64, error) {
	if ev.Details == "" {
		ev.Details = "{}"
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO zombie_events
			(session_key, agent_id, task_id, status, heuristic, details, detected_at, resolved_at)
		VALUES (?,?,?,?,?,?,?,?)
		RETURNING id`),
		ev.SessionKey, ev.AgentID, ev.TaskID, string(ev.Status), ev.Heuristic,
		ev.Details, ev.DetectedAt, nullTime(ev.ResolvedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert zombie event: %w", err)
	}
	ev.ID = id
	return id, nil
}

func (s *SQLZombieStore) List(ctx context.Context, limit int) ([]*ZombieEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT `+zombieColumns+` FROM zombie_events
		 ORDER BY detected_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list zombie events: %w", err)
	}
	defer rows.Close()

	var events []*ZombieEvent
	for rows.Next() {
		ev, err := scanZombie(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLZombieStore) OpenBySession(ctx context.Context, sessionKey string) (*ZombieEvent, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`SELECT `+zombieColumns+` FROM zombie_events
		 WHERE session_key = ? AND status = ?
		 ORDER BY detected_at DESC, id DESC LIMIT 1`),
		sessionKey, string(ZombieSuspected))
	ev, err := scanZombie(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ev, err
}

func (s *SQLZombieStore) Resolve(ctx context.Context, sessionKey string, verdict ZombieStatus, at time.Time) (*ZombieEvent, error) {
	if verdict != ZombieConfirmedKill && verdict != ZombieRecovered {
		return nil, fmt.Errorf("invalid zombie resolution: %s", verdict)
	}
	open, err := s.OpenBySession(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoOpenSuspicion, sessionKey)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE zombie_events SET status=?, resolved_at=? WHERE id=? AND status=?`),
		string(verdict), at, open.ID, string(ZombieSuspected))
	if err != nil {
		return nil, fmt.Errorf("resolve zombie event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// a concurrent resolution landed first; its verdict stands
		return nil, fmt.Errorf("%w: %s", ErrNoOpenSuspicion, sessionKey)
	}
	open.Status = verdict
	open.ResolvedAt = &at
	return open, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanZombie(sc scanner) (*ZombieEvent, error) {
	var ev ZombieEvent
	var status string
	var taskID sql.NullInt64
	var resolvedAt sql.NullTime

	err := sc.Scan(
		&ev.ID, &ev.SessionKey, &ev.AgentID, &taskID, &status, &ev.Heuristic,
		&ev.Details, &ev.DetectedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.Status = ZombieStatus(status)
	if taskID.Valid {
		ev.TaskID = &taskID.Int64
	}
	if resolvedAt.Valid {
		ev.ResolvedAt = &resolvedAt.Time
	}
	return &ev, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
