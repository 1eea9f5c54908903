// Package cronjob owns declarative triggers and converts their schedules
// into fired runs. A job's kind is an explicit, persisted discriminant and
// is never re-derived from the shape of the schedule string.
package cronjob

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind selects how a job's schedule string is interpreted.
type Kind string

const (
	// KindCron is a standard 5-field cron expression in the job's timezone.
	KindCron Kind = "cron"
	// KindEvery is a fixed interval: a millisecond count or a Go duration
	// string (e.g. "3600000", "5m", "1h30m").
	KindEvery Kind = "every"
	// KindAt fires once at a specific RFC 3339 instant.
	KindAt Kind = "at"
)

// ParseKind validates a kind name from the wire.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCron, KindEvery, KindAt:
		return k, nil
	}
	return "", fmt.Errorf("unknown schedule kind: %q", s)
}

// SessionTarget controls which agent session a fired job runs in.
type SessionTarget string

const (
	// TargetMain hands the payload to the agent's primary session.
	TargetMain SessionTarget = "main"
	// TargetIsolated runs the job in a dedicated session keyed "cron:<jobId>".
	TargetIsolated SessionTarget = "isolated"
)

// ParseSessionTarget validates a session target from the wire.
func ParseSessionTarget(s string) (SessionTarget, error) {
	switch t := SessionTarget(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetMain, TargetIsolated:
		return t, nil
	}
	return "", fmt.Errorf("unknown session target: %q", s)
}

// Payload is what a firing hands to the task side.
type Payload struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

// ErrInvalidSchedule is returned when a schedule string cannot be parsed
// for its kind. A job is never persisted in that state.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ErrNotFound is returned when a job id has no record.
var ErrNotFound = errors.New("cron job not found")

// Job describes a single scheduled unit of work.
type Job struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	Kind          Kind          `json:"kind"`
	Schedule      string        `json:"schedule"` // "0 9 * * *" | "3600000" | "2026-03-01T09:00:00Z"
	Timezone      string        `json:"timezone"`
	SessionTarget SessionTarget `json:"session_target"`
	Payload       Payload       `json:"payload"`
	Enabled       bool          `json:"enabled"`
	LastRunAt     *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time    `json:"next_run_at,omitempty"` // derived cache
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Location resolves the job's timezone, falling back to UTC.
func (j *Job) Location() *time.Location {
	if j.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(j.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RunStatus is the state of one firing.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is the append-only audit record of one firing.
type Run struct {
	ID         int64     `json:"id"`
	JobID      int64     `json:"job_id"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Log        string    `json:"log,omitempty"`
}
