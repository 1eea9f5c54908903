// Package task owns the task records of the deck and the lifecycle state
// machine that governs every mutation of their status.
package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a task. Exactly one status holds at a
// time; mutation happens only through Apply.
type Status string

const (
	StatusBacklog   Status = "backlog"
	StatusPlanned   Status = "planned"
	StatusRunning   Status = "running"
	StatusReview    Status = "review"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// statusSynonyms maps legacy dashboard spellings onto canonical states.
var statusSynonyms = map[string]Status{
	"queued":     StatusBacklog,
	"assigned":   StatusPlanned,
	"human_todo": StatusReview,
}

// ParseStatus canonicalizes a status string, accepting legacy synonyms.
func ParseStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if canonical, ok := statusSynonyms[v]; ok {
		return canonical, nil
	}
	switch st := Status(v); st {
	case StatusBacklog, StatusPlanned, StatusRunning, StatusReview,
		StatusDone, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown task status: %q", s)
}

// Terminal reports whether the status ends automatic progression. Terminal
// states stay reachable from requeue by explicit operator action.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Action is an operator- or agent-invoked lifecycle command.
type Action string

const (
	ActionPlan       Action = "plan"
	ActionRun        Action = "run"
	ActionRequeue    Action = "requeue"
	ActionPause      Action = "pause"
	ActionReview     Action = "review"
	ActionHuman      Action = "human"
	ActionComplete   Action = "complete"
	ActionReject     Action = "reject"
	ActionCancel     Action = "cancel"
	ActionFail       Action = "fail"
	ActionSpec       Action = "spec"
	ActionToggleTodo Action = "toggle_todo"
	ActionUpdate     Action = "update"
)

// ParseAction validates an action name from the wire.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionPlan, ActionRun, ActionRequeue, ActionPause, ActionReview,
		ActionHuman, ActionComplete, ActionReject, ActionCancel, ActionFail,
		ActionSpec, ActionToggleTodo, ActionUpdate:
		return a, nil
	}
	return "", fmt.Errorf("unknown task action: %q", s)
}

const (
	// PriorityMin is the most urgent priority.
	PriorityMin = 1
	// PriorityMax is the least urgent priority.
	PriorityMax = 9
	// PriorityDefault is assigned when a creation request omits priority.
	PriorityDefault = 5

	// DefaultTimeoutSec is the heartbeat timeout applied to new tasks.
	DefaultTimeoutSec = 600
)

// ErrInvalidTransition is returned when an action is applied from a status
// the transition table does not list for it. Never coerced silently.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrCommitConflict is returned when a transition repeatedly loses the
// commit race to concurrent writers on the same task.
var ErrCommitConflict = errors.New("task commit conflict")

// ErrNotFound is returned when a task id has no record.
var ErrNotFound = errors.New("task not found")

// Task is a unit of work for an agent.
type Task struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Project        string     `json:"project,omitempty"`
	AgentID        string     `json:"agent_id,omitempty"`
	Priority       int        `json:"priority"`
	Status         Status     `json:"status"`
	ParentID       *int64     `json:"parent_id,omitempty"`
	ReviewCount    int        `json:"review_count"`
	ReviewerID     string     `json:"reviewer_id,omitempty"`
	ReviewFeedback string     `json:"review_feedback,omitempty"`
	Speced         bool       `json:"speced"`
	Acked          bool       `json:"acked"`
	Notes          string     `json:"notes,omitempty"`
	SessionKey     string     `json:"session_key,omitempty"`
	TimeoutSec     int        `json:"timeout_seconds"`
	LastHeartbeat  *time.Time `json:"last_heartbeat,omitempty"`
	HeartbeatMsg   string     `json:"heartbeat_msg,omitempty"`
	Progress       string     `json:"progress,omitempty"` // opaque JSON blob
	Tags           []string   `json:"tags,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}

// toggleTag adds the tag when absent and removes it when present.
func (t *Task) toggleTag(tag string) {
	for i, v := range t.Tags {
		if v == tag {
			t.Tags = append(t.Tags[:i], t.Tags[i+1:]...)
			return
		}
	}
	t.Tags = append(t.Tags, tag)
}

// Patch is the generic field patch carried by an update (or alongside any
// other action). Nil fields are left untouched. Status is never part of a
// patch; only the transition table changes status.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	Project     *string `json:"project,omitempty"`
	AgentID     *string `json:"agent_id,omitempty"`
	Notes       *string `json:"notes,omitempty"`
	Speced      *bool   `json:"speced,omitempty"`
	ReviewerID  *string `json:"reviewer_id,omitempty"`
	Feedback    *string `json:"review_feedback,omitempty"`
	TimeoutSec  *int    `json:"timeout_seconds,omitempty"`
	Progress    *string `json:"progress,omitempty"`
}

func (p *Patch) apply(t *Task) error {
	if p == nil {
		return nil
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		if *p.Priority < PriorityMin || *p.Priority > PriorityMax {
			return fmt.Errorf("priority %d out of range [%d,%d]", *p.Priority, PriorityMin, PriorityMax)
		}
		t.Priority = *p.Priority
	}
	if p.Project != nil {
		t.Project = *p.Project
	}
	if p.AgentID != nil {
		t.AgentID = *p.AgentID
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.Speced != nil {
		t.Speced = *p.Speced
	}
	if p.ReviewerID != nil {
		t.ReviewerID = *p.ReviewerID
	}
	if p.Feedback != nil {
		t.ReviewFeedback = *p.Feedback
	}
	if p.TimeoutSec != nil && *p.TimeoutSec > 0 {
		t.TimeoutSec = *p.TimeoutSec
	}
	if p.Progress != nil {
		t.Progress = *p.Progress
	}
	return nil
}
