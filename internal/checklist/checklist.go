// Package checklist tracks the ordered sub-steps of a task and derives
// progress from them. Progress is never stored; it is recomputed from the
// step set on every read.
package checklist

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// StepStatus is the lifecycle state of a checklist step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

// Action is an explicit step mutation.
type Action string

const (
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionSkip     Action = "skip"
	ActionFail     Action = "fail"
	ActionReset    Action = "reset"
)

// ParseAction validates a step action name from the wire.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionStart, ActionComplete, ActionSkip, ActionFail, ActionReset:
		return a, nil
	}
	return "", fmt.Errorf("unknown checklist action: %q", s)
}

// ErrStepNotDeletable is returned when deletion is attempted on a done or
// running step. The step must be reset, completed, or skipped first so
// finished work is never silently lost.
var ErrStepNotDeletable = errors.New("step not deletable in current status")

// ErrNotFound is returned when a step id has no record.
var ErrNotFound = errors.New("checklist step not found")

// ErrInvalidStepTransition is returned when an action is not valid from the
// step's current status.
var ErrInvalidStepTransition = errors.New("invalid step transition")

// Step is one ordered sub-unit of a task.
type Step struct {
	ID          int64      `json:"id"`
	TaskID      int64      `json:"task_id"`
	Order       int        `json:"order"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      StepStatus `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy string     `json:"completed_by,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Metadata    string     `json:"metadata,omitempty"` // opaque JSON blob
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Deletable reports whether the step may be removed in its current status.
func (s *Step) Deletable() bool {
	switch s.Status {
	case StepPending, StepSkipped, StepFailed:
		return true
	}
	return false
}

// transition applies the action to the step in place, stamping completion
// metadata. The happy path is pending -> running -> done; skip exits from
// pending or running, fail only from running, and reset returns any
// non-pending step to pending.
func (s *Step) transition(action Action, by string, now time.Time) error {
	switch action {
	case ActionStart:
		if s.Status != StepPending {
			return rejected(action, s.Status)
		}
		s.Status = StepRunning
	case ActionComplete:
		if s.Status != StepPending && s.Status != StepRunning {
			return rejected(action, s.Status)
		}
		s.Status = StepDone
		s.CompletedAt = &now
		s.CompletedBy = by
	case ActionSkip:
		if s.Status != StepPending && s.Status != StepRunning {
			return rejected(action, s.Status)
		}
		s.Status = StepSkipped
		s.CompletedAt = &now
		s.CompletedBy = by
	case ActionFail:
		if s.Status != StepRunning {
			return rejected(action, s.Status)
		}
		s.Status = StepFailed
	case ActionReset:
		if s.Status == StepPending {
			return rejected(action, s.Status)
		}
		s.Status = StepPending
		s.CompletedAt = nil
		s.CompletedBy = ""
	default:
		return fmt.Errorf("unknown checklist action: %q", action)
	}
	s.UpdatedAt = now
	return nil
}

func rejected(action Action, from StepStatus) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidStepTransition, action, from)
}

// Summary is the derived progress of one task's checklist.
type Summary struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Running int `json:"running"`
	Pending int `json:"pending"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`

	// Percent counts done and skipped steps as progress, rounded to the
	// nearest integer. Zero when the checklist is empty.
	Percent int `json:"percent"`
}

// Summarize recomputes progress from a snapshot of steps.
func Summarize(steps []*Step) Summary {
	var sum Summary
	sum.Total = len(steps)
	for _, s := range steps {
		switch s.Status {
		case StepDone:
			sum.Done++
		case StepRunning:
			sum.Running++
		case StepPending:
			sum.Pending++
		case StepSkipped:
			sum.Skipped++
		case StepFailed:
			sum.Failed++
		}
	}
	if sum.Total > 0 {
		sum.Percent = int(math.Round(100 * float64(sum.Done+sum.Skipped) / float64(sum.Total)))
	}
	return sum
}
