package task

import (
	"fmt"
	"time"
)

// The transition table. Self-loop actions (spec, toggle_todo, update) are
// listed explicitly so that every (status, action) pair is either here or
// rejected; no validity check lives anywhere else.
type edge struct {
	from   Status
	action Action
}

var transitions = map[edge]Status{
	{StatusBacklog, ActionPlan}: StatusPlanned,

	{StatusBacklog, ActionRun}: StatusRunning,
	{StatusPlanned, ActionRun}: StatusRunning,

	{StatusPlanned, ActionRequeue}:   StatusBacklog,
	{StatusFailed, ActionRequeue}:    StatusBacklog,
	{StatusCancelled, ActionRequeue}: StatusBacklog,

	{StatusRunning, ActionPause}: StatusPlanned,

	{StatusRunning, ActionReview}: StatusReview,
	{StatusRunning, ActionHuman}:  StatusReview,

	{StatusReview, ActionComplete}: StatusDone,
	{StatusReview, ActionReject}:   StatusRunning,

	{StatusBacklog, ActionCancel}: StatusCancelled,
	{StatusPlanned, ActionCancel}: StatusCancelled,
	{StatusRunning, ActionCancel}: StatusCancelled,

	{StatusRunning, ActionFail}: StatusFailed,

	{StatusBacklog, ActionSpec}:      StatusBacklog,
	{StatusReview, ActionToggleTodo}: StatusReview,
}

// humanTag marks a review-state task as waiting on a person rather than a
// reviewing agent.
const humanTag = "human_todo"

// todoTag is the operator triage marker toggled in review.
const todoTag = "todo"

// Apply validates action against t's current status and, when valid, mutates
// t in place: status change, the action's side effects, then the optional
// field patch. On rejection t is left untouched and the error wraps
// ErrInvalidTransition.
func Apply(t *Task, action Action, patch *Patch, now time.Time) error {
	if action == ActionUpdate {
		// Generic patch: valid from any status, never changes it.
		return patch.apply(t)
	}

	next, ok := transitions[edge{t.Status, action}]
	if !ok {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, t.Status)
	}

	switch action {
	case ActionRun:
		if t.StartedAt == nil {
			started := now
			t.StartedAt = &started
		}
	case ActionRequeue:
		t.AgentID = ""
		t.StartedAt = nil
		t.CompletedAt = nil
		t.Acked = false
	case ActionReview, ActionHuman:
		completed := now
		t.CompletedAt = &completed
		if action == ActionHuman && !t.HasTag(humanTag) {
			t.Tags = append(t.Tags, humanTag)
		}
	case ActionComplete:
		if t.CompletedAt == nil {
			completed := now
			t.CompletedAt = &completed
		}
	case ActionReject:
		t.CompletedAt = nil
		t.ReviewCount++
	case ActionCancel, ActionFail:
		completed := now
		t.CompletedAt = &completed
	case ActionSpec:
		t.Speced = true
	case ActionToggleTodo:
		t.toggleTag(todoTag)
	}

	t.Status = next
	return patch.apply(t)
}

// ValidActions returns the actions applicable from the given status, in a
// stable order. Used by the API to advertise what a UI may offer.
func ValidActions(from Status) []Action {
	ordered := []Action{
		ActionPlan, ActionRun, ActionRequeue, ActionPause, ActionReview,
		ActionHuman, ActionComplete, ActionReject, ActionCancel, ActionFail,
		ActionSpec, ActionToggleTodo,
	}
	var out []Action
	for _, a := range ordered {
		if _, ok := transitions[edge{from, a}]; ok {
			out = append(out, a)
		}
	}
	out = append(out, ActionUpdate)
	return out
}
