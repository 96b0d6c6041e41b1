package tasks

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid task transition")

type Event string

const (
	EventEdit      Event = "editRequested"
	EventSave      Event = "saveRequested"
	EventCancel    Event = "cancelRequested"
	EventExecute   Event = "executeRequested"
	EventSucceeded Event = "executionSucceeded"
	EventFailed    Event = "executionFailed"
	EventRetry     Event = "retryRequested"
	EventReject    Event = "rejectRequested"
)

var transitions = map[State]map[Event]State{
	StatePendingReview: {
		EventEdit:    StateEditing,
		EventExecute: StateExecuting,
		EventReject:  StateRejected,
	},
	StateEditing: {
		EventSave:   StatePendingReview,
		EventCancel: StatePendingReview,
	},
	StateExecuting: {
		EventSucceeded: StateSucceeded,
		EventFailed:    StateFailed,
	},
	StateFailed: {
		EventRetry:  StateExecuting,
		EventReject: StateRejected,
	},
}

// Can reports whether ev is allowed from the task's current state.
func (t *Task) Can(ev Event) bool {
	_, ok := transitions[t.State][ev]
	return ok
}

// New materializes d into a task awaiting review.
func New(d Description, workflowID, contactID string, now time.Time) *Task {
	d.Config = d.Config.Clone()
	if d.Config == nil {
		d.Config = Config{}
	}
	return &Task{
		Description: d,
		WorkflowID:  workflowID,
		ContactID:   contactID,
		State:       StatePendingReview,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Edit opens a working copy of the config.
func (t *Task) Edit(now time.Time) error {
	if err := t.apply(EventEdit, now); err != nil {
		return err
	}
	t.Draft = t.Config.Clone()
	return nil
}

// SetDraftField changes one option of the working copy.
func (t *Task) SetDraftField(key, value string) error {
	if t.State != StateEditing {
		return fmt.Errorf("%w: %s is not being edited", ErrInvalidTransition, t.ID)
	}
	if t.Draft == nil {
		t.Draft = Config{}
	}
	t.Draft[key] = value
	return nil
}

// Save promotes cfg to the canonical config. An invalid cfg leaves the
// task in editing.
func (t *Task) Save(cfg Config, now time.Time) error {
	if !t.Can(EventSave) {
		return t.invalid(EventSave)
	}
	if err := t.Kind.Validate(cfg); err != nil {
		return err
	}
	if err := t.apply(EventSave, now); err != nil {
		return err
	}
	t.Config = cfg.Clone()
	t.Draft = nil
	return nil
}

// CancelEdit discards the working copy.
func (t *Task) CancelEdit(now time.Time) error {
	if err := t.apply(EventCancel, now); err != nil {
		return err
	}
	t.Draft = nil
	return nil
}

func (t *Task) BeginExecution(now time.Time) error {
	if err := t.apply(EventExecute, now); err != nil {
		return err
	}
	t.Attempts++
	return nil
}

func (t *Task) Succeed(res Result, now time.Time) error {
	if err := t.apply(EventSucceeded, now); err != nil {
		return err
	}
	t.LastResult = &res
	t.LastError = nil
	return nil
}

func (t *Task) Fail(f Failure, now time.Time) error {
	if err := t.apply(EventFailed, now); err != nil {
		return err
	}
	t.LastError = &f
	return nil
}

func (t *Task) Retry(now time.Time) error {
	if err := t.apply(EventRetry, now); err != nil {
		return err
	}
	t.Attempts++
	return nil
}

func (t *Task) Reject(now time.Time) error {
	return t.apply(EventReject, now)
}

// ExecutingDuration is the total time spent executing, including the
// current attempt if one is running.
func (t *Task) ExecutingDuration(now time.Time) time.Duration {
	d := t.TimeInExecuting
	if t.ExecutingSince != nil {
		d += now.Sub(*t.ExecutingSince)
	}
	return d
}

func (t *Task) apply(ev Event, now time.Time) error {
	to, ok := transitions[t.State][ev]
	if !ok {
		return t.invalid(ev)
	}
	from := t.State
	if from == StateExecuting && t.ExecutingSince != nil {
		t.TimeInExecuting += now.Sub(*t.ExecutingSince)
		t.ExecutingSince = nil
	}
	if to == StateExecuting {
		started := now
		t.ExecutingSince = &started
	}
	t.State = to
	t.UpdatedAt = now
	t.History = append(t.History, Transition{From: from, To: to, Event: ev, At: now})
	return nil
}

func (t *Task) invalid(ev Event) error {
	return fmt.Errorf("%w: %s not allowed from %s (task %s)", ErrInvalidTransition, ev, t.State, t.ID)
}
