package tasks

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ent0n29/outreach/internal/reliability"
)

type State string

const (
	StateDraft         State = "draft"
	StatePendingReview State = "pendingReview"
	StateEditing       State = "editing"
	StateExecuting     State = "executing"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
	StateRejected      State = "rejected"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateRejected
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority normalizes p, defaulting to medium for empty or unknown values.
func ParsePriority(p string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(p))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	case PriorityUrgent:
		return PriorityUrgent
	default:
		return PriorityMedium
	}
}

// Config holds the kind-specific options of a task. Values are strings;
// see UnmarshalJSON for how other JSON values are accepted.
type Config map[string]string

func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func (c Config) Get(key string) string {
	return strings.TrimSpace(c[key])
}

// Keys returns the option names in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnmarshalJSON stringifies scalars and joins arrays with ", " so a list of
// attendees and a comma separated string end up in the same shape.
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Config, len(raw))
	for k, v := range raw {
		out[k] = stringify(v)
	}
	*c = out
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// Description is one task inside a workflow payload.
type Description struct {
	ID                string   `json:"id"`
	Kind              Kind     `json:"type"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Priority          Priority `json:"priority"`
	EstimatedDuration string   `json:"estimatedDuration,omitempty"`
	Config            Config   `json:"config"`
	PersonID          string   `json:"personId,omitempty"`
}

type Result struct {
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	ExecutedAt time.Time      `json:"executedAt"`
}

type Failure struct {
	Kind       reliability.Kind `json:"kind"`
	Message    string           `json:"message"`
	Retryable  bool             `json:"retryable"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// FailureFrom classifies err for storage on a task.
func FailureFrom(err error, now time.Time) Failure {
	kind := reliability.KindOf(err)
	return Failure{
		Kind:       kind,
		Message:    err.Error(),
		Retryable:  reliability.IsRetryable(kind),
		OccurredAt: now,
	}
}

type Transition struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Event Event     `json:"event"`
	At    time.Time `json:"at"`
}

type Task struct {
	Description

	WorkflowID string    `json:"workflowId,omitempty"`
	ContactID  string    `json:"contactId"`
	State      State     `json:"state"`
	Attempts   int       `json:"attempts"`
	LastResult *Result   `json:"lastResult,omitempty"`
	LastError  *Failure  `json:"lastError,omitempty"`
	Draft      Config    `json:"draft,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	History         []Transition  `json:"history"`
	ExecutingSince  *time.Time    `json:"executingSince,omitempty"`
	TimeInExecuting time.Duration `json:"timeInExecuting"`
}

func (t Task) Clone() Task {
	out := t
	out.Config = t.Config.Clone()
	out.Draft = t.Draft.Clone()
	if t.History != nil {
		out.History = make([]Transition, len(t.History))
		copy(out.History, t.History)
	}
	if t.LastResult != nil {
		r := *t.LastResult
		out.LastResult = &r
	}
	if t.LastError != nil {
		e := *t.LastError
		out.LastError = &e
	}
	if t.ExecutingSince != nil {
		s := *t.ExecutingSince
		out.ExecutingSince = &s
	}
	return out
}

// States returns the sequence of states the task has been in, starting
// with the state it was materialized into.
func (t Task) States() []State {
	if len(t.History) == 0 {
		return []State{t.State}
	}
	out := make([]State, 0, len(t.History)+1)
	out = append(out, t.History[0].From)
	for _, tr := range t.History {
		out = append(out, tr.To)
	}
	return out
}
