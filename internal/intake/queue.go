// Package intake holds workflow descriptions pushed by producers until a
// consumer drains them.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/outreach/internal/reliability"
)

var ErrEmptyWorkflow = reliability.New(reliability.KindBadRequest, "No workflow data provided")

type Workflow struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Queue is the intake contract. Implementations must hand out every
// submitted workflow to exactly one Drain call, in arrival order.
type Queue interface {
	Submit(ctx context.Context, id string, data json.RawMessage) (Workflow, error)
	Drain(ctx context.Context) ([]Workflow, error)
	Len() int
}

// MemoryQueue keeps pending workflows in process memory.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []Workflow
	now     func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{now: time.Now}
}

func (q *MemoryQueue) Submit(_ context.Context, id string, data json.RawMessage) (Workflow, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Workflow{}, reliability.New(reliability.KindBadRequest, "workflow id is required")
	}
	body := make(json.RawMessage, len(data))
	copy(body, data)

	q.mu.Lock()
	defer q.mu.Unlock()
	wf := Workflow{ID: id, Data: body, Timestamp: q.now().UnixMilli()}
	q.pending = append(q.pending, wf)
	return wf, nil
}

func (q *MemoryQueue) Drain(_ context.Context) ([]Workflow, error) {
	q.mu.Lock()
	out := q.pending
	q.pending = nil
	q.mu.Unlock()
	if out == nil {
		out = []Workflow{}
	}
	return out, nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// FirstEntry returns the first key of a JSON object in document order along
// with its value. Later keys are ignored.
func FirstEntry(raw json.RawMessage) (string, json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil, ErrEmptyWorkflow
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return "", nil, reliability.Wrap(reliability.KindBadRequest, "invalid workflow payload", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", nil, reliability.New(reliability.KindBadRequest, "workflow must be an object keyed by workflow id")
	}
	if !dec.More() {
		return "", nil, ErrEmptyWorkflow
	}
	tok, err = dec.Token()
	if err != nil {
		return "", nil, reliability.Wrap(reliability.KindBadRequest, "invalid workflow payload", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", nil, reliability.New(reliability.KindBadRequest, "invalid workflow payload")
	}
	var body json.RawMessage
	if err := dec.Decode(&body); err != nil {
		return "", nil, reliability.Wrap(reliability.KindBadRequest, fmt.Sprintf("invalid body for workflow %q", key), err)
	}
	if strings.TrimSpace(key) == "" {
		return "", nil, reliability.New(reliability.KindBadRequest, "workflow id is required")
	}
	return key, body, nil
}
