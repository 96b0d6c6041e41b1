package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypePing             MessageType = "ping"
	TypePong             MessageType = "pong"
	TypeWorkflowReceived MessageType = "workflow_received"
	TypeWorkflowsDrained MessageType = "workflows_drained"
	TypeTaskExecuted     MessageType = "task_executed"
	TypeTaskCompleted    MessageType = "task_completed"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Ping is the liveness probe a client sends on operator demand.
type Ping struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Message   string      `json:"message"`
}

type Pong struct {
	Type       MessageType `json:"type"`
	Timestamp  int64       `json:"timestamp"`
	Message    string      `json:"message"`
	ReceivedAt int64       `json:"receivedAt"`
}

type WorkflowReceived struct {
	Type       MessageType `json:"type"`
	WorkflowID string      `json:"workflowId"`
	Timestamp  int64       `json:"timestamp"`
	Pending    int         `json:"pending"`
}

type WorkflowsDrained struct {
	Type      MessageType `json:"type"`
	Count     int         `json:"count"`
	Timestamp int64       `json:"timestamp"`
}

// TaskExecuted reports an attempt handled by the execution service.
type TaskExecuted struct {
	Type       MessageType `json:"type"`
	TaskID     string      `json:"taskId"`
	Kind       string      `json:"kind"`
	Success    bool        `json:"success"`
	Error      string      `json:"error,omitempty"`
	ExecutedAt time.Time   `json:"executedAt"`
}

// TaskCompleted is an out-of-band completion for a task that is executing.
type TaskCompleted struct {
	Type       MessageType    `json:"type"`
	TaskID     string         `json:"taskId"`
	Success    bool           `json:"success"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	ExecutedAt time.Time      `json:"executedAt"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func NewPing(message string, now time.Time) Ping {
	return Ping{Type: TypePing, Timestamp: now.UnixMilli(), Message: message}
}

// ParseClientMessage decodes frames a console may send to the server.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypePing:
		var msg Ping
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// ParseServerMessage decodes frames the server pushes to consoles.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case TypePong:
		msg = &Pong{}
	case TypeWorkflowReceived:
		msg = &WorkflowReceived{}
	case TypeWorkflowsDrained:
		msg = &WorkflowsDrained{}
	case TypeTaskExecuted:
		msg = &TaskExecuted{}
	case TypeTaskCompleted:
		msg = &TaskCompleted{}
	case TypeErrorEvent:
		msg = &ErrorEvent{}
	default:
		return nil, ErrUnsupportedType
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, err
	}
	if tc, ok := msg.(*TaskCompleted); ok && tc.TaskID == "" {
		return nil, errors.New("invalid task_completed: taskId is required")
	}
	return msg, nil
}

// TypeOf returns the frame type of a known message value.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case Ping:
		return m.Type, true
	case Pong:
		return m.Type, true
	case WorkflowReceived:
		return m.Type, true
	case WorkflowsDrained:
		return m.Type, true
	case TaskExecuted:
		return m.Type, true
	case TaskCompleted:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
