package execution

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Record is one attempt against the execution service.
type Record struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	Kind       string    `json:"kind"`
	Success    bool      `json:"success"`
	Message    string    `json:"message,omitempty"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"durationMs"`
	ExecutedAt time.Time `json:"executedAt"`
}

// Store keeps an audit log of execution attempts.
type Store interface {
	Save(ctx context.Context, rec Record) error
	ListByTask(ctx context.Context, taskID string, limit int) ([]Record, error)
	Mode() string
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}

const defaultMemoryRecordsPerTask = 256

// MemoryStore is a simple in-process store for local/dev use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
	max     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record), max: defaultMemoryRecordsPerTask}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := append(s.records[rec.TaskID], rec)
	if len(arr) > s.max {
		arr = append([]Record(nil), arr[len(arr)-s.max:]...)
	}
	s.records[rec.TaskID] = arr
	return nil
}

func (s *MemoryStore) ListByTask(_ context.Context, taskID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[taskID]
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Record, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *MemoryStore) Mode() string { return "in-memory" }

func (s *MemoryStore) Close() error { return nil }
