// Package events fans server-side events out to connected stream clients
// and to optional external sinks.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/protocol"
)

const subscriberBuffer = 256

// Sink receives a copy of every published event.
type Sink interface {
	Publish(ctx context.Context, typ protocol.MessageType, msg any) error
	Close() error
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[int]chan any
	nextSubID   int
	sinks       []Sink
	log         *zap.Logger
}

func NewHub(log *zap.Logger, sinks ...Sink) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[int]chan any),
		sinks:       sinks,
		log:         log,
	}
}

// Subscribe returns a buffered channel of events and a cancel func that
// closes it. Slow subscribers miss events rather than block publishers.
func (h *Hub) Subscribe() (<-chan any, func()) {
	ch := make(chan any, subscriberBuffer)
	h.mu.Lock()
	h.nextSubID++
	id := h.nextSubID
	h.subscribers[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subscribers[id]; ok {
				delete(h.subscribers, id)
				close(c)
			}
		})
	}
}

func (h *Hub) Publish(msg any) {
	h.mu.RLock()
	for _, ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
	sinks := h.sinks
	h.mu.RUnlock()

	if len(sinks) == 0 {
		return
	}
	typ, _ := protocol.TypeOf(msg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, s := range sinks {
		if err := s.Publish(ctx, typ, msg); err != nil {
			h.log.Warn("event sink publish failed", zap.String("type", string(typ)), zap.Error(err))
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes all sinks. Subscribers are left to their cancel funcs.
func (h *Hub) Close() error {
	h.mu.Lock()
	sinks := h.sinks
	h.sinks = nil
	h.mu.Unlock()
	var first error
	for _, s := range sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
