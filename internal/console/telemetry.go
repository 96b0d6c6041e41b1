package console

import (
	"sync"

	"github.com/ent0n29/outreach/internal/streamclient"
)

const DefaultTelemetryCapacity = 100

// Telemetry retains recent stream frames for display. While paused nothing
// is retained.
type Telemetry struct {
	mu       sync.Mutex
	capacity int
	frames   []streamclient.Message
	paused   bool
	dropped  int
}

func NewTelemetry(capacity int) *Telemetry {
	if capacity <= 0 {
		capacity = DefaultTelemetryCapacity
	}
	return &Telemetry{capacity: capacity}
}

func (t *Telemetry) Record(msg streamclient.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return
	}
	t.frames = append(t.frames, msg)
	if over := len(t.frames) - t.capacity; over > 0 {
		t.frames = append(t.frames[:0:0], t.frames[over:]...)
		t.dropped += over
	}
}

func (t *Telemetry) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

func (t *Telemetry) Resume() {
	t.mu.Lock()
	t.paused = false
	t.mu.Unlock()
}

func (t *Telemetry) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Frames returns retained frames, oldest first.
func (t *Telemetry) Frames() []streamclient.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]streamclient.Message, len(t.frames))
	copy(out, t.frames)
	return out
}

// Dropped counts frames evicted to stay within capacity.
func (t *Telemetry) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

func (t *Telemetry) Clear() {
	t.mu.Lock()
	t.frames = nil
	t.dropped = 0
	t.mu.Unlock()
}
