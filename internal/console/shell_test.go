package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/outreach/internal/streamclient"
	"github.com/ent0n29/outreach/internal/tasks"
)

type fakeStream struct {
	pings      []string
	reconnects int
}

func (f *fakeStream) State() streamclient.State { return streamclient.StateOpen }
func (f *fakeStream) ReconnectCount() int       { return 0 }
func (f *fakeStream) LastError() error          { return nil }
func (f *fakeStream) Ping(m string) error {
	f.pings = append(f.pings, m)
	return nil
}
func (f *fakeStream) Reconnect()  { f.reconnects++ }
func (f *fakeStream) Disconnect() {}

func TestShellDrivesTaskLifecycle(t *testing.T) {
	o, in, _ := newOrchestrator(t, &scriptedExecutor{}, Options{})
	in.add("wf-1", emailWorkflow)
	stream := &fakeStream{}
	var out bytes.Buffer
	sh := NewShell(o, stream, NewTelemetry(10), &out)

	script := strings.Join([]string{
		"poll",
		"queue",
		"edit t1",
		"set t1 subject Quarterly update",
		"save t1",
		"exec t1 wait",
		"show t1",
		"ping hello there",
		"status",
		"reconnect",
		"bogus",
		"quit",
		"poll",
	}, "\n")
	require.NoError(t, sh.Run(context.Background(), strings.NewReader(script)))

	task, ok := o.Task("t1")
	require.True(t, ok)
	assert.Equal(t, tasks.StateSucceeded, task.State)
	assert.Equal(t, "Quarterly update", task.Config["subject"])
	assert.Equal(t, []string{"hello there"}, stream.pings)
	assert.Equal(t, 1, stream.reconnects)

	text := out.String()
	assert.Contains(t, text, "1 workflows, 1 new tasks")
	assert.Contains(t, text, "t1 succeeded: done")
	assert.Contains(t, text, "stream open")
	assert.Contains(t, text, `unknown command "bogus"`)
}

func TestShellUsageErrors(t *testing.T) {
	o, _, _ := newOrchestrator(t, &scriptedExecutor{}, Options{})
	sh := NewShell(o, nil, NewTelemetry(10), &bytes.Buffer{})
	ctx := context.Background()

	assert.Error(t, sh.Exec(ctx, "edit"))
	assert.Error(t, sh.Exec(ctx, "set t1 subject"))
	assert.Error(t, sh.Exec(ctx, "show nope"))
	assert.Error(t, sh.Exec(ctx, "ping"))
	assert.NoError(t, sh.Exec(ctx, "   "))
	assert.NoError(t, sh.Exec(ctx, "contact bob"))
	assert.Equal(t, "bob", o.ActiveContact())
}
