package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientPing(t *testing.T) {
	raw, err := json.Marshal(NewPing("Hello from console", time.UnixMilli(1700000000000)))
	require.NoError(t, err)

	msg, err := ParseClientMessage(raw)
	require.NoError(t, err)
	ping, ok := msg.(Ping)
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000), ping.Timestamp)
	assert.Equal(t, "Hello from console", ping.Message)
}

func TestParseClientRejectsUnknown(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"task_completed","taskId":"t1"}`))
	assert.True(t, errors.Is(err, ErrUnsupportedType))

	_, err = ParseClientMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseServerTaskCompleted(t *testing.T) {
	msg, err := ParseServerMessage([]byte(`{"type":"task_completed","taskId":"t9","success":false,"error":"bounced"}`))
	require.NoError(t, err)
	tc, ok := msg.(*TaskCompleted)
	require.True(t, ok)
	assert.Equal(t, "t9", tc.TaskID)
	assert.Equal(t, "bounced", tc.Error)

	_, err = ParseServerMessage([]byte(`{"type":"task_completed"}`))
	assert.Error(t, err)
}

func TestTypeOf(t *testing.T) {
	typ, ok := TypeOf(WorkflowReceived{Type: TypeWorkflowReceived})
	assert.True(t, ok)
	assert.Equal(t, TypeWorkflowReceived, typ)

	_, ok = TypeOf("nope")
	assert.False(t, ok)
}
