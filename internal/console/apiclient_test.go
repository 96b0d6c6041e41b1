package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/outreach/internal/config"
	"github.com/ent0n29/outreach/internal/events"
	"github.com/ent0n29/outreach/internal/execution"
	"github.com/ent0n29/outreach/internal/httpapi"
	"github.com/ent0n29/outreach/internal/intake"
	"github.com/ent0n29/outreach/internal/observability"
	"github.com/ent0n29/outreach/internal/reliability"
	"github.com/ent0n29/outreach/internal/tasks"
)

func newBackend(t *testing.T, failureRate float64) *APIClient {
	t.Helper()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test_console")
	svc := execution.NewService(execution.Config{
		FailureRate: failureRate,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}, nil, metrics, nil)
	srv := httpapi.New(config.Config{}, intake.NewMemoryQueue(), svc, events.NewHub(nil), metrics, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return NewAPIClient(ts.URL+"/", 5*time.Second)
}

func TestAPIClientSubmitDrainExecute(t *testing.T) {
	client := newBackend(t, 0)
	ctx := context.Background()

	id, err := client.SubmitWorkflow(ctx, "wf-1", json.RawMessage(emailWorkflow), "hello")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", id)

	workflows, err := client.DrainWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, "wf-1", workflows[0].ID)

	workflows, err = client.DrainWorkflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, workflows)

	res, err := client.ExecuteTask(ctx, execution.Request{
		TaskID: "t1",
		Kind:   "email",
		Config: tasks.Config{"recipient": "a@b.com", "subject": "Hi", "message": "Hello there"},
	})
	require.NoError(t, err)
	assert.Equal(t, tasks.KindEmail, res.Kind)
	assert.EqualValues(t, 11, res.Data["messageLength"])

	health, err := client.ExecutorHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestAPIClientClassifiesFailures(t *testing.T) {
	client := newBackend(t, 1)
	ctx := context.Background()

	_, err := client.ExecuteTask(ctx, execution.Request{TaskID: "t1", Kind: "unknown"})
	require.Error(t, err)
	assert.Equal(t, reliability.KindUnsupportedKind, reliability.KindOf(err))
	assert.Contains(t, err.Error(), "Unsupported task type")

	_, err = client.ExecuteTask(ctx, execution.Request{
		TaskID: "t1",
		Kind:   "message",
		Config: tasks.Config{"channel": "sms", "message": "hi"},
	})
	require.Error(t, err)
	assert.Equal(t, reliability.KindTransient, reliability.KindOf(err))

	_, err = client.SubmitWorkflow(ctx, "", json.RawMessage(`{}`), "")
	require.Error(t, err)
	assert.Equal(t, reliability.KindBadRequest, reliability.KindOf(err))
}

func TestAPIClientStatusFallbackAndTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/execute-task") {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()
	client := NewAPIClient(ts.URL, time.Second)

	_, err := client.DrainWorkflows(context.Background())
	require.Error(t, err)
	assert.Equal(t, reliability.KindTransient, reliability.KindOf(err))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.ExecuteTask(ctx, execution.Request{TaskID: "t1", Kind: "email"})
	require.Error(t, err)
	assert.Equal(t, reliability.KindTimeout, reliability.KindOf(err))
}
