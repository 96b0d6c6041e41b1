package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/outreach/internal/config"
	"github.com/ent0n29/outreach/internal/events"
	"github.com/ent0n29/outreach/internal/execution"
	"github.com/ent0n29/outreach/internal/intake"
	"github.com/ent0n29/outreach/internal/observability"
)

func newTestServer(t *testing.T, failureRate float64) *httptest.Server {
	t.Helper()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test_httpapi")
	svc := execution.NewService(execution.Config{
		FailureRate: failureRate,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}, execution.NewMemoryStore(), metrics, nil)
	srv := New(config.Config{}, intake.NewMemoryQueue(), svc, events.NewHub(nil), metrics, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	res, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func TestSubmitThenDrainWorkflow(t *testing.T) {
	ts := newTestServer(t, 0)

	status, body := postJSON(t, ts.URL+"/api/workflows", `{"workflow":{"wf-1":{"tasks":[]}},"originalMessage":"hello"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "wf-1", body["workflowId"])

	status, body = getJSON(t, ts.URL+"/api/workflows")
	require.Equal(t, http.StatusOK, status)
	workflows := body["workflows"].([]any)
	require.Len(t, workflows, 1)
	wf := workflows[0].(map[string]any)
	assert.Equal(t, "wf-1", wf["id"])
	assert.Equal(t, map[string]any{"tasks": []any{}}, wf["data"])
	assert.Greater(t, wf["timestamp"].(float64), float64(0))

	_, body = getJSON(t, ts.URL+"/api/workflows")
	assert.Equal(t, []any{}, body["workflows"])
}

func TestSubmitWorkflowRejectsEmptyPayload(t *testing.T) {
	ts := newTestServer(t, 0)

	for _, payload := range []string{`{}`, `{"workflow":null}`, `{"workflow":{}}`, ``} {
		status, body := postJSON(t, ts.URL+"/api/workflows", payload)
		assert.Equal(t, http.StatusBadRequest, status, payload)
		assert.Equal(t, false, body["success"], payload)
		assert.Equal(t, "bad_request", body["code"], payload)
	}
}

func TestSubmitWorkflowTruncatedBodyIsInvalid(t *testing.T) {
	ts := newTestServer(t, 0)

	status, body := postJSON(t, ts.URL+"/api/workflows", `{"workflow":{"wf-1":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", body["code"])
	assert.Contains(t, body["error"], "invalid request body")
	assert.NotContains(t, body["error"], "No workflow data provided")
}

func TestExecuteTaskUnsupportedKind(t *testing.T) {
	ts := newTestServer(t, 0)

	status, body := postJSON(t, ts.URL+"/api/execute-task", `{"taskId":"t1","taskType":"unknown","config":{}}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "Unsupported task type")
	assert.Equal(t, false, body["retryable"])
}

func TestExecuteTaskMissingConfigIsBadRequest(t *testing.T) {
	ts := newTestServer(t, 0)

	status, body := postJSON(t, ts.URL+"/api/execute-task", `{"taskId":"t1","taskType":"email","config":{"recipient":"a@b.com"}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", body["code"])
}

func TestExecuteTaskCalendarSuccess(t *testing.T) {
	ts := newTestServer(t, 0)

	status, body := postJSON(t, ts.URL+"/api/execute-task",
		`{"taskId":"t2","taskType":"calendar","config":{"title":"Sync","date":"2025-01-02","time":"14:00","duration":"30m","attendees":"x@y.com , z@w.com"}}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "t2", body["taskId"])
	assert.Equal(t, "calendar", body["kind"])
	data := body["data"].(map[string]any)
	assert.Equal(t, []any{"x@y.com", "z@w.com"}, data["attendees"])
	assert.True(t, strings.HasPrefix(data["eventId"].(string), "evt_"))

	_, history := getJSON(t, ts.URL+"/api/executions?taskId=t2")
	assert.Len(t, history["executions"], 1)
}

func TestExecuteTaskTransientFailure(t *testing.T) {
	ts := newTestServer(t, 1)

	status, body := postJSON(t, ts.URL+"/api/execute-task", `{"taskId":"t3","taskType":"message","config":{"channel":"sms","message":"hi"}}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "transient", body["code"])
	assert.Equal(t, true, body["retryable"])
	assert.Equal(t, "t3", body["taskId"])
}

func TestExecutorHealthAndProbes(t *testing.T) {
	ts := newTestServer(t, 0)

	status, body := getJSON(t, ts.URL+"/api/execute-task")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, body = getJSON(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "in-memory", body["execution_store"])

	status, _ = getJSON(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusOK, status)

	status, _ = getJSON(t, ts.URL+"/api/executions")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStreamPingAndWorkflowEvents(t *testing.T) {
	ts := newTestServer(t, 0)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 1, "message": "hi"}))
	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, "hi", pong["message"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	var errEvent map[string]any
	require.NoError(t, conn.ReadJSON(&errEvent))
	assert.Equal(t, "error_event", errEvent["type"])

	status, _ := postJSON(t, ts.URL+"/api/workflows", `{"workflow":{"wf-9":{"tasks":[]}}}`)
	require.Equal(t, http.StatusOK, status)
	var received map[string]any
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "workflow_received", received["type"])
	assert.Equal(t, "wf-9", received["workflowId"])
}

func TestReportCompletionIsStreamed(t *testing.T) {
	ts := newTestServer(t, 0)

	status, body := postJSON(t, ts.URL+"/api/task-completions", `{"success":true}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", body["code"])

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// A pong means the connection is subscribed to the hub.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 1, "message": "ready"}))
	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong["type"])

	status, body = postJSON(t, ts.URL+"/api/task-completions", `{"taskId":"t7","success":false,"error":"line busy"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "t7", body["taskId"])

	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "task_completed", frame["type"])
	assert.Equal(t, "t7", frame["taskId"])
	assert.Equal(t, false, frame["success"])
	assert.Equal(t, "line busy", frame["error"])
}
