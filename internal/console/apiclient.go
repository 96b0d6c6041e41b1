package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/outreach/internal/execution"
	"github.com/ent0n29/outreach/internal/intake"
	"github.com/ent0n29/outreach/internal/reliability"
)

// APIClient talks to the intake and execution endpoints of an outreach
// backend.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type apiFailure struct {
	Error string           `json:"error"`
	Code  reliability.Kind `json:"code"`
}

func (c *APIClient) DrainWorkflows(ctx context.Context) ([]intake.Workflow, error) {
	var out struct {
		Workflows []intake.Workflow `json:"workflows"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/workflows", nil, &out); err != nil {
		return nil, err
	}
	if out.Workflows == nil {
		out.Workflows = []intake.Workflow{}
	}
	return out.Workflows, nil
}

// SubmitWorkflow posts {workflow: {id: body}} and returns the accepted id.
func (c *APIClient) SubmitWorkflow(ctx context.Context, id string, body json.RawMessage, originalMessage string) (string, error) {
	keyed, err := json.Marshal(map[string]json.RawMessage{id: body})
	if err != nil {
		return "", reliability.Wrap(reliability.KindBadRequest, "encode workflow", err)
	}
	req := map[string]any{"workflow": json.RawMessage(keyed)}
	if originalMessage != "" {
		req["originalMessage"] = originalMessage
	}
	var out struct {
		WorkflowID string `json:"workflowId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/workflows", req, &out); err != nil {
		return "", err
	}
	return out.WorkflowID, nil
}

func (c *APIClient) ExecuteTask(ctx context.Context, req execution.Request) (execution.Result, error) {
	var out execution.Result
	if err := c.do(ctx, http.MethodPost, "/api/execute-task", req, &out); err != nil {
		return execution.Result{}, err
	}
	return out, nil
}

func (c *APIClient) ExecutorHealth(ctx context.Context) (execution.Health, error) {
	var out execution.Health
	err := c.do(ctx, http.MethodGet, "/api/execute-task", nil, &out)
	return out, err
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return reliability.Wrap(reliability.KindBadRequest, "encode request", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return reliability.Wrap(reliability.KindBadRequest, "create request", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return reliability.Wrap(reliability.KindTimeout, "no response from backend", err)
		}
		return reliability.Wrap(reliability.KindTransient, fmt.Sprintf("%s %s", method, path), err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return reliability.Wrap(reliability.KindTransient, "read response", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var failure apiFailure
		_ = json.Unmarshal(raw, &failure)
		kind := failure.Code
		if !knownKind(kind) {
			kind = reliability.KindForHTTPStatus(res.StatusCode)
		}
		msg := strings.TrimSpace(failure.Error)
		if msg == "" {
			msg = fmt.Sprintf("backend status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
		}
		return reliability.New(kind, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return reliability.Wrap(reliability.KindInternal, "decode response", err)
	}
	return nil
}

func knownKind(k reliability.Kind) bool {
	switch k {
	case reliability.KindBadRequest, reliability.KindUnsupportedKind, reliability.KindTransient,
		reliability.KindTimeout, reliability.KindNotOpen, reliability.KindInternal:
		return true
	default:
		return false
	}
}
