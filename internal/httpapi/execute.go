package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/execution"
	"github.com/ent0n29/outreach/internal/policy"
	"github.com/ent0n29/outreach/internal/protocol"
	"github.com/ent0n29/outreach/internal/reliability"
)

type executeSuccessResponse struct {
	Success bool `json:"success"`
	execution.Result
}

type executeFailureResponse struct {
	failureResponse
	TaskID     string    `json:"taskId,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	ExecutedAt time.Time `json:"executedAt"`
}

func (s *Server) handleExecuteTask(w http.ResponseWriter, r *http.Request) {
	var req execution.Request
	if err := decodeJSON(r, &req); err != nil {
		s.respondFailure(w, "execute_task", reliability.Wrap(reliability.KindBadRequest, "invalid request body", err))
		return
	}

	res, err := s.executor.Execute(r.Context(), req)
	if err != nil {
		now := time.Now().UTC()
		status, body := failureFrom(err)
		s.hub.Publish(protocol.TaskExecuted{
			Type:       protocol.TypeTaskExecuted,
			TaskID:     req.TaskID,
			Kind:       strings.TrimSpace(req.Kind),
			Success:    false,
			Error:      body.Error,
			ExecutedAt: now,
		})
		if body.Code == reliability.KindInternal {
			s.log.Error("task execution failed", zap.String("task_id", req.TaskID), zap.Error(err))
		}
		respondJSON(w, status, executeFailureResponse{
			failureResponse: body,
			TaskID:          req.TaskID,
			Kind:            strings.TrimSpace(req.Kind),
			ExecutedAt:      now,
		})
		return
	}

	s.hub.Publish(protocol.TaskExecuted{
		Type:       protocol.TypeTaskExecuted,
		TaskID:     res.TaskID,
		Kind:       string(res.Kind),
		Success:    true,
		ExecutedAt: res.ExecutedAt,
	})
	respondJSON(w, http.StatusOK, executeSuccessResponse{Success: true, Result: res})
}

type completionRequest struct {
	TaskID     string         `json:"taskId"`
	Success    bool           `json:"success"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	ExecutedAt time.Time      `json:"executedAt"`
}

// handleReportCompletion lets the system that actually carried out a task
// (a dialer, a mail relay) settle it out of band. The outcome is pushed to
// stream listeners as task_completed; consoles apply it if the task is still
// executing there.
func (s *Server) handleReportCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondFailure(w, "report_completion", reliability.Wrap(reliability.KindBadRequest, "invalid request body", err))
		return
	}
	req.TaskID = strings.TrimSpace(req.TaskID)
	if req.TaskID == "" {
		s.respondFailure(w, "report_completion", reliability.New(reliability.KindBadRequest, "taskId is required"))
		return
	}
	if req.ExecutedAt.IsZero() {
		req.ExecutedAt = time.Now().UTC()
	}

	s.log.Info("task completion reported",
		zap.String("task_id", req.TaskID),
		zap.Bool("success", req.Success),
		zap.String("error", policy.MaskContacts(req.Error)),
	)
	s.hub.Publish(protocol.TaskCompleted{
		Type:       protocol.TypeTaskCompleted,
		TaskID:     req.TaskID,
		Success:    req.Success,
		Message:    req.Message,
		Data:       req.Data,
		Error:      req.Error,
		ExecutedAt: req.ExecutedAt,
	})
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"taskId":  req.TaskID,
	})
}

func (s *Server) handleExecutorHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.executor.Health())
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(r.URL.Query().Get("taskId"))
	if taskID == "" {
		s.respondFailure(w, "list_executions", reliability.New(reliability.KindBadRequest, "query parameter taskId is required"))
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondFailure(w, "list_executions", reliability.New(reliability.KindBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	records, err := s.executor.History(r.Context(), taskID, limit)
	if err != nil {
		s.respondFailure(w, "list_executions", reliability.Wrap(reliability.KindInternal, "list executions", err))
		return
	}
	if records == nil {
		records = []execution.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"taskId":     taskID,
		"executions": records,
	})
}
