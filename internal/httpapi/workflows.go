package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/intake"
	"github.com/ent0n29/outreach/internal/protocol"
	"github.com/ent0n29/outreach/internal/reliability"
)

type submitWorkflowRequest struct {
	Workflow        json.RawMessage `json:"workflow"`
	OriginalMessage string          `json:"originalMessage,omitempty"`
}

type submitWorkflowResponse struct {
	Success    bool   `json:"success"`
	WorkflowID string `json:"workflowId"`
	Message    string `json:"message"`
}

type drainWorkflowsResponse struct {
	Workflows []intake.Workflow `json:"workflows"`
	Message   string            `json:"message"`
}

func (s *Server) handleSubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	var req submitWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		if err == errEmptyBody {
			s.respondFailure(w, "submit_workflow", intake.ErrEmptyWorkflow)
			return
		}
		s.respondFailure(w, "submit_workflow", reliability.Wrap(reliability.KindBadRequest, "invalid request body", err))
		return
	}

	id, body, err := intake.FirstEntry(req.Workflow)
	if err != nil {
		s.respondFailure(w, "submit_workflow", err)
		return
	}
	wf, err := s.queue.Submit(r.Context(), id, body)
	if err != nil {
		s.respondFailure(w, "submit_workflow", err)
		return
	}

	pending := s.queue.Len()
	if s.metrics != nil {
		s.metrics.WorkflowsSubmitted.Inc()
		s.metrics.PendingWorkflows.Set(float64(pending))
	}
	s.log.Info("workflow received",
		zap.String("workflow_id", wf.ID),
		zap.Int("bytes", len(wf.Data)),
		zap.Int("pending", pending),
		zap.Bool("has_original_message", req.OriginalMessage != ""),
	)
	s.hub.Publish(protocol.WorkflowReceived{
		Type:       protocol.TypeWorkflowReceived,
		WorkflowID: wf.ID,
		Timestamp:  wf.Timestamp,
		Pending:    pending,
	})

	respondJSON(w, http.StatusOK, submitWorkflowResponse{
		Success:    true,
		WorkflowID: wf.ID,
		Message:    "Workflow received successfully",
	})
}

// handleDrainWorkflows hands every pending workflow to the caller and clears
// the pending set.
func (s *Server) handleDrainWorkflows(w http.ResponseWriter, r *http.Request) {
	drained, err := s.queue.Drain(r.Context())
	if err != nil {
		s.respondFailure(w, "drain_workflows", err)
		return
	}

	if s.metrics != nil {
		s.metrics.WorkflowsDrained.Add(float64(len(drained)))
		s.metrics.PendingWorkflows.Set(float64(s.queue.Len()))
	}
	if len(drained) > 0 {
		s.log.Info("workflows drained", zap.Int("count", len(drained)))
		s.hub.Publish(protocol.WorkflowsDrained{
			Type:      protocol.TypeWorkflowsDrained,
			Count:     len(drained),
			Timestamp: nowMillis(),
		})
	}

	respondJSON(w, http.StatusOK, drainWorkflowsResponse{
		Workflows: drained,
		Message:   fmt.Sprintf("Retrieved %d workflows", len(drained)),
	})
}
