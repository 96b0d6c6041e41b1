package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type wireDescription struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	Kind              string `json:"kind"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Priority          string `json:"priority"`
	EstimatedDuration string `json:"estimatedDuration"`
	Config            Config `json:"config"`
	PersonID          string `json:"personId"`
}

type wireWorkflow struct {
	PersonID string            `json:"personId"`
	Tasks    []json.RawMessage `json:"tasks"`
	Type     string            `json:"type"`
	Kind     string            `json:"kind"`
}

// Materialize maps a workflow body to task descriptions.
//
// A body carries either a "tasks" array or is itself a single task
// description (it has "type" or "kind"). A workflow level personId applies
// to tasks that do not name one. Tasks without an id get
// "<workflowID>-<index>". Entries that cannot be used are reported in the
// returned error slice and skipped.
func Materialize(workflowID string, data json.RawMessage) ([]Description, []error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var wf wireWorkflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, []error{fmt.Errorf("workflow %s: body is not an object: %w", workflowID, err)}
	}

	items := wf.Tasks
	if len(items) == 0 && (wf.Type != "" || wf.Kind != "") {
		items = []json.RawMessage{data}
	}

	var (
		out  []Description
		errs []error
	)
	for i, raw := range items {
		var w wireDescription
		if err := json.Unmarshal(raw, &w); err != nil {
			errs = append(errs, fmt.Errorf("workflow %s task %d: %w", workflowID, i, err))
			continue
		}
		kindRaw := w.Type
		if kindRaw == "" {
			kindRaw = w.Kind
		}
		kind, err := ParseKind(kindRaw)
		if err != nil {
			errs = append(errs, fmt.Errorf("workflow %s task %d: %w", workflowID, i, err))
			continue
		}
		id := strings.TrimSpace(w.ID)
		if id == "" {
			id = fmt.Sprintf("%s-%d", workflowID, i)
		}
		person := strings.TrimSpace(w.PersonID)
		if person == "" {
			person = strings.TrimSpace(wf.PersonID)
		}
		title := strings.TrimSpace(w.Title)
		if title == "" {
			title = kind.Summary(w.Config)
		}
		out = append(out, Description{
			ID:                id,
			Kind:              kind,
			Title:             title,
			Description:       strings.TrimSpace(w.Description),
			Priority:          ParsePriority(w.Priority),
			EstimatedDuration: strings.TrimSpace(w.EstimatedDuration),
			Config:            w.Config,
			PersonID:          person,
		})
	}
	return out, errs
}
