package console

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ent0n29/outreach/internal/streamclient"
	"github.com/ent0n29/outreach/internal/tasks"
)

func RenderQueue(w io.Writer, queue []tasks.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Kind", "Title", "Priority", "State", "Attempts", "Last"})
	for _, t := range queue {
		tw.AppendRow(table.Row{t.ID, t.Kind, t.Title, t.Priority, t.State, t.Attempts, lastOutcome(t)})
	}
	tw.Render()
}

func RenderContacts(w io.Writer, contacts []ContactSummary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"", "Contact", "Open", "Total"})
	for _, c := range contacts {
		marker := ""
		if c.Active {
			marker = "*"
		}
		tw.AppendRow(table.Row{marker, c.ID, c.Open, c.Total})
	}
	tw.Render()
}

// RenderTask prints one task with its options and transition history.
func RenderTask(w io.Writer, t tasks.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(fmt.Sprintf("%s  %s", t.ID, t.Title))
	tw.AppendRow(table.Row{"kind", t.Kind})
	tw.AppendRow(table.Row{"state", t.State})
	tw.AppendRow(table.Row{"contact", t.ContactID})
	tw.AppendRow(table.Row{"workflow", t.WorkflowID})
	tw.AppendRow(table.Row{"priority", t.Priority})
	tw.AppendRow(table.Row{"attempts", t.Attempts})
	if t.Description.Description != "" {
		tw.AppendRow(table.Row{"description", t.Description.Description})
	}
	tw.AppendSeparator()
	for _, k := range t.Config.Keys() {
		tw.AppendRow(table.Row{"config." + k, t.Config[k]})
	}
	if t.State == tasks.StateEditing {
		for _, k := range t.Draft.Keys() {
			tw.AppendRow(table.Row{"draft." + k, t.Draft[k]})
		}
	}
	if t.LastResult != nil {
		tw.AppendSeparator()
		tw.AppendRow(table.Row{"result", t.LastResult.Message})
		for _, k := range sortedKeys(t.LastResult.Data) {
			tw.AppendRow(table.Row{"data." + k, fmt.Sprint(t.LastResult.Data[k])})
		}
	}
	if t.LastError != nil {
		tw.AppendSeparator()
		tw.AppendRow(table.Row{"error", fmt.Sprintf("%s: %s", t.LastError.Kind, t.LastError.Message)})
		tw.AppendRow(table.Row{"retryable", t.LastError.Retryable})
	}
	if len(t.History) > 0 {
		tw.AppendSeparator()
		for _, tr := range t.History {
			tw.AppendRow(table.Row{tr.At.Format(time.TimeOnly), fmt.Sprintf("%s -> %s (%s)", tr.From, tr.To, tr.Event)})
		}
	}
	tw.Render()
}

func RenderTelemetry(w io.Writer, frames []streamclient.Message) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Received", "Type", "Frame"})
	for _, f := range frames {
		typ := string(f.Type)
		if f.Data == nil {
			typ = "(raw)"
		}
		tw.AppendRow(table.Row{f.ReceivedAt.Format(time.TimeOnly), typ, truncate(f.Raw, 80)})
	}
	tw.Render()
}

func lastOutcome(t tasks.Task) string {
	switch {
	case t.State == tasks.StateFailed && t.LastError != nil:
		return truncate(t.LastError.Message, 40)
	case t.LastResult != nil:
		return truncate(t.LastResult.Message, 40)
	default:
		return ""
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
