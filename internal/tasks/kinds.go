package tasks

import (
	"fmt"
	"strings"

	"github.com/ent0n29/outreach/internal/reliability"
)

// Kind selects how a task is validated, summarized and executed.
type Kind string

const (
	KindEmail    Kind = "email"
	KindPhone    Kind = "phone"
	KindCalendar Kind = "calendar"
	KindMessage  Kind = "message"
)

var Kinds = []Kind{KindEmail, KindPhone, KindCalendar, KindMessage}

// ParseKind returns UnsupportedKind for anything outside Kinds. Matching is
// exact: "EMAIL" is not an email task.
func ParseKind(raw string) (Kind, error) {
	k := Kind(raw)
	if !k.Known() {
		return "", reliability.Newf(reliability.KindUnsupportedKind, "Unsupported task type: %s", raw)
	}
	return k, nil
}

func (k Kind) Known() bool {
	switch k {
	case KindEmail, KindPhone, KindCalendar, KindMessage:
		return true
	default:
		return false
	}
}

// RequiredFields lists the options a config of this kind must carry.
func (k Kind) RequiredFields() []string {
	switch k {
	case KindEmail:
		return []string{"recipient", "subject", "message"}
	case KindPhone:
		return []string{"recipient", "message"}
	case KindMessage:
		return []string{"channel", "message"}
	case KindCalendar:
		return []string{"title", "date", "time", "duration", "attendees"}
	default:
		return nil
	}
}

// Validate checks cfg against the kind's required options.
func (k Kind) Validate(cfg Config) error {
	if !k.Known() {
		return reliability.Newf(reliability.KindUnsupportedKind, "Unsupported task type: %s", k)
	}
	var missing []string
	for _, field := range k.RequiredFields() {
		if cfg.Get(field) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return reliability.Newf(reliability.KindBadRequest, "%s config missing %s", k, strings.Join(missing, ", "))
	}
	if k == KindCalendar && len(SplitAttendees(cfg.Get("attendees"))) == 0 {
		return reliability.New(reliability.KindBadRequest, "calendar config needs at least one attendee")
	}
	return nil
}

// Summary renders a one-line description of what executing cfg will do.
func (k Kind) Summary(cfg Config) string {
	switch k {
	case KindEmail:
		return fmt.Sprintf("Email %s: %q", orDash(cfg.Get("recipient")), cfg.Get("subject"))
	case KindPhone:
		return fmt.Sprintf("Call %s", orDash(cfg.Get("recipient")))
	case KindMessage:
		return fmt.Sprintf("Message on %s (%d chars)", orDash(cfg.Get("channel")), len(cfg.Get("message")))
	case KindCalendar:
		n := len(SplitAttendees(cfg.Get("attendees")))
		return fmt.Sprintf("Meeting %q on %s %s for %s with %d attendee(s)",
			cfg.Get("title"), orDash(cfg.Get("date")), cfg.Get("time"), orDash(cfg.Get("duration")), n)
	default:
		return string(k)
	}
}

// SplitAttendees splits a comma separated list, trimming entries and
// dropping empty ones.
func SplitAttendees(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
