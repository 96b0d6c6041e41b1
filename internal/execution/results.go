package execution

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/outreach/internal/tasks"
)

func successMessage(kind tasks.Kind, cfg tasks.Config) string {
	switch kind {
	case tasks.KindEmail:
		return fmt.Sprintf("Email sent successfully to %s", cfg.Get("recipient"))
	case tasks.KindMessage:
		return fmt.Sprintf("Message sent via %s", cfg.Get("channel"))
	case tasks.KindPhone:
		return fmt.Sprintf("Call to %s completed", cfg.Get("recipient"))
	case tasks.KindCalendar:
		return fmt.Sprintf("Calendar event %q scheduled", cfg.Get("title"))
	default:
		return "Task executed"
	}
}

// resultData shapes the per-kind payload returned to the caller.
func resultData(kind tasks.Kind, cfg tasks.Config, now time.Time) map[string]any {
	switch kind {
	case tasks.KindEmail:
		return map[string]any{
			"recipient":      cfg.Get("recipient"),
			"subject":        cfg.Get("subject"),
			"messageLength":  len([]rune(cfg["message"])),
			"deliveryStatus": "delivered",
		}
	case tasks.KindMessage:
		return map[string]any{
			"channel":   cfg.Get("channel"),
			"message":   cfg["message"],
			"timestamp": now.Format(time.RFC3339),
		}
	case tasks.KindPhone:
		return map[string]any{
			"recipient": cfg.Get("recipient"),
			"duration":  fmt.Sprintf("%dm %02ds", 2+rand.Intn(8), rand.Intn(60)),
			"outcome":   "connected",
			"notes":     fmt.Sprintf("Discussed: %s", cfg.Get("message")),
		}
	case tasks.KindCalendar:
		eventID := "evt_" + uuid.NewString()
		return map[string]any{
			"eventId":     eventID,
			"title":       cfg.Get("title"),
			"date":        cfg.Get("date"),
			"time":        cfg.Get("time"),
			"attendees":   tasks.SplitAttendees(cfg.Get("attendees")),
			"meetingLink": "https://meet.example.com/" + eventID,
		}
	default:
		return map[string]any{}
	}
}
