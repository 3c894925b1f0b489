// Package alert delivers overdue/warning notifications on the kiosk device.
package alert

import (
	"log"

	"github.com/kbyrne/coolwatch/internal/models"
)

// Notifier consumes status-change events. Implementations must not block and
// must never propagate failures into the engine.
type Notifier interface {
	Notify(ev models.StatusChange)
}

// LogNotifier writes every escalation to the daemon log. Always wired.
type LogNotifier struct{}

func (LogNotifier) Notify(ev models.StatusChange) {
	switch ev.New {
	case models.StatusWarning:
		log.Printf("ALERT: %s (%s) past soft limit, refrigerate soon", ev.Session.ItemName, ev.Session.ID)
	case models.StatusOverdue:
		log.Printf("ALERT: %s (%s) past hard limit, FSAI SC3 violation", ev.Session.ItemName, ev.Session.ID)
	}
}

// Escalation reports whether the transition crossed into a state staff must
// react to. Terminal transitions clear alerts and are not escalations.
func Escalation(ev models.StatusChange) bool {
	return ev.New == models.StatusWarning || ev.New == models.StatusOverdue
}
