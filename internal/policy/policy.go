// Package policy encodes the FSAI SC3 two-stage cooling deadline rule.
//
// The rule is the one piece of regulatory-critical logic in the product, so it
// lives here as pure functions with no I/O and no engine dependency. Tests run
// it against literal timestamps.
package policy

import (
	"time"

	"github.com/kbyrne/coolwatch/internal/models"
)

const (
	// SoftLimit is the warning threshold measured from the start of cooling.
	SoftLimit = 90 * time.Minute
	// HardLimit is the violation threshold measured from the start of cooling.
	HardLimit = 120 * time.Minute
)

// DueTimes derives the two deadlines from the cooling start time. They are
// computed once at session creation and never independently mutated.
func DueTimes(startedAt time.Time) (softDueAt, hardDueAt time.Time) {
	return startedAt.Add(SoftLimit), startedAt.Add(HardLimit)
}

// Evaluate maps the current time to a compliance status. Terminal statuses
// are authoritative and returned unchanged.
func Evaluate(now time.Time, s *models.CoolingSession) models.SessionStatus {
	if s.Status.Terminal() {
		return s.Status
	}
	switch {
	case !now.Before(s.HardDueAt):
		return models.StatusOverdue
	case !now.Before(s.SoftDueAt):
		return models.StatusWarning
	default:
		return models.StatusActive
	}
}
