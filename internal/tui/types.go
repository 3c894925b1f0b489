package tui

import "time"

// SessionRow is one line on the kitchen board.
type SessionRow struct {
	ID         string
	ItemName   string
	Category   string
	StaffName  string
	Status     string
	StartedAt  time.Time
	SoftDueAt  time.Time
	HardDueAt  time.Time
	ClosedAt   *time.Time
	ClosingTmp *float64
}

// SessionDetail carries the full record plus its audit trail for the
// detail pane.
type SessionDetail struct {
	Session SessionRow
	Audit   []AuditRow
}

// AuditRow is one audit trail entry rendered in the detail pane.
type AuditRow struct {
	Action    string
	Outcome   string
	Details   string
	Timestamp time.Time
}

// HealthInfo is the daemon health snapshot shown in the header.
type HealthInfo struct {
	OK      bool
	DB      string
	Version string
}
