// Package models defines the core domain types for coolwatch.
package models

import "time"

// SessionStatus represents the current compliance state of a cooling session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusWarning   SessionStatus = "warning"
	StatusOverdue   SessionStatus = "overdue"
	StatusClosed    SessionStatus = "closed"
	StatusDiscarded SessionStatus = "discarded"
)

// Terminal reports whether the status is final. Terminal sessions are never
// recomputed by the sweep.
func (s SessionStatus) Terminal() bool {
	return s == StatusClosed || s == StatusDiscarded
}

// Severity orders the non-terminal statuses: active < warning < overdue.
// Terminal statuses sort above all non-terminal ones so a transition into
// them is always "forward".
func (s SessionStatus) Severity() int {
	switch s {
	case StatusActive:
		return 0
	case StatusWarning:
		return 1
	case StatusOverdue:
		return 2
	case StatusClosed, StatusDiscarded:
		return 3
	}
	return -1
}

// CoolingSession tracks one batch of cooked food cooling toward refrigeration.
type CoolingSession struct {
	ID        string        `json:"id"`
	SiteID    string        `json:"site_id"`
	ItemName  string        `json:"item_name"`
	Category  string        `json:"category"`
	StaffName string        `json:"staff_name"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	SoftDueAt time.Time     `json:"soft_due_at"`
	HardDueAt time.Time     `json:"hard_due_at"`

	ClosedAt           *time.Time `json:"closed_at,omitempty"`
	ClosingTemperature *float64   `json:"closing_temperature,omitempty"`
	SyncedAt           *time.Time `json:"synced_at,omitempty"`
}

// Clone returns a copy safe to hand to subscribers and API responses.
func (c *CoolingSession) Clone() *CoolingSession {
	out := *c
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		out.ClosedAt = &t
	}
	if c.ClosingTemperature != nil {
		v := *c.ClosingTemperature
		out.ClosingTemperature = &v
	}
	if c.SyncedAt != nil {
		t := *c.SyncedAt
		out.SyncedAt = &t
	}
	return &out
}

// StatusChange is published whenever a session's status transitions.
type StatusChange struct {
	Session *CoolingSession `json:"session"`
	Old     SessionStatus   `json:"old"`
	New     SessionStatus   `json:"new"`
	At      time.Time       `json:"at"`
}

// AuditEntry is one record in the compliance audit trail.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	SessionID  string    `json:"session_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
