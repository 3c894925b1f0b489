// Package store provides persistence for cooling sessions: a SQLite-backed
// durable store and an in-memory store with identical semantics for
// offline-first caching and tests.
package store

import (
	"errors"
	"time"

	"github.com/kbyrne/coolwatch/internal/models"
)

// Sentinel errors shared by all store implementations.
var (
	ErrNotFound        = errors.New("session not found")
	ErrAlreadyTerminal = errors.New("session already closed or discarded")
)

// SessionStore is the persistence contract consumed by the engine and the
// reconciler. Get returns (nil, nil) for an unknown id; CloseTerminal is the
// only path to a terminal status and performs its already-terminal check
// atomically with the write.
type SessionStore interface {
	Get(id string) (*models.CoolingSession, error)
	ListSite(siteID string) ([]models.CoolingSession, error)
	ListOpen(siteID string) ([]models.CoolingSession, error)
	Put(s *models.CoolingSession) error
	CloseTerminal(id string, status models.SessionStatus, closedAt time.Time, temp *float64) (*models.CoolingSession, error)
	MarkSynced(id string, at time.Time) error
}

// AuditStore appends to the compliance audit trail.
type AuditStore interface {
	WriteAudit(action, inputsHash, outcome, sessionID, details string) (*models.AuditEntry, error)
	ListAudit(sessionID string) ([]models.AuditEntry, error)
}
