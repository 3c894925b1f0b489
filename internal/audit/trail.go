// Package audit writes the compliance audit trail for coolwatch.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"

	"github.com/kbyrne/coolwatch/internal/models"
	"github.com/kbyrne/coolwatch/internal/store"
)

// TrailWriter records every state-mutating compliance action so an inspector
// can reconstruct what happened on the device.
type TrailWriter struct {
	store store.AuditStore
}

// NewTrailWriter creates a new audit trail writer.
func NewTrailWriter(s store.AuditStore) *TrailWriter {
	return &TrailWriter{store: s}
}

// Record writes an audit entry for a state-mutating action.
func (w *TrailWriter) Record(action string, inputs interface{}, outcome, sessionID, details string) (*models.AuditEntry, error) {
	return w.store.WriteAudit(action, hashInputs(inputs), outcome, sessionID, details)
}

// RecordStatusChange appends a sweep transition to the trail. Errors are
// logged, never propagated: a failing audit write must not stop the engine.
func (w *TrailWriter) RecordStatusChange(ev models.StatusChange) {
	details := string(ev.Old) + " -> " + string(ev.New)
	if _, err := w.Record("session.status", map[string]interface{}{
		"old": ev.Old,
		"new": ev.New,
		"at":  ev.At,
	}, "success", ev.Session.ID, details); err != nil {
		log.Printf("Audit: recording status change for %s: %v", ev.Session.ID, err)
	}
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
