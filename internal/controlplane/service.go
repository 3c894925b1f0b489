// Package controlplane provides the HTTP API and service layer consumed by
// the kiosk UI and the voice-command handler.
package controlplane

import (
	"github.com/kbyrne/coolwatch/internal/audit"
	"github.com/kbyrne/coolwatch/internal/engine"
	"github.com/kbyrne/coolwatch/internal/models"
	"github.com/kbyrne/coolwatch/internal/store"
)

// Service provides the control plane business logic.
type Service struct {
	engine *engine.Engine
	trail  *audit.TrailWriter
	audits store.AuditStore
}

// NewService creates a new control plane service.
func NewService(e *engine.Engine, trail *audit.TrailWriter, audits store.AuditStore) *Service {
	return &Service{
		engine: e,
		trail:  trail,
		audits: audits,
	}
}

// StartCooling starts monitoring a new batch.
func (s *Service) StartCooling(itemName, category, staffName string) (*models.CoolingSession, error) {
	sess, err := s.engine.StartCooling(itemName, category, staffName)
	if err != nil {
		s.trail.Record("session.start", map[string]string{"item": itemName, "staff": staffName}, "error", "", err.Error())
		return nil, err
	}

	s.trail.Record("session.start", map[string]string{"item": itemName, "staff": staffName}, "success", sess.ID, itemName)
	return sess, nil
}

// CloseCooling records the batch as refrigerated.
func (s *Service) CloseCooling(id string, temp *float64) (*models.CoolingSession, error) {
	sess, err := s.engine.CloseCooling(id, temp)
	if err != nil {
		s.trail.Record("session.close", map[string]string{"session_id": id}, "error", id, err.Error())
		return nil, err
	}

	s.trail.Record("session.close", map[string]interface{}{"session_id": id, "temperature": temp}, "success", id, "")
	return sess, nil
}

// DiscardCooling records the batch as binned.
func (s *Service) DiscardCooling(id string) (*models.CoolingSession, error) {
	sess, err := s.engine.DiscardCooling(id)
	if err != nil {
		s.trail.Record("session.discard", map[string]string{"session_id": id}, "error", id, err.Error())
		return nil, err
	}

	s.trail.Record("session.discard", map[string]string{"session_id": id}, "success", id, "")
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *Service) GetSession(id string) (*models.CoolingSession, error) {
	return s.engine.Get(id)
}

// ListSessions returns the site's sessions, optionally filtered by status.
func (s *Service) ListSessions(status string) []models.CoolingSession {
	sessions := s.engine.Sessions()
	if status == "" {
		return sessions
	}

	var out []models.CoolingSession
	for _, sess := range sessions {
		if string(sess.Status) == status {
			out = append(out, sess)
		}
	}
	return out
}

// SessionAudit returns the audit trail for one session.
func (s *Service) SessionAudit(id string) ([]models.AuditEntry, error) {
	return s.audits.ListAudit(id)
}
