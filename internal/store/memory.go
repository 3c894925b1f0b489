package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbyrne/coolwatch/internal/models"
)

// Memory is an in-memory SessionStore. It backs the offline-first cache when
// the durable store is not yet reachable and doubles as a test fixture. The
// semantics mirror SQLite exactly, including the atomic terminal check.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*models.CoolingSession
	audit    []models.AuditEntry

	// FailPuts forces Put to fail; used to exercise storage-error paths.
	FailPuts bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*models.CoolingSession)}
}

// Ping always succeeds; memory is never unreachable.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) Get(id string) (*models.CoolingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return sess.Clone(), nil
}

func (m *Memory) ListSite(siteID string) ([]models.CoolingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.CoolingSession
	for _, sess := range m.sessions {
		if sess.SiteID == siteID {
			out = append(out, *sess.Clone())
		}
	}
	return out, nil
}

func (m *Memory) ListOpen(siteID string) ([]models.CoolingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.CoolingSession
	for _, sess := range m.sessions {
		if sess.SiteID == siteID && !sess.Status.Terminal() {
			out = append(out, *sess.Clone())
		}
	}
	return out, nil
}

func (m *Memory) Put(sess *models.CoolingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPuts {
		return errPutFailed
	}
	m.sessions[sess.ID] = sess.Clone()
	return nil
}

var errPutFailed = &putError{}

type putError struct{}

func (*putError) Error() string { return "memory store: put failed" }

func (m *Memory) CloseTerminal(id string, status models.SessionStatus, closedAt time.Time, temp *float64) (*models.CoolingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	sess.Status = status
	sess.ClosedAt = &closedAt
	sess.ClosingTemperature = temp
	return sess.Clone(), nil
}

func (m *Memory) MarkSynced(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[id]; ok {
		sess.SyncedAt = &at
	}
	return nil
}

func (m *Memory) WriteAudit(action, inputsHash, outcome, sessionID, details string) (*models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := models.AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		SessionID:  sessionID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
	m.audit = append(m.audit, entry)
	return &entry, nil
}

func (m *Memory) ListAudit(sessionID string) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		if sessionID == "" || m.audit[i].SessionID == sessionID {
			out = append(out, m.audit[i])
		}
	}
	return out, nil
}
