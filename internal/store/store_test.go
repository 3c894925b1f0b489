package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kbyrne/coolwatch/internal/models"
	"github.com/kbyrne/coolwatch/internal/policy"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestSessionCRUD(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	sess := newTestSession("site-1")
	if err := s.Put(sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Get
	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected session, got nil")
	}
	if got.ItemName != "Beef stew" {
		t.Errorf("Expected item name 'Beef stew', got %s", got.ItemName)
	}
	if !got.SoftDueAt.Equal(sess.SoftDueAt) || !got.HardDueAt.Equal(sess.HardDueAt) {
		t.Error("Due times not persisted exactly")
	}
	if got.ClosedAt != nil || got.ClosingTemperature != nil || got.SyncedAt != nil {
		t.Error("Nullable fields should be nil for an open session")
	}

	// Unknown id
	got, err = s.Get("no-such-id")
	if err != nil {
		t.Fatalf("Get unknown failed: %v", err)
	}
	if got != nil {
		t.Error("Expected nil for unknown id")
	}

	// List
	sessions, err := s.ListSite("site-1")
	if err != nil {
		t.Fatalf("ListSite failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("Expected 1 session, got %d", len(sessions))
	}

	sessions, err = s.ListSite("other-site")
	if err != nil {
		t.Fatalf("ListSite failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Expected 0 sessions for other site, got %d", len(sessions))
	}
}

func TestListOpenExcludesTerminal(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	open := newTestSession("site-1")
	done := newTestSession("site-1")
	if err := s.Put(open); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(done); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	temp := 3.5
	if _, err := s.CloseTerminal(done.ID, models.StatusClosed, time.Now().UTC(), &temp); err != nil {
		t.Fatalf("CloseTerminal failed: %v", err)
	}

	sessions, err := s.ListOpen("site-1")
	if err != nil {
		t.Fatalf("ListOpen failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 open session, got %d", len(sessions))
	}
	if sessions[0].ID != open.ID {
		t.Errorf("Expected open session %s, got %s", open.ID, sessions[0].ID)
	}
}

func TestCloseTerminal(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	sess := newTestSession("site-1")
	if err := s.Put(sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	closedAt := time.Now().UTC().Truncate(time.Second)
	temp := 2.5
	got, err := s.CloseTerminal(sess.ID, models.StatusClosed, closedAt, &temp)
	if err != nil {
		t.Fatalf("CloseTerminal failed: %v", err)
	}
	if got.Status != models.StatusClosed {
		t.Errorf("Expected status closed, got %s", got.Status)
	}
	if got.ClosedAt == nil || !got.ClosedAt.Equal(closedAt) {
		t.Error("ClosedAt not stamped")
	}
	if got.ClosingTemperature == nil || *got.ClosingTemperature != 2.5 {
		t.Error("ClosingTemperature not stamped")
	}

	// Verify persisted
	got, _ = s.Get(sess.ID)
	if got.Status != models.StatusClosed {
		t.Errorf("Status not persisted, got %s", got.Status)
	}
}

func TestCloseTerminal_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	_, err := s.CloseTerminal("no-such-id", models.StatusDiscarded, time.Now().UTC(), nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCloseTerminal_FirstWriterWins(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	sess := newTestSession("site-1")
	if err := s.Put(sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	now := time.Now().UTC()
	if _, err := s.CloseTerminal(sess.ID, models.StatusClosed, now, nil); err != nil {
		t.Fatalf("First terminal transition failed: %v", err)
	}

	// Discard after close loses; status stays closed.
	_, err := s.CloseTerminal(sess.ID, models.StatusDiscarded, now, nil)
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal, got %v", err)
	}

	got, _ := s.Get(sess.ID)
	if got.Status != models.StatusClosed {
		t.Errorf("Expected status closed after losing discard, got %s", got.Status)
	}
}

func TestCloseTerminal_RejectsNonTerminal(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	sess := newTestSession("site-1")
	if err := s.Put(sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := s.CloseTerminal(sess.ID, models.StatusWarning, time.Now().UTC(), nil); err == nil {
		t.Error("Expected error for non-terminal target status")
	}
}

func TestMarkSynced(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	sess := newTestSession("site-1")
	if err := s.Put(sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := s.MarkSynced(sess.ID, at); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	got, _ := s.Get(sess.ID)
	if got.SyncedAt == nil || !got.SyncedAt.Equal(at) {
		t.Error("SyncedAt not stamped")
	}
}

func TestAuditTrail(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	entry, err := s.WriteAudit("session.start", "abc123", "success", "sess-1", "Beef stew")
	if err != nil {
		t.Fatalf("WriteAudit failed: %v", err)
	}
	if entry.ID == "" {
		t.Error("Audit entry ID should not be empty")
	}

	entries, err := s.ListAudit("sess-1")
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(entries))
	}

	entries, err = s.ListAudit("")
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry unfiltered, got %d", len(entries))
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestMemoryTerminalGuard(t *testing.T) {
	m := NewMemory()

	sess := newTestSession("site-1")
	if err := m.Put(sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	now := time.Now().UTC()
	if _, err := m.CloseTerminal(sess.ID, models.StatusDiscarded, now, nil); err != nil {
		t.Fatalf("CloseTerminal failed: %v", err)
	}
	_, err := m.CloseTerminal(sess.ID, models.StatusClosed, now, nil)
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal, got %v", err)
	}
	if _, err := m.CloseTerminal("missing", models.StatusClosed, now, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	got, _ := m.Get(sess.ID)
	if got.Status != models.StatusDiscarded {
		t.Errorf("Expected discarded, got %s", got.Status)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()

	sess := newTestSession("site-1")
	if err := m.Put(sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, _ := m.Get(sess.ID)
	got.Status = models.StatusOverdue

	again, _ := m.Get(sess.ID)
	if again.Status != models.StatusActive {
		t.Error("Mutating a returned session must not affect the store")
	}
}

func newTestSession(siteID string) *models.CoolingSession {
	startedAt := time.Now().UTC().Truncate(time.Second)
	soft, hard := policy.DueTimes(startedAt)
	return &models.CoolingSession{
		ID:        uuid.New().String(),
		SiteID:    siteID,
		ItemName:  "Beef stew",
		Category:  "meat",
		StaffName: "aoife",
		Status:    models.StatusActive,
		StartedAt: startedAt,
		SoftDueAt: soft,
		HardDueAt: hard,
	}
}

func newTestStore(t *testing.T) *SQLite {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
