package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kbyrne/coolwatch/internal/models"
)

// SQLite is the durable local store on the kiosk device.
type SQLite struct {
	db *sql.DB
}

// New creates a new SQLite store and runs migrations.
func New(dbPath string) (*SQLite, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cooling_sessions (
		id TEXT PRIMARY KEY,
		site_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		category TEXT,
		staff_name TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		started_at DATETIME NOT NULL,
		soft_due_at DATETIME NOT NULL,
		hard_due_at DATETIME NOT NULL,
		closed_at DATETIME,
		closing_temperature REAL,
		synced_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS audit_trail (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		session_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_site ON cooling_sessions(site_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON cooling_sessions(status);
	CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_trail(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

const sessionColumns = `id, site_id, item_name, category, staff_name, status, started_at, soft_due_at, hard_due_at, closed_at, closing_temperature, synced_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.CoolingSession, error) {
	sess := &models.CoolingSession{}
	var closedAt, syncedAt sql.NullTime
	var temp sql.NullFloat64

	err := row.Scan(&sess.ID, &sess.SiteID, &sess.ItemName, &sess.Category, &sess.StaffName,
		&sess.Status, &sess.StartedAt, &sess.SoftDueAt, &sess.HardDueAt, &closedAt, &temp, &syncedAt)
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		sess.ClosedAt = &closedAt.Time
	}
	if temp.Valid {
		sess.ClosingTemperature = &temp.Float64
	}
	if syncedAt.Valid {
		sess.SyncedAt = &syncedAt.Time
	}
	return sess, nil
}

// Get retrieves a session by ID. Returns (nil, nil) if the id is unknown.
func (s *SQLite) Get(id string) (*models.CoolingSession, error) {
	sess, err := scanSession(s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM cooling_sessions WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

// ListSite returns every session for a site, newest first. Terminal sessions
// are included: they are permanent audit records, never deleted.
func (s *SQLite) ListSite(siteID string) ([]models.CoolingSession, error) {
	return s.list(`SELECT `+sessionColumns+` FROM cooling_sessions WHERE site_id = ? ORDER BY started_at DESC`, siteID)
}

// ListOpen returns the non-terminal sessions for a site.
func (s *SQLite) ListOpen(siteID string) ([]models.CoolingSession, error) {
	return s.list(
		`SELECT `+sessionColumns+` FROM cooling_sessions WHERE site_id = ? AND status NOT IN (?, ?) ORDER BY started_at DESC`,
		siteID, models.StatusClosed, models.StatusDiscarded,
	)
}

func (s *SQLite) list(query string, args ...interface{}) ([]models.CoolingSession, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.CoolingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// Put inserts or replaces a session record.
func (s *SQLite) Put(sess *models.CoolingSession) error {
	var closedAt, syncedAt interface{}
	var temp interface{}
	if sess.ClosedAt != nil {
		closedAt = *sess.ClosedAt
	}
	if sess.ClosingTemperature != nil {
		temp = *sess.ClosingTemperature
	}
	if sess.SyncedAt != nil {
		syncedAt = *sess.SyncedAt
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO cooling_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.SiteID, sess.ItemName, sess.Category, sess.StaffName, sess.Status,
		sess.StartedAt, sess.SoftDueAt, sess.HardDueAt, closedAt, temp, syncedAt,
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// CloseTerminal atomically transitions a session to closed or discarded.
// The already-terminal check and the write happen in one transaction, so a
// concurrent close and discard resolve to exactly one winner.
func (s *SQLite) CloseTerminal(id string, status models.SessionStatus, closedAt time.Time, temp *float64) (*models.CoolingSession, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("status %q is not terminal", status)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	sess, err := scanSession(tx.QueryRow(
		`SELECT `+sessionColumns+` FROM cooling_sessions WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if sess.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	var tempVal interface{}
	if temp != nil {
		tempVal = *temp
	}
	if _, err := tx.Exec(
		`UPDATE cooling_sessions SET status = ?, closed_at = ?, closing_temperature = ? WHERE id = ?`,
		status, closedAt, tempVal, id,
	); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	sess.Status = status
	sess.ClosedAt = &closedAt
	sess.ClosingTemperature = temp
	return sess, nil
}

// MarkSynced stamps the last successful remote write time.
func (s *SQLite) MarkSynced(id string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE cooling_sessions SET synced_at = ? WHERE id = ?`, at, id)
	return err
}

// WriteAudit appends an entry to the audit trail.
func (s *SQLite) WriteAudit(action, inputsHash, outcome, sessionID, details string) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		SessionID:  sessionID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO audit_trail (id, action, inputs_hash, outcome, session_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.InputsHash, entry.Outcome, entry.SessionID, entry.Details, entry.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}
	return entry, nil
}

// ListAudit returns audit entries, optionally filtered by session, newest first.
func (s *SQLite) ListAudit(sessionID string) ([]models.AuditEntry, error) {
	query := `SELECT id, action, inputs_hash, outcome, session_id, details, timestamp FROM audit_trail`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var sid, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &sid, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.SessionID = sid.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
