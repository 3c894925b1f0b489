package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbyrne/coolwatch/internal/clock"
	"github.com/kbyrne/coolwatch/internal/models"
	"github.com/kbyrne/coolwatch/internal/policy"
	"github.com/kbyrne/coolwatch/internal/store"
)

// Subscriber receives status-change notifications. Callbacks run on the
// engine's goroutine and must not block.
type Subscriber func(models.StatusChange)

// Pusher is an optional hook invoked after a successful local mutation to
// trigger a best-effort remote push. It must not block the caller.
type Pusher func(*models.CoolingSession)

// Engine owns the authoritative in-memory session set for one site. All
// mutation goes through its operations; the sweep timer, the control plane
// and the reconciler never touch the map directly.
type Engine struct {
	local store.SessionStore
	clk   clock.Clock
	cfg   *Config

	mu       sync.Mutex
	sessions map[string]*models.CoolingSession
	subs     []Subscriber
	pusher   Pusher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new engine. Call Rehydrate before Start to reload sessions
// persisted by a previous run.
func New(local store.SessionStore, clk clock.Clock, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		local:    local,
		clk:      clk,
		cfg:      cfg,
		sessions: make(map[string]*models.CoolingSession),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetPusher wires the best-effort remote push hook.
func (e *Engine) SetPusher(p Pusher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pusher = p
}

// Subscribe registers a listener for status changes. Within a single session,
// events arrive in transition order; across sessions the order is unspecified.
func (e *Engine) Subscribe(sub Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, sub)
}

// Rehydrate loads the site's sessions from the local store into memory.
// Terminal sessions are kept: they remain visible as audit records and the
// sweep skips them.
func (e *Engine) Rehydrate() error {
	sessions, err := e.local.ListSite(e.cfg.SiteID)
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range sessions {
		sess := sessions[i]
		e.sessions[sess.ID] = sess.Clone()
	}
	log.Printf("Rehydrated %d sessions for site %s", len(sessions), e.cfg.SiteID)
	return nil
}

// Start begins the recurring sweep.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.sweepLoop()
	log.Printf("Engine started (sweep every %s)", e.cfg.SweepInterval)
}

// Stop gracefully stops the sweep loop.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
	log.Println("Engine stopped")
}

func (e *Engine) sweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(e.clk.Now())
		}
	}
}

// StartCooling creates a session and writes it to the local store. The local
// write must succeed; the remote push afterwards is fire-and-forget.
func (e *Engine) StartCooling(itemName, category, staffName string) (*models.CoolingSession, error) {
	if itemName == "" {
		return nil, fmt.Errorf("item name is required")
	}

	now := e.clk.Now()
	soft, hard := policy.DueTimes(now)
	sess := &models.CoolingSession{
		ID:        uuid.New().String(),
		SiteID:    e.cfg.SiteID,
		ItemName:  itemName,
		Category:  category,
		StaffName: staffName,
		Status:    models.StatusActive,
		StartedAt: now,
		SoftDueAt: soft,
		HardDueAt: hard,
	}

	e.mu.Lock()
	if err := e.local.Put(sess); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("start cooling: local write: %w", err)
	}
	e.sessions[sess.ID] = sess
	pusher := e.pusher
	e.mu.Unlock()

	if pusher != nil {
		pusher(sess.Clone())
	}
	return sess.Clone(), nil
}

// CloseCooling transitions a session to closed, stamping the closing time and
// the optional probe temperature. Returns store.ErrNotFound for an unknown id
// and store.ErrAlreadyTerminal if the session is already closed or discarded.
func (e *Engine) CloseCooling(id string, temp *float64) (*models.CoolingSession, error) {
	return e.terminal(id, models.StatusClosed, temp)
}

// DiscardCooling transitions a session to discarded. First writer wins: a
// concurrent close and discard resolve to exactly one terminal state and the
// loser observes store.ErrAlreadyTerminal.
func (e *Engine) DiscardCooling(id string) (*models.CoolingSession, error) {
	return e.terminal(id, models.StatusDiscarded, nil)
}

func (e *Engine) terminal(id string, status models.SessionStatus, temp *float64) (*models.CoolingSession, error) {
	e.mu.Lock()

	sess, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return nil, store.ErrNotFound
	}
	if sess.Status.Terminal() {
		e.mu.Unlock()
		return nil, store.ErrAlreadyTerminal
	}

	now := e.clk.Now()
	updated, err := e.local.CloseTerminal(id, status, now, temp)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	old := sess.Status
	e.sessions[id] = updated.Clone()

	ev := models.StatusChange{Session: updated.Clone(), Old: old, New: status, At: now}
	subs := append([]Subscriber(nil), e.subs...)
	pusher := e.pusher
	e.mu.Unlock()

	for _, sub := range subs {
		sub(ev)
	}
	if pusher != nil {
		pusher(updated.Clone())
	}
	return updated.Clone(), nil
}

// Sweep re-evaluates every non-terminal session against the deadline policy
// and publishes one event per changed session. A storage error for one
// session is logged and does not abort the sweep for the others. Safe to call
// concurrently with Start/Close/Discard: the terminal check happens under the
// same lock as the status write, so a session closed mid-sweep is never
// dragged back to a non-terminal status.
func (e *Engine) Sweep(now time.Time) {
	e.mu.Lock()

	var events []models.StatusChange
	for _, sess := range e.sessions {
		if sess.Status.Terminal() {
			continue
		}
		next := policy.Evaluate(now, sess)
		if next == sess.Status {
			continue
		}

		old := sess.Status
		sess.Status = next
		if err := e.local.Put(sess.Clone()); err != nil {
			// The in-memory transition stands; durability catches up on the
			// next successful write.
			log.Printf("Sweep: persisting %s (%s): %v", sess.ID, sess.ItemName, err)
		}
		events = append(events, models.StatusChange{Session: sess.Clone(), Old: old, New: next, At: now})
	}
	subs := append([]Subscriber(nil), e.subs...)
	e.mu.Unlock()

	for _, ev := range events {
		for _, sub := range subs {
			sub(ev)
		}
	}
}

// Get returns a copy of a session, or store.ErrNotFound.
func (e *Engine) Get(id string) (*models.CoolingSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sess.Clone(), nil
}

// Sessions returns a snapshot of all sessions for the site, newest first.
func (e *Engine) Sessions() []models.CoolingSession {
	e.mu.Lock()
	out := make([]models.CoolingSession, 0, len(e.sessions))
	for _, sess := range e.sessions {
		out = append(out, *sess.Clone())
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// MarkSynced stamps the last successful remote write, in memory and in the
// local store.
func (e *Engine) MarkSynced(id string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sess, ok := e.sessions[id]; ok {
		t := at
		sess.SyncedAt = &t
	}
	if err := e.local.MarkSynced(id, at); err != nil {
		log.Printf("MarkSynced %s: %v", id, err)
	}
}

// Absorb merges remote-authoritative sessions into the engine. A remote copy
// never moves a session backward: terminal local state wins over non-terminal
// remote state, and a lower-severity remote status never replaces a
// higher-severity local one (the next sweep recomputes anyway).
func (e *Engine) Absorb(remote []models.CoolingSession) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range remote {
		r := remote[i]
		cur, ok := e.sessions[r.ID]
		if ok {
			if cur.Status.Terminal() && !r.Status.Terminal() {
				continue
			}
			if r.Status.Severity() < cur.Status.Severity() {
				continue
			}
		}
		e.sessions[r.ID] = r.Clone()
		if err := e.local.Put(r.Clone()); err != nil {
			log.Printf("Absorb: persisting %s: %v", r.ID, err)
		}
	}
}
