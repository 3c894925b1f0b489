package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kbyrne/coolwatch/internal/models"
	"github.com/kbyrne/coolwatch/internal/policy"
	"github.com/kbyrne/coolwatch/internal/store"
)

// fakeClock is a manually advanced clock for deterministic deadline tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// eventCollector records status changes from the engine.
type eventCollector struct {
	mu     sync.Mutex
	events []models.StatusChange
}

func (c *eventCollector) collect(ev models.StatusChange) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *eventCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *eventCollector) last() models.StatusChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

var t0 = time.Date(2025, 11, 3, 14, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *store.Memory, *fakeClock) {
	t.Helper()
	mem := store.NewMemory()
	clk := newFakeClock(t0)
	cfg := &Config{SiteID: "site-1", SweepInterval: 10 * time.Second}
	return New(mem, clk, cfg), mem, clk
}

func TestStartCooling(t *testing.T) {
	e, mem, _ := newTestEngine(t)

	sess, err := e.StartCooling("Beef stew", "meat", "aoife")
	if err != nil {
		t.Fatalf("StartCooling failed: %v", err)
	}
	if sess.ID == "" {
		t.Error("Session ID should not be empty")
	}
	if sess.Status != models.StatusActive {
		t.Errorf("Expected status active, got %s", sess.Status)
	}
	if !sess.StartedAt.Equal(t0) {
		t.Errorf("Expected startedAt %v, got %v", t0, sess.StartedAt)
	}
	if !sess.SoftDueAt.Equal(t0.Add(90 * time.Minute)) {
		t.Errorf("SoftDueAt not startedAt+90min: %v", sess.SoftDueAt)
	}
	if !sess.HardDueAt.Equal(t0.Add(120 * time.Minute)) {
		t.Errorf("HardDueAt not startedAt+120min: %v", sess.HardDueAt)
	}

	// Local write happened
	got, _ := mem.Get(sess.ID)
	if got == nil {
		t.Fatal("Session not written to local store")
	}
	if got.SiteID != "site-1" {
		t.Errorf("Expected site-1, got %s", got.SiteID)
	}
}

func TestStartCooling_RequiresItemName(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if _, err := e.StartCooling("", "meat", "aoife"); err == nil {
		t.Error("Expected error for empty item name")
	}
}

func TestStartCooling_LocalWriteFails(t *testing.T) {
	e, mem, _ := newTestEngine(t)
	mem.FailPuts = true

	_, err := e.StartCooling("Beef stew", "meat", "aoife")
	if err == nil {
		t.Fatal("Expected error when local write fails")
	}
	if len(e.Sessions()) != 0 {
		t.Error("Failed start must not leave a session in memory")
	}
}

// TestComplianceScenario walks a session through the full two-stage deadline:
// active at T+89, warning at T+91, overdue at T+121, closed at T+125, inert
// thereafter.
func TestComplianceScenario(t *testing.T) {
	e, _, clk := newTestEngine(t)
	var col eventCollector
	e.Subscribe(col.collect)

	sess, err := e.StartCooling("Roast chicken", "poultry", "aoife")
	if err != nil {
		t.Fatalf("StartCooling failed: %v", err)
	}

	e.Sweep(t0.Add(89 * time.Minute))
	if got, _ := e.Get(sess.ID); got.Status != models.StatusActive {
		t.Errorf("T+89min: expected active, got %s", got.Status)
	}
	if col.count() != 0 {
		t.Errorf("T+89min: expected no events, got %d", col.count())
	}

	e.Sweep(t0.Add(91 * time.Minute))
	if got, _ := e.Get(sess.ID); got.Status != models.StatusWarning {
		t.Errorf("T+91min: expected warning, got %s", got.Status)
	}
	if col.count() != 1 {
		t.Fatalf("T+91min: expected 1 event, got %d", col.count())
	}
	if ev := col.last(); ev.Old != models.StatusActive || ev.New != models.StatusWarning {
		t.Errorf("Expected active->warning, got %s->%s", ev.Old, ev.New)
	}

	e.Sweep(t0.Add(121 * time.Minute))
	if got, _ := e.Get(sess.ID); got.Status != models.StatusOverdue {
		t.Errorf("T+121min: expected overdue, got %s", got.Status)
	}
	if col.count() != 2 {
		t.Fatalf("T+121min: expected 2 events, got %d", col.count())
	}
	if ev := col.last(); ev.Old != models.StatusWarning || ev.New != models.StatusOverdue {
		t.Errorf("Expected warning->overdue, got %s->%s", ev.Old, ev.New)
	}

	clk.Set(t0.Add(125 * time.Minute))
	temp := 3.0
	closed, err := e.CloseCooling(sess.ID, &temp)
	if err != nil {
		t.Fatalf("CloseCooling failed: %v", err)
	}
	if closed.Status != models.StatusClosed {
		t.Errorf("Expected closed, got %s", closed.Status)
	}
	if closed.ClosedAt == nil || !closed.ClosedAt.Equal(t0.Add(125*time.Minute)) {
		t.Error("ClosedAt not stamped with close time")
	}
	if closed.ClosingTemperature == nil || *closed.ClosingTemperature != 3.0 {
		t.Error("Closing temperature not recorded")
	}
	eventsAfterClose := col.count()

	e.Sweep(t0.Add(200 * time.Minute))
	if got, _ := e.Get(sess.ID); got.Status != models.StatusClosed {
		t.Errorf("T+200min: terminal status recomputed to %s", got.Status)
	}
	if col.count() != eventsAfterClose {
		t.Errorf("T+200min: sweep emitted events for a terminal session")
	}
}

func TestSweepIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t)
	var col eventCollector
	e.Subscribe(col.collect)

	if _, err := e.StartCooling("Soup", "soup", "brid"); err != nil {
		t.Fatalf("StartCooling failed: %v", err)
	}

	now := t0.Add(95 * time.Minute)
	e.Sweep(now)
	if col.count() != 1 {
		t.Fatalf("Expected 1 event after first sweep, got %d", col.count())
	}

	e.Sweep(now)
	if col.count() != 1 {
		t.Errorf("Second sweep with same now emitted extra events: %d", col.count())
	}
}

func TestCloseUnknownSession(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if _, err := e.CloseCooling("no-such-id", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCloseDiscardRace(t *testing.T) {
	e, _, _ := newTestEngine(t)

	sess, err := e.StartCooling("Lasagne", "meat", "aoife")
	if err != nil {
		t.Fatalf("StartCooling failed: %v", err)
	}

	var wg sync.WaitGroup
	var closeErr, discardErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, closeErr = e.CloseCooling(sess.ID, nil)
	}()
	go func() {
		defer wg.Done()
		_, discardErr = e.DiscardCooling(sess.ID)
	}()
	wg.Wait()

	// Exactly one winner; the loser sees ErrAlreadyTerminal.
	if (closeErr == nil) == (discardErr == nil) {
		t.Fatalf("Expected exactly one winner, close=%v discard=%v", closeErr, discardErr)
	}
	loser := closeErr
	if loser == nil {
		loser = discardErr
	}
	if !errors.Is(loser, store.ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal for loser, got %v", loser)
	}

	got, _ := e.Get(sess.ID)
	if !got.Status.Terminal() {
		t.Errorf("Expected terminal status, got %s", got.Status)
	}
}

func TestDoubleCloseReportsAlreadyTerminal(t *testing.T) {
	e, _, _ := newTestEngine(t)

	sess, _ := e.StartCooling("Gravy", "sauce", "brid")
	if _, err := e.CloseCooling(sess.ID, nil); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if _, err := e.CloseCooling(sess.ID, nil); !errors.Is(err, store.ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal on double close, got %v", err)
	}
	if _, err := e.DiscardCooling(sess.ID); !errors.Is(err, store.ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal on discard after close, got %v", err)
	}
}

func TestTerminalEventsEmitted(t *testing.T) {
	e, _, _ := newTestEngine(t)
	var col eventCollector
	e.Subscribe(col.collect)

	sess, _ := e.StartCooling("Rice", "grain", "aoife")
	if _, err := e.DiscardCooling(sess.ID); err != nil {
		t.Fatalf("DiscardCooling failed: %v", err)
	}

	if col.count() != 1 {
		t.Fatalf("Expected 1 event for discard, got %d", col.count())
	}
	if ev := col.last(); ev.New != models.StatusDiscarded {
		t.Errorf("Expected discarded event, got %s", ev.New)
	}
}

func TestSweepStorageErrorIsolated(t *testing.T) {
	e, mem, _ := newTestEngine(t)
	var col eventCollector
	e.Subscribe(col.collect)

	if _, err := e.StartCooling("Stew", "meat", "aoife"); err != nil {
		t.Fatalf("StartCooling failed: %v", err)
	}
	if _, err := e.StartCooling("Soup", "soup", "brid"); err != nil {
		t.Fatalf("StartCooling failed: %v", err)
	}

	// Durable writes fail, but the sweep still recomputes every session and
	// publishes every transition.
	mem.FailPuts = true
	e.Sweep(t0.Add(100 * time.Minute))

	if col.count() != 2 {
		t.Errorf("Expected 2 events despite storage errors, got %d", col.count())
	}
	for _, sess := range e.Sessions() {
		if sess.Status != models.StatusWarning {
			t.Errorf("Expected warning in memory, got %s", sess.Status)
		}
	}
}

func TestRehydrate(t *testing.T) {
	mem := store.NewMemory()
	clk := newFakeClock(t0)
	cfg := &Config{SiteID: "site-1", SweepInterval: 10 * time.Second}

	// A previous run left one open and one closed session behind.
	first := New(mem, clk, cfg)
	open, _ := first.StartCooling("Stock", "sauce", "aoife")
	done, _ := first.StartCooling("Curry", "meat", "aoife")
	if _, err := first.CloseCooling(done.ID, nil); err != nil {
		t.Fatalf("CloseCooling failed: %v", err)
	}

	// App reload mid-session: a fresh engine picks both up.
	e := New(mem, clk, cfg)
	if err := e.Rehydrate(); err != nil {
		t.Fatalf("Rehydrate failed: %v", err)
	}
	if len(e.Sessions()) != 2 {
		t.Fatalf("Expected 2 rehydrated sessions, got %d", len(e.Sessions()))
	}

	// The open one is swept against the current rule; the closed one is inert.
	var col eventCollector
	e.Subscribe(col.collect)
	e.Sweep(t0.Add(130 * time.Minute))

	got, _ := e.Get(open.ID)
	if got.Status != models.StatusOverdue {
		t.Errorf("Expected rehydrated open session overdue, got %s", got.Status)
	}
	got, _ = e.Get(done.ID)
	if got.Status != models.StatusClosed {
		t.Errorf("Expected rehydrated closed session untouched, got %s", got.Status)
	}
}

func TestAbsorb(t *testing.T) {
	e, mem, _ := newTestEngine(t)

	local, _ := e.StartCooling("Stew", "meat", "aoife")
	if _, err := e.CloseCooling(local.ID, nil); err != nil {
		t.Fatalf("CloseCooling failed: %v", err)
	}

	soft, hard := policy.DueTimes(t0)
	remoteOnly := models.CoolingSession{
		ID: "remote-1", SiteID: "site-1", ItemName: "Chowder",
		Status: models.StatusWarning, StartedAt: t0, SoftDueAt: soft, HardDueAt: hard,
	}
	// Remote still thinks the closed session is active.
	staleRemote := models.CoolingSession{
		ID: local.ID, SiteID: "site-1", ItemName: "Stew",
		Status: models.StatusActive, StartedAt: t0, SoftDueAt: soft, HardDueAt: hard,
	}

	e.Absorb([]models.CoolingSession{remoteOnly, staleRemote})

	// Remote-only session adopted and persisted locally.
	got, _ := e.Get("remote-1")
	if got == nil || got.Status != models.StatusWarning {
		t.Error("Remote-only session not absorbed")
	}
	if stored, _ := mem.Get("remote-1"); stored == nil {
		t.Error("Absorbed session not written to local store")
	}

	// Terminal local state wins over stale non-terminal remote.
	got, _ = e.Get(local.ID)
	if got.Status != models.StatusClosed {
		t.Errorf("Stale remote overwrote terminal state: %s", got.Status)
	}
}

func TestSweepLoopRuns(t *testing.T) {
	mem := store.NewMemory()
	clk := newFakeClock(t0.Add(95 * time.Minute))
	cfg := &Config{SiteID: "site-1", SweepInterval: 20 * time.Millisecond}
	e := New(mem, clk, cfg)

	soft, hard := policy.DueTimes(t0)
	seed := &models.CoolingSession{
		ID: "seed", SiteID: "site-1", ItemName: "Broth",
		Status: models.StatusActive, StartedAt: t0, SoftDueAt: soft, HardDueAt: hard,
	}
	if err := mem.Put(seed); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := e.Rehydrate(); err != nil {
		t.Fatalf("Rehydrate failed: %v", err)
	}

	var col eventCollector
	e.Subscribe(col.collect)

	e.Start()
	defer e.Stop()

	deadline := time.After(5 * time.Second)
	for col.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for sweep loop to fire")
		case <-time.After(10 * time.Millisecond):
		}
	}

	got, _ := e.Get("seed")
	if got.Status != models.StatusWarning {
		t.Errorf("Expected warning from ticker sweep, got %s", got.Status)
	}
}
