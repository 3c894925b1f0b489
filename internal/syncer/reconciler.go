// Package syncer keeps the local-first session set eventually consistent
// with the remote HQ backend. Offline operation is a supported mode, not a
// failure mode: every error here is logged and retried, never surfaced to
// the staff-facing surfaces.
package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kbyrne/coolwatch/internal/audit"
	"github.com/kbyrne/coolwatch/internal/clock"
	"github.com/kbyrne/coolwatch/internal/engine"
	"github.com/kbyrne/coolwatch/internal/models"
)

// Remote is the durable HQ store. List returns every session the backend
// holds for the site; Put upserts one session.
type Remote interface {
	List(ctx context.Context, siteID string) ([]models.CoolingSession, error)
	Put(ctx context.Context, sess *models.CoolingSession) error
}

// Reconciler bridges the engine's local-first session set and the remote
// store. It is the only component that talks to both.
type Reconciler struct {
	engine *engine.Engine
	remote Remote
	clk    clock.Clock
	trail  *audit.TrailWriter
	siteID string

	// Retry knobs, overridable in tests.
	PushAttempts int
	PushBackoff  time.Duration
	Interval     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a reconciler. trail may be nil.
func New(e *engine.Engine, remote Remote, clk clock.Clock, trail *audit.TrailWriter, siteID string, interval time.Duration) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		engine:       e,
		remote:       remote,
		clk:          clk,
		trail:        trail,
		siteID:       siteID,
		PushAttempts: 3,
		PushBackoff:  2 * time.Second,
		Interval:     interval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins the background reconcile loop. Each tick is the opportunistic
// "are we online again" probe; a successful pass clears any backlog.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		// Startup pass first, so a rebooted kiosk converges immediately.
		if err := r.Reconcile(r.ctx); err != nil {
			log.Printf("Reconcile: %v (will retry)", err)
		}

		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				if err := r.Reconcile(r.ctx); err != nil {
					log.Printf("Reconcile: %v (will retry)", err)
				}
			}
		}
	}()
	log.Printf("Reconciler started (retry every %s)", r.Interval)
}

// Stop gracefully stops the reconcile loop.
func (r *Reconciler) Stop() {
	r.cancel()
	r.wg.Wait()
	log.Println("Reconciler stopped")
}

// Reconcile merges the local session set with the remote store.
//
// Rules:
//   - remote unreachable: local is untouched; unreachable is not data loss.
//   - remote non-empty: remote is authoritative for the ids it contains,
//     unioned with local-only sessions, which get pushed.
//   - remote empty while local has entries: treated as a transient read (the
//     observed failure mode is reads racing backend startup, not legitimate
//     mass deletion), so local is kept and the next tick retries. This is a
//     documented workaround, not a general conflict-resolution rule.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	local := r.engine.Sessions()

	remote, err := r.remote.List(ctx, r.siteID)
	if err != nil {
		return err
	}

	if len(remote) == 0 && len(local) > 0 {
		log.Printf("Reconcile: remote returned empty while %d local sessions exist, keeping local", len(local))
		return nil
	}

	if len(remote) > 0 {
		r.engine.Absorb(remote)
	}

	for _, sess := range localOnly(local, remote) {
		sess := sess
		r.push(ctx, &sess)
	}

	if r.trail != nil {
		r.trail.Record("sync.reconcile", map[string]int{"local": len(local), "remote": len(remote)}, "success", "", "")
	}
	return nil
}

// localOnly returns the local sessions the remote does not know about.
func localOnly(local, remote []models.CoolingSession) []models.CoolingSession {
	seen := make(map[string]bool, len(remote))
	for i := range remote {
		seen[remote[i].ID] = true
	}

	var out []models.CoolingSession
	for i := range local {
		if !seen[local[i].ID] {
			out = append(out, local[i])
		}
	}
	return out
}

// PushAsync pushes one session to the remote store without blocking the
// caller. Wired as the engine's pusher hook, so every successful
// start/close/discard triggers it. A no-op once Stop has begun: wg.Add must
// not race wg.Wait, and the session is picked up by the next daemon run's
// startup reconcile anyway.
func (r *Reconciler) PushAsync(sess *models.CoolingSession) {
	if r.ctx.Err() != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.push(r.ctx, sess)
	}()
}

// push attempts a bounded number of remote writes, then gives up until the
// next reconcile tick.
func (r *Reconciler) push(ctx context.Context, sess *models.CoolingSession) {
	for attempt := 1; attempt <= r.PushAttempts; attempt++ {
		err := r.remote.Put(ctx, sess)
		if err == nil {
			r.engine.MarkSynced(sess.ID, r.clk.Now())
			if r.trail != nil {
				r.trail.Record("sync.push", map[string]string{"session_id": sess.ID}, "success", sess.ID, "")
			}
			return
		}

		log.Printf("Push %s attempt %d/%d: %v", sess.ID, attempt, r.PushAttempts, err)
		if attempt == r.PushAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.PushBackoff):
		}
	}
}
