package alarm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hray3182/NoteAlarm/internal/models"
	"github.com/hray3182/NoteAlarm/internal/scheduler"
	"github.com/hray3182/NoteAlarm/internal/store"
)

// Source lists every stored reminder across users.
type Source interface {
	ListAll(ctx context.Context) ([]models.Reminder, error)
}

// CacheRefresher rewrites a user's cached list wholesale.
type CacheRefresher interface {
	Refresh(ctx context.Context, userID string, reminders []models.Reminder)
}

// ResyncReport summarises one reconciliation pass.
type ResyncReport struct {
	Users       int
	Skipped     int // users written to during the pass; picked up next time
	Rescheduled int
	Delivered   int
	Failed      int
}

// Reconciler periodically brings the facility back in line with the remote
// store. It re-installs alerts lost by the in-memory facility (for example
// after a restart) and delivers ones whose time passed while nothing was
// running.
type Reconciler struct {
	source   Source
	cache    CacheRefresher
	ctrl     *Controller
	interval time.Duration
}

func NewReconciler(source Source, cache CacheRefresher, ctrl *Controller, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{source: source, cache: cache, ctrl: ctrl, interval: interval}
}

// Run performs a pass immediately and then on every interval until ctx is
// cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	log.Printf("[reconcile] started (interval=%s)", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if rep, err := r.Pass(ctx); err != nil {
			log.Printf("[reconcile] pass failed: %v", err)
		} else if rep.Rescheduled > 0 || rep.Delivered > 0 || rep.Failed > 0 || rep.Skipped > 0 {
			log.Printf("[reconcile] users=%d skipped=%d rescheduled=%d delivered=%d failed=%d",
				rep.Users, rep.Skipped, rep.Rescheduled, rep.Delivered, rep.Failed)
		}

		select {
		case <-ctx.Done():
			log.Println("[reconcile] stopped")
			return
		case <-ticker.C:
		}
	}
}

// Pass runs one reconciliation.
func (r *Reconciler) Pass(ctx context.Context) (ResyncReport, error) {
	var rep ResyncReport

	// Versions are taken before the read so any write that lands while the
	// snapshot is in flight shows up as a changed version.
	versions := r.ctrl.registry.Versions()
	all, err := r.source.ListAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("%w: list all: %v", store.ErrRemoteUnavailable, err)
	}
	handles, err := r.ctrl.scheduler.ListScheduled(ctx)
	if err != nil {
		return rep, fmt.Errorf("list scheduled: %w", err)
	}
	live := make(map[string]bool, len(handles))
	for _, h := range handles {
		live[h] = true
	}

	byUser := make(map[string][]models.Reminder)
	for _, rem := range all {
		byUser[rem.UserID] = append(byUser[rem.UserID], rem)
	}
	// Users whose last reminder disappeared still need their view cleared.
	for _, u := range r.ctrl.registry.Users() {
		if _, ok := byUser[u]; !ok {
			byUser[u] = nil
		}
	}
	stale := make(map[string]bool)
	for userID, list := range byUser {
		applied := r.ctrl.registry.ReplaceIfUnchanged(userID, list, versions[userID], func() {
			r.cache.Refresh(ctx, userID, list)
		})
		if !applied {
			stale[userID] = true
			rep.Skipped++
		}
	}
	rep.Users = len(byUser)

	now := r.ctrl.now()
	permitted := true
	for _, rem := range all {
		if stale[rem.UserID] {
			continue
		}
		if rem.HasHandle() && live[rem.Handle()] {
			continue
		}

		if !rem.FireAt.After(now) {
			if r.ctrl.registry.Fired(rem.ID, rem.FireAt) {
				continue
			}
			r.ctrl.OnNotificationDelivered(ctx, missedEvent(rem, now))
			rep.Delivered++
			continue
		}

		if !permitted {
			continue
		}
		if err := r.ctrl.gate.Ensure(ctx); err != nil {
			log.Printf("[reconcile] not rescheduling: %v", err)
			permitted = false
			continue
		}
		if err := r.reinstall(ctx, rem); err != nil {
			log.Printf("[reconcile] failed to reinstall %s: %v", rem.ID, err)
			rep.Failed++
			continue
		}
		rep.Rescheduled++
	}
	return rep, nil
}

// reinstall schedules a fresh alert for a future reminder that has no live
// handle and records the new handle.
func (r *Reconciler) reinstall(ctx context.Context, rem models.Reminder) error {
	if !r.ctrl.acquire(rem.ID) {
		return ErrBusy
	}
	defer r.ctrl.release(rem.ID)

	handle, err := r.ctrl.scheduler.ScheduleAt(ctx, rem.FireAt, payloadFor(rem, false))
	if err != nil {
		return err
	}
	done := r.ctrl.registry.Begin(rem.UserID)
	defer done()
	updated, err := r.ctrl.store.Update(ctx, rem.UserID, rem.ID, store.Patch{SchedulerHandle: models.StringPtr(handle)})
	if err != nil {
		r.ctrl.cancel(ctx, handle)
		return err
	}
	r.ctrl.registry.Upsert(updated)
	log.Printf("[reconcile] reinstalled %s at %s (handle=%s)", rem.ID, rem.FireAt.Format(time.RFC3339), handle)
	return nil
}

// missedEvent builds the event the facility would have raised for rem.
func missedEvent(rem models.Reminder, now time.Time) scheduler.Event {
	return scheduler.Event{
		ID:    rem.Handle(),
		Title: scheduler.AlertTitle,
		Body:  rem.Title,
		Data: map[string]string{
			scheduler.DataReminderID:    rem.ID,
			scheduler.DataReminderTitle: rem.Title,
			scheduler.DataUserID:        rem.UserID,
		},
		Sound:    "default",
		Priority: "high",
		FiredAt:  now,
	}
}
