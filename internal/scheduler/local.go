package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	fireAt  time.Time
	payload Payload
}

// Local is an in-process notification facility. Pending alerts live in
// memory only; after a restart they are re-installed by the reconciliation
// pass.
type Local struct {
	mu         sync.Mutex
	pending    map[string]entry
	delivering map[string]time.Time // handles handed to the deliverer but not yet returned
	permission Permission
	maxWait    time.Duration
	notifyCh   chan struct{}
	now        func() time.Time
}

// LocalOption configures a Local facility.
type LocalOption func(*Local)

// WithMaxWait bounds how long the run loop sleeps between checks.
func WithMaxWait(d time.Duration) LocalOption {
	return func(l *Local) { l.maxWait = d }
}

// WithPermission sets the initial permission state.
func WithPermission(p Permission) LocalOption {
	return func(l *Local) { l.permission = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) { l.now = now }
}

func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		pending:    make(map[string]entry),
		delivering: make(map[string]time.Time),
		permission: PermissionUndetermined,
		maxWait:    1 * time.Minute,
		notifyCh:   make(chan struct{}, 1),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) ScheduleAt(_ context.Context, fireAt time.Time, payload Payload) (string, error) {
	l.mu.Lock()
	if !fireAt.After(l.now()) {
		l.mu.Unlock()
		return "", fmt.Errorf("schedule %s at %s: %w", payload.ReminderID, fireAt.Format(time.RFC3339), ErrPastTime)
	}
	if l.permission != PermissionGranted {
		l.mu.Unlock()
		return "", fmt.Errorf("schedule %s: permission %s: %w", payload.ReminderID, l.permission, ErrSchedulingFailed)
	}
	handle := uuid.NewString()
	l.pending[handle] = entry{fireAt: fireAt, payload: payload}
	l.mu.Unlock()

	l.Notify()
	return handle, nil
}

func (l *Local) Cancel(_ context.Context, handle string) error {
	l.mu.Lock()
	delete(l.pending, handle)
	delete(l.delivering, handle)
	l.mu.Unlock()
	return nil
}

// ListScheduled returns pending handles ordered by fire time. A handle stays
// listed until its delivery callback has returned.
func (l *Local) ListScheduled(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	at := make(map[string]time.Time, len(l.pending)+len(l.delivering))
	for h, e := range l.pending {
		at[h] = e.fireAt
	}
	for h, fireAt := range l.delivering {
		at[h] = fireAt
	}

	handles := make([]string, 0, len(at))
	for h := range at {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return at[handles[i]].Before(at[handles[j]])
	})
	return handles, nil
}

// Status implements Authorizer.
func (l *Local) Status(_ context.Context) (Permission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.permission, nil
}

// Request implements Authorizer. An undetermined permission is granted; a
// denied one stays denied until changed through SetPermission.
func (l *Local) Request(_ context.Context) (Permission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.permission == PermissionUndetermined {
		l.permission = PermissionGranted
	}
	return l.permission, nil
}

// SetPermission changes the permission state, e.g. when the user revokes it.
func (l *Local) SetPermission(p Permission) {
	l.mu.Lock()
	l.permission = p
	l.mu.Unlock()
}

// Notify wakes the run loop. Non-blocking if a wake-up is already pending.
func (l *Local) Notify() {
	select {
	case l.notifyCh <- struct{}{}:
	default:
	}
}

// Start runs the delivery loop until ctx is cancelled.
func (l *Local) Start(ctx context.Context, deliver Deliverer) {
	log.Println("[scheduler] started")
	for {
		l.fireDue(ctx, deliver)

		timer := time.NewTimer(l.nextWait())
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("[scheduler] stopped")
			return
		case <-timer.C:
		case <-l.notifyCh:
			timer.Stop()
		}
	}
}

// fireDue moves every entry whose time has come to the delivering set and
// delivers it.
func (l *Local) fireDue(ctx context.Context, deliver Deliverer) int {
	now := l.now()

	l.mu.Lock()
	var due []Event
	for handle, e := range l.pending {
		if !e.fireAt.After(now) {
			due = append(due, newEvent(handle, e.payload, now))
			delete(l.pending, handle)
			l.delivering[handle] = e.fireAt
		}
	}
	l.mu.Unlock()

	for _, ev := range due {
		log.Printf("[scheduler] firing %s for reminder %s", ev.ID, ev.Data[DataReminderID])
		deliver(ctx, ev)

		l.mu.Lock()
		delete(l.delivering, ev.ID)
		l.mu.Unlock()
	}
	return len(due)
}

// nextWait is the time until the earliest pending alert, capped at maxWait.
func (l *Local) nextWait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	wait := l.maxWait
	now := l.now()
	for _, e := range l.pending {
		if d := e.fireAt.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}
