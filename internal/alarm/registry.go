package alarm

import (
	"sort"
	"sync"
	"time"

	"github.com/hray3182/NoteAlarm/internal/models"
)

// Registry is the live, in-memory view of every loaded user's reminders.
// Delivery callbacks read it at match time, so they always see the current
// set rather than whatever existed when the callback was registered.
//
// Every change to a user's list, and every store write bracketed by Begin,
// bumps that user's version. A list read earlier from the store can then be
// applied with ReplaceIfUnchanged without undoing a newer write.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string][]models.Reminder
	fired    map[string]time.Time // reminder id -> fire time that was delivered
	versions map[string]uint64
	inflight map[string]int // store writes in progress per user
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string][]models.Reminder),
		fired:    make(map[string]time.Time),
		versions: make(map[string]uint64),
		inflight: make(map[string]int),
	}
}

// Replace swaps in the user's full list.
func (r *Registry) Replace(userID string, reminders []models.Reminder) {
	list := cloneAll(reminders)

	r.mu.Lock()
	r.byUser[userID] = list
	r.versions[userID]++
	r.mu.Unlock()
}

// Begin marks a store write for the user as in progress. The returned func
// ends it; both bump the user's version.
func (r *Registry) Begin(userID string) (done func()) {
	r.mu.Lock()
	r.inflight[userID]++
	r.versions[userID]++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.inflight[userID]--
			if r.inflight[userID] <= 0 {
				delete(r.inflight, userID)
			}
			r.versions[userID]++
			r.mu.Unlock()
		})
	}
}

// Versions returns the current version of every user that has one.
func (r *Registry) Versions() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]uint64, len(r.versions))
	for u, v := range r.versions {
		out[u] = v
	}
	return out
}

// ReplaceIfUnchanged swaps in the user's list only if no write is in progress
// and the version still equals since. apply, when not nil, runs before the
// lock is released so a cache rewrite cannot interleave with a newer write.
func (r *Registry) ReplaceIfUnchanged(userID string, reminders []models.Reminder, since uint64, apply func()) bool {
	list := cloneAll(reminders)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[userID] > 0 || r.versions[userID] != since {
		return false
	}
	r.byUser[userID] = list
	if apply != nil {
		apply()
	}
	return true
}

// Upsert inserts or replaces one reminder, keeping the list ordered by fire time.
func (r *Registry) Upsert(rem models.Reminder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byUser[rem.UserID]
	next := make([]models.Reminder, 0, len(list)+1)
	for _, existing := range list {
		if existing.ID != rem.ID {
			next = append(next, existing)
		}
	}
	next = append(next, rem.Clone())
	sort.SliceStable(next, func(i, j int) bool { return next[i].FireAt.Before(next[j].FireAt) })
	r.byUser[rem.UserID] = next
	r.versions[rem.UserID]++
}

// Remove drops a reminder and forgets that it fired.
func (r *Registry) Remove(userID, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byUser[userID]
	next := make([]models.Reminder, 0, len(list))
	for _, existing := range list {
		if existing.ID != id {
			next = append(next, existing)
		}
	}
	r.byUser[userID] = next
	r.versions[userID]++
	delete(r.fired, id)
}

// List returns a copy of the user's reminders.
func (r *Registry) List(userID string) []models.Reminder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Reminder, 0, len(r.byUser[userID]))
	for _, rem := range r.byUser[userID] {
		out = append(out, rem.Clone())
	}
	return out
}

// Users returns the ids of every user with a loaded list.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// FindByHandle looks across all users for the reminder holding handle.
func (r *Registry) FindByHandle(handle string) (models.Reminder, bool) {
	if handle == "" {
		return models.Reminder{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, list := range r.byUser {
		if rem, ok := findByHandle(list, handle); ok {
			return rem, true
		}
	}
	return models.Reminder{}, false
}

// FindByID looks across all users for the reminder with id.
func (r *Registry) FindByID(id string) (models.Reminder, bool) {
	if id == "" {
		return models.Reminder{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, list := range r.byUser {
		if rem, ok := findByID(list, id); ok {
			return rem, true
		}
	}
	return models.Reminder{}, false
}

// MarkFired records that the alert for id at fireAt has been delivered.
func (r *Registry) MarkFired(id string, fireAt time.Time) {
	r.mu.Lock()
	r.fired[id] = fireAt
	r.mu.Unlock()
}

// Fired reports whether the alert for id at fireAt has already been delivered.
func (r *Registry) Fired(id string, fireAt time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.fired[id]
	return ok && at.Equal(fireAt)
}

func findByHandle(list []models.Reminder, handle string) (models.Reminder, bool) {
	for _, rem := range list {
		if rem.Handle() == handle {
			return rem.Clone(), true
		}
	}
	return models.Reminder{}, false
}

func findByID(list []models.Reminder, id string) (models.Reminder, bool) {
	for _, rem := range list {
		if rem.ID == id {
			return rem.Clone(), true
		}
	}
	return models.Reminder{}, false
}

func cloneAll(reminders []models.Reminder) []models.Reminder {
	list := make([]models.Reminder, 0, len(reminders))
	for _, rem := range reminders {
		list = append(list, rem.Clone())
	}
	return list
}
