package alarm

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/hray3182/NoteAlarm/internal/models"
	"github.com/hray3182/NoteAlarm/internal/scheduler"
)

// PlaceholderTitle is shown when a delivered event carries no usable title.
const PlaceholderTitle = "Reminder"

// How a delivered event was resolved.
const (
	MatchedByHandle  = "handle"
	MatchedByPayload = "payload"
	MatchedDegraded  = "degraded"
)

// Match is the outcome of resolving a delivered event.
type Match struct {
	Reminder models.Reminder
	Via      string
}

// Degraded reports whether the reminder was synthesised from the event.
func (m Match) Degraded() bool {
	return m.Via == MatchedDegraded
}

// CacheReader returns the user's locally cached reminders.
type CacheReader interface {
	Cached(ctx context.Context, userID string) []models.Reminder
}

// Matcher resolves delivered events to reminders. It never fails: an event
// that matches nothing yields a stand-in built from the event itself.
type Matcher struct {
	registry *Registry
	cache    CacheReader
	now      func() time.Time
}

func NewMatcher(registry *Registry, cache CacheReader, now func() time.Time) *Matcher {
	if now == nil {
		now = time.Now
	}
	return &Matcher{registry: registry, cache: cache, now: now}
}

// Match tries, in order, the event's own handle, the reminder id embedded in
// the payload, and finally builds a degraded stand-in. The live registry is
// consulted first and the local cache second.
func (m *Matcher) Match(ctx context.Context, ev scheduler.Event) Match {
	reminderID := ev.Data[scheduler.DataReminderID]

	if rem, ok := m.registry.FindByHandle(ev.ID); ok {
		return Match{Reminder: rem, Via: MatchedByHandle}
	}
	if rem, ok := m.registry.FindByID(reminderID); ok {
		return Match{Reminder: rem, Via: MatchedByPayload}
	}

	if userID := ev.Data[scheduler.DataUserID]; userID != "" && m.cache != nil {
		cached := m.cache.Cached(ctx, userID)
		if ev.ID != "" {
			if rem, ok := findByHandle(cached, ev.ID); ok {
				return Match{Reminder: rem, Via: MatchedByHandle}
			}
		}
		if reminderID != "" {
			if rem, ok := findByID(cached, reminderID); ok {
				return Match{Reminder: rem, Via: MatchedByPayload}
			}
		}
	}

	stand := m.standIn(ev)
	log.Printf("[alarm] unresolved event %s, showing stand-in %s", ev.ID, stand.ID)
	return Match{Reminder: stand, Via: MatchedDegraded}
}

func (m *Matcher) standIn(ev scheduler.Event) models.Reminder {
	id := ev.Data[scheduler.DataReminderID]
	if id == "" {
		id = ev.ID
	}

	title := strings.TrimSpace(ev.Data[scheduler.DataReminderTitle])
	if title == "" {
		title = strings.TrimSpace(ev.Body)
	}
	if title == "" {
		title = PlaceholderTitle
	}

	now := m.now()
	stand := models.Reminder{
		ID:        id,
		UserID:    ev.Data[scheduler.DataUserID],
		Title:     title,
		FireAt:    now,
		CreatedAt: now,
	}
	if ev.ID != "" {
		stand.SchedulerHandle = models.StringPtr(ev.ID)
	}
	return stand
}
