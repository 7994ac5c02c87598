// Package alarm drives reminders through their lifecycle: scheduled, fired,
// then either snoozed back to scheduled or dismissed and deleted.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hray3182/NoteAlarm/internal/models"
	"github.com/hray3182/NoteAlarm/internal/scheduler"
	"github.com/hray3182/NoteAlarm/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReminderStore is the dual remote/cache persistence the controller drives.
type ReminderStore interface {
	Create(ctx context.Context, reminder models.Reminder) (models.Reminder, error)
	ListByUser(ctx context.Context, userID string) ([]models.Reminder, bool, error)
	Update(ctx context.Context, userID, id string, patch store.Patch) (models.Reminder, error)
	Delete(ctx context.Context, userID, id string) error
	Cached(ctx context.Context, userID string) []models.Reminder
}

// PermissionGate guards scheduling calls.
type PermissionGate interface {
	Ensure(ctx context.Context) error
	Reset()
}

// Surface presents fired alarms and short messages to the user.
type Surface interface {
	Present(ctx context.Context, reminder models.Reminder, degraded bool) error
	Close(ctx context.Context, reminder models.Reminder) error
	Notify(ctx context.Context, userID, text string) error
}

// CreateResult is the saved reminder plus a warning when no alert will fire.
type CreateResult struct {
	Reminder models.Reminder `json:"reminder"`
	Warning  string          `json:"warning,omitempty"`
}

type Controller struct {
	store     ReminderStore
	scheduler scheduler.Scheduler
	gate      PermissionGate
	registry  *Registry
	matcher   *Matcher
	surface   Surface
	now       func() time.Time
	newID     func() string
	loc       *time.Location
	tracer    trace.Tracer

	busyMu sync.Mutex
	busy   map[string]struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLocation sets the zone times are shown to the user in.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) { c.loc = loc }
}

// WithIDGenerator overrides how new reminder ids are allocated.
func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

func NewController(st ReminderStore, sched scheduler.Scheduler, gate PermissionGate, registry *Registry, surface Surface, opts ...Option) *Controller {
	c := &Controller{
		store:     st,
		scheduler: sched,
		gate:      gate,
		registry:  registry,
		surface:   surface,
		now:       time.Now,
		newID:     uuid.NewString,
		loc:       time.Local,
		tracer:    otel.Tracer("alarm/controller"),
		busy:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.matcher = NewMatcher(registry, st, c.now)
	return c
}

// Registry exposes the live reminder set.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// CreateReminder validates, schedules and persists a new reminder. When the
// facility refuses to schedule, the reminder is still saved without a
// handle and the result carries a warning.
func (c *Controller) CreateReminder(ctx context.Context, userID, title string, fireAt time.Time) (res CreateResult, err error) {
	ctx, span := c.tracer.Start(ctx, "alarm.CreateReminder",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { endSpan(span, err) }()

	title = strings.TrimSpace(title)
	if title == "" {
		return CreateResult{}, ErrInvalidTitle
	}
	if err := models.ValidateFireAt(fireAt, c.now()); err != nil {
		return CreateResult{}, err
	}
	if err := c.gate.Ensure(ctx); err != nil {
		return CreateResult{}, err
	}

	reminder := models.Reminder{
		ID:        c.newID(),
		UserID:    userID,
		Title:     title,
		FireAt:    fireAt,
		CreatedAt: c.now(),
	}
	span.SetAttributes(attribute.String("reminder.id", reminder.ID))

	handle, schedErr := c.scheduler.ScheduleAt(ctx, fireAt, payloadFor(reminder, false))
	switch {
	case schedErr == nil:
		reminder.SchedulerHandle = models.StringPtr(handle)
	case errors.Is(schedErr, scheduler.ErrPastTime):
		return CreateResult{}, schedErr
	default:
		log.Printf("[alarm] scheduling failed for %s, saving without alert: %v", reminder.ID, schedErr)
		c.gate.Reset()
		res.Warning = "Reminder saved, but the alert could not be scheduled and may not fire. Please check notification permissions."
	}

	done := c.registry.Begin(userID)
	defer done()
	saved, err := c.store.Create(ctx, reminder)
	if err != nil {
		if reminder.HasHandle() {
			c.cancel(ctx, reminder.Handle())
		}
		return CreateResult{}, err
	}

	c.registry.Upsert(saved)
	log.Printf("[alarm] created reminder %s for %s at %s (handle=%q)", saved.ID, userID, fireAt.Format(time.RFC3339), saved.Handle())
	res.Reminder = saved
	return res, nil
}

// ListReminders loads the user's reminders and refreshes the live registry.
// cached is true when the list came from the local cache.
func (c *Controller) ListReminders(ctx context.Context, userID string) (reminders []models.Reminder, cached bool, err error) {
	ctx, span := c.tracer.Start(ctx, "alarm.ListReminders",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { endSpan(span, err) }()

	reminders, cached, err = c.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	c.registry.Replace(userID, reminders)
	span.SetAttributes(attribute.Bool("reminders.cached", cached), attribute.Int("reminders.count", len(reminders)))
	return reminders, cached, nil
}

// Find returns one of the user's reminders, loading the list if the live
// registry does not have it.
func (c *Controller) Find(ctx context.Context, userID, id string) (models.Reminder, error) {
	for _, r := range c.registry.List(userID) {
		if r.ID == id {
			return r, nil
		}
	}
	reminders, _, err := c.ListReminders(ctx, userID)
	if err != nil {
		return models.Reminder{}, err
	}
	if r, ok := findByID(reminders, id); ok {
		return r, nil
	}
	return models.Reminder{}, fmt.Errorf("find %s: %w", id, store.ErrNotFound)
}

// OnNotificationDelivered resolves a fired event and presents the alarm.
// It always yields a reminder, real or stand-in.
func (c *Controller) OnNotificationDelivered(ctx context.Context, ev scheduler.Event) Match {
	ctx, span := c.tracer.Start(ctx, "alarm.OnNotificationDelivered",
		trace.WithAttributes(attribute.String("event.id", ev.ID)))
	defer span.End()

	m := c.matcher.Match(ctx, ev)
	span.SetAttributes(attribute.String("reminder.id", m.Reminder.ID), attribute.String("match.via", m.Via))

	if !m.Degraded() {
		c.registry.MarkFired(m.Reminder.ID, m.Reminder.FireAt)
	}
	if err := c.surface.Present(ctx, m.Reminder, m.Degraded()); err != nil {
		log.Printf("[alarm] failed to present %s: %v", m.Reminder.ID, err)
		span.RecordError(err)
	}
	return m
}

// Deliver adapts OnNotificationDelivered to scheduler.Deliverer.
func (c *Controller) Deliver(ctx context.Context, ev scheduler.Event) {
	c.OnNotificationDelivered(ctx, ev)
}

// Dismiss cancels the alert, deletes the reminder and closes the alarm.
// The alarm is closed even if the delete fails.
func (c *Controller) Dismiss(ctx context.Context, reminder models.Reminder) (err error) {
	ctx, span := c.tracer.Start(ctx, "alarm.Dismiss",
		trace.WithAttributes(attribute.String("reminder.id", reminder.ID)))
	defer func() { endSpan(span, err) }()

	if !c.acquire(reminder.ID) {
		return ErrBusy
	}
	defer c.release(reminder.ID)

	if reminder.HasHandle() {
		c.cancel(ctx, reminder.Handle())
	}

	done := c.registry.Begin(reminder.UserID)
	err = c.store.Delete(ctx, reminder.UserID, reminder.ID)
	if err == nil {
		c.registry.Remove(reminder.UserID, reminder.ID)
		log.Printf("[alarm] dismissed and deleted %s", reminder.ID)
	} else {
		log.Printf("[alarm] failed to delete %s after dismiss: %v", reminder.ID, err)
	}
	done()

	c.closeSurface(ctx, reminder)
	if err != nil {
		c.notify(ctx, reminder.UserID, "Alarm dismissed, but the reminder could not be deleted. "+UserMessage(err))
	}
	return err
}

// Snooze reschedules a fired reminder minutes from now, replacing its handle.
// On failure the stored reminder is left as it was and the user is told.
func (c *Controller) Snooze(ctx context.Context, reminder models.Reminder, minutes int) (updated models.Reminder, err error) {
	ctx, span := c.tracer.Start(ctx, "alarm.Snooze",
		trace.WithAttributes(attribute.String("reminder.id", reminder.ID), attribute.Int("snooze.minutes", minutes)))
	defer func() { endSpan(span, err) }()

	if minutes <= 0 {
		return models.Reminder{}, ErrInvalidSnooze
	}
	newFireAt := c.now().Add(time.Duration(minutes) * time.Minute)

	if !c.acquire(reminder.ID) {
		return models.Reminder{}, ErrBusy
	}
	defer c.release(reminder.ID)

	updated, err = c.reschedule(ctx, reminder, newFireAt)
	c.closeSurface(ctx, reminder)
	if err != nil {
		log.Printf("[alarm] failed to snooze %s: %v", reminder.ID, err)
		c.notify(ctx, reminder.UserID, "Failed to snooze reminder. "+UserMessage(err))
		return models.Reminder{}, err
	}

	log.Printf("[alarm] snoozed %s for %d minutes", reminder.ID, minutes)
	c.notify(ctx, reminder.UserID, fmt.Sprintf("⏰ Snoozed. Reminder snoozed for %d minutes. You'll be alerted again at %s",
		minutes, newFireAt.In(c.loc).Format("15:04")))
	return updated, nil
}

func (c *Controller) reschedule(ctx context.Context, reminder models.Reminder, fireAt time.Time) (models.Reminder, error) {
	if err := models.ValidateFireAt(fireAt, c.now()); err != nil {
		return models.Reminder{}, err
	}
	if reminder.HasHandle() {
		c.cancel(ctx, reminder.Handle())
	}
	if err := c.gate.Ensure(ctx); err != nil {
		return models.Reminder{}, err
	}

	handle, err := c.scheduler.ScheduleAt(ctx, fireAt, payloadFor(reminder, true))
	if err != nil {
		if errors.Is(err, scheduler.ErrSchedulingFailed) {
			c.gate.Reset()
		}
		return models.Reminder{}, err
	}

	done := c.registry.Begin(reminder.UserID)
	defer done()
	updated, err := c.store.Update(ctx, reminder.UserID, reminder.ID, store.Patch{
		FireAt:          &fireAt,
		SchedulerHandle: models.StringPtr(handle),
	})
	if err != nil {
		// The store still points at the old handle; keep a single live alert
		// consistent with it.
		c.cancel(ctx, handle)
		return models.Reminder{}, err
	}

	c.registry.Upsert(updated)
	return updated, nil
}

// DeleteReminder removes a scheduled reminder at the user's request.
func (c *Controller) DeleteReminder(ctx context.Context, reminder models.Reminder) (err error) {
	ctx, span := c.tracer.Start(ctx, "alarm.DeleteReminder",
		trace.WithAttributes(attribute.String("reminder.id", reminder.ID)))
	defer func() { endSpan(span, err) }()

	if !c.acquire(reminder.ID) {
		return ErrBusy
	}
	defer c.release(reminder.ID)

	if reminder.HasHandle() {
		c.cancel(ctx, reminder.Handle())
	}
	done := c.registry.Begin(reminder.UserID)
	defer done()
	if err := c.store.Delete(ctx, reminder.UserID, reminder.ID); err != nil {
		return err
	}
	c.registry.Remove(reminder.UserID, reminder.ID)
	log.Printf("[alarm] deleted reminder %s", reminder.ID)
	return nil
}

func (c *Controller) acquire(id string) bool {
	c.busyMu.Lock()
	defer c.busyMu.Unlock()
	if _, ok := c.busy[id]; ok {
		return false
	}
	c.busy[id] = struct{}{}
	return true
}

func (c *Controller) release(id string) {
	c.busyMu.Lock()
	delete(c.busy, id)
	c.busyMu.Unlock()
}

func (c *Controller) cancel(ctx context.Context, handle string) {
	if err := c.scheduler.Cancel(ctx, handle); err != nil {
		log.Printf("[alarm] failed to cancel handle %s: %v", handle, err)
	}
}

func (c *Controller) closeSurface(ctx context.Context, reminder models.Reminder) {
	if err := c.surface.Close(ctx, reminder); err != nil {
		log.Printf("[alarm] failed to close alarm for %s: %v", reminder.ID, err)
	}
}

func (c *Controller) notify(ctx context.Context, userID, text string) {
	if err := c.surface.Notify(ctx, userID, text); err != nil {
		log.Printf("[alarm] failed to notify %s: %v", userID, err)
	}
}

func payloadFor(r models.Reminder, snoozed bool) scheduler.Payload {
	return scheduler.Payload{
		ReminderID:    r.ID,
		ReminderTitle: r.Title,
		UserID:        r.UserID,
		Snoozed:       snoozed,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
