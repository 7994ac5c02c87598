package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/hray3182/NoteAlarm/internal/models"
)

var (
	// ErrPastTime is returned for fire times that are not strictly in the future.
	ErrPastTime = models.ErrPastTime
	// ErrSchedulingFailed is returned when the facility refuses or errors.
	ErrSchedulingFailed = errors.New("scheduling failed")
	// ErrPermissionDenied is returned by Gate when alerts are not permitted.
	ErrPermissionDenied = errors.New("notification permission denied")
)

// Alert titles shown by the facility.
const (
	AlertTitle        = "🔔 Reminder Alert"
	AlertTitleSnoozed = "🔔 Reminder Alert (Snoozed)"
)

// Keys of Event.Data.
const (
	DataReminderID    = "reminderId"
	DataReminderTitle = "reminderTitle"
	DataUserID        = "userId"
)

// VibrationPattern is attached to every alert, in milliseconds.
var VibrationPattern = []int{0, 250, 250, 250}

// Payload is what the app hands to the facility when scheduling an alert.
// ReminderID is embedded so a delivered event can be matched even when the
// facility's own handle is unknown to the app.
type Payload struct {
	ReminderID    string
	ReminderTitle string
	UserID        string
	Snoozed       bool
}

// Title returns the alert headline for the payload.
func (p Payload) Title() string {
	if p.Snoozed {
		return AlertTitleSnoozed
	}
	return AlertTitle
}

// Event is raised by the facility when a scheduled alert fires.
type Event struct {
	ID       string // facility handle
	Title    string
	Body     string
	Data     map[string]string
	Sound    string
	Priority string
	FiredAt  time.Time
}

// Deliverer receives fired events.
type Deliverer func(ctx context.Context, ev Event)

// Scheduler is the contract over a notification facility that can raise an
// alert at a future instant.
type Scheduler interface {
	ScheduleAt(ctx context.Context, fireAt time.Time, payload Payload) (string, error)
	// Cancel is best effort; unknown handles are not an error.
	Cancel(ctx context.Context, handle string) error
	// ListScheduled is for diagnostics only.
	ListScheduled(ctx context.Context) ([]string, error)
}

func newEvent(handle string, p Payload, firedAt time.Time) Event {
	return Event{
		ID:    handle,
		Title: p.Title(),
		Body:  p.ReminderTitle,
		Data: map[string]string{
			DataReminderID:    p.ReminderID,
			DataReminderTitle: p.ReminderTitle,
			DataUserID:        p.UserID,
		},
		Sound:    "default",
		Priority: "high",
		FiredAt:  firedAt,
	}
}
