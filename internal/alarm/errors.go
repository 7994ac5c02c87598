package alarm

import (
	"errors"

	"github.com/hray3182/NoteAlarm/internal/scheduler"
	"github.com/hray3182/NoteAlarm/internal/store"
)

var (
	// ErrBusy is returned when another transition for the same reminder is in flight.
	ErrBusy = errors.New("reminder is busy")
	// ErrInvalidTitle is returned for blank titles.
	ErrInvalidTitle = errors.New("reminder title is required")
	// ErrInvalidSnooze is returned for non-positive snooze durations.
	ErrInvalidSnooze = errors.New("snooze must be at least one minute")
)

// SettingsHint tells the user how to re-enable alerts.
const SettingsHint = "Please enable notifications in your settings to receive reminder alerts. Without this permission, reminders will not work."

// UserMessage turns an error from the controller into text for the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTitle):
		return "Please enter a reminder title."
	case errors.Is(err, scheduler.ErrPastTime), errors.Is(err, ErrInvalidSnooze):
		return "Please select a future date and time."
	case errors.Is(err, scheduler.ErrPermissionDenied):
		return "Notification permission required. " + SettingsHint
	case errors.Is(err, scheduler.ErrSchedulingFailed):
		return "Failed to schedule the reminder alert. Please check notification permissions."
	case errors.Is(err, store.ErrNotFound):
		return "Reminder not found."
	case errors.Is(err, store.ErrRemoteUnavailable):
		return "Could not reach the server. Please try again."
	case errors.Is(err, ErrBusy):
		return "This reminder is already being updated."
	default:
		return "Something went wrong. Please try again."
	}
}
