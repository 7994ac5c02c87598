package models

import (
	"errors"
	"time"
)

// ErrPastTime is returned when a fire time is not strictly in the future.
var ErrPastTime = errors.New("fire time must be in the future")

type Reminder struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Title           string    `json:"title"`
	FireAt          time.Time `json:"date"`
	SchedulerHandle *string   `json:"notificationId,omitempty"` // Handle of the currently scheduled alert
	CreatedAt       time.Time `json:"createdAt"`
}

// HasHandle reports whether an alert is currently scheduled for this reminder.
func (r Reminder) HasHandle() bool {
	return r.SchedulerHandle != nil && *r.SchedulerHandle != ""
}

// Handle returns the scheduler handle or an empty string.
func (r Reminder) Handle() string {
	if r.SchedulerHandle == nil {
		return ""
	}
	return *r.SchedulerHandle
}

// Clone returns a copy that shares no pointers with r.
func (r Reminder) Clone() Reminder {
	if r.SchedulerHandle != nil {
		h := *r.SchedulerHandle
		r.SchedulerHandle = &h
	}
	return r
}

// StringPtr is a small helper for optional string fields.
func StringPtr(s string) *string {
	return &s
}

// ValidateFireAt rejects fire times at or before now.
func ValidateFireAt(fireAt, now time.Time) error {
	if !fireAt.After(now) {
		return ErrPastTime
	}
	return nil
}
