package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/NoteAlarm/internal/alarm"
	"github.com/hray3182/NoteAlarm/internal/models"
)

// Callback actions carried in inline button data as "action:id[:minutes]".
const (
	actionSnooze  = "snooze"
	actionDismiss = "dismiss"
	actionDelete  = "delete"
)

type callbackData struct {
	Action     string
	ReminderID string
	Minutes    int
}

func SnoozeData(reminderID string, minutes int) string {
	return fmt.Sprintf("%s:%s:%d", actionSnooze, reminderID, minutes)
}

func DismissData(reminderID string) string {
	return actionDismiss + ":" + reminderID
}

func DeleteData(reminderID string) string {
	return actionDelete + ":" + reminderID
}

func parseCallbackData(data string) (callbackData, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 || parts[1] == "" {
		return callbackData{}, fmt.Errorf("malformed callback %q", data)
	}

	cb := callbackData{Action: parts[0], ReminderID: parts[1]}
	switch cb.Action {
	case actionSnooze:
		if len(parts) != 3 {
			return callbackData{}, fmt.Errorf("malformed snooze callback %q", data)
		}
		m, err := strconv.Atoi(parts[2])
		if err != nil || m <= 0 {
			return callbackData{}, fmt.Errorf("bad snooze minutes in %q", data)
		}
		cb.Minutes = m
	case actionDismiss, actionDelete:
		if len(parts) != 2 {
			return callbackData{}, fmt.Errorf("malformed %s callback %q", cb.Action, data)
		}
	default:
		return callbackData{}, fmt.Errorf("unknown callback action %q", cb.Action)
	}
	return cb, nil
}

func (h *Handlers) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	cb, err := parseCallbackData(callback.Data)
	if err != nil {
		log.Printf("[bot] %v", err)
		h.answerCallback(callback.ID, "")
		return
	}

	rem, err := h.lookup(ctx, callback.From.ID, cb.ReminderID)
	if err != nil {
		h.answerCallbackWithAlert(callback.ID, alarm.UserMessage(err))
		if callback.Message != nil {
			h.editMessageText(callback.Message.Chat.ID, callback.Message.MessageID, "This reminder no longer exists.")
		}
		return
	}
	if rem.UserID != userKey(callback.From.ID) {
		h.answerCallbackWithAlert(callback.ID, "This is not your reminder.")
		return
	}

	switch cb.Action {
	case actionSnooze:
		// The controller reports the outcome through the surface.
		if _, err := h.reminders.Snooze(ctx, rem, cb.Minutes); err != nil {
			h.answerCallback(callback.ID, alarm.UserMessage(err))
			return
		}
		h.answerCallback(callback.ID, fmt.Sprintf("Snoozed for %d minutes", cb.Minutes))
	case actionDismiss:
		if err := h.reminders.Dismiss(ctx, rem); err != nil {
			h.answerCallback(callback.ID, alarm.UserMessage(err))
			return
		}
		h.answerCallback(callback.ID, "Dismissed")
	case actionDelete:
		if err := h.reminders.DeleteReminder(ctx, rem); err != nil {
			h.answerCallbackWithAlert(callback.ID, alarm.UserMessage(err))
			return
		}
		h.answerCallback(callback.ID, "Deleted")
		if callback.Message != nil {
			h.editMessageText(callback.Message.Chat.ID, callback.Message.MessageID, fmt.Sprintf("🗑 Deleted \"%s\"", rem.Title))
		}
	}
}

// lookup prefers the alarm on screen, which also covers stand-ins that were
// never stored, and falls back to the user's stored reminders.
func (h *Handlers) lookup(ctx context.Context, userID int64, id string) (models.Reminder, error) {
	if h.alarms != nil {
		if rem, ok := h.alarms.Presented(id); ok {
			return rem, nil
		}
	}
	return h.reminders.Find(ctx, userKey(userID), id)
}
