package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/NoteAlarm/internal/alarm"
)

var errUsage = errors.New("usage: /remind <when> <title>")

func (h *Handlers) handleRemind(ctx context.Context, msg *tgbotapi.Message) {
	fireAt, title, err := parseRemindArgs(msg.CommandArguments(), h.now().In(h.loc))
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Please give a time and a title.\nUsage: /remind <when> <title>\nFor example: `/remind 15:30 Stand-up` or `/remind +10m Tea`")
		return
	}
	h.sendMessage(msg.Chat.ID, h.createReminder(ctx, msg.From.ID, title, fireAt))
}

// createReminder creates the reminder and returns the reply text.
func (h *Handlers) createReminder(ctx context.Context, userID int64, title string, fireAt time.Time) string {
	res, err := h.reminders.CreateReminder(ctx, userKey(userID), title, fireAt)
	if err != nil {
		log.Printf("[bot] create reminder for %d failed: %v", userID, err)
		return "Could not set the reminder. " + alarm.UserMessage(err)
	}

	text := fmt.Sprintf("⏰ **Reminder set**\nTime: %s\nTitle: %s",
		res.Reminder.FireAt.In(h.loc).Format("2006-01-02 15:04"), res.Reminder.Title)
	if res.Warning != "" {
		text += "\n\n⚠️ " + res.Warning
	}
	return text
}

func (h *Handlers) handleReminderList(ctx context.Context, msg *tgbotapi.Message) {
	text, keyboard := h.reminderList(ctx, msg.From.ID)
	if keyboard == nil {
		h.sendMessage(msg.Chat.ID, text)
		return
	}
	h.sendWithKeyboard(msg.Chat.ID, text, *keyboard)
}

// reminderList renders the user's reminders with one delete button each.
// The keyboard is nil when there is nothing to list.
func (h *Handlers) reminderList(ctx context.Context, userID int64) (string, *tgbotapi.InlineKeyboardMarkup) {
	reminders, cached, err := h.reminders.ListReminders(ctx, userKey(userID))
	if err != nil {
		log.Printf("[bot] list reminders for %d failed: %v", userID, err)
		return "Could not load your reminders. " + alarm.UserMessage(err), nil
	}
	if len(reminders) == 0 {
		return "⏰ You have no reminders", nil
	}

	var sb strings.Builder
	sb.WriteString("⏰ **Reminders**\n")
	if cached {
		sb.WriteString("(offline copy, may be out of date)\n")
	}
	sb.WriteString("\n")

	var rows [][]tgbotapi.InlineKeyboardButton
	for i, r := range reminders {
		status := "🔔"
		if !r.HasHandle() {
			status = "🔕"
		}
		sb.WriteString(fmt.Sprintf("%s **%d.** %s\n   📅 %s\n\n", status, i+1, r.Title, r.FireAt.In(h.loc).Format("2006-01-02 15:04")))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🗑 Delete %d", i+1), DeleteData(r.ID)),
		))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return sb.String(), &keyboard
}

func (h *Handlers) handleDelete(ctx context.Context, msg *tgbotapi.Message) {
	n, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
	if err != nil || n < 1 {
		h.sendMessage(msg.Chat.ID, "Usage: /delete <n>, where n is the number shown by /reminders")
		return
	}
	h.sendMessage(msg.Chat.ID, h.deleteByIndex(ctx, msg.From.ID, n))
}

// deleteByIndex deletes the n-th reminder (1-based) of the user's list.
func (h *Handlers) deleteByIndex(ctx context.Context, userID int64, n int) string {
	reminders, _, err := h.reminders.ListReminders(ctx, userKey(userID))
	if err != nil {
		return "Could not load your reminders. " + alarm.UserMessage(err)
	}
	if n < 1 || n > len(reminders) {
		return fmt.Sprintf("There is no reminder number %d. Use /reminders to see the list.", n)
	}
	r := reminders[n-1]
	if err := h.reminders.DeleteReminder(ctx, r); err != nil {
		log.Printf("[bot] delete reminder %s failed: %v", r.ID, err)
		return "Could not delete the reminder. " + alarm.UserMessage(err)
	}
	return fmt.Sprintf("🗑 Deleted \"%s\"", r.Title)
}

// parseRemindArgs splits "/remind" arguments into a fire time and title.
// Accepted forms for the time: "15:30" (today, or tomorrow if already
// past), "2026-03-14 15:30", and "+10m" / "+2h" / "+1h30m" from now.
func parseRemindArgs(args string, now time.Time) (time.Time, string, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return time.Time{}, "", errUsage
	}

	if len(fields) >= 3 {
		if t, err := time.ParseInLocation("2006-01-02 15:04", fields[0]+" "+fields[1], now.Location()); err == nil {
			return t, strings.Join(fields[2:], " "), nil
		}
	}

	title := strings.Join(fields[1:], " ")
	when := fields[0]

	if strings.HasPrefix(when, "+") {
		d, err := time.ParseDuration(when[1:])
		if err != nil || d <= 0 {
			return time.Time{}, "", fmt.Errorf("bad offset %q", when)
		}
		return now.Add(d), title, nil
	}

	t, err := parseTimeToday(when, now)
	if err != nil {
		return time.Time{}, "", err
	}
	return t, title, nil
}

func parseTimeToday(timeStr string, now time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", timeStr)
	if err != nil {
		return time.Time{}, err
	}

	result := time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour(), t.Minute(), 0, 0, now.Location())

	// Already passed today: tomorrow.
	if !result.After(now) {
		result = result.AddDate(0, 0, 1)
	}

	return result, nil
}
