package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/NoteAlarm/internal/bot/handlers"
	"github.com/hray3182/NoteAlarm/internal/format"
	"github.com/hray3182/NoteAlarm/internal/models"
	"github.com/hray3182/NoteAlarm/internal/scheduler"
)

// SnoozeChoices are the snooze buttons offered on every alarm, in minutes.
var SnoozeChoices = []int{5, 10, 15}

type presentation struct {
	chatID    int64
	messageID int
	reminder  models.Reminder
}

// Surface shows fired alarms as Telegram messages with snooze and dismiss
// buttons.
type Surface struct {
	api handlers.Sender
	loc *time.Location

	mu    sync.Mutex
	shown map[string]presentation // reminder id -> alarm message
}

func NewSurface(api handlers.Sender, loc *time.Location) *Surface {
	if loc == nil {
		loc = time.Local
	}
	return &Surface{api: api, loc: loc, shown: make(map[string]presentation)}
}

func (s *Surface) Present(_ context.Context, reminder models.Reminder, degraded bool) error {
	chatID, err := chatIDFor(reminder.UserID)
	if err != nil {
		return err
	}

	// An alarm already on screen for this reminder is replaced.
	s.mu.Lock()
	prev, hadPrev := s.shown[reminder.ID]
	s.mu.Unlock()
	if hadPrev {
		s.removeButtons(prev, "🔔 "+prev.reminder.Title)
	}

	// Only the header is styled; the title is user text and stays literal.
	rendered := format.Markdown("**" + scheduler.AlertTitle + "**")
	text := rendered.Text + "\n\n" + reminder.Title
	if degraded {
		text += "\n\n(details unavailable)"
	} else {
		text += "\n\n📅 " + reminder.FireAt.In(s.loc).Format("2006-01-02 15:04")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.Entities = rendered.Entities
	msg.ReplyMarkup = AlarmKeyboard(reminder.ID)

	sent, err := s.api.Send(msg)
	if err != nil {
		return fmt.Errorf("send alarm: %w", err)
	}

	s.mu.Lock()
	s.shown[reminder.ID] = presentation{chatID: chatID, messageID: sent.MessageID, reminder: reminder.Clone()}
	s.mu.Unlock()
	log.Printf("[bot] presented alarm for %s to %d (msg_id=%d, degraded=%v)", reminder.ID, chatID, sent.MessageID, degraded)
	return nil
}

func (s *Surface) Close(_ context.Context, reminder models.Reminder) error {
	s.mu.Lock()
	p, ok := s.shown[reminder.ID]
	delete(s.shown, reminder.ID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.removeButtons(p, "🔕 "+p.reminder.Title)
}

func (s *Surface) Notify(_ context.Context, userID, text string) error {
	chatID, err := chatIDFor(userID)
	if err != nil {
		return err
	}
	rendered := format.Markdown(text)
	msg := tgbotapi.NewMessage(chatID, rendered.Text)
	msg.Entities = rendered.Entities
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	return nil
}

// Presented returns the reminder behind an alarm currently on screen.
func (s *Surface) Presented(id string) (models.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.shown[id]
	if !ok {
		return models.Reminder{}, false
	}
	return p.reminder.Clone(), true
}

func (s *Surface) removeButtons(p presentation, text string) error {
	edit := tgbotapi.NewEditMessageText(p.chatID, p.messageID, text)
	if _, err := s.api.Send(edit); err != nil {
		log.Printf("[bot] failed to close alarm message %d: %v", p.messageID, err)
		return err
	}
	return nil
}

// AlarmKeyboard builds the snooze and dismiss buttons for a reminder.
func AlarmKeyboard(reminderID string) tgbotapi.InlineKeyboardMarkup {
	var snooze []tgbotapi.InlineKeyboardButton
	for _, m := range SnoozeChoices {
		snooze = append(snooze, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("😴 %d min", m), handlers.SnoozeData(reminderID, m)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		snooze,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Dismiss", handlers.DismissData(reminderID)),
		),
	)
}

func chatIDFor(userID string) (int64, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("user %q has no chat: %w", userID, err)
	}
	return id, nil
}
