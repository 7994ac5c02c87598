package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/NoteAlarm/internal/ai"
	"github.com/hray3182/NoteAlarm/internal/alarm"
	"github.com/hray3182/NoteAlarm/internal/format"
	"github.com/hray3182/NoteAlarm/internal/models"
)

// Sender is the part of *tgbotapi.BotAPI the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Reminders is the lifecycle controller as seen from chat.
type Reminders interface {
	CreateReminder(ctx context.Context, userID, title string, fireAt time.Time) (alarm.CreateResult, error)
	ListReminders(ctx context.Context, userID string) ([]models.Reminder, bool, error)
	Find(ctx context.Context, userID, id string) (models.Reminder, error)
	Snooze(ctx context.Context, reminder models.Reminder, minutes int) (models.Reminder, error)
	Dismiss(ctx context.Context, reminder models.Reminder) error
	DeleteReminder(ctx context.Context, reminder models.Reminder) error
}

// Alarms looks up alarms that are currently on screen.
type Alarms interface {
	Presented(id string) (models.Reminder, bool)
}

type Handlers struct {
	api       Sender
	reminders Reminders
	alarms    Alarms
	ai        *ai.Client
	loc       *time.Location
	now       func() time.Time

	sessionMu sync.Mutex
	sessions  map[int64]*session
}

func New(api Sender, reminders Reminders, alarms Alarms, aiClient *ai.Client, loc *time.Location) *Handlers {
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{
		api:       api,
		reminders: reminders,
		alarms:    alarms,
		ai:        aiClient,
		loc:       loc,
		now:       time.Now,
		sessions:  make(map[int64]*session),
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(ctx, msg)
	case "remind":
		h.handleRemind(ctx, msg)
	case "reminders":
		h.handleReminderList(ctx, msg)
	case "delete":
		h.handleDelete(ctx, msg)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command. Use /help to see what I can do.")
	}
}

func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	h.handleAIMessage(ctx, msg)
}

func (h *Handlers) answerCallback(callbackID, text string) {
	if _, err := h.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Printf("[bot] failed to answer callback: %v", err)
	}
}

func (h *Handlers) answerCallbackWithAlert(callbackID, text string) {
	if _, err := h.api.Request(tgbotapi.NewCallbackWithAlert(callbackID, text)); err != nil {
		log.Printf("[bot] failed to answer callback with alert: %v", err)
	}
}

func (h *Handlers) editMessageText(chatID int64, messageID int, text string) {
	rendered := format.Markdown(text)
	edit := tgbotapi.NewEditMessageText(chatID, messageID, rendered.Text)
	edit.Entities = rendered.Entities
	if _, err := h.api.Send(edit); err != nil {
		log.Printf("[bot] failed to edit message: %v", err)
	}
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	rendered := format.Markdown(text)
	msg := tgbotapi.NewMessage(chatID, rendered.Text)
	msg.Entities = rendered.Entities
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("[bot] failed to send message: %v", err)
	}
}

func (h *Handlers) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	rendered := format.Markdown(text)
	msg := tgbotapi.NewMessage(chatID, rendered.Text)
	msg.Entities = rendered.Entities
	msg.ReplyMarkup = keyboard
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("[bot] failed to send message: %v", err)
	}
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (h *Handlers) handleStart(_ context.Context, msg *tgbotapi.Message) {
	text := fmt.Sprintf(`👋 Hi %s!

I keep your reminders and ring when they are due, even if you close the chat.

Tell me in your own words, for example:
• "remind me to take medicine at 9pm"
• "call mom tomorrow at 10:30"

Use /help to see all commands.`, msg.From.FirstName)
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleHelp(_ context.Context, msg *tgbotapi.Message) {
	text := "**Commands**\n\n" +
		"/remind <when> <title> - set a reminder\n" +
		"   when: `15:30`, `2026-03-14 09:00`, `+10m`, `+2h`\n" +
		"/reminders - list your reminders\n" +
		"/delete <n> - delete reminder number n from the list\n\n" +
		"When an alarm rings you can snooze it for 5, 10 or 15 minutes or dismiss it. Dismissing deletes the reminder."
	h.sendMessage(msg.Chat.ID, text)
}
