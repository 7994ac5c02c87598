package bot

import (
	"context"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/NoteAlarm/internal/ai"
	"github.com/hray3182/NoteAlarm/internal/bot/handlers"
)

type Bot struct {
	api      *tgbotapi.BotAPI
	handlers *handlers.Handlers
}

// New wires the chat handlers to the reminder controller. aiClient may be
// nil, in which case free text is not interpreted.
func New(api *tgbotapi.BotAPI, reminders handlers.Reminders, surface *Surface, aiClient *ai.Client, loc *time.Location) *Bot {
	return &Bot{
		api:      api,
		handlers: handlers.New(api, reminders, surface, aiClient, loc),
	}
}

func (b *Bot) Start(ctx context.Context) error {
	log.Printf("[bot] authorized on account %s", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handlers.HandleCallbackQuery(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil || update.Message.From == nil {
		return
	}

	if update.Message.IsCommand() {
		b.handlers.HandleCommand(ctx, update.Message)
		return
	}

	b.handlers.HandleMessage(ctx, update.Message)
}
