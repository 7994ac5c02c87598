package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/NoteAlarm/internal/ai"
	"github.com/hray3182/NoteAlarm/internal/app"
	"github.com/hray3182/NoteAlarm/internal/bot"
	"github.com/hray3182/NoteAlarm/internal/config"
	"github.com/hray3182/NoteAlarm/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if cfg.Telegram.Token == "" {
		log.Fatal("TELEGRAM_TOKEN is required")
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{ServiceName: "notealarm-bot", Stdout: cfg.Telemetry.Stdout})
	if err != nil {
		log.Fatalf("Failed to init telemetry: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("Telemetry shutdown: %v", err)
		}
	}()

	core, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer core.Close()

	// Initialize AI client (optional)
	var aiClient *ai.Client
	if cfg.AI.APIKey != "" {
		aiClient = ai.New(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model)
		log.Printf("AI client initialized (model: %s)", cfg.AI.Model)
	} else {
		log.Println("AI client not configured, natural language reminders disabled")
	}

	tgAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Fatalf("Failed to create Telegram API: %v", err)
	}

	surface := bot.NewSurface(tgAPI, loc)
	ctrl := core.Controller(surface, loc)
	core.Run(ctx, ctrl)

	b := bot.New(tgAPI, ctrl, surface, aiClient, loc)

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	log.Println("Starting bot...")
	if err := b.Start(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Bot error: %v", err)
	}
}
