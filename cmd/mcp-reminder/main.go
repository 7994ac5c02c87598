// Command mcp-reminder serves NoteAlarm reminders over MCP.
//
// It runs the full alarm core: reminders created through its tools ring as
// MCP logging notifications and can be snoozed or dismissed with tools.
// Run it instead of the Telegram bot against a given database, not beside it.
//
// Usage:
//
//	./mcp-reminder          # Start MCP server (stdio)
//	./mcp-reminder --help   # Show help
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hray3182/NoteAlarm/internal/app"
	"github.com/hray3182/NoteAlarm/internal/config"
	"github.com/hray3182/NoteAlarm/internal/mcpserver"
	"github.com/hray3182/NoteAlarm/internal/telemetry"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--help", "-h":
			printHelp()
			return
		}
	}

	// stdout carries the protocol.
	log.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid timezone: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{ServiceName: "notealarm-mcp", Stdout: cfg.Telemetry.Stdout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init telemetry: %v\n", err)
		os.Exit(1)
	}
	defer shutdown(context.Background())

	core, err := app.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer core.Close()

	surface := mcpserver.NewSurface()
	ctrl := core.Controller(surface, loc)
	s := mcpserver.NewServer(ctrl, core.Local, surface, cfg.MCP.DefaultUser)
	core.Run(ctx, ctrl)

	if err := server.ServeStdio(s.MCPServer()); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`MCP Reminder Server - NoteAlarm reminders via MCP protocol

USAGE:
    mcp-reminder          Start MCP server (communicates via stdio)
    mcp-reminder --help   Show this help

ENVIRONMENT:
    DATABASE_URI              PostgreSQL connection string (required)
    NOTEALARM_CONFIG          Optional YAML config file
    NOTEALARM_MCP__DEFAULT_USER
                              User that tool calls act for when they name none
    NOTEALARM_CACHE__PATH     SQLite cache file (default: notealarm-cache.db)
    NOTEALARM_TIMEZONE        IANA zone for times in notices (default: host zone)

TOOLS:
    create_reminder    Create a reminder (title, fire_at, user_id)
    list_reminders     List reminders ordered by fire time
    delete_reminder    Delete a reminder and cancel its alarm
    snooze_reminder    Snooze a ringing alarm (id, minutes)
    dismiss_reminder   Dismiss a ringing alarm and delete the reminder
    list_alarms        List alarms waiting to be snoozed or dismissed
    list_scheduled     List pending alert handles`)
}
