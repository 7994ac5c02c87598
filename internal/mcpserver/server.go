// Package mcpserver exposes the reminder lifecycle as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hray3182/NoteAlarm/internal/alarm"
	"github.com/hray3182/NoteAlarm/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "notealarm"
	serverVersion = "1.0.0"
)

// Controller is the reminder lifecycle the tools drive.
type Controller interface {
	CreateReminder(ctx context.Context, userID, title string, fireAt time.Time) (alarm.CreateResult, error)
	ListReminders(ctx context.Context, userID string) ([]models.Reminder, bool, error)
	Find(ctx context.Context, userID, id string) (models.Reminder, error)
	Snooze(ctx context.Context, reminder models.Reminder, minutes int) (models.Reminder, error)
	Dismiss(ctx context.Context, reminder models.Reminder) error
	DeleteReminder(ctx context.Context, reminder models.Reminder) error
}

// Lister reports the facility's pending alert handles.
type Lister interface {
	ListScheduled(ctx context.Context) ([]string, error)
}

type Server struct {
	mcpServer   *server.MCPServer
	ctrl        Controller
	scheduled   Lister
	surface     *Surface
	defaultUser string
}

// NewServer builds the MCP server. Tool calls that name no user_id act for
// defaultUser.
func NewServer(ctrl Controller, scheduled Lister, surface *Surface, defaultUser string) *Server {
	s := &Server{
		ctrl:        ctrl,
		scheduled:   scheduled,
		surface:     surface,
		defaultUser: defaultUser,
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	surface.attach(s.mcpServer)

	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server for serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func userParam() mcp.ToolOption {
	return mcp.WithString("user_id", mcp.Description("Owner of the reminders; defaults to the configured user"))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("create_reminder",
			mcp.WithDescription("Create a reminder that raises an alarm at a future time"),
			mcp.WithString("title", mcp.Required(), mcp.Description("What the alarm is about")),
			mcp.WithString("fire_at", mcp.Required(), mcp.Description("When to ring, RFC3339 (e.g. 2026-03-14T21:00:00+08:00); must be in the future")),
			userParam(),
		),
		s.handleCreateReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List the user's reminders ordered by fire time"),
			userParam(),
		),
		s.handleListReminders,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("delete_reminder",
			mcp.WithDescription("Delete a scheduled reminder and cancel its alarm"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
			userParam(),
		),
		s.handleDeleteReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("snooze_reminder",
			mcp.WithDescription("Snooze a ringing alarm for a number of minutes"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
			mcp.WithNumber("minutes", mcp.Required(), mcp.Description("Minutes to snooze, at least 1")),
			userParam(),
		),
		s.handleSnoozeReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("dismiss_reminder",
			mcp.WithDescription("Dismiss a ringing alarm; the reminder is deleted"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder ID")),
			userParam(),
		),
		s.handleDismissReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_alarms",
			mcp.WithDescription("List alarms that have rung and are waiting to be snoozed or dismissed"),
		),
		s.handleListAlarms,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_scheduled",
			mcp.WithDescription("Diagnostics: list the handles of alerts pending in the scheduler"),
		),
		s.handleListScheduled,
	)
}

func (s *Server) user(req mcp.CallToolRequest) (string, error) {
	if u := req.GetString("user_id", ""); u != "" {
		return u, nil
	}
	if s.defaultUser != "" {
		return s.defaultUser, nil
	}
	return "", fmt.Errorf("user_id is required")
}

func (s *Server) handleCreateReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := s.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title := req.GetString("title", "")
	fireAtStr := req.GetString("fire_at", "")
	if fireAtStr == "" {
		return mcp.NewToolResultError("fire_at is required"), nil
	}

	fireAt, err := time.Parse(time.RFC3339, fireAtStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid fire_at format: %v (use RFC3339, e.g. 2026-03-14T21:00:00Z)", err)), nil
	}

	res, err := s.ctrl.CreateReminder(ctx, userID, title, fireAt)
	if err != nil {
		return mcp.NewToolResultError(alarm.UserMessage(err)), nil
	}
	return jsonResult(res)
}

func (s *Server) handleListReminders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := s.user(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	reminders, cached, err := s.ctrl.ListReminders(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(alarm.UserMessage(err)), nil
	}
	if len(reminders) == 0 {
		return mcp.NewToolResultText("No reminders found."), nil
	}
	return jsonResult(struct {
		Reminders []models.Reminder `json:"reminders"`
		Cached    bool              `json:"cached"`
	}{reminders, cached})
}

func (s *Server) handleDeleteReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rem, errResult := s.resolve(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	if err := s.ctrl.DeleteReminder(ctx, rem); err != nil {
		return mcp.NewToolResultError(alarm.UserMessage(err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %s deleted.", rem.ID)), nil
}

func (s *Server) handleSnoozeReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minutes := req.GetFloat("minutes", 0)
	if minutes < 1 {
		return mcp.NewToolResultError("minutes is required and must be at least 1"), nil
	}
	rem, errResult := s.resolve(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	updated, err := s.ctrl.Snooze(ctx, rem, int(minutes))
	if err != nil {
		return mcp.NewToolResultError("Failed to snooze reminder. " + alarm.UserMessage(err)), nil
	}
	return jsonResult(updated)
}

func (s *Server) handleDismissReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rem, errResult := s.resolve(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	if err := s.ctrl.Dismiss(ctx, rem); err != nil {
		return mcp.NewToolResultError("Alarm dismissed, but the reminder could not be deleted. " + alarm.UserMessage(err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %s dismissed.", rem.ID)), nil
}

func (s *Server) handleListAlarms(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	alarms := s.surface.Ringing()
	if len(alarms) == 0 {
		return mcp.NewToolResultText("No alarms ringing."), nil
	}
	return jsonResult(alarms)
}

func (s *Server) handleListScheduled(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	handles, err := s.scheduled.ListScheduled(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list scheduled alerts: %v", err)), nil
	}
	return jsonResult(handles)
}

// resolve finds the reminder a tool call names, looking at ringing alarms
// first so stand-ins can be acted on.
func (s *Server) resolve(ctx context.Context, req mcp.CallToolRequest) (models.Reminder, *mcp.CallToolResult) {
	id := req.GetString("id", "")
	if id == "" {
		return models.Reminder{}, mcp.NewToolResultError("id is required")
	}
	userID, err := s.user(req)
	if err != nil {
		return models.Reminder{}, mcp.NewToolResultError(err.Error())
	}

	if rem, ok := s.surface.alarm(id); ok && (rem.UserID == userID || rem.UserID == "") {
		return rem, nil
	}
	rem, err := s.ctrl.Find(ctx, userID, id)
	if err != nil {
		return models.Reminder{}, mcp.NewToolResultError(alarm.UserMessage(err))
	}
	return rem, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(output)), nil
}
