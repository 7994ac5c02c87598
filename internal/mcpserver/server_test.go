package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hray3182/NoteAlarm/internal/alarm"
	"github.com/hray3182/NoteAlarm/internal/models"
	"github.com/hray3182/NoteAlarm/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

type fakeController struct {
	rows    map[string]models.Reminder
	snoozed map[string]int
	gone    []string
	err     error
}

func newFakeController(rows ...models.Reminder) *fakeController {
	f := &fakeController{rows: make(map[string]models.Reminder), snoozed: make(map[string]int)}
	for _, r := range rows {
		f.rows[r.ID] = r
	}
	return f
}

func (f *fakeController) CreateReminder(_ context.Context, userID, title string, fireAt time.Time) (alarm.CreateResult, error) {
	if f.err != nil {
		return alarm.CreateResult{}, f.err
	}
	r := models.Reminder{ID: "new", UserID: userID, Title: title, FireAt: fireAt}
	f.rows[r.ID] = r
	return alarm.CreateResult{Reminder: r}, nil
}

func (f *fakeController) ListReminders(_ context.Context, userID string) ([]models.Reminder, bool, error) {
	var out []models.Reminder
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, false, f.err
}

func (f *fakeController) Find(_ context.Context, userID, id string) (models.Reminder, error) {
	r, ok := f.rows[id]
	if !ok || r.UserID != userID {
		return models.Reminder{}, store.ErrNotFound
	}
	return r, nil
}

func (f *fakeController) Snooze(_ context.Context, r models.Reminder, minutes int) (models.Reminder, error) {
	f.snoozed[r.ID] = minutes
	return r, f.err
}

func (f *fakeController) Dismiss(_ context.Context, r models.Reminder) error {
	f.gone = append(f.gone, r.ID)
	return f.err
}

func (f *fakeController) DeleteReminder(_ context.Context, r models.Reminder) error {
	f.gone = append(f.gone, r.ID)
	return f.err
}

type fakeLister []string

func (l fakeLister) ListScheduled(context.Context) ([]string, error) { return l, nil }

type recordingNotifier struct {
	methods []string
	params  []map[string]any
}

func (n *recordingNotifier) SendNotificationToAllClients(method string, params map[string]any) {
	n.methods = append(n.methods, method)
	n.params = append(n.params, params)
}

func request(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content %T is not text", res.Content[0])
	}
	return tc.Text
}

func TestCreateReminderTool(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer(ctrl, fakeLister{}, NewSurface(), "u1")

	res, err := s.handleCreateReminder(context.Background(), request(map[string]any{
		"title":   "Stretch",
		"fire_at": "2026-03-14T21:00:00Z",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}

	var got alarm.CreateResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatal(err)
	}
	if got.Reminder.UserID != "u1" || got.Reminder.Title != "Stretch" {
		t.Fatalf("reminder=%+v", got.Reminder)
	}
	if !got.Reminder.FireAt.Equal(time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)) {
		t.Fatalf("fireAt=%v", got.Reminder.FireAt)
	}
}

func TestCreateReminderToolErrors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		err  error
		want string
	}{
		{name: "missing time", args: map[string]any{"title": "x"}, want: "fire_at is required"},
		{name: "bad time", args: map[string]any{"title": "x", "fire_at": "tomorrow"}, want: "invalid fire_at format"},
		{name: "remote down", args: map[string]any{"title": "x", "fire_at": "2026-03-14T21:00:00Z"}, err: store.ErrRemoteUnavailable, want: "Could not reach the server"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.err = tt.err
			s := NewServer(ctrl, fakeLister{}, NewSurface(), "u1")

			res, err := s.handleCreateReminder(context.Background(), request(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsError || !strings.Contains(resultText(t, res), tt.want) {
				t.Fatalf("got %q, want error containing %q", resultText(t, res), tt.want)
			}
		})
	}
}

func TestToolsNeedAUser(t *testing.T) {
	s := NewServer(newFakeController(), fakeLister{}, NewSurface(), "")

	res, _ := s.handleListReminders(context.Background(), request(map[string]any{}))
	if !res.IsError || !strings.Contains(resultText(t, res), "user_id is required") {
		t.Fatalf("got %q", resultText(t, res))
	}

	res, _ = s.handleListReminders(context.Background(), request(map[string]any{"user_id": "u2"}))
	if res.IsError || resultText(t, res) != "No reminders found." {
		t.Fatalf("got %q", resultText(t, res))
	}
}

func TestSnoozeToolActsOnRingingStandIn(t *testing.T) {
	ctrl := newFakeController()
	surface := NewSurface()
	s := NewServer(ctrl, fakeLister{}, surface, "u1")
	surface.attach(&recordingNotifier{})

	standIn := models.Reminder{ID: "h7", Title: "Reminder"}
	if err := surface.Present(context.Background(), standIn, true); err != nil {
		t.Fatal(err)
	}

	res, _ := s.handleSnoozeReminder(context.Background(), request(map[string]any{"id": "h7", "minutes": float64(5)}))
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	if ctrl.snoozed["h7"] != 5 {
		t.Fatalf("snoozed=%v", ctrl.snoozed)
	}

	res, _ = s.handleSnoozeReminder(context.Background(), request(map[string]any{"id": "h7", "minutes": float64(0)}))
	if !res.IsError {
		t.Fatal("zero minutes accepted")
	}
}

func TestDismissAndDeleteTools(t *testing.T) {
	ctrl := newFakeController(
		models.Reminder{ID: "a", UserID: "u1", Title: "mine"},
		models.Reminder{ID: "b", UserID: "u2", Title: "theirs"},
	)
	s := NewServer(ctrl, fakeLister{}, NewSurface(), "u1")
	ctx := context.Background()

	res, _ := s.handleDismissReminder(ctx, request(map[string]any{"id": "a"}))
	if res.IsError || !strings.Contains(resultText(t, res), "dismissed") {
		t.Fatalf("got %q", resultText(t, res))
	}

	res, _ = s.handleDeleteReminder(ctx, request(map[string]any{"id": "b"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "not found") {
		t.Fatalf("got %q", resultText(t, res))
	}

	res, _ = s.handleDeleteReminder(ctx, request(map[string]any{"id": "b", "user_id": "u2"}))
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	if len(ctrl.gone) != 2 || ctrl.gone[0] != "a" || ctrl.gone[1] != "b" {
		t.Fatalf("gone=%v", ctrl.gone)
	}
}

func TestListScheduledTool(t *testing.T) {
	s := NewServer(newFakeController(), fakeLister{"h1", "h2"}, NewSurface(), "u1")

	res, _ := s.handleListScheduled(context.Background(), request(nil))
	var handles []string
	if err := json.Unmarshal([]byte(resultText(t, res)), &handles); err != nil {
		t.Fatal(err)
	}
	if len(handles) != 2 {
		t.Fatalf("handles=%v", handles)
	}
}

func TestSurfaceNotifiesAndTracksRinging(t *testing.T) {
	n := &recordingNotifier{}
	surface := NewSurface()
	surface.attach(n)
	ctx := context.Background()

	first := models.Reminder{ID: "r1", UserID: "u1", Title: "Tea"}
	second := models.Reminder{ID: "r2", UserID: "u1", Title: "Walk"}
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	surface.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	_ = surface.Present(ctx, first, false)
	_ = surface.Present(ctx, second, false)

	if len(n.methods) != 2 || n.methods[0] != "notifications/message" {
		t.Fatalf("methods=%v", n.methods)
	}
	if data := n.params[0]["data"].(map[string]any); data["reminderId"] != "r1" || data["title"] != "Tea" {
		t.Fatalf("data=%v", data)
	}

	ringing := surface.Ringing()
	if len(ringing) != 2 || ringing[0].Reminder.ID != "r1" {
		t.Fatalf("ringing=%+v", ringing)
	}

	_ = surface.Close(ctx, first)
	if ringing := surface.Ringing(); len(ringing) != 1 || ringing[0].Reminder.ID != "r2" {
		t.Fatalf("ringing after close=%+v", ringing)
	}

	_ = surface.Notify(ctx, "u1", "Snooze failed")
	if n.params[2]["level"] != "info" {
		t.Fatalf("params=%v", n.params[2])
	}
}
