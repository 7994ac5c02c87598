package mcpserver

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/hray3182/NoteAlarm/internal/models"
)

// Notifier pushes server-initiated notifications to connected clients.
type Notifier interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// Alarm is a fired reminder waiting for the user to snooze or dismiss it.
type Alarm struct {
	Reminder models.Reminder `json:"reminder"`
	Degraded bool            `json:"degraded"`
	RangAt   time.Time       `json:"rangAt"`
}

// Surface presents alarms as MCP logging notifications and keeps the set
// of ringing alarms so tools can act on them.
type Surface struct {
	mu       sync.Mutex
	notifier Notifier
	ringing  map[string]Alarm
	now      func() time.Time
}

func NewSurface() *Surface {
	return &Surface{ringing: make(map[string]Alarm), now: time.Now}
}

func (s *Surface) attach(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

func (s *Surface) Present(_ context.Context, reminder models.Reminder, degraded bool) error {
	a := Alarm{Reminder: reminder.Clone(), Degraded: degraded, RangAt: s.now()}
	s.mu.Lock()
	s.ringing[reminder.ID] = a
	s.mu.Unlock()

	s.send("alert", map[string]any{
		"event":      "alarm",
		"reminderId": reminder.ID,
		"userId":     reminder.UserID,
		"title":      reminder.Title,
		"fireAt":     reminder.FireAt.Format(time.RFC3339),
		"degraded":   degraded,
	})
	return nil
}

func (s *Surface) Close(_ context.Context, reminder models.Reminder) error {
	s.mu.Lock()
	delete(s.ringing, reminder.ID)
	s.mu.Unlock()
	return nil
}

func (s *Surface) Notify(_ context.Context, userID, text string) error {
	s.send("info", map[string]any{"event": "notice", "userId": userID, "text": text})
	return nil
}

// Ringing returns the alarms not yet snoozed or dismissed, oldest first.
func (s *Surface) Ringing() []Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Alarm, 0, len(s.ringing))
	for _, a := range s.ringing {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RangAt.Before(out[j].RangAt) })
	return out
}

func (s *Surface) alarm(id string) (models.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.ringing[id]
	return a.Reminder.Clone(), ok
}

func (s *Surface) send(level string, data map[string]any) {
	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	if n == nil {
		log.Printf("[mcp] no client attached, dropping %s notification", level)
		return
	}
	n.SendNotificationToAllClients("notifications/message", map[string]any{
		"level":  level,
		"logger": serverName,
		"data":   data,
	})
}
