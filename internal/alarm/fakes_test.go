package alarm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hray3182/NoteAlarm/internal/models"
	"github.com/hray3182/NoteAlarm/internal/scheduler"
	"github.com/hray3182/NoteAlarm/internal/store"
)

var errDown = errors.New("connection refused")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memRemote is an in-memory stand-in for the Postgres repository.
type memRemote struct {
	mu   sync.Mutex
	rows map[string]models.Reminder
	seq  int
	down bool
}

func newMemRemote() *memRemote {
	return &memRemote{rows: make(map[string]models.Reminder)}
}

func (m *memRemote) setDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

func (m *memRemote) Create(_ context.Context, r *models.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errDown
	}
	if r.ID == "" {
		m.seq++
		r.ID = fmt.Sprintf("r%d", m.seq)
	}
	m.rows[r.ID] = r.Clone()
	return nil
}

func (m *memRemote) GetByUserID(_ context.Context, userID string) ([]models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errDown
	}
	var out []models.Reminder
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

func (m *memRemote) GetByID(_ context.Context, id, userID string) (*models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errDown
	}
	r, ok := m.rows[id]
	if !ok || r.UserID != userID {
		return nil, store.ErrNotFound
	}
	c := r.Clone()
	return &c, nil
}

func (m *memRemote) Update(_ context.Context, r *models.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errDown
	}
	if _, ok := m.rows[r.ID]; !ok {
		return store.ErrNotFound
	}
	m.rows[r.ID] = r.Clone()
	return nil
}

func (m *memRemote) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errDown
	}
	if r, ok := m.rows[id]; ok && r.UserID == userID {
		delete(m.rows, id)
	}
	return nil
}

func (m *memRemote) ListAll(_ context.Context) ([]models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errDown
	}
	out := make([]models.Reminder, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

func (m *memRemote) get(id string) (models.Reminder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	return r.Clone(), ok
}

type memCache struct {
	mu    sync.Mutex
	lists map[string][]models.Reminder
}

func newMemCache() *memCache {
	return &memCache{lists: make(map[string][]models.Reminder)}
}

func (c *memCache) Load(_ context.Context, userID string) ([]models.Reminder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Reminder(nil), c.lists[userID]...), nil
}

func (c *memCache) Save(_ context.Context, userID string, reminders []models.Reminder) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[userID] = append([]models.Reminder(nil), reminders...)
	return nil
}

func (c *memCache) Evict(_ context.Context, userID, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var next []models.Reminder
	for _, r := range c.lists[userID] {
		if r.ID != id {
			next = append(next, r)
		}
	}
	c.lists[userID] = next
	return nil
}

type recordingSurface struct {
	mu        sync.Mutex
	presented []models.Reminder
	degraded  []bool
	closed    []string
	notes     []string
}

func (s *recordingSurface) Present(_ context.Context, r models.Reminder, degraded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presented = append(s.presented, r)
	s.degraded = append(s.degraded, degraded)
	return nil
}

func (s *recordingSurface) Close(_ context.Context, r models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, r.ID)
	return nil
}

func (s *recordingSurface) Notify(_ context.Context, _ string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, text)
	return nil
}

func (s *recordingSurface) lastNote() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notes) == 0 {
		return ""
	}
	return s.notes[len(s.notes)-1]
}

// refusingScheduler reports every schedule call as refused by the OS.
type refusingScheduler struct{}

func (refusingScheduler) ScheduleAt(context.Context, time.Time, scheduler.Payload) (string, error) {
	return "", scheduler.ErrSchedulingFailed
}
func (refusingScheduler) Cancel(context.Context, string) error            { return nil }
func (refusingScheduler) ListScheduled(context.Context) ([]string, error) { return nil, nil }

type harness struct {
	clock   *fakeClock
	remote  *memRemote
	cache   *memCache
	store   *store.Store
	local   *scheduler.Local
	reg     *Registry
	surface *recordingSurface
	ctrl    *Controller
}

func newHarness(t *testing.T, opts ...scheduler.LocalOption) *harness {
	t.Helper()
	h := &harness{
		clock:   newFakeClock(),
		remote:  newMemRemote(),
		cache:   newMemCache(),
		reg:     NewRegistry(),
		surface: &recordingSurface{},
	}
	h.store = store.New(h.remote, h.cache, store.WithClock(h.clock.Now))
	h.local = scheduler.NewLocal(append([]scheduler.LocalOption{scheduler.WithClock(h.clock.Now)}, opts...)...)
	h.ctrl = NewController(h.store, h.local, scheduler.NewGate(h.local), h.reg, h.surface, WithClock(h.clock.Now))
	return h
}

func (h *harness) scheduled(t *testing.T) []string {
	t.Helper()
	handles, err := h.local.ListScheduled(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return handles
}

func (h *harness) create(t *testing.T, title string, in time.Duration) models.Reminder {
	t.Helper()
	res, err := h.ctrl.CreateReminder(context.Background(), "u1", title, h.clock.Now().Add(in))
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return res.Reminder
}
