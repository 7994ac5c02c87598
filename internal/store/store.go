// Package store combines the authoritative remote reminder table with the
// device-local cache.
//
// The remote store is the source of truth. Every successful remote
// create/list/update rewrites the user's cached list as a whole; reads fall
// back to the cache only when the remote store cannot be reached. Remote
// operations are never retried here.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/hray3182/NoteAlarm/internal/models"
	"github.com/hray3182/NoteAlarm/internal/repository"
)

var (
	// ErrRemoteUnavailable wraps any failure talking to the remote store.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrNotFound is returned when the remote store has no such reminder.
	ErrNotFound = repository.ErrReminderNotFound
)

// Remote is the authoritative reminder store.
type Remote interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	GetByUserID(ctx context.Context, userID string) ([]models.Reminder, error)
	GetByID(ctx context.Context, id, userID string) (*models.Reminder, error)
	Update(ctx context.Context, reminder *models.Reminder) error
	Delete(ctx context.Context, id, userID string) error
}

// Cache is the device-local mirror.
type Cache interface {
	Load(ctx context.Context, userID string) ([]models.Reminder, error)
	Save(ctx context.Context, userID string, reminders []models.Reminder) error
	Evict(ctx context.Context, userID, id string) error
}

// Patch lists the fields an Update may change. Nil fields are left alone.
type Patch struct {
	Title           *string
	FireAt          *time.Time
	SchedulerHandle *string
	ClearHandle     bool // drop the handle; ignored when SchedulerHandle is set
}

type Store struct {
	remote Remote
	cache  Cache
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for fire-time validation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(remote Remote, cache Cache, opts ...Option) *Store {
	s := &Store{remote: remote, cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and persists a new reminder remotely, mirrors it into the
// cache and returns it with the id the remote store assigned.
func (s *Store) Create(ctx context.Context, reminder models.Reminder) (models.Reminder, error) {
	if err := models.ValidateFireAt(reminder.FireAt, s.now()); err != nil {
		return models.Reminder{}, err
	}
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = s.now()
	}

	if err := s.remote.Create(ctx, &reminder); err != nil {
		return models.Reminder{}, fmt.Errorf("%w: create: %v", ErrRemoteUnavailable, err)
	}

	s.mirror(ctx, reminder)
	return reminder, nil
}

// ListByUser returns the user's reminders ordered by fire time. When the
// remote store fails, the cached list is returned and cached is true.
func (s *Store) ListByUser(ctx context.Context, userID string) (reminders []models.Reminder, cached bool, err error) {
	reminders, err = s.remote.GetByUserID(ctx, userID)
	if err == nil {
		sortByFireAt(reminders)
		if err := s.cache.Save(ctx, userID, reminders); err != nil {
			log.Printf("[store] failed to refresh cache for %s: %v", userID, err)
		}
		return reminders, false, nil
	}

	log.Printf("[store] remote unavailable, serving cached reminders for %s: %v", userID, err)
	local, cacheErr := s.cache.Load(ctx, userID)
	if cacheErr != nil {
		log.Printf("[store] failed to read cache for %s: %v", userID, cacheErr)
		return nil, false, fmt.Errorf("%w: list: %v", ErrRemoteUnavailable, err)
	}
	sortByFireAt(local)
	return local, true, nil
}

// Update applies patch to the remote record and mirrors the merged record.
func (s *Store) Update(ctx context.Context, userID, id string, patch Patch) (models.Reminder, error) {
	if patch.FireAt != nil {
		if err := models.ValidateFireAt(*patch.FireAt, s.now()); err != nil {
			return models.Reminder{}, err
		}
	}

	current, err := s.remote.GetByID(ctx, id, userID)
	if err != nil {
		return models.Reminder{}, remoteErr("update", err)
	}

	merged := current.Clone()
	if patch.Title != nil {
		merged.Title = *patch.Title
	}
	if patch.FireAt != nil {
		merged.FireAt = *patch.FireAt
	}
	switch {
	case patch.SchedulerHandle != nil:
		merged.SchedulerHandle = models.StringPtr(*patch.SchedulerHandle)
	case patch.ClearHandle:
		merged.SchedulerHandle = nil
	}

	if err := s.remote.Update(ctx, &merged); err != nil {
		return models.Reminder{}, remoteErr("update", err)
	}

	s.mirror(ctx, merged)
	return merged, nil
}

// Delete removes the reminder remotely and then from the cache. Deleting an
// id that no longer exists succeeds.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if err := s.remote.Delete(ctx, id, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: delete: %v", ErrRemoteUnavailable, err)
	}
	if err := s.cache.Evict(ctx, userID, id); err != nil {
		log.Printf("[store] failed to evict %s from cache: %v", id, err)
	}
	return nil
}

// Cached returns the user's cached list without touching the remote store.
// Cache failures yield an empty list.
func (s *Store) Cached(ctx context.Context, userID string) []models.Reminder {
	reminders, err := s.cache.Load(ctx, userID)
	if err != nil {
		log.Printf("[store] failed to read cache for %s: %v", userID, err)
		return nil
	}
	return reminders
}

// Refresh rewrites the user's cached list from a remote read made elsewhere.
func (s *Store) Refresh(ctx context.Context, userID string, reminders []models.Reminder) {
	list := append([]models.Reminder(nil), reminders...)
	sortByFireAt(list)
	if err := s.cache.Save(ctx, userID, list); err != nil {
		log.Printf("[store] failed to refresh cache for %s: %v", userID, err)
	}
}

// mirror upserts reminder into the user's cached list and rewrites it.
func (s *Store) mirror(ctx context.Context, reminder models.Reminder) {
	current, err := s.cache.Load(ctx, reminder.UserID)
	if err != nil {
		log.Printf("[store] failed to read cache for %s: %v", reminder.UserID, err)
		current = nil
	}

	next := make([]models.Reminder, 0, len(current)+1)
	for _, r := range current {
		if r.ID != reminder.ID {
			next = append(next, r)
		}
	}
	next = append(next, reminder)
	sortByFireAt(next)

	if err := s.cache.Save(ctx, reminder.UserID, next); err != nil {
		log.Printf("[store] failed to write cache for %s: %v", reminder.UserID, err)
	}
}

func remoteErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%w: %s: %v", ErrRemoteUnavailable, op, err)
}

func sortByFireAt(reminders []models.Reminder) {
	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].FireAt.Before(reminders[j].FireAt)
	})
}
