// Package cache keeps a device-local mirror of each user's reminder list.
//
// The whole list for a user is stored as one JSON text blob and is always
// replaced wholesale, never patched field by field.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hray3182/NoteAlarm/internal/models"

	_ "modernc.org/sqlite"
)

// Cache is a SQLite-backed per-user reminder mirror.
type Cache struct {
	db *sql.DB
}

// cachedReminder is the on-disk shape. Dates are RFC 3339 text so the blob
// stays readable and is normalised back to time.Time on load.
type cachedReminder struct {
	ID             string  `json:"id"`
	UserID         string  `json:"userId"`
	Title          string  `json:"title"`
	Date           string  `json:"date"`
	NotificationID *string `json:"notificationId,omitempty"`
	CreatedAt      int64   `json:"createdAt"`
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// A single connection serialises writers; the blob is tiny.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reminder_cache (
			user_id    TEXT PRIMARY KEY,
			payload    TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Load returns the cached reminders for userID, or an empty slice when
// nothing has been cached yet.
func (c *Cache) Load(ctx context.Context, userID string) ([]models.Reminder, error) {
	var payload string
	err := c.db.QueryRowContext(ctx,
		`SELECT payload FROM reminder_cache WHERE user_id = ?`, userID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.Reminder{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	return decode(payload)
}

// Save replaces the cached list for userID with reminders.
func (c *Cache) Save(ctx context.Context, userID string, reminders []models.Reminder) error {
	payload, err := encode(reminders)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO reminder_cache (user_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, userID, payload, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Evict drops a single reminder from the user's cached list.
func (c *Cache) Evict(ctx context.Context, userID, id string) error {
	reminders, err := c.Load(ctx, userID)
	if err != nil {
		return err
	}

	kept := reminders[:0]
	for _, r := range reminders {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	return c.Save(ctx, userID, kept)
}

func encode(reminders []models.Reminder) (string, error) {
	out := make([]cachedReminder, 0, len(reminders))
	for _, r := range reminders {
		out = append(out, cachedReminder{
			ID:             r.ID,
			UserID:         r.UserID,
			Title:          r.Title,
			Date:           r.FireAt.UTC().Format(time.RFC3339Nano),
			NotificationID: r.SchedulerHandle,
			CreatedAt:      r.CreatedAt.UnixMilli(),
		})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache: %w", err)
	}
	return string(b), nil
}

func decode(payload string) ([]models.Reminder, error) {
	var in []cachedReminder
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		return nil, fmt.Errorf("failed to decode cache: %w", err)
	}

	reminders := make([]models.Reminder, 0, len(in))
	for _, c := range in {
		date, err := time.Parse(time.RFC3339Nano, c.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cached date for %s: %w", c.ID, err)
		}
		reminders = append(reminders, models.Reminder{
			ID:              c.ID,
			UserID:          c.UserID,
			Title:           c.Title,
			FireAt:          date.Local(),
			SchedulerHandle: c.NotificationID,
			CreatedAt:       time.UnixMilli(c.CreatedAt),
		})
	}
	return reminders, nil
}
