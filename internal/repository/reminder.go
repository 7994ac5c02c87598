package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hray3182/NoteAlarm/internal/database"
	"github.com/hray3182/NoteAlarm/internal/models"
	"github.com/jackc/pgx/v5"
)

// ErrReminderNotFound is returned when no row matches the id (and owner).
var ErrReminderNotFound = errors.New("reminder not found")

const reminderColumns = `id::text, user_id, title, date, notification_id, created_at`

type ReminderRepository struct {
	db *database.DB
}

func NewReminderRepository(db *database.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Create inserts the reminder. A pre-allocated UUID in reminder.ID is kept,
// otherwise the database assigns one. CreatedAt is stamped when unset.
func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = time.Now()
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO reminders (id, user_id, title, date, notification_id, created_at)
		 VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6)
		 RETURNING id::text`,
		reminder.ID, reminder.UserID, reminder.Title, reminder.FireAt, reminder.SchedulerHandle, reminder.CreatedAt.UnixMilli(),
	).Scan(&reminder.ID)
}

func (r *ReminderRepository) GetByUserID(ctx context.Context, userID string) ([]models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+`
		 FROM reminders WHERE user_id = $1 ORDER BY date ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectReminders(rows)
}

func (r *ReminderRepository) GetByID(ctx context.Context, id, userID string) (*models.Reminder, error) {
	if !validID(id) {
		return nil, ErrReminderNotFound
	}
	reminder, err := scanReminder(r.db.Pool.QueryRow(ctx,
		`SELECT `+reminderColumns+`
		 FROM reminders WHERE id = $1::uuid AND user_id = $2`,
		id, userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReminderNotFound
	}
	if err != nil {
		return nil, err
	}
	return reminder, nil
}

// Update overwrites the mutable columns of an existing reminder.
func (r *ReminderRepository) Update(ctx context.Context, reminder *models.Reminder) error {
	if !validID(reminder.ID) {
		return ErrReminderNotFound
	}
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET title = $1, date = $2, notification_id = $3
		 WHERE id = $4::uuid AND user_id = $5`,
		reminder.Title, reminder.FireAt, reminder.SchedulerHandle, reminder.ID, reminder.UserID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReminderNotFound
	}
	return nil
}

// Delete removes the reminder. Deleting a missing id is not an error.
func (r *ReminderRepository) Delete(ctx context.Context, id, userID string) error {
	if !validID(id) {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM reminders WHERE id = $1::uuid AND user_id = $2`,
		id, userID,
	)
	return err
}

// ListAll returns every stored reminder ordered by owner and fire time.
// Used by the reconciliation pass after a restart.
func (r *ReminderRepository) ListAll(ctx context.Context) ([]models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+`
		 FROM reminders ORDER BY user_id ASC, date ASC`,
	)
	if err != nil {
		return nil, err
	}
	return collectReminders(rows)
}

// validID reports whether id can name a stored reminder. Stand-in alarms may
// carry a scheduler handle or other non-UUID id, which never matches a row.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func collectReminders(rows pgx.Rows) ([]models.Reminder, error) {
	defer rows.Close()

	reminders := []models.Reminder{}
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, *reminder)
	}
	return reminders, rows.Err()
}

func scanReminder(row pgx.Row) (*models.Reminder, error) {
	reminder := &models.Reminder{}
	var createdAt int64
	if err := row.Scan(&reminder.ID, &reminder.UserID, &reminder.Title, &reminder.FireAt,
		&reminder.SchedulerHandle, &createdAt); err != nil {
		return nil, err
	}
	reminder.CreatedAt = time.UnixMilli(createdAt)
	return reminder, nil
}
