package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studylog/pkg/models"
)

const userColumns = `id, telegram_id, username, first_name, last_name,
	notification_enabled, notification_hour, created_at, updated_at`

// DefaultNotificationHour is the reminder hour given to new users
const DefaultNotificationHour = 9

// UserRepository handles database operations for users
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a user by internal ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByTelegramID returns a user by Telegram ID
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`
		INSERT INTO users (
			telegram_id, username, first_name, last_name,
			notification_enabled, notification_hour, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := r.db.QueryRowxContext(ctx, query,
		user.TelegramID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.NotificationEnabled,
		user.NotificationHour,
		now,
		now,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetOrCreate returns the user with the given Telegram ID, creating it with
// default notification settings on first contact
func (r *UserRepository) GetOrCreate(ctx context.Context, candidate *models.User) (*models.User, error) {
	user, err := r.GetByTelegramID(ctx, candidate.TelegramID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	newUser := *candidate
	if newUser.NotificationHour == 0 {
		newUser.NotificationHour = DefaultNotificationHour
	}
	newUser.NotificationEnabled = true

	if err := r.Create(ctx, &newUser); err != nil {
		// Lost a race with another update from the same user.
		if isUniqueViolation(err) {
			return r.GetByTelegramID(ctx, candidate.TelegramID)
		}
		return nil, err
	}
	return &newUser, nil
}

// Update modifies user profile and notification settings
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`
		UPDATE users SET
			username = ?,
			first_name = ?,
			last_name = ?,
			notification_enabled = ?,
			notification_hour = ?,
			updated_at = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.FirstName,
		user.LastName,
		user.NotificationEnabled,
		user.NotificationHour,
		now,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d: %w", user.ID, ErrNotFound)
	}
	user.UpdatedAt = now
	return nil
}

// Delete removes a user together with all of their study records
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetUsersForNotification returns users who have notifications enabled at the given hour
func (r *UserRepository) GetUsersForNotification(ctx context.Context, hour int) ([]models.User, error) {
	query := r.db.Rebind(`
		SELECT ` + userColumns + `
		FROM users
		WHERE notification_enabled = ? AND notification_hour = ?
		ORDER BY id
	`)
	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, query, true, hour); err != nil {
		return nil, fmt.Errorf("failed to get users for notification: %w", err)
	}
	return users, nil
}
