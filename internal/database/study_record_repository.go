package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studylog/internal/spaced_repetition"
	"github.com/example/studylog/pkg/models"
)

const studyRecordColumns = `id, user_id, title, content, category, studied_at, review_count,
	last_reviewed_at, next_review_at, created_at, updated_at`

// StudyRecordRepository handles database operations for study records
type StudyRecordRepository struct {
	db *sqlx.DB
}

// NewStudyRecordRepository creates a new repository instance
func NewStudyRecordRepository(db *sqlx.DB) *StudyRecordRepository {
	return &StudyRecordRepository{db: db}
}

// Create inserts a new study record. The record's schedule must already be
// initialized.
func (r *StudyRecordRepository) Create(ctx context.Context, rec *models.StudyRecord) error {
	if rec.NextReviewAt == nil && !spaced_repetition.IsComplete(rec) {
		return fmt.Errorf("failed to create study record: %w: schedule not initialized", spaced_repetition.ErrInvariant)
	}
	if err := spaced_repetition.Validate(rec); err != nil {
		return fmt.Errorf("failed to create study record: %w", err)
	}

	now := time.Now().UTC()
	query := r.db.Rebind(`
		INSERT INTO study_records (
			user_id, title, content, category, studied_at, review_count,
			last_reviewed_at, next_review_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		rec.UserID,
		rec.Title,
		rec.Content,
		rec.Category,
		utc(rec.StudiedAt),
		rec.ReviewCount,
		nullableUTC(rec.LastReviewedAt),
		nullableUTC(rec.NextReviewAt),
		now,
		now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to create study record: %w", err)
	}

	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// GetByID returns a study record owned by the user
func (r *StudyRecordRepository) GetByID(ctx context.Context, userID, id int64) (*models.StudyRecord, error) {
	query := r.db.Rebind(`SELECT ` + studyRecordColumns + ` FROM study_records WHERE id = ? AND user_id = ?`)

	var rec models.StudyRecord
	err := r.db.GetContext(ctx, &rec, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("study record %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study record: %w", err)
	}
	return &rec, nil
}

// Update modifies the descriptive fields of a study record.
// The schedule fields are only ever written by SaveReview.
func (r *StudyRecordRepository) Update(ctx context.Context, rec *models.StudyRecord) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`
		UPDATE study_records SET
			title = ?,
			content = ?,
			category = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		rec.Title,
		rec.Content,
		rec.Category,
		now,
		rec.ID,
		rec.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update study record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("study record %d: %w", rec.ID, ErrNotFound)
	}

	rec.UpdatedAt = now
	return nil
}

// Delete removes a study record and its review history
func (r *StudyRecordRepository) Delete(ctx context.Context, userID, id int64) error {
	query := r.db.Rebind(`DELETE FROM study_records WHERE id = ? AND user_id = ?`)
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete study record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("study record %d: %w", id, ErrNotFound)
	}
	return nil
}

// List returns one page (1-based) of the user's records, most recently studied first
func (r *StudyRecordRepository) List(ctx context.Context, userID int64, page int) ([]models.StudyRecord, error) {
	if page < 1 {
		page = 1
	}
	query := r.db.Rebind(`
		SELECT ` + studyRecordColumns + `
		FROM study_records
		WHERE user_id = ?
		ORDER BY studied_at DESC, id DESC
		LIMIT ? OFFSET ?
	`)
	records := []models.StudyRecord{}
	err := r.db.SelectContext(ctx, &records, query, userID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list study records: %w", err)
	}
	return records, nil
}

// Count returns the number of records the user has
func (r *StudyRecordRepository) Count(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM study_records WHERE user_id = ?`), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count study records: %w", err)
	}
	return n, nil
}

// ListNeedingReview returns the user's records whose next review is due at now
func (r *StudyRecordRepository) ListNeedingReview(ctx context.Context, userID int64, now time.Time) ([]models.StudyRecord, error) {
	query := r.db.Rebind(`
		SELECT ` + studyRecordColumns + `
		FROM study_records
		WHERE user_id = ?
		AND next_review_at IS NOT NULL
		AND next_review_at <= ?
		ORDER BY next_review_at ASC, id ASC
	`)
	records := []models.StudyRecord{}
	err := r.db.SelectContext(ctx, &records, query, userID, utc(now))
	if err != nil {
		return nil, fmt.Errorf("failed to get records needing review: %w", err)
	}
	return records, nil
}

// ListCompleted returns the user's records whose review schedule has finished
func (r *StudyRecordRepository) ListCompleted(ctx context.Context, userID int64) ([]models.StudyRecord, error) {
	query := r.db.Rebind(`
		SELECT ` + studyRecordColumns + `
		FROM study_records
		WHERE user_id = ? AND review_count = ?
		ORDER BY last_reviewed_at DESC, id DESC
	`)
	records := []models.StudyRecord{}
	err := r.db.SelectContext(ctx, &records, query, userID, spaced_repetition.MaxReviewTimes)
	if err != nil {
		return nil, fmt.Errorf("failed to get completed records: %w", err)
	}
	return records, nil
}

// SaveReview stores the schedule fields of a reviewed record together with a
// review log entry. The update only applies while the stored review count is
// still previousCount; otherwise spaced_repetition.ErrConflict is returned and
// nothing is written.
func (r *StudyRecordRepository) SaveReview(ctx context.Context, rec *models.StudyRecord, previousCount int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	// No-op once committed
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	query := tx.Rebind(`
		UPDATE study_records SET
			review_count = ?,
			last_reviewed_at = ?,
			next_review_at = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ? AND review_count = ?
	`)
	result, err := tx.ExecContext(ctx, query,
		rec.ReviewCount,
		nullableUTC(rec.LastReviewedAt),
		nullableUTC(rec.NextReviewAt),
		now,
		rec.ID,
		rec.UserID,
		previousCount,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %v", spaced_repetition.ErrInvariant, err)
		}
		return fmt.Errorf("failed to update study record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return spaced_repetition.ErrConflict
	}

	logEntry := &models.ReviewLog{
		StudyRecordID: rec.ID,
		UserID:        rec.UserID,
		ReviewNumber:  rec.ReviewCount,
		ReviewedAt:    *rec.LastReviewedAt,
		NextReviewAt:  rec.NextReviewAt,
	}
	if err := insertReviewLog(ctx, tx, logEntry); err != nil {
		if isUniqueViolation(err) {
			return spaced_repetition.ErrConflict
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	rec.UpdatedAt = now
	return nil
}
