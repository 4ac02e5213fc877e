package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/studylog/pkg/models"
)

// ReviewLogRepository reads the review history of study records
type ReviewLogRepository struct {
	db *sqlx.DB
}

// NewReviewLogRepository creates a new repository instance
func NewReviewLogRepository(db *sqlx.DB) *ReviewLogRepository {
	return &ReviewLogRepository{db: db}
}

// ListByRecord returns the reviews of one record in the order they happened
func (r *ReviewLogRepository) ListByRecord(ctx context.Context, userID, recordID int64) ([]models.ReviewLog, error) {
	query := r.db.Rebind(`
		SELECT id, study_record_id, user_id, review_number, reviewed_at, next_review_at
		FROM review_logs
		WHERE study_record_id = ? AND user_id = ?
		ORDER BY review_number ASC
	`)
	logs := []models.ReviewLog{}
	if err := r.db.SelectContext(ctx, &logs, query, recordID, userID); err != nil {
		return nil, fmt.Errorf("failed to get review logs: %w", err)
	}
	return logs, nil
}

// insertReviewLog writes a review log inside the review transaction
func insertReviewLog(ctx context.Context, tx *sqlx.Tx, entry *models.ReviewLog) error {
	query := tx.Rebind(`
		INSERT INTO review_logs (
			study_record_id, user_id, review_number, reviewed_at, next_review_at
		) VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := tx.QueryRowxContext(ctx, query,
		entry.StudyRecordID,
		entry.UserID,
		entry.ReviewNumber,
		utc(entry.ReviewedAt),
		nullableUTC(entry.NextReviewAt),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to create review log: %w", err)
	}
	return nil
}
