package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studylog/internal/spaced_repetition"
	"github.com/example/studylog/pkg/models"
)

// StatisticsRepository computes study statistics
type StatisticsRepository struct {
	db *sqlx.DB
}

// NewStatisticsRepository creates a new repository instance
func NewStatisticsRepository(db *sqlx.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// GetUserSummary returns counts of the user's records by schedule state at now
func (r *StatisticsRepository) GetUserSummary(ctx context.Context, userID int64, now time.Time) (*models.Statistics, error) {
	stats := models.Statistics{UserID: userID}
	at := utc(now)

	query := r.db.Rebind(`
		SELECT
			COUNT(*) AS total_records,
			COALESCE(SUM(CASE WHEN next_review_at IS NOT NULL AND next_review_at <= ? THEN 1 ELSE 0 END), 0) AS needs_review,
			COALESCE(SUM(CASE WHEN next_review_at > ? THEN 1 ELSE 0 END), 0) AS scheduled,
			COALESCE(SUM(CASE WHEN review_count = ? THEN 1 ELSE 0 END), 0) AS completed
		FROM study_records
		WHERE user_id = ?
	`)
	row := r.db.QueryRowxContext(ctx, query, at, at, spaced_repetition.MaxReviewTimes, userID)
	if err := row.Scan(&stats.TotalRecords, &stats.NeedsReview, &stats.Scheduled, &stats.Completed); err != nil {
		return nil, fmt.Errorf("failed to get user statistics: %w", err)
	}

	err := r.db.GetContext(ctx, &stats.ReviewEvents,
		r.db.Rebind(`SELECT COUNT(*) FROM review_logs WHERE user_id = ?`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count review events: %w", err)
	}

	return &stats, nil
}
