package models

import "time"

// StudyRecord is one logged study session together with its review schedule
type StudyRecord struct {
	ID             int64      `json:"id" db:"id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	Title          string     `json:"title" db:"title"`
	Content        string     `json:"content" db:"content"`
	Category       string     `json:"category" db:"category"`
	StudiedAt      time.Time  `json:"studied_at" db:"studied_at"`
	ReviewCount    int        `json:"review_count" db:"review_count"`
	LastReviewedAt *time.Time `json:"last_reviewed_at" db:"last_reviewed_at"`
	NextReviewAt   *time.Time `json:"next_review_at" db:"next_review_at"` // nil once all reviews are done
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
