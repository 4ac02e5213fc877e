package models

import "time"

// ReviewLog is a single review event of a study record
type ReviewLog struct {
	ID            int64      `json:"id" db:"id"`
	StudyRecordID int64      `json:"study_record_id" db:"study_record_id"`
	UserID        int64      `json:"user_id" db:"user_id"`
	ReviewNumber  int        `json:"review_number" db:"review_number"` // review count after this event
	ReviewedAt    time.Time  `json:"reviewed_at" db:"reviewed_at"`
	NextReviewAt  *time.Time `json:"next_review_at" db:"next_review_at"`
}
