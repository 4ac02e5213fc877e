package models

// Statistics summarizes a user's study records
type Statistics struct {
	UserID       int64 `json:"user_id" db:"user_id"`
	TotalRecords int   `json:"total_records" db:"total_records"`
	NeedsReview  int   `json:"needs_review" db:"needs_review"`
	Scheduled    int   `json:"scheduled" db:"scheduled"`
	Completed    int   `json:"completed" db:"completed"`
	ReviewEvents int   `json:"review_events" db:"review_events"`
}
