package spaced_repetition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/studylog/pkg/models"
)

// MaxReviewTimes is the number of reviews after which a record's schedule terminates
const MaxReviewTimes = 3

// initialReviewDays is the wait between the study session and the first review
const initialReviewDays = 1

// reviewIntervals holds the wait in days before the next review, keyed by the
// review count after the review that was just performed. There is no entry for
// MaxReviewTimes: the schedule ends there.
var reviewIntervals = map[int]int{
	1: 3,
	2: 7,
}

// ReviewSaver persists a reviewed record.
//
// SaveReview must store the record atomically and only if the stored review
// count still equals previousCount. When another writer got there first it
// returns ErrConflict.
type ReviewSaver interface {
	SaveReview(ctx context.Context, record *models.StudyRecord, previousCount int) error
}

// Result describes a successful review
type Result struct {
	ReviewCount  int
	NextReviewAt *time.Time // nil when all reviews are complete
}

// Complete reports whether the review finished the schedule.
func (r Result) Complete() bool {
	return r.NextReviewAt == nil
}

// ReviewScheduler advances study records through the fixed review cadence
type ReviewScheduler struct {
	store ReviewSaver
}

// NewReviewScheduler creates a scheduler that stores reviews through store
func NewReviewScheduler(store ReviewSaver) *ReviewScheduler {
	return &ReviewScheduler{store: store}
}

// InitializeSchedule prepares a new record for its first review.
// It must be called once, after the required fields are filled and before the
// record is first saved. Records that are already scheduled are left as they are.
func InitializeSchedule(record *models.StudyRecord) error {
	if record.ID != 0 || record.ReviewCount != 0 || record.NextReviewAt != nil {
		return nil
	}
	if record.StudiedAt.IsZero() {
		return fmt.Errorf("%w: studied_at is required", ErrInvariant)
	}

	next := record.StudiedAt.AddDate(0, 0, initialReviewDays)
	record.ReviewCount = 0
	record.LastReviewedAt = nil
	record.NextReviewAt = &next

	return Validate(record)
}

// IsComplete reports whether the record has used up all of its reviews
func IsComplete(record *models.StudyRecord) bool {
	return record.ReviewCount >= MaxReviewTimes
}

// DueStatus classifies the record's schedule at the given time. It never mutates the record.
func DueStatus(record *models.StudyRecord, now time.Time) Status {
	if IsComplete(record) {
		return StatusComplete
	}
	if record.NextReviewAt != nil && !record.NextReviewAt.After(now) {
		return StatusOverdue
	}
	return StatusScheduled
}

// PerformReview records one review at now and stores the record.
//
// A complete record yields ErrAlreadyComplete without any change. If the new
// state is invalid or cannot be stored the record is restored to the values it
// had before the call.
func (s *ReviewScheduler) PerformReview(ctx context.Context, record *models.StudyRecord, now time.Time) (Result, error) {
	if IsComplete(record) {
		return Result{}, ErrAlreadyComplete
	}

	snapshot := *record
	previousCount := record.ReviewCount

	advance(record, now)

	if err := Validate(record); err != nil {
		*record = snapshot
		return Result{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := s.store.SaveReview(ctx, record, previousCount); err != nil {
		*record = snapshot
		if errors.Is(err, ErrConflict) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return Result{
		ReviewCount:  record.ReviewCount,
		NextReviewAt: record.NextReviewAt,
	}, nil
}

// advance applies one review to the record in memory
func advance(record *models.StudyRecord, now time.Time) {
	record.ReviewCount++

	reviewedAt := now
	record.LastReviewedAt = &reviewedAt

	if IsComplete(record) {
		record.NextReviewAt = nil
		return
	}
	next := reviewedAt.AddDate(0, 0, reviewIntervals[record.ReviewCount])
	record.NextReviewAt = &next
}

// Validate checks the schedule invariants of a record
func Validate(record *models.StudyRecord) error {
	if record.ReviewCount < 0 || record.ReviewCount > MaxReviewTimes {
		return fmt.Errorf("%w: review_count %d out of range 0..%d", ErrInvariant, record.ReviewCount, MaxReviewTimes)
	}
	if record.ReviewCount > 0 && record.LastReviewedAt == nil {
		return fmt.Errorf("%w: last_reviewed_at is required after a review", ErrInvariant)
	}

	complete := record.ReviewCount == MaxReviewTimes
	if complete && record.NextReviewAt != nil {
		return fmt.Errorf("%w: next_review_at must be empty once reviews are complete", ErrInvariant)
	}
	if !complete && record.NextReviewAt == nil {
		return fmt.Errorf("%w: next_review_at is required until reviews are complete", ErrInvariant)
	}

	if record.NextReviewAt != nil {
		anchor := record.StudiedAt
		if record.LastReviewedAt != nil {
			anchor = *record.LastReviewedAt
		}
		if !record.NextReviewAt.After(anchor) {
			return fmt.Errorf("%w: next_review_at must be after %s", ErrInvariant, anchor.Format(time.RFC3339))
		}
	}

	return nil
}
