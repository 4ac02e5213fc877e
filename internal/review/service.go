// Package review is the entry point the presentation layer uses to manage study
// records and run reviews against the store.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/studylog/internal/database"
	"github.com/example/studylog/internal/spaced_repetition"
	"github.com/example/studylog/pkg/models"
)

// MaxConflictRetries bounds how often a review is attempted against fresh state
// after losing a race with a concurrent review of the same record. Every lost
// race means another review was stored, so after MaxReviewTimes losses the
// record is complete and the last attempt reports ErrAlreadyComplete.
const MaxConflictRetries = spaced_repetition.MaxReviewTimes + 1

// ErrInvalidInput is returned when required record fields are missing
var ErrInvalidInput = errors.New("review: invalid input")

// RecordStore is the persistence the service needs for study records
type RecordStore interface {
	spaced_repetition.ReviewSaver
	Create(ctx context.Context, rec *models.StudyRecord) error
	GetByID(ctx context.Context, userID, id int64) (*models.StudyRecord, error)
	Update(ctx context.Context, rec *models.StudyRecord) error
	Delete(ctx context.Context, userID, id int64) error
	List(ctx context.Context, userID int64, page int) ([]models.StudyRecord, error)
	Count(ctx context.Context, userID int64) (int, error)
	ListNeedingReview(ctx context.Context, userID int64, now time.Time) ([]models.StudyRecord, error)
	ListCompleted(ctx context.Context, userID int64) ([]models.StudyRecord, error)
}

// HistoryStore reads review logs
type HistoryStore interface {
	ListByRecord(ctx context.Context, userID, recordID int64) ([]models.ReviewLog, error)
}

// Input holds the user-editable fields of a study record
type Input struct {
	Title     string
	Content   string
	Category  string
	StudiedAt time.Time // ignored by Edit
}

// Page is one page of a user's study records
type Page struct {
	Records []models.StudyRecord
	Number  int
	Pages   int
	Total   int
}

// Service manages study records and their reviews
type Service struct {
	records   RecordStore
	history   HistoryStore
	scheduler *spaced_repetition.ReviewScheduler
	log       zerolog.Logger
}

// NewService creates a new review service
func NewService(records RecordStore, history HistoryStore, log zerolog.Logger) *Service {
	return &Service{
		records:   records,
		history:   history,
		scheduler: spaced_repetition.NewReviewScheduler(records),
		log:       log.With().Str("component", "review").Logger(),
	}
}

// Create validates the input, schedules the first review and stores a new record
func (s *Service) Create(ctx context.Context, userID int64, in Input) (*models.StudyRecord, error) {
	in = in.normalized()
	if err := in.validate(true); err != nil {
		return nil, err
	}

	rec := &models.StudyRecord{
		UserID:    userID,
		Title:     in.Title,
		Content:   in.Content,
		Category:  in.Category,
		StudiedAt: in.StudiedAt,
	}
	if err := spaced_repetition.InitializeSchedule(rec); err != nil {
		return nil, err
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("user_id", userID).
		Int64("record_id", rec.ID).
		Time("next_review_at", *rec.NextReviewAt).
		Msg("study record created")
	return rec, nil
}

// Edit changes the title, content and category of a record. The study date
// anchors the schedule and cannot be changed.
func (s *Service) Edit(ctx context.Context, userID, id int64, in Input) (*models.StudyRecord, error) {
	in = in.normalized()
	if err := in.validate(false); err != nil {
		return nil, err
	}

	rec, err := s.records.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	rec.Title = in.Title
	rec.Content = in.Content
	rec.Category = in.Category

	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns one of the user's records
func (s *Service) Get(ctx context.Context, userID, id int64) (*models.StudyRecord, error) {
	return s.records.GetByID(ctx, userID, id)
}

// Delete removes one of the user's records
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if err := s.records.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", userID).Int64("record_id", id).Msg("study record deleted")
	return nil
}

// List returns a page of the user's records, most recently studied first
func (s *Service) List(ctx context.Context, userID int64, page int) (*Page, error) {
	total, err := s.records.Count(ctx, userID)
	if err != nil {
		return nil, err
	}

	pages := (total + database.PageSize - 1) / database.PageSize
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	records, err := s.records.List(ctx, userID, page)
	if err != nil {
		return nil, err
	}
	return &Page{Records: records, Number: page, Pages: pages, Total: total}, nil
}

// NeedingReview returns the user's records that are due at now
func (s *Service) NeedingReview(ctx context.Context, userID int64, now time.Time) ([]models.StudyRecord, error) {
	return s.records.ListNeedingReview(ctx, userID, now)
}

// Completed returns the user's records whose reviews are all done
func (s *Service) Completed(ctx context.Context, userID int64) ([]models.StudyRecord, error) {
	return s.records.ListCompleted(ctx, userID)
}

// History returns the review log of one of the user's records
func (s *Service) History(ctx context.Context, userID, id int64) ([]models.ReviewLog, error) {
	if _, err := s.records.GetByID(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.history.ListByRecord(ctx, userID, id)
}

// Review performs one review of the record at now.
//
// When a concurrent review of the same record wins the race the review is
// retried against the stored state, which may turn it into
// spaced_repetition.ErrAlreadyComplete.
func (s *Service) Review(ctx context.Context, userID, id int64, now time.Time) (*models.StudyRecord, spaced_repetition.Result, error) {
	for attempt := 1; ; attempt++ {
		rec, err := s.records.GetByID(ctx, userID, id)
		if err != nil {
			return nil, spaced_repetition.Result{}, err
		}

		res, err := s.scheduler.PerformReview(ctx, rec, now)
		switch {
		case err == nil:
			s.log.Info().
				Int64("user_id", userID).
				Int64("record_id", id).
				Int("review_count", res.ReviewCount).
				Bool("complete", res.Complete()).
				Msg("review recorded")
			return rec, res, nil
		case errors.Is(err, spaced_repetition.ErrConflict) && attempt < MaxConflictRetries:
			s.log.Debug().Int64("record_id", id).Int("attempt", attempt).Msg("review conflict, retrying")
			continue
		case errors.Is(err, spaced_repetition.ErrAlreadyComplete):
			return rec, spaced_repetition.Result{}, err
		default:
			s.log.Error().Err(err).Int64("record_id", id).Msg("review failed")
			return nil, spaced_repetition.Result{}, err
		}
	}
}

func (in Input) normalized() Input {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Category = strings.TrimSpace(in.Category)
	return in
}

func (in Input) validate(requireStudiedAt bool) error {
	var missing []string
	if in.Title == "" {
		missing = append(missing, "title")
	}
	if in.Content == "" {
		missing = append(missing, "content")
	}
	if in.Category == "" {
		missing = append(missing, "category")
	}
	if requireStudiedAt && in.StudiedAt.IsZero() {
		missing = append(missing, "studied_at")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}
