package spaced_repetition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studylog/pkg/models"
)

type fakeSaver struct {
	calls         int
	previousCount int
	err           error
}

func (f *fakeSaver) SaveReview(_ context.Context, _ *models.StudyRecord, previousCount int) error {
	f.calls++
	f.previousCount = previousCount
	return f.err
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func newRecord(t *testing.T, studiedAt time.Time) *models.StudyRecord {
	t.Helper()
	rec := &models.StudyRecord{
		UserID:    1,
		Title:     "Go generics",
		Content:   "type parameters",
		Category:  "go",
		StudiedAt: studiedAt,
	}
	require.NoError(t, InitializeSchedule(rec))
	return rec
}

func TestInitializeSchedule(t *testing.T) {
	rec := newRecord(t, at("2025-01-01T00:00"))

	assert.Equal(t, 0, rec.ReviewCount)
	assert.Nil(t, rec.LastReviewedAt)
	require.NotNil(t, rec.NextReviewAt)
	assert.Equal(t, at("2025-01-02T00:00"), *rec.NextReviewAt)
}

func TestInitializeScheduleKeepsTimeOfDay(t *testing.T) {
	rec := newRecord(t, at("2025-01-01T10:00"))
	assert.Equal(t, at("2025-01-02T10:00"), *rec.NextReviewAt)
}

func TestInitializeScheduleRequiresStudiedAt(t *testing.T) {
	rec := &models.StudyRecord{Title: "t", Content: "c", Category: "c"}
	err := InitializeSchedule(rec)
	assert.ErrorIs(t, err, ErrInvariant)
	assert.Nil(t, rec.NextReviewAt)
}

func TestInitializeScheduleIsNoOpOnScheduledRecord(t *testing.T) {
	rec := newRecord(t, at("2025-01-01T00:00"))
	rec.StudiedAt = at("2025-03-01T00:00")

	require.NoError(t, InitializeSchedule(rec))
	assert.Equal(t, at("2025-01-02T00:00"), *rec.NextReviewAt)

	reviewed := &models.StudyRecord{
		ID:             7,
		StudiedAt:      at("2025-01-01T00:00"),
		ReviewCount:    1,
		LastReviewedAt: ptr(at("2025-01-02T10:00")),
		NextReviewAt:   ptr(at("2025-01-05T10:00")),
	}
	require.NoError(t, InitializeSchedule(reviewed))
	assert.Equal(t, 1, reviewed.ReviewCount)
	assert.Equal(t, at("2025-01-05T10:00"), *reviewed.NextReviewAt)
}

func TestIsComplete(t *testing.T) {
	rec := &models.StudyRecord{ReviewCount: MaxReviewTimes - 1}
	assert.False(t, IsComplete(rec))
	rec.ReviewCount = MaxReviewTimes
	assert.True(t, IsComplete(rec))
}

func TestPerformReviewFirst(t *testing.T) {
	saver := &fakeSaver{}
	s := NewReviewScheduler(saver)
	rec := newRecord(t, at("2025-01-01T00:00"))

	res, err := s.PerformReview(context.Background(), rec, at("2025-01-02T10:00"))
	require.NoError(t, err)

	assert.Equal(t, 1, rec.ReviewCount)
	assert.Equal(t, at("2025-01-02T10:00"), *rec.LastReviewedAt)
	assert.Equal(t, at("2025-01-05T10:00"), *rec.NextReviewAt)
	assert.Equal(t, 1, res.ReviewCount)
	assert.False(t, res.Complete())
	assert.Equal(t, 1, saver.calls)
	assert.Equal(t, 0, saver.previousCount)
}

func TestPerformReviewSecondIsAnchoredOnReviewTime(t *testing.T) {
	s := NewReviewScheduler(&fakeSaver{})
	rec := &models.StudyRecord{
		ID:             1,
		StudiedAt:      at("2025-01-01T00:00"),
		ReviewCount:    1,
		LastReviewedAt: ptr(at("2025-01-02T10:00")),
		NextReviewAt:   ptr(at("2025-01-05T10:00")),
	}

	_, err := s.PerformReview(context.Background(), rec, at("2025-01-06T00:00"))
	require.NoError(t, err)

	assert.Equal(t, 2, rec.ReviewCount)
	assert.Equal(t, at("2025-01-06T00:00"), *rec.LastReviewedAt)
	assert.Equal(t, at("2025-01-13T00:00"), *rec.NextReviewAt)
}

func TestPerformReviewLastCompletesSchedule(t *testing.T) {
	s := NewReviewScheduler(&fakeSaver{})
	rec := &models.StudyRecord{
		ID:             1,
		StudiedAt:      at("2025-01-01T00:00"),
		ReviewCount:    2,
		LastReviewedAt: ptr(at("2025-01-06T00:00")),
		NextReviewAt:   ptr(at("2025-01-13T00:00")),
	}
	now := at("2025-01-14T08:00")

	res, err := s.PerformReview(context.Background(), rec, now)
	require.NoError(t, err)

	assert.Equal(t, MaxReviewTimes, rec.ReviewCount)
	assert.Nil(t, rec.NextReviewAt)
	assert.True(t, res.Complete())
	assert.Equal(t, StatusComplete, DueStatus(rec, now))
}

func TestPerformReviewOnCompleteRecord(t *testing.T) {
	saver := &fakeSaver{}
	s := NewReviewScheduler(saver)
	last := at("2025-01-14T08:00")
	rec := &models.StudyRecord{
		ID:             1,
		StudiedAt:      at("2025-01-01T00:00"),
		ReviewCount:    MaxReviewTimes,
		LastReviewedAt: &last,
	}

	_, err := s.PerformReview(context.Background(), rec, at("2025-02-01T00:00"))
	assert.ErrorIs(t, err, ErrAlreadyComplete)

	assert.Equal(t, MaxReviewTimes, rec.ReviewCount)
	assert.Equal(t, &last, rec.LastReviewedAt)
	assert.Nil(t, rec.NextReviewAt)
	assert.Zero(t, saver.calls)
}

func TestPerformReviewRollsBackOnStoreFailure(t *testing.T) {
	s := NewReviewScheduler(&fakeSaver{err: errors.New("disk full")})
	rec := newRecord(t, at("2025-01-01T00:00"))
	before := *rec

	_, err := s.PerformReview(context.Background(), rec, at("2025-01-02T10:00"))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, before, *rec)
}

func TestPerformReviewPassesConflictThrough(t *testing.T) {
	s := NewReviewScheduler(&fakeSaver{err: ErrConflict})
	rec := newRecord(t, at("2025-01-01T00:00"))
	before := *rec

	_, err := s.PerformReview(context.Background(), rec, at("2025-01-02T10:00"))
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrPersistence)
	assert.Equal(t, before, *rec)
}

func TestPerformReviewRejectsInvalidState(t *testing.T) {
	saver := &fakeSaver{}
	s := NewReviewScheduler(saver)
	rec := &models.StudyRecord{ID: 1, ReviewCount: -1}

	_, err := s.PerformReview(context.Background(), rec, at("2025-01-02T10:00"))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, ErrInvariant)
	assert.Equal(t, -1, rec.ReviewCount)
	assert.Nil(t, rec.LastReviewedAt)
	assert.Zero(t, saver.calls)
}

func TestInvariantsHoldAcrossFullSchedule(t *testing.T) {
	s := NewReviewScheduler(&fakeSaver{})
	rec := newRecord(t, at("2025-01-01T00:00"))
	now := at("2025-01-02T00:00")

	for i := 1; i <= MaxReviewTimes; i++ {
		_, err := s.PerformReview(context.Background(), rec, now)
		require.NoError(t, err)
		require.NoError(t, Validate(rec))
		assert.Equal(t, i, rec.ReviewCount)
		now = now.AddDate(0, 0, 10)
	}

	_, err := s.PerformReview(context.Background(), rec, now)
	assert.ErrorIs(t, err, ErrAlreadyComplete)
}

func TestDueStatus(t *testing.T) {
	now := at("2025-01-10T12:00")
	tests := []struct {
		name string
		rec  models.StudyRecord
		want Status
	}{
		{"complete", models.StudyRecord{ReviewCount: MaxReviewTimes, LastReviewedAt: ptr(now)}, StatusComplete},
		{"overdue", models.StudyRecord{ReviewCount: 1, NextReviewAt: ptr(now.AddDate(0, 0, -1))}, StatusOverdue},
		{"due exactly now", models.StudyRecord{ReviewCount: 1, NextReviewAt: ptr(now)}, StatusOverdue},
		{"scheduled", models.StudyRecord{ReviewCount: 1, NextReviewAt: ptr(now.AddDate(0, 0, 1))}, StatusScheduled},
		{"never reviewed", models.StudyRecord{NextReviewAt: ptr(now.Add(time.Hour))}, StatusScheduled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			before := rec
			assert.Equal(t, tt.want, DueStatus(&rec, now))
			assert.Equal(t, before, rec)
		})
	}
}

func TestValidate(t *testing.T) {
	studied := at("2025-01-01T00:00")
	tests := []struct {
		name string
		rec  models.StudyRecord
		ok   bool
	}{
		{"fresh", models.StudyRecord{StudiedAt: studied, NextReviewAt: ptr(studied.AddDate(0, 0, 1))}, true},
		{"count too high", models.StudyRecord{ReviewCount: 4, LastReviewedAt: ptr(studied)}, false},
		{"reviewed without timestamp", models.StudyRecord{ReviewCount: 1, NextReviewAt: ptr(studied.AddDate(0, 0, 3))}, false},
		{"complete with next date", models.StudyRecord{ReviewCount: 3, LastReviewedAt: ptr(studied), NextReviewAt: ptr(studied.AddDate(0, 0, 3))}, false},
		{"incomplete without next date", models.StudyRecord{ReviewCount: 1, LastReviewedAt: ptr(studied)}, false},
		{"next before last review", models.StudyRecord{ReviewCount: 1, LastReviewedAt: ptr(studied), NextReviewAt: ptr(studied)}, false},
		{"next before studied", models.StudyRecord{StudiedAt: studied, NextReviewAt: ptr(studied.Add(-time.Hour))}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.rec)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvariant)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "scheduled", StatusScheduled.String())
	assert.Equal(t, "overdue", StatusOverdue.String())
	assert.Equal(t, "complete", StatusComplete.String())
	assert.Equal(t, "Status(9)", Status(9).String())
}
