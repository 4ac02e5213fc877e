package database

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studylog/internal/config"
	"github.com/example/studylog/internal/spaced_repetition"
	"github.com/example/studylog/pkg/models"
)

var t0 = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Connect(config.NewForTesting())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestUser(t *testing.T, db *sqlx.DB, telegramID int64) *models.User {
	t.Helper()
	user, err := NewUserRepository(db).GetOrCreate(context.Background(), &models.User{
		TelegramID: telegramID,
		Username:   "learner",
	})
	require.NoError(t, err)
	return user
}

func newTestRecord(t *testing.T, repo *StudyRecordRepository, userID int64, studiedAt time.Time) *models.StudyRecord {
	t.Helper()
	rec := &models.StudyRecord{
		UserID:    userID,
		Title:     "Channels",
		Content:   "buffered vs unbuffered",
		Category:  "go",
		StudiedAt: studiedAt,
	}
	require.NoError(t, spaced_repetition.InitializeSchedule(rec))
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func assertSameTime(t *testing.T, want time.Time, got *time.Time) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got), "want %s, got %s", want, *got)
}

func TestStudyRecordCreateAndGet(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := newTestUser(t, db, 100)
	repo := NewStudyRecordRepository(db)

	rec := newTestRecord(t, repo, user.ID, t0)
	require.NotZero(t, rec.ID)

	got, err := repo.GetByID(ctx, user.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Channels", got.Title)
	assert.Equal(t, 0, got.ReviewCount)
	assert.Nil(t, got.LastReviewedAt)
	assert.True(t, t0.Equal(got.StudiedAt))
	assertSameTime(t, t0.AddDate(0, 0, 1), got.NextReviewAt)
}

func TestStudyRecordCreateRequiresSchedule(t *testing.T) {
	db := newTestDB(t)
	user := newTestUser(t, db, 100)

	err := NewStudyRecordRepository(db).Create(context.Background(), &models.StudyRecord{
		UserID: user.ID, Title: "t", Content: "c", Category: "c", StudiedAt: t0,
	})
	assert.ErrorIs(t, err, spaced_repetition.ErrInvariant)
}

func TestStudyRecordScopedByOwner(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	owner := newTestUser(t, db, 100)
	other := newTestUser(t, db, 200)
	repo := NewStudyRecordRepository(db)
	rec := newTestRecord(t, repo, owner.ID, t0)

	_, err := repo.GetByID(ctx, other.ID, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, other.ID, rec.ID), ErrNotFound)

	rec.UserID = other.ID
	rec.Title = "stolen"
	assert.ErrorIs(t, repo.Update(ctx, rec), ErrNotFound)
}

func TestStudyRecordUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := newTestUser(t, db, 100)
	repo := NewStudyRecordRepository(db)
	rec := newTestRecord(t, repo, user.ID, t0)

	rec.Title = "Select"
	rec.Category = "concurrency"
	require.NoError(t, repo.Update(ctx, rec))

	got, err := repo.GetByID(ctx, user.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Select", got.Title)
	assert.Equal(t, "concurrency", got.Category)

	require.NoError(t, repo.Delete(ctx, user.ID, rec.ID))
	_, err = repo.GetByID(ctx, user.ID, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStudyRecordListOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := newTestUser(t, db, 100)
	repo := NewStudyRecordRepository(db)

	for i := 0; i < PageSize+5; i++ {
		newTestRecord(t, repo, user.ID, t0.AddDate(0, 0, i))
	}

	first, err := repo.List(ctx, user.ID, 1)
	require.NoError(t, err)
	require.Len(t, first, PageSize)
	assert.True(t, t0.AddDate(0, 0, PageSize+4).Equal(first[0].StudiedAt))

	second, err := repo.List(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, second, 5)
	assert.True(t, t0.Equal(second[4].StudiedAt))

	n, err := repo.Count(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, PageSize+5, n)
}

func TestListNeedingReviewAndCompleted(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := newTestUser(t, db, 100)
	other := newTestUser(t, db, 200)
	repo := NewStudyRecordRepository(db)
	scheduler := spaced_repetition.NewReviewScheduler(repo)
	now := t0.AddDate(0, 0, 5)

	due := newTestRecord(t, repo, user.ID, t0)
	scheduled := newTestRecord(t, repo, user.ID, now)
	// due, but owned by someone else
	newTestRecord(t, repo, other.ID, t0)
	completed := newTestRecord(t, repo, user.ID, t0.AddDate(0, 0, -30))
	for i := 0; i < spaced_repetition.MaxReviewTimes; i++ {
		_, err := scheduler.PerformReview(ctx, completed, t0.AddDate(0, 0, -20+i*5))
		require.NoError(t, err)
	}

	needing, err := repo.ListNeedingReview(ctx, user.ID, now)
	require.NoError(t, err)
	require.Len(t, needing, 1)
	assert.Equal(t, due.ID, needing[0].ID)

	done, err := repo.ListCompleted(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, completed.ID, done[0].ID)
	assert.Nil(t, done[0].NextReviewAt)

	later, err := repo.ListNeedingReview(ctx, user.ID, now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, later, 2)
	assert.Equal(t, scheduled.ID, later[1].ID)
}

func TestSaveReviewPersistsScheduleAndLog(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := newTestUser(t, db, 100)
	repo := NewStudyRecordRepository(db)
	scheduler := spaced_repetition.NewReviewScheduler(repo)
	rec := newTestRecord(t, repo, user.ID, t0)

	reviewedAt := t0.Add(26 * time.Hour)
	_, err := scheduler.PerformReview(ctx, rec, reviewedAt)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, user.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReviewCount)
	assertSameTime(t, reviewedAt, got.LastReviewedAt)
	assertSameTime(t, reviewedAt.AddDate(0, 0, 3), got.NextReviewAt)

	logs, err := NewReviewLogRepository(db).ListByRecord(ctx, user.ID, rec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1, logs[0].ReviewNumber)
	assert.True(t, reviewedAt.Equal(logs[0].ReviewedAt))
	assertSameTime(t, reviewedAt.AddDate(0, 0, 3), logs[0].NextReviewAt)
}

func TestSaveReviewRejectsStaleWriter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := newTestUser(t, db, 100)
	repo := NewStudyRecordRepository(db)
	scheduler := spaced_repetition.NewReviewScheduler(repo)
	rec := newTestRecord(t, repo, user.ID, t0)

	first, err := repo.GetByID(ctx, user.ID, rec.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, user.ID, rec.ID)
	require.NoError(t, err)

	_, err = scheduler.PerformReview(ctx, first, t0.AddDate(0, 0, 1))
	require.NoError(t, err)

	_, err = scheduler.PerformReview(ctx, second, t0.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, spaced_repetition.ErrConflict)
	assert.Equal(t, 0, second.ReviewCount)

	stored, err := repo.GetByID(ctx, user.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ReviewCount)

	logs, err := NewReviewLogRepository(db).ListByRecord(ctx, user.ID, rec.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestSaveReviewRejectsInvariantViolation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := newTestUser(t, db, 100)
	repo := NewStudyRecordRepository(db)
	rec := newTestRecord(t, repo, user.ID, t0)

	// Bypass the scheduler: a complete record must not keep a next review date.
	reviewed := t0.AddDate(0, 0, 2)
	rec.ReviewCount = spaced_repetition.MaxReviewTimes
	rec.LastReviewedAt = &reviewed

	err := repo.SaveReview(ctx, rec, 0)
	assert.ErrorIs(t, err, spaced_repetition.ErrInvariant)

	stored, err := repo.GetByID(ctx, user.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ReviewCount)
}

func TestSaveReviewRollsBackWhenLogInsertFails(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := newTestUser(t, db, 100)
	repo := NewStudyRecordRepository(db)
	rec := newTestRecord(t, repo, user.ID, t0)

	// A log row for review 1 already exists, so the guarded update succeeds
	// but the log insert hits the unique index.
	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO review_logs (study_record_id, user_id, review_number, reviewed_at, next_review_at)
		VALUES (?, ?, ?, ?, ?)`), rec.ID, user.ID, 1, t0, nil)
	require.NoError(t, err)

	_, err = spaced_repetition.NewReviewScheduler(repo).PerformReview(ctx, rec, t0.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, spaced_repetition.ErrConflict)

	// The update was rolled back and the single connection was released.
	stored, err := repo.GetByID(ctx, user.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ReviewCount)
	assert.Nil(t, stored.LastReviewedAt)
	assertSameTime(t, t0.AddDate(0, 0, 1), stored.NextReviewAt)
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := newTestUser(t, db, 100)
	repo := NewStudyRecordRepository(db)
	rec := newTestRecord(t, repo, user.ID, t0)
	_, err := spaced_repetition.NewReviewScheduler(repo).PerformReview(ctx, rec, t0.AddDate(0, 0, 1))
	require.NoError(t, err)

	require.NoError(t, NewUserRepository(db).Delete(ctx, user.ID))

	n, err := repo.Count(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	var logs int
	require.NoError(t, db.Get(&logs, `SELECT COUNT(*) FROM review_logs`))
	assert.Zero(t, logs)
}

func TestUserGetOrCreateAndNotifications(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewUserRepository(db)

	u, err := repo.GetOrCreate(ctx, &models.User{TelegramID: 42, Username: "ann"})
	require.NoError(t, err)
	assert.True(t, u.NotificationEnabled)
	assert.Equal(t, DefaultNotificationHour, u.NotificationHour)

	again, err := repo.GetOrCreate(ctx, &models.User{TelegramID: 42})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "ann", again.Username)

	err = repo.Create(ctx, &models.User{TelegramID: 42})
	assert.True(t, isUniqueViolation(err))

	quiet, err := repo.GetOrCreate(ctx, &models.User{TelegramID: 43})
	require.NoError(t, err)
	quiet.NotificationEnabled = false
	require.NoError(t, repo.Update(ctx, quiet))

	users, err := repo.GetUsersForNotification(ctx, DefaultNotificationHour)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(42), users[0].TelegramID)

	_, err = repo.GetByTelegramID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatisticsSummary(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user := newTestUser(t, db, 100)
	repo := NewStudyRecordRepository(db)
	scheduler := spaced_repetition.NewReviewScheduler(repo)
	now := t0.AddDate(0, 0, 10)

	newTestRecord(t, repo, user.ID, t0)
	newTestRecord(t, repo, user.ID, now)
	done := newTestRecord(t, repo, user.ID, t0)
	for i := 1; i <= spaced_repetition.MaxReviewTimes; i++ {
		_, err := scheduler.PerformReview(ctx, done, t0.AddDate(0, 0, i))
		require.NoError(t, err)
	}

	stats, err := NewStatisticsRepository(db).GetUserSummary(ctx, user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, 1, stats.NeedsReview)
	assert.Equal(t, 1, stats.Scheduled)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 3, stats.ReviewEvents)
}
