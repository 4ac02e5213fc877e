package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/example/studylog/internal/config"
	"github.com/example/studylog/pkg/models"
)

// Notifier sends a reminder listing the records a user has to review
type Notifier interface {
	SendReminders(ctx context.Context, user *models.User, records []models.StudyRecord) error
}

// UserSource finds the users to remind
type UserSource interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetUsersForNotification(ctx context.Context, hour int) ([]models.User, error)
}

// DueSource lists the records that need a review
type DueSource interface {
	NeedingReview(ctx context.Context, userID int64, now time.Time) ([]models.StudyRecord, error)
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	users     UserSource
	due       DueSource
	notifier  Notifier
	log       zerolog.Logger

	startHour int
	endHour   int
	interval  time.Duration
	loc       *time.Location
	now       func() time.Time
}

// New creates a new scheduler instance
func New(cfg *config.Config, users UserSource, due DueSource, notifier Notifier, log zerolog.Logger) *Scheduler {
	loc := cfg.Location()
	return &Scheduler{
		scheduler: gocron.NewScheduler(loc),
		users:     users,
		due:       due,
		notifier:  notifier,
		log:       log.With().Str("component", "scheduler").Logger(),
		startHour: cfg.NotificationStartHour,
		endHour:   cfg.NotificationEndHour,
		interval:  cfg.DueCheckInterval,
		loc:       loc,
		now:       time.Now,
	}
}

// Start schedules the periodic reminder check and runs it in the background
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).Do(s.checkAndSendReminders); err != nil {
		return fmt.Errorf("failed to schedule reminder job: %w", err)
	}
	s.scheduler.StartAsync()
	s.log.Info().Dur("interval", s.interval).
		Int("start_hour", s.startHour).
		Int("end_hour", s.endHour).
		Msg("reminder scheduler started")
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.log.Info().Msg("reminder scheduler stopped")
}

func (s *Scheduler) checkAndSendReminders() {
	if _, err := s.CheckReminders(context.Background()); err != nil {
		s.log.Error().Err(err).Msg("reminder check failed")
	}
}

// CheckReminders reminds every user whose notification hour is the current
// hour and who has records to review. It returns the number of reminders sent.
func (s *Scheduler) CheckReminders(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)
	hour := now.Hour()

	if !s.inWindow(hour) {
		s.log.Debug().Int("hour", hour).Msg("outside notification hours, skipping reminders")
		return 0, nil
	}

	users, err := s.users.GetUsersForNotification(ctx, hour)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range users {
		user := &users[i]
		ok, err := s.remind(ctx, user, now)
		if err != nil {
			s.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to send reminder")
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

// RunManualCheck forces a check for a specific user, ignoring the
// notification window. It reports whether a reminder was sent.
func (s *Scheduler) RunManualCheck(ctx context.Context, userID int64) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.remind(ctx, user, s.now())
}

func (s *Scheduler) remind(ctx context.Context, user *models.User, now time.Time) (bool, error) {
	records, err := s.due.NeedingReview(ctx, user.ID, now)
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	if err := s.notifier.SendReminders(ctx, user, records); err != nil {
		return false, err
	}
	s.log.Info().Int64("user_id", user.ID).Int("records", len(records)).Msg("reminder sent")
	return true, nil
}

func (s *Scheduler) inWindow(hour int) bool {
	return hour >= s.startHour && hour <= s.endHour
}
