package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/studylog/internal/bot"
	"github.com/example/studylog/internal/config"
	"github.com/example/studylog/internal/database"
	"github.com/example/studylog/internal/excel"
	"github.com/example/studylog/internal/logger"
	"github.com/example/studylog/internal/review"
	"github.com/example/studylog/internal/scheduler"
)

const serviceName = "studylog"

var (
	envFileFlag string
	rootCmd     = &cobra.Command{
		Use:          "studylog",
		Short:        "Study log with spaced review reminders over Telegram",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}
)

// app holds the components shared by all commands
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	users    *database.UserRepository
	stats    *database.StatisticsRepository
	reviews  *review.Service
	importer *excel.Importer
}

func main() {
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "Optional .env file to load")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() (*app, error) {
	cfg, err := config.Load(envFileFlag)
	if err != nil {
		return nil, err
	}
	log := logger.New(serviceName, cfg.LogLevel, cfg.LogPretty)

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("config", cfg.String()).Msg("database connected")

	records := database.NewStudyRecordRepository(db)
	reviews := review.NewService(records, database.NewReviewLogRepository(db), log)

	importConfig := excel.DefaultImportConfig()
	importConfig.Location = cfg.Location()

	return &app{
		cfg:      cfg,
		log:      log,
		users:    database.NewUserRepository(db),
		stats:    database.NewStatisticsRepository(db),
		reviews:  reviews,
		importer: excel.NewImporter(reviews, importConfig, log),
	}, nil
}

func runBot(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b, err := bot.New(a.cfg, a.reviews, a.users, a.stats, a.importer, a.log)
	if err != nil {
		return err
	}

	if a.cfg.SchedulerEnabled {
		reminders := scheduler.New(a.cfg, a.users, a.reviews, b, a.log)
		if err := reminders.Start(); err != nil {
			return err
		}
		defer reminders.Stop()
	}

	a.log.Info().Msg("bot started, press Ctrl+C to stop")
	err = b.Start(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error().Err(err).Msg("bot error")
	}

	// Give in-flight updates time to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := b.Stop(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("error during shutdown")
	}
	return nil
}
