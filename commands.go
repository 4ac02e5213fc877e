package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/studylog/internal/bot"
	"github.com/example/studylog/internal/database"
	"github.com/example/studylog/internal/scheduler"
	"github.com/example/studylog/pkg/models"
)

func init() {
	botCmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}
	rootCmd.AddCommand(botCmd)

	// import
	var importTelegramID int64
	var importFile string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import study records from a .xlsx or .csv file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer database.Close()

			user, err := a.users.GetOrCreate(cmd.Context(), &models.User{TelegramID: importTelegramID})
			if err != nil {
				return err
			}
			result, err := a.importer.ImportFile(cmd.Context(), user.ID, importFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "processed: %d\ncreated: %d\nskipped: %d\n", result.TotalProcessed, result.Created, result.Skipped)
			for _, e := range result.Errors {
				fmt.Fprintln(out, e)
			}
			return nil
		},
	}
	importCmd.Flags().Int64VarP(&importTelegramID, "telegram-id", "t", 0, "Telegram user ID owning the records (required)")
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "File to import (required)")
	_ = importCmd.MarkFlagRequired("telegram-id")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)

	// due
	var dueTelegramID int64
	var dueNotify bool
	dueCmd := &cobra.Command{
		Use:   "due",
		Short: "List records that need a review",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer database.Close()

			user, err := a.users.GetByTelegramID(cmd.Context(), dueTelegramID)
			if err != nil {
				return err
			}

			now := time.Now()
			records, err := a.reviews.NeedingReview(cmd.Context(), user.ID, now)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "nothing to review")
				return nil
			}
			for i := range records {
				rec := &records[i]
				fmt.Fprintf(out, "#%d\t%s\t%s\t%s\n", rec.ID, rec.Title, rec.Category, bot.NextReviewLabel(rec, a.cfg.Location()))
			}

			if !dueNotify {
				return nil
			}
			b, err := bot.New(a.cfg, a.reviews, a.users, a.stats, a.importer, a.log)
			if err != nil {
				return err
			}
			sent, err := scheduler.New(a.cfg, a.users, a.reviews, b, a.log).RunManualCheck(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			if sent {
				fmt.Fprintln(os.Stderr, "reminder sent")
			}
			return nil
		},
	}
	dueCmd.Flags().Int64VarP(&dueTelegramID, "telegram-id", "t", 0, "Telegram user ID (required)")
	dueCmd.Flags().BoolVar(&dueNotify, "notify", false, "Also send the reminder over Telegram")
	_ = dueCmd.MarkFlagRequired("telegram-id")
	rootCmd.AddCommand(dueCmd)
}
