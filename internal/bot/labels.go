package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/studylog/internal/spaced_repetition"
	"github.com/example/studylog/pkg/models"
)

const dateLayout = "2006-01-02"

// Telegram rejects messages over 4096 characters and counts some emoji twice
const (
	maxMessageLength  = 4000
	maxContentPreview = 1500
)

// Review outcome messages
const (
	msgReviewedNext     = "✅ Reviewed! Next review on %s."
	msgReviewedComplete = "🎉 Reviewed! All reviews are complete!"
	msgAlreadyComplete  = "This record's reviews are already complete."
	msgReviewFailed     = "❌ Failed to record the review. Please try again later."
)

// NextReviewLabel describes when the record is next up for review
func NextReviewLabel(rec *models.StudyRecord, loc *time.Location) string {
	switch {
	case spaced_repetition.IsComplete(rec):
		return "Review complete"
	case rec.NextReviewAt == nil:
		return "Not yet reviewed"
	default:
		return formatDate(*rec.NextReviewAt, loc)
	}
}

// ReviewMessage maps the outcome of a review to the reply shown to the user
func ReviewMessage(res spaced_repetition.Result, err error, loc *time.Location) string {
	switch {
	case err == nil && res.NextReviewAt == nil:
		return msgReviewedComplete
	case err == nil:
		return fmt.Sprintf(msgReviewedNext, formatDate(*res.NextReviewAt, loc))
	case errors.Is(err, spaced_repetition.ErrAlreadyComplete):
		return msgAlreadyComplete
	default:
		return msgReviewFailed
	}
}

func statusLabel(rec *models.StudyRecord, now time.Time) string {
	switch spaced_repetition.DueStatus(rec, now) {
	case spaced_repetition.StatusComplete:
		return "✅ complete"
	case spaced_repetition.StatusOverdue:
		return "⏰ due"
	default:
		return "📅 scheduled"
	}
}

// recordLine renders a record as one line of a list
func recordLine(rec *models.StudyRecord, loc *time.Location, now time.Time) string {
	return fmt.Sprintf("#%d %s [%s] · %s · next: %s",
		rec.ID, rec.Title, rec.Category, statusLabel(rec, now), NextReviewLabel(rec, loc))
}

func recordDetails(rec *models.StudyRecord, history []models.ReviewLog, loc *time.Location, now time.Time) string {
	var text strings.Builder
	text.WriteString(fmt.Sprintf("📖 #%d %s\n\n", rec.ID, rec.Title))
	text.WriteString(fmt.Sprintf("Category: %s\n", rec.Category))
	text.WriteString(fmt.Sprintf("Studied: %s\n", formatDate(rec.StudiedAt, loc)))
	text.WriteString(fmt.Sprintf("Reviews: %d/%d\n", rec.ReviewCount, spaced_repetition.MaxReviewTimes))
	text.WriteString(fmt.Sprintf("Status: %s\n", statusLabel(rec, now)))
	text.WriteString(fmt.Sprintf("Next review: %s\n", NextReviewLabel(rec, loc)))
	text.WriteString("\n")
	text.WriteString(truncateText(rec.Content, maxContentPreview))
	text.WriteString("\n")

	if len(history) > 0 {
		text.WriteString("\nHistory:\n")
		for _, entry := range history {
			text.WriteString(fmt.Sprintf("%d. %s\n", entry.ReviewNumber, formatDate(entry.ReviewedAt, loc)))
		}
	}
	return text.String()
}

// recordLines renders at most limit records, one per line, and counts the rest
func recordLines(records []models.StudyRecord, limit int, loc *time.Location, now time.Time) string {
	var text strings.Builder
	for i := range records {
		if i == limit {
			text.WriteString(fmt.Sprintf("…and %d more, see /due after reviewing these.\n", len(records)-limit))
			break
		}
		text.WriteString(recordLine(&records[i], loc, now))
		text.WriteString("\n")
	}
	return text.String()
}

// truncateText cuts s to at most max runes, marking the cut with an ellipsis
func truncateText(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

func formatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

func boolToEnabledString(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
