package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/studylog/internal/database"
	"github.com/example/studylog/internal/review"
	"github.com/example/studylog/internal/spaced_repetition"
	"github.com/example/studylog/pkg/models"
)

const (
	usageAdd    = "Usage: /add Title | Category | YYYY-MM-DD | Content"
	usageEdit   = "Usage: /edit <id> Title | Category | Content"
	usageNotify = "Usage: /notify on|off"
	usageTime   = "Usage: /time <hour> (0-23)"

	maxImportErrorsShown = 10
)

var botCommands = []tgbotapi.BotCommand{
	{Command: "add", Description: "Add a study record"},
	{Command: "list", Description: "List your study records"},
	{Command: "due", Description: "Records that need a review"},
	{Command: "done", Description: "Records with all reviews complete"},
	{Command: "show", Description: "Show a record and its review history"},
	{Command: "review", Description: "Mark a record as reviewed"},
	{Command: "stats", Description: "Your statistics"},
	{Command: "settings", Description: "Notification settings"},
	{Command: "import", Description: "Import records from .xlsx or .csv"},
	{Command: "help", Description: "Show help"},
}

const helpText = `📚 Study log

Every record is reviewed three times: one day after you studied it, then three and seven days after each review.

/add Title | Category | YYYY-MM-DD | Content - add a record
/list [page] - all records, most recently studied first
/due - records that need a review
/done - records with all reviews complete
/show <id> - record details and review history
/review <id> - mark a record as reviewed
/edit <id> Title | Category | Content - change a record
/delete <id> - delete a record
/stats - your statistics
/settings - notification settings
/notify on|off - turn reminders on or off
/time <hour> - reminder hour (0-23)
/import - import records from a .xlsx or .csv file
/cancel - cancel an import`

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.From == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}

	user, err := b.currentUser(ctx, message.From)
	if err != nil {
		return err
	}

	chatID := message.Chat.ID
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start":
		return b.handleStart(chatID, user)
	case "help":
		return b.send(chatID, helpText)
	case "add":
		return b.handleAdd(ctx, chatID, user, args)
	case "list":
		return b.handleList(ctx, chatID, user, parsePage(args))
	case "due":
		return b.handleDue(ctx, chatID, user)
	case "done":
		return b.handleDone(ctx, chatID, user)
	case "show":
		return b.withRecordID(chatID, args, "Usage: /show <id>", func(id int64) error {
			return b.handleShow(ctx, chatID, user, id)
		})
	case "review":
		return b.withRecordID(chatID, args, "Usage: /review <id>", func(id int64) error {
			return b.handleReview(ctx, chatID, user, id)
		})
	case "edit":
		return b.handleEdit(ctx, chatID, user, args)
	case "delete":
		return b.withRecordID(chatID, args, "Usage: /delete <id>", func(id int64) error {
			return b.handleDelete(ctx, chatID, user, id)
		})
	case "stats":
		return b.handleStats(ctx, chatID, user)
	case "settings":
		return b.handleSettings(chatID, user)
	case "notify":
		return b.handleNotify(ctx, chatID, user, args)
	case "time":
		return b.handleTime(ctx, chatID, user, args)
	case "import":
		return b.handleImport(chatID, message.From.ID)
	case "cancel":
		b.setAwaitingUpload(chatID, false)
		return b.sendWithKeyboard(chatID, "Action cancelled.", createKeyboard(b.MainMenuButtons()))
	default:
		return b.send(chatID, "Unknown command. Use /help to see the available commands.")
	}
}

// HandleCallback handles inline button presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback == nil || callback.Message == nil || callback.Message.Chat == nil || callback.From == nil {
		return fmt.Errorf("invalid callback data: required fields are missing")
	}

	// Always answer the callback query to remove the loading state
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("failed to answer callback")
	}

	user, err := b.currentUser(ctx, callback.From)
	if err != nil {
		return err
	}
	chatID := callback.Message.Chat.ID
	data := callback.Data

	switch {
	case data == callbackMenu:
		return b.sendWithKeyboard(chatID, "🤖 Main menu", createKeyboard(b.MainMenuButtons()))
	case data == callbackDue:
		return b.handleDue(ctx, chatID, user)
	case data == callbackDone:
		return b.handleDone(ctx, chatID, user)
	case data == callbackStats:
		return b.handleStats(ctx, chatID, user)
	case data == callbackHelp:
		return b.send(chatID, helpText)
	case strings.HasPrefix(data, callbackNotify):
		return b.handleNotify(ctx, chatID, user, strings.TrimPrefix(data, callbackNotify))
	case strings.HasPrefix(data, callbackList):
		return b.handleList(ctx, chatID, user, parsePage(strings.TrimPrefix(data, callbackList)))
	case strings.HasPrefix(data, callbackReview):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, callbackReview), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid record ID in callback data: %w", err)
		}
		return b.handleReview(ctx, chatID, user, id)
	case strings.HasPrefix(data, callbackShow):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, callbackShow), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid record ID in callback data: %w", err)
		}
		return b.handleShow(ctx, chatID, user, id)
	default:
		return b.send(chatID, "⚠️ Unknown action")
	}
}

func (b *Bot) handleStart(chatID int64, user *models.User) error {
	name := user.FirstName
	if name == "" {
		name = user.Username
	}
	text := fmt.Sprintf("👋 Welcome, %s!\n\n"+
		"Log what you study and I will remind you to review it one, three and seven days apart.\n\n"+
		"Start with /add or see /help.", name)
	return b.sendWithKeyboard(chatID, text, createKeyboard(b.MainMenuButtons()))
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, user *models.User, args string) error {
	parts := splitFields(args, 4)
	if len(parts) < 4 {
		return b.send(chatID, usageAdd)
	}

	studiedAt, err := b.parseDate(parts[2])
	if err != nil {
		return b.send(chatID, fmt.Sprintf("❌ Invalid date %q, use YYYY-MM-DD.", parts[2]))
	}

	rec, err := b.reviews.Create(ctx, user.ID, review.Input{
		Title:     parts[0],
		Category:  parts[1],
		StudiedAt: studiedAt,
		Content:   parts[3],
	})
	if errors.Is(err, review.ErrInvalidInput) {
		return b.send(chatID, "❌ Title, category, date and content are all required.\n"+usageAdd)
	}
	if err != nil {
		return err
	}

	text := fmt.Sprintf("📚 Added #%d %s. First review on %s.", rec.ID, rec.Title, NextReviewLabel(rec, b.loc))
	return b.send(chatID, text)
}

func (b *Bot) handleList(ctx context.Context, chatID int64, user *models.User, page int) error {
	p, err := b.reviews.List(ctx, user.ID, page)
	if err != nil {
		return err
	}
	if p.Total == 0 {
		return b.send(chatID, "You have no study records yet. Add one with /add.")
	}

	var text strings.Builder
	text.WriteString(fmt.Sprintf("📋 Your study records (page %d/%d, %d total)\n\n", p.Number, p.Pages, p.Total))
	now := b.now()
	for i := range p.Records {
		text.WriteString(recordLine(&p.Records[i], b.loc, now))
		text.WriteString("\n")
	}

	var nav []MenuButton
	if p.Number > 1 {
		nav = append(nav, MenuButton{Text: "⬅️ Previous", CallbackData: fmt.Sprintf("%s%d", callbackList, p.Number-1)})
	}
	if p.Number < p.Pages {
		nav = append(nav, MenuButton{Text: "Next ➡️", CallbackData: fmt.Sprintf("%s%d", callbackList, p.Number+1)})
	}
	var keyboard tgbotapi.InlineKeyboardMarkup
	if len(nav) > 0 {
		keyboard = createKeyboard([][]MenuButton{nav})
	}
	return b.sendWithKeyboard(chatID, text.String(), keyboard)
}

func (b *Bot) handleDue(ctx context.Context, chatID int64, user *models.User) error {
	now := b.now()
	records, err := b.reviews.NeedingReview(ctx, user.ID, now)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return b.send(chatID, "🎉 Nothing to review right now.")
	}

	var text strings.Builder
	text.WriteString(fmt.Sprintf("⏰ Records to review (%d):\n\n", len(records)))
	text.WriteString(recordLines(records, b.config.MaxListedRecords, b.loc, now))
	return b.sendWithKeyboard(chatID, text.String(), b.reviewKeyboard(records))
}

func (b *Bot) handleDone(ctx context.Context, chatID int64, user *models.User) error {
	records, err := b.reviews.Completed(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return b.send(chatID, "No record has finished its reviews yet.")
	}

	var text strings.Builder
	text.WriteString(fmt.Sprintf("✅ Completed records (%d):\n\n", len(records)))
	for i, rec := range records {
		if i == b.config.MaxListedRecords {
			text.WriteString(fmt.Sprintf("…and %d more.\n", len(records)-i))
			break
		}
		text.WriteString(fmt.Sprintf("#%d %s [%s] · studied %s\n", rec.ID, rec.Title, rec.Category, formatDate(rec.StudiedAt, b.loc)))
	}
	return b.send(chatID, text.String())
}

func (b *Bot) handleShow(ctx context.Context, chatID int64, user *models.User, id int64) error {
	rec, err := b.reviews.Get(ctx, user.ID, id)
	if errors.Is(err, database.ErrNotFound) {
		return b.send(chatID, notFoundText(id))
	}
	if err != nil {
		return err
	}

	history, err := b.reviews.History(ctx, user.ID, id)
	if err != nil {
		return err
	}

	var keyboard tgbotapi.InlineKeyboardMarkup
	if !spaced_repetition.IsComplete(rec) {
		keyboard = createKeyboard([][]MenuButton{{
			{Text: "✅ Review", CallbackData: fmt.Sprintf("%s%d", callbackReview, rec.ID)},
		}})
	}
	return b.sendWithKeyboard(chatID, recordDetails(rec, history, b.loc, b.now()), keyboard)
}

func (b *Bot) handleReview(ctx context.Context, chatID int64, user *models.User, id int64) error {
	_, res, err := b.reviews.Review(ctx, user.ID, id, b.now())
	if errors.Is(err, database.ErrNotFound) {
		return b.send(chatID, notFoundText(id))
	}
	if err != nil && !errors.Is(err, spaced_repetition.ErrAlreadyComplete) {
		b.log.Error().Err(err).Int64("record_id", id).Msg("review failed")
	}
	return b.send(chatID, ReviewMessage(res, err, b.loc))
}

func (b *Bot) handleEdit(ctx context.Context, chatID int64, user *models.User, args string) error {
	idArg, rest, _ := strings.Cut(args, " ")
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return b.send(chatID, usageEdit)
	}
	parts := splitFields(rest, 3)
	if len(parts) < 3 {
		return b.send(chatID, usageEdit)
	}

	rec, err := b.reviews.Edit(ctx, user.ID, id, review.Input{
		Title:    parts[0],
		Category: parts[1],
		Content:  parts[2],
	})
	switch {
	case errors.Is(err, database.ErrNotFound):
		return b.send(chatID, notFoundText(id))
	case errors.Is(err, review.ErrInvalidInput):
		return b.send(chatID, "❌ Title, category and content are all required.\n"+usageEdit)
	case err != nil:
		return err
	}
	return b.send(chatID, fmt.Sprintf("✏️ Updated #%d %s.", rec.ID, rec.Title))
}

func (b *Bot) handleDelete(ctx context.Context, chatID int64, user *models.User, id int64) error {
	err := b.reviews.Delete(ctx, user.ID, id)
	if errors.Is(err, database.ErrNotFound) {
		return b.send(chatID, notFoundText(id))
	}
	if err != nil {
		return err
	}
	return b.send(chatID, fmt.Sprintf("🗑 Deleted #%d.", id))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64, user *models.User) error {
	stats, err := b.stats.GetUserSummary(ctx, user.ID, b.now())
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}
	if stats.TotalRecords == 0 {
		return b.send(chatID, "You have no statistics yet. Add a study record with /add!")
	}

	completionRate := float64(stats.Completed) / float64(stats.TotalRecords) * 100
	text := fmt.Sprintf("📊 Your statistics\n\n"+
		"Records: %d\n"+
		"Need review: %d\n"+
		"Scheduled: %d\n"+
		"Completed: %d (%.1f%%)\n"+
		"Reviews done: %d",
		stats.TotalRecords, stats.NeedsReview, stats.Scheduled, stats.Completed, completionRate, stats.ReviewEvents)
	return b.send(chatID, text)
}

func (b *Bot) handleSettings(chatID int64, user *models.User) error {
	text := fmt.Sprintf("⚙️ Current settings\n\n"+
		"Reminders: %s\n"+
		"Reminder time: %d:00\n\n"+
		"%s\n%s",
		boolToEnabledString(user.NotificationEnabled), user.NotificationHour, usageNotify, usageTime)

	toggle := MenuButton{Text: "🔕 Turn reminders off", CallbackData: callbackNotify + "off"}
	if !user.NotificationEnabled {
		toggle = MenuButton{Text: "🔔 Turn reminders on", CallbackData: callbackNotify + "on"}
	}
	return b.sendWithKeyboard(chatID, text, createKeyboard([][]MenuButton{{toggle}}))
}

func (b *Bot) handleNotify(ctx context.Context, chatID int64, user *models.User, args string) error {
	switch strings.ToLower(args) {
	case "on":
		user.NotificationEnabled = true
	case "off":
		user.NotificationEnabled = false
	default:
		return b.send(chatID, usageNotify)
	}

	if err := b.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return b.send(chatID, fmt.Sprintf("✅ Reminders %s", boolToEnabledString(user.NotificationEnabled)))
}

func (b *Bot) handleTime(ctx context.Context, chatID int64, user *models.User, args string) error {
	hour, err := strconv.Atoi(args)
	if err != nil || hour < 0 || hour > 23 {
		return b.send(chatID, usageTime)
	}

	user.NotificationHour = hour
	if err := b.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	text := fmt.Sprintf("✅ Reminder time set to %d:00", hour)
	if hour < b.cfg.NotificationStartHour || hour > b.cfg.NotificationEndHour {
		text += fmt.Sprintf("\n⚠️ Reminders are only sent between %d:00 and %d:00.",
			b.cfg.NotificationStartHour, b.cfg.NotificationEndHour)
	}
	return b.send(chatID, text)
}

func (b *Bot) handleImport(chatID, telegramID int64) error {
	if len(b.cfg.AdminUserIDs) > 0 && !b.cfg.IsAdmin(telegramID) {
		return b.send(chatID, "This command is only available for administrators.")
	}

	b.setAwaitingUpload(chatID, true)
	return b.send(chatID, "📎 Send a .xlsx or .csv file with the columns Title, Category, Studied at (YYYY-MM-DD), Content.\n"+
		"The first row is treated as a header. Use /cancel to abort.")
}

func (b *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil {
		return fmt.Errorf("invalid message: sender is missing")
	}
	chatID := message.Chat.ID
	doc := message.Document
	b.setAwaitingUpload(chatID, false)

	switch strings.ToLower(filepath.Ext(doc.FileName)) {
	case ".xlsx", ".xlsm", ".csv":
	default:
		return b.send(chatID, "❌ Only .xlsx and .csv files can be imported.")
	}
	if int64(doc.FileSize) > b.config.MaxImportSize {
		return b.send(chatID, fmt.Sprintf("❌ The file is too large (limit %d KB).", b.config.MaxImportSize>>10))
	}

	user, err := b.currentUser(ctx, message.From)
	if err != nil {
		return err
	}

	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		return fmt.Errorf("failed to get file URL: %w", err)
	}
	body, err := b.download(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	result, err := b.importer.ImportReader(ctx, user.ID, doc.FileName, io.LimitReader(body, b.config.MaxImportSize))
	if err != nil {
		b.log.Warn().Err(err).Str("file", doc.FileName).Msg("import failed")
		return b.send(chatID, "❌ Could not read the file. Check the format and try again.")
	}
	return b.send(chatID, importSummary(result.TotalProcessed, result.Created, result.Skipped, result.Errors))
}

func (b *Bot) download(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func importSummary(processed, created, skipped int, errs []string) string {
	var text strings.Builder
	text.WriteString(fmt.Sprintf("📥 Import finished\n\nRows processed: %d\nCreated: %d\nEmpty rows skipped: %d\n", processed, created, skipped))
	if len(errs) > 0 {
		text.WriteString(fmt.Sprintf("\nErrors (%d):\n", len(errs)))
		for i, e := range errs {
			if i == maxImportErrorsShown {
				text.WriteString("...\n")
				break
			}
			text.WriteString(e)
			text.WriteString("\n")
		}
	}
	return text.String()
}

func (b *Bot) withRecordID(chatID int64, args, usage string, fn func(id int64) error) error {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(args), "#"), 10, 64)
	if err != nil || id <= 0 {
		return b.send(chatID, usage)
	}
	return fn(id)
}

func notFoundText(id int64) string {
	return fmt.Sprintf("Record #%d not found.", id)
}

// splitFields splits "a | b | c" into at most n trimmed fields
func splitFields(s string, n int) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.SplitN(s, "|", n)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parsePage(s string) int {
	page, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (b *Bot) parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, b.loc)
}
