package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/example/studylog/internal/config"
	"github.com/example/studylog/internal/excel"
	"github.com/example/studylog/internal/review"
	"github.com/example/studylog/pkg/models"
)

// Callback data prefixes
const (
	callbackReview = "review_"
	callbackShow   = "show_"
	callbackList   = "list_"
	callbackDue    = "due"
	callbackDone   = "done"
	callbackStats  = "stats"
	callbackHelp   = "help"
	callbackMenu   = "main_menu"
	callbackNotify = "notify_"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// messenger is the part of the Telegram API the bot uses
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

// UserStore manages bot users
type UserStore interface {
	GetOrCreate(ctx context.Context, candidate *models.User) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// StatsStore computes per-user statistics
type StatsStore interface {
	GetUserSummary(ctx context.Context, userID int64, now time.Time) (*models.Statistics, error)
}

// Importer reads study records from an uploaded file
type Importer interface {
	ImportReader(ctx context.Context, userID int64, name string, r io.Reader) (*excel.ImportResult, error)
}

// Bot represents the Telegram bot application
type Bot struct {
	api      messenger
	cfg      *config.Config
	config   *BotConfig
	reviews  *review.Service
	users    UserStore
	stats    StatsStore
	importer Importer
	http     *http.Client
	log      zerolog.Logger
	loc      *time.Location
	now      func() time.Time

	mu                 sync.Mutex
	awaitingFileUpload map[int64]bool
	wg                 sync.WaitGroup
}

// New connects to the Telegram API and creates a new bot instance
func New(cfg *config.Config, reviews *review.Service, users UserStore, stats StatsStore, importer Importer, log zerolog.Logger) (*Bot, error) {
	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("telegram bot token is not set")
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}

	b := newBot(api, cfg, reviews, users, stats, importer, log)
	b.log.Info().Str("account", api.Self.UserName).Msg("authorized on account")
	return b, nil
}

func newBot(api messenger, cfg *config.Config, reviews *review.Service, users UserStore, stats StatsStore, importer Importer, log zerolog.Logger) *Bot {
	botConfig := DefaultConfig()
	return &Bot{
		api:                api,
		cfg:                cfg,
		config:             botConfig,
		reviews:            reviews,
		users:              users,
		stats:              stats,
		importer:           importer,
		http:               &http.Client{Timeout: botConfig.DownloadTimeout},
		log:                log.With().Str("component", "bot").Logger(),
		loc:                cfg.Location(),
		now:                time.Now,
		awaitingFileUpload: make(map[int64]bool),
	}
}

// Start registers the command list and handles incoming updates until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(botCommands...)); err != nil {
		b.log.Warn().Err(err).Msg("failed to register bot commands")
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout
	updates := b.api.GetUpdatesChan(updateConfig)

	// In-flight updates finish even when ctx is canceled; Stop waits for them.
	handlerCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(handlerCtx, update)
			}()
		}
	}
}

// Stop stops polling and waits for in-flight updates or until ctx is done
func (b *Bot) Stop(ctx context.Context) error {
	b.api.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info().Msg("bot stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleUpdate dispatches one update from Telegram
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	var (
		chatID int64
		err    error
	)

	switch {
	case update.Message != nil && update.Message.Chat != nil:
		chatID = update.Message.Chat.ID
		switch {
		case update.Message.IsCommand():
			err = b.HandleCommand(ctx, update.Message)
		case update.Message.Document != nil && b.isAwaitingUpload(chatID):
			err = b.handleDocument(ctx, update.Message)
		default:
			err = b.send(chatID, "I don't understand. Use /help to see the available commands.")
		}
	case update.CallbackQuery != nil:
		if update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
		}
		err = b.HandleCallback(ctx, update.CallbackQuery)
	default:
		return
	}

	if err != nil {
		b.log.Error().Err(err).Int("update_id", update.UpdateID).Msg("failed to handle update")
		if chatID != 0 {
			_ = b.send(chatID, "❌ Something went wrong. Please try again later.")
		}
	}
}

// SendReminders implements the scheduler.Notifier interface
func (b *Bot) SendReminders(_ context.Context, user *models.User, records []models.StudyRecord) error {
	var text strings.Builder
	text.WriteString(fmt.Sprintf("🔔 Time to review! You have %d record(s) due:\n\n", len(records)))
	text.WriteString(recordLines(records, b.config.MaxListedRecords, b.loc, b.now()))
	text.WriteString("\nTap a button after you have gone over the material.")

	msg := tgbotapi.NewMessage(user.TelegramID, truncateText(text.String(), maxMessageLength))
	msg.ReplyMarkup = b.reviewKeyboard(records)
	_, err := b.api.Send(msg)
	return err
}

// reviewKeyboard has one review button per record
func (b *Bot) reviewKeyboard(records []models.StudyRecord) tgbotapi.InlineKeyboardMarkup {
	var buttons [][]MenuButton
	for i := range records {
		if i == b.config.MaxListedRecords {
			break
		}
		buttons = append(buttons, []MenuButton{{
			Text:         fmt.Sprintf("✅ Review: %s", truncateText(records[i].Title, 40)),
			CallbackData: fmt.Sprintf("%s%d", callbackReview, records[i].ID),
		}})
	}
	return createKeyboard(buttons)
}

// MainMenuButtons returns the main menu layout
func (b *Bot) MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{{Text: "📋 My records", CallbackData: callbackList + "1"}, {Text: "⏰ Due", CallbackData: callbackDue}},
		{{Text: "✅ Completed", CallbackData: callbackDone}, {Text: "📊 Stats", CallbackData: callbackStats}},
		{{Text: "❓ Help", CallbackData: callbackHelp}},
	}
}

func (b *Bot) currentUser(ctx context.Context, from *tgbotapi.User) (*models.User, error) {
	user, err := b.users.GetOrCreate(ctx, &models.User{
		TelegramID: from.ID,
		Username:   from.UserName,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (b *Bot) send(chatID int64, text string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, truncateText(text, maxMessageLength)))
	return err
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, truncateText(text, maxMessageLength))
	if len(keyboard.InlineKeyboard) > 0 {
		msg.ReplyMarkup = keyboard
	}
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setAwaitingUpload(chatID int64, awaiting bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if awaiting {
		b.awaitingFileUpload[chatID] = true
	} else {
		delete(b.awaitingFileUpload, chatID)
	}
}

func (b *Bot) isAwaitingUpload(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.awaitingFileUpload[chatID]
}
