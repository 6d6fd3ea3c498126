package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tonvote/votebot/internal/config"
	"github.com/tonvote/votebot/internal/notifier"
	"github.com/tonvote/votebot/internal/storage"
	"github.com/tonvote/votebot/internal/tonvote"
)

// Bot wraps the telegram bot with handlers. It is also the delivery
// side of the notifier.Sender contract used by the poller and reporter.
type Bot struct {
	bot      *bot.Bot
	cfg      *config.Config
	store    *storage.Storage
	composer *notifier.Composer
	log      *slog.Logger
}

// New creates a new telegram bot
func New(cfg *config.Config, store *storage.Storage, composer *notifier.Composer, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		cfg:      cfg,
		store:    store,
		composer: composer,
		log:      log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot

	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.helpHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/list", bot.MatchTypePrefix, b.listHandler)

	return b, nil
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// Send delivers a composed notification to a group chat.
func (b *Bot) Send(ctx context.Context, groupID int64, msg notifier.Message) error {
	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:    groupID,
		Text:      msg.Text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}
	if msg.Button != nil {
		params.ReplyMarkup = &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: msg.Button.Text, URL: msg.Button.URL}},
			},
		}
	}

	_, err := b.bot.SendMessage(ctx, params)
	return err
}

// --- Helpers ---

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
	}
}

// isGroupAdmin reports whether the user can manage the group's
// subscriptions.
func (b *Bot) isGroupAdmin(ctx context.Context, groupID, userID int64) bool {
	admins, err := b.bot.GetChatAdministrators(ctx, &bot.GetChatAdministratorsParams{
		ChatID: groupID,
	})
	if err != nil {
		b.log.Error("get chat administrators", "group_id", groupID, "error", err)
		return false
	}

	for _, admin := range admins {
		switch {
		case admin.Owner != nil && admin.Owner.User.ID == userID:
			return true
		case admin.Administrator != nil && admin.Administrator.User.ID == userID:
			return true
		}
	}
	return false
}

func friendlyDao(name, address string) string {
	if name != "" {
		return name
	}
	return tonvote.ShortAddr(tonvote.FriendlyAddress(address), 6)
}
