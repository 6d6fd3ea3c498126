package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tonvote/votebot/internal/storage"
	"github.com/tonvote/votebot/internal/tonvote"
)

// webAppSubscribe is the payload posted by the TON Vote web form when a
// group admin confirms a DAO selection.
type webAppSubscribe struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	GroupID int64  `json:"groupId"`
}

// --- Command handlers ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	chat := update.Message.Chat
	if chat.Type != "private" {
		b.sendMessage(ctx, chat.ID,
			"Thanks for adding me to your group. I will now send you alerts for new proposals in the DAOs you have subscribed to.",
			OpenAppKeyboard(b.cfg.AppURL),
		)
		return
	}

	b.sendMessage(ctx, chat.ID,
		"Welcome to <b>TON Vote Bot</b>. I send alerts for new proposals in the DAOs your groups are subscribed to.\n\n"+
			"• To subscribe a group, open the DAO list below and pick a DAO.\n"+
			"• To see a group's subscriptions, send /list in that group.\n"+
			"• To unsubscribe, use the remove buttons under /list.\n\n"+
			"For more information, send /help.",
		StartKeyboard(b.cfg.AppURL, b.cfg.BotUsername),
	)
}

func (b *Bot) helpHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID,
		"ℹ️ <b>TON Vote Bot</b>\n\n"+
			"I watch the DAOs your groups are subscribed to and post:\n"+
			"• New proposal announcements\n"+
			"• Voting started and voting ended alerts\n"+
			"• A daily digest of active and pending proposals\n\n"+
			"Commands:\n"+
			"/list — this group's subscriptions\n"+
			"/help — this message\n\n"+
			"Only group administrators can add or remove subscriptions.",
		nil,
	)
}

func (b *Bot) listHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	chat := update.Message.Chat
	if chat.Type == "private" {
		b.sendMessage(ctx, chat.ID, "Send /list inside a group to see its subscriptions.", nil)
		return
	}

	subs, err := b.store.GetAllByGroupID(chat.ID)
	if err != nil {
		b.log.Error("list subscriptions", "group_id", chat.ID, "error", err)
		return
	}

	if len(subs) == 0 {
		b.sendMessage(ctx, chat.ID,
			"This group is not subscribed to any DAO yet.",
			SubscribeKeyboard(b.cfg.AppURL),
		)
		return
	}

	lines := []string{"📋 <b>Subscribed DAOs:</b>", ""}
	for _, sub := range subs {
		lines = append(lines, fmt.Sprintf("• <b>%s</b> — <code>%s</code>",
			friendlyDao(sub.DaoName, sub.DaoAddress),
			tonvote.ShortAddr(sub.DaoAddress, 6)))
	}

	b.sendMessage(ctx, chat.ID, strings.Join(lines, "\n"), SubscriptionsKeyboard(b.cfg.AppURL, subs))
}

// --- Update routing ---

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	switch {
	case update.MyChatMember != nil:
		b.handleMyChatMember(ctx, update.MyChatMember)
	case update.Message != nil && update.Message.WebAppData != nil:
		b.handleWebAppData(ctx, update.Message)
	}
}

// handleMyChatMember purges a group's records when the bot is removed
// from it.
func (b *Bot) handleMyChatMember(ctx context.Context, upd *models.ChatMemberUpdated) {
	member := upd.NewChatMember
	if member.Type != models.ChatMemberTypeLeft && member.Type != models.ChatMemberTypeBanned {
		return
	}

	groupID := upd.Chat.ID
	b.log.Info("removed from group, purging records", "group_id", groupID)

	if err := b.store.ClearSubscriptionsByGroupID(groupID); err != nil {
		b.log.Error("clear subscriptions", "group_id", groupID, "error", err)
	}
	if err := b.store.ClearSeenProposalsByGroupID(groupID); err != nil {
		b.log.Error("clear seen proposals", "group_id", groupID, "error", err)
	}
}

// handleWebAppData finalizes a subscription selected in the TON Vote
// web form. The payload arrives in the admin's private chat and names
// the target group.
func (b *Bot) handleWebAppData(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID

	var req webAppSubscribe
	if err := json.Unmarshal([]byte(msg.WebAppData.Data), &req); err != nil {
		b.log.Warn("invalid web app payload", "user_id", userID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Could not read the DAO selection. Please try again.", nil)
		return
	}

	if _, err := tonvote.NormalizeAddress(req.Address); err != nil {
		b.log.Warn("invalid dao address", "address", req.Address, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ That does not look like a valid DAO address.", nil)
		return
	}

	if !b.isGroupAdmin(ctx, req.GroupID, userID) {
		b.sendMessage(ctx, msg.Chat.ID, "❌ Only group administrators can subscribe the group to a DAO.", nil)
		return
	}

	sub, err := b.store.Insert(req.GroupID, userID, req.Address, req.Name)
	if errors.Is(err, storage.ErrAlreadyExists) {
		b.sendMessage(ctx, msg.Chat.ID,
			fmt.Sprintf("The group is already subscribed to <b>%s</b>.", friendlyDao(req.Name, req.Address)),
			nil,
		)
		return
	}
	if err != nil {
		b.log.Error("insert subscription", "group_id", req.GroupID, "dao", req.Address, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Something went wrong, the subscription was not saved.", nil)
		return
	}

	b.log.Info("subscription created",
		"group_id", sub.GroupID,
		"dao", sub.DaoAddress,
		"user_id", userID,
	)

	daoName := friendlyDao(sub.DaoName, sub.DaoAddress)
	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("✅ Subscribed the group to <b>%s</b>.", daoName), nil)
	b.sendMessage(ctx, sub.GroupID,
		fmt.Sprintf("🔔 This group is now subscribed to <b>%s</b>. I will post its proposal alerts here.", daoName),
		nil,
	)
}

// --- Callback handlers ---

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	data := cb.Data

	switch {
	case strings.HasPrefix(data, "del:"):
		b.handleRemove(ctx, cb, strings.TrimPrefix(data, "del:"))
	default:
		b.log.Warn("unknown callback", "data", data, "user_id", cb.From.ID)
		tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: cb.ID,
		})
	}
}

// handleRemove deletes one of the group's subscriptions from the /list
// keyboard.
func (b *Bot) handleRemove(ctx context.Context, cb *models.CallbackQuery, daoAddress string) {
	if cb.Message.Message == nil {
		return
	}
	groupID := cb.Message.Message.Chat.ID

	if !b.isGroupAdmin(ctx, groupID, cb.From.ID) {
		b.answerCallback(ctx, cb, "Only group administrators can remove subscriptions.", true)
		return
	}

	id := storage.SubscriptionID(groupID, daoAddress)
	sub, err := b.store.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		b.answerCallback(ctx, cb, "Could not find a subscription for that DAO.", true)
		return
	}
	if err != nil {
		b.log.Error("get subscription", "id", id, "error", err)
		b.answerCallback(ctx, cb, "Something went wrong.", true)
		return
	}

	if err := b.store.Delete(id); err != nil {
		b.log.Error("delete subscription", "id", id, "error", err)
		b.answerCallback(ctx, cb, "Something went wrong.", true)
		return
	}

	b.log.Info("subscription removed", "group_id", groupID, "dao", daoAddress, "user_id", cb.From.ID)
	b.answerCallback(ctx, cb,
		fmt.Sprintf("Removed the DAO named %s", friendlyDao(sub.DaoName, sub.DaoAddress)), true)

	// refresh the list message in place
	b.refreshList(ctx, cb, groupID)
}

func (b *Bot) refreshList(ctx context.Context, cb *models.CallbackQuery, groupID int64) {
	subs, err := b.store.GetAllByGroupID(groupID)
	if err != nil {
		b.log.Error("list subscriptions", "group_id", groupID, "error", err)
		return
	}

	var text string
	var keyboard *models.InlineKeyboardMarkup
	if len(subs) == 0 {
		text = "This group is not subscribed to any DAO yet."
		keyboard = SubscribeKeyboard(b.cfg.AppURL)
	} else {
		lines := []string{"📋 <b>Subscribed DAOs:</b>", ""}
		for _, sub := range subs {
			lines = append(lines, fmt.Sprintf("• <b>%s</b> — <code>%s</code>",
				friendlyDao(sub.DaoName, sub.DaoAddress),
				tonvote.ShortAddr(sub.DaoAddress, 6)))
		}
		text = strings.Join(lines, "\n")
		keyboard = SubscriptionsKeyboard(b.cfg.AppURL, subs)
	}

	params := &bot.EditMessageTextParams{
		ChatID:    groupID,
		MessageID: cb.Message.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	if _, err := b.bot.EditMessageText(ctx, params); err != nil {
		b.log.Error("edit message", "error", err)
	}
}

func (b *Bot) answerCallback(ctx context.Context, cb *models.CallbackQuery, text string, alert bool) {
	_, err := b.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		b.log.Error("answer callback", "error", err)
	}
}
