package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/tonvote/votebot/internal/storage"
)

// OpenAppKeyboard links to the TON Vote web app.
func OpenAppKeyboard(appURL string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🗳 Open TON Vote", URL: appURL},
			},
		},
	}
}

// SubscribeKeyboard opens the DAO selection form inside Telegram.
func SubscribeKeyboard(appURL string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "📬 View DAOs", WebApp: &models.WebAppInfo{URL: appURL + "?webapp=1&subscribe=1"}},
			},
		},
	}
}

// StartKeyboard is shown in private chats: open the DAO selection form
// or add the bot to a group via the startgroup deep link.
func StartKeyboard(appURL, botUsername string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "📬 View DAOs", WebApp: &models.WebAppInfo{URL: appURL + "?webapp=1&subscribe=1"}},
			},
			{
				{Text: "➕ Add me to a group", URL: fmt.Sprintf("https://t.me/%s?startgroup=true", botUsername)},
			},
		},
	}
}

// SubscriptionsKeyboard lists a group's subscribed DAOs with remove
// buttons.
func SubscriptionsKeyboard(appURL string, subs []storage.Subscription) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	for _, sub := range subs {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: friendlyDao(sub.DaoName, sub.DaoAddress), URL: fmt.Sprintf("%s/%s", appURL, sub.DaoAddress)},
			{Text: "🗑", CallbackData: "del:" + sub.DaoAddress},
		})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
