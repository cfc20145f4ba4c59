package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/set-night/mindchat/internal/domain"
)

// Callback data used by the chat list keyboard.
const (
	CallbackNewChat    = "new_chat"
	CallbackSwitchChat = "switch_chat_"
	CallbackChatsPage  = "chats_page_"
	CallbackPageLabel  = "cur"
)

// ChatListEntry is one session button of the chat list.
type ChatListEntry struct {
	SessionID domain.SessionID
	Label     string
	Active    bool
}

// Page clamps page into [0, pages) and returns the slice bounds of that page
// for total items, perPage at a time. An empty list still has one page.
func Page(total, perPage, page int) (start, end, clamped, pages int) {
	pages = max(1, (total+perPage-1)/perPage)
	clamped = min(max(page, 0), pages-1)
	start = clamped * perPage
	end = min(start+perPage, total)
	return start, end, clamped, pages
}

// ChatListKeyboard renders the entries of one page, a new chat button and a
// pager row when there is more than one page.
func ChatListKeyboard(entries []ChatListEntry, page, pages int) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(entries)+2)
	for _, e := range entries {
		label := "📝 " + e.Label
		if e.Active {
			label += " ✅"
		}
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: label, CallbackData: CallbackSwitchChat + string(e.SessionID)},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{{Text: "➕ Mới", CallbackData: CallbackNewChat}})
	if pages > 1 {
		rows = append(rows, pagerRow(page, pages))
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func pagerRow(page, pages int) []models.InlineKeyboardButton {
	var row []models.InlineKeyboardButton
	if page > 0 {
		row = append(row, models.InlineKeyboardButton{Text: "⬅️", CallbackData: fmt.Sprintf("%s%d", CallbackChatsPage, page-1)})
	}
	row = append(row, models.InlineKeyboardButton{Text: fmt.Sprintf("%d/%d", page+1, pages), CallbackData: CallbackPageLabel})
	if page < pages-1 {
		row = append(row, models.InlineKeyboardButton{Text: "➡️", CallbackData: fmt.Sprintf("%s%d", CallbackChatsPage, page+1)})
	}
	return row
}
