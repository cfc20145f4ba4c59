package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/middleware"
	tg "github.com/set-night/mindchat/internal/telegram"
)

const chatsPerPage = 8

func (h *Handler) handleChats(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}
	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}
	h.sendChatsPage(ctx, b, update.Message.Chat.ID, user.ID, 0, 0)
}

// sendChatsPage renders one page of the chat list. A non-zero messageID edits
// that message in place.
func (h *Handler) sendChatsPage(ctx context.Context, b *bot.Bot, chatID int64, owner domain.UserID, page, messageID int) {
	sessions, err := h.chat.Sessions(ctx, owner)
	if err != nil {
		slog.Error("list sessions", "error", err, "owner_id", owner)
		return
	}

	start, end, page, pages := tg.Page(len(sessions), chatsPerPage, page)

	activeID, _ := h.active.get(chatID)
	if activeID == "" && len(sessions) > 0 {
		activeID = sessions[0].ID
	}

	entries := make([]tg.ChatListEntry, 0, end-start)
	for _, s := range sessions[start:end] {
		entries = append(entries, tg.ChatListEntry{
			SessionID: s.ID,
			Label:     fmt.Sprintf("%s · %s", s.Title, s.CreatedAt.Format("02.01 15:04")),
			Active:    s.ID == activeID,
		})
	}

	text := fmt.Sprintf("📂 *Cuộc trò chuyện* (%d)", len(sessions))
	keyboard := tg.ChatListKeyboard(entries, page, pages)

	if messageID != 0 {
		b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   messageID,
			Text:        text,
			ParseMode:   models.ParseModeMarkdownV1,
			ReplyMarkup: keyboard,
		})
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: keyboard,
	})
}

func (h *Handler) handleNewChatCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, messageID, user, ok := h.callbackContext(ctx, b, update)
	if !ok {
		return
	}
	h.openNewChat(ctx, b, chatID, user.ID)
	h.sendChatsPage(ctx, b, chatID, user.ID, 0, messageID)
}

func (h *Handler) handleSwitchChat(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, messageID, user, ok := h.callbackContext(ctx, b, update)
	if !ok {
		return
	}

	id := domain.SessionID(strings.TrimPrefix(update.CallbackQuery.Data, tg.CallbackSwitchChat))
	sess, err := h.chat.Session(ctx, id)
	if err != nil || sess.OwnerID != user.ID {
		return
	}
	h.active.set(chatID, sess.ID)
	h.sendChatsPage(ctx, b, chatID, user.ID, 0, messageID)
}

func (h *Handler) handleChatsPage(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, messageID, user, ok := h.callbackContext(ctx, b, update)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(strings.TrimPrefix(update.CallbackQuery.Data, tg.CallbackChatsPage))
	h.sendChatsPage(ctx, b, chatID, user.ID, page, messageID)
}

// callbackContext acknowledges the callback and extracts what the chat list
// handlers need.
func (h *Handler) callbackContext(ctx context.Context, b *bot.Bot, update *models.Update) (chatID int64, messageID int, user *domain.User, ok bool) {
	if update.CallbackQuery == nil {
		return 0, 0, nil, false
	}
	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: update.CallbackQuery.ID})

	user = middleware.GetUser(ctx)
	msg := update.CallbackQuery.Message.Message
	if user == nil || msg == nil {
		return 0, 0, nil, false
	}
	return msg.Chat.ID, msg.ID, user, true
}
