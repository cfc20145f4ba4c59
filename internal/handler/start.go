package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/middleware"
	tg "github.com/set-night/mindchat/internal/telegram"
)

const helpText = "📋 *Lệnh:*\n" +
	"/new - Cuộc trò chuyện mới\n" +
	"/chats - Danh sách cuộc trò chuyện\n" +
	"/history - Lịch sử cuộc trò chuyện hiện tại\n" +
	"/balance - Số dư tín dụng\n\n" +
	"Gửi tin nhắn, ảnh hoặc tài liệu để bắt đầu!"

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}
	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}
	chatID := update.Message.Chat.ID

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      fmt.Sprintf("👋 Xin chào, *%s*!\n\n%s", user.DisplayName, helpText),
		ParseMode: models.ParseModeMarkdownV1,
	})
	h.openNewChat(ctx, b, chatID, user.ID)
}

func (h *Handler) handleNew(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}
	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}
	h.openNewChat(ctx, b, update.Message.Chat.ID, user.ID)
}

func (h *Handler) openNewChat(ctx context.Context, b *bot.Bot, chatID int64, owner domain.UserID) {
	sess, welcome, err := h.chat.NewChat(ctx, owner)
	if err != nil {
		slog.Error("create chat", "error", err, "owner_id", owner)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "❌ Không thể tạo cuộc trò chuyện mới.",
		})
		return
	}
	h.active.set(chatID, sess.ID)
	tg.SendLongMessage(ctx, b, chatID, welcome.Text, nil)
}
