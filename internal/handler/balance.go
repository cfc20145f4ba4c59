package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/middleware"
	tg "github.com/set-night/mindchat/internal/telegram"
)

const historyLimit = 10

func (h *Handler) handleBalance(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}
	chatID := update.Message.Chat.ID

	balance, err := h.chat.Balance(ctx, user.ID)
	if err != nil {
		slog.Error("get balance", "error", err, "user_id", user.ID)
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: "❌ Không thể lấy số dư."})
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      fmt.Sprintf("💰 Số dư: *%d* tín dụng", balance),
		ParseMode: models.ParseModeMarkdownV1,
	})
}

func (h *Handler) handleHistory(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}
	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}
	chatID := update.Message.Chat.ID

	sess, _, err := h.currentSession(ctx, chatID, user.ID)
	if err != nil {
		slog.Error("resolve session", "error", err, "user_id", user.ID)
		return
	}
	messages, err := h.chat.Messages(ctx, sess.ID)
	if err != nil {
		slog.Error("get history", "error", err, "session_id", sess.ID)
		return
	}

	tg.SendLongMessage(ctx, b, chatID, formatHistory(messages, historyLimit), nil)
}

func formatHistory(messages []domain.Message, limit int) string {
	if len(messages) == 0 {
		return "📭 Chưa có tin nhắn."
	}
	skipped := 0
	if len(messages) > limit {
		skipped = len(messages) - limit
		messages = messages[skipped:]
	}

	var sb strings.Builder
	if skipped > 0 {
		sb.WriteString(fmt.Sprintf("… %d tin nhắn trước đó\n\n", skipped))
	}
	for _, m := range messages {
		icon := "🤖"
		if m.Origin == domain.OriginUser {
			icon = "👤"
		}
		text := m.Text
		if m.Attachment != nil {
			text = strings.TrimSpace(fmt.Sprintf("📎 %s %s", m.Attachment.Name, text))
		}
		sb.WriteString(fmt.Sprintf("%s %s %s\n\n", m.CreatedAt.Format("15:04"), icon, text))
	}
	return strings.TrimRight(sb.String(), "\n")
}
