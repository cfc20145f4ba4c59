package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// slowUpdate is how long a handler may run before its update is logged at warn.
// Submissions wait on the remote exchange, so this sits above its timeout.
const slowUpdate = 45 * time.Second

// updateInfo is what the logs record about an update.
type updateInfo struct {
	kind       string
	chatID     int64
	telegramID int64
}

// describeUpdate classifies an update as a command, a text, photo or
// document message, or a callback.
func describeUpdate(update *models.Update) updateInfo {
	switch {
	case update.Message != nil:
		msg := update.Message
		info := updateInfo{kind: "text", chatID: msg.Chat.ID}
		if msg.From != nil {
			info.telegramID = msg.From.ID
		}
		switch {
		case strings.HasPrefix(msg.Text, "/"):
			cmd, _, _ := strings.Cut(msg.Text, " ")
			info.kind = "command " + cmd
		case len(msg.Photo) > 0:
			info.kind = "photo"
		case msg.Document != nil:
			info.kind = "document"
		}
		return info

	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		info := updateInfo{kind: "callback", telegramID: cq.From.ID}
		if cq.Message.Message != nil {
			info.chatID = cq.Message.Message.Chat.ID
		}
		return info
	}
	return updateInfo{kind: "other"}
}

// Logging returns middleware that logs each update with its handling time.
func Logging() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()
			info := describeUpdate(update)

			next(ctx, b, update)

			elapsed := time.Since(start)
			level := slog.LevelDebug
			if elapsed > slowUpdate {
				level = slog.LevelWarn
			}
			slog.Log(ctx, level, "update processed",
				"update_id", update.ID,
				"kind", info.kind,
				"chat_id", info.chatID,
				"telegram_id", info.telegramID,
				"duration", elapsed,
			)
		}
	}
}
