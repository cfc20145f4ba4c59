package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"

	"github.com/set-night/mindchat/internal/config"
	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/service"
)

// Logger mirrors notable events into topics of an admin chat.
type Logger struct {
	bot *bot.Bot
	cfg *config.Config
}

func NewLogger(b *bot.Bot, cfg *config.Config) *Logger {
	return &Logger{bot: b, cfg: cfg}
}

type LogType string

const (
	LogTypeError         LogType = "error"
	LogTypeRegistration  LogType = "registration"
	LogTypeRejectedSpend LogType = "rejectedSpend"
)

func (l *Logger) Log(logType LogType, message string) {
	if l == nil || l.cfg.LogTelegramChatID == 0 {
		return
	}

	topicID := l.getTopicID(logType)
	if topicID == 0 {
		return
	}

	// Truncate if too long
	if len([]rune(message)) > MaxMessageLen {
		message = string([]rune(message)[:MaxMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := l.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          l.cfg.LogTelegramChatID,
		Text:            message,
		ParseMode:       "Markdown",
		MessageThreadID: topicID,
	})
	if err != nil {
		slog.Error("failed to send telegram log", "type", logType, "error", err)
	}
}

func (l *Logger) LogError(err error, context string) {
	msg := fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* `%s`\n*Time:* %s",
		context, err.Error(), time.Now().Format("2006-01-02 15:04:05"))
	l.Log(LogTypeError, msg)
}

func (l *Logger) LogRegistration(telegramID int64, name string, userID domain.UserID) {
	msg := fmt.Sprintf("👤 *New Registration*\n\n*Telegram ID:* `%d`\n*Name:* %s\n*User:* `%s`",
		telegramID, name, userID)
	l.Log(LogTypeRegistration, msg)
}

func (l *Logger) LogRejectedSpend(owner domain.UserID, session domain.SessionID, err error) {
	msg := fmt.Sprintf("💸 *Rejected Spend*\n\n*User:* `%s`\n*Chat:* `%s`\n*Reason:* `%s`",
		owner, session, err.Error())
	l.Log(LogTypeRejectedSpend, msg)
}

// OnStateChange forwards failures and rejections without blocking the submission.
func (l *Logger) OnStateChange(change service.StateChange) {
	if change.Err == nil {
		return
	}
	switch change.State {
	case service.StateRejected:
		go l.LogRejectedSpend(change.OwnerID, change.SessionID, change.Err)
	case service.StateFailed:
		go l.LogError(change.Err, fmt.Sprintf("exchange for chat %s", change.SessionID))
	}
}

func (l *Logger) getTopicID(logType LogType) int {
	switch logType {
	case LogTypeError:
		return l.cfg.LogTopicError
	case LogTypeRegistration:
		return l.cfg.LogTopicRegistration
	case LogTypeRejectedSpend:
		return l.cfg.LogTopicRejectedSpend
	default:
		return 0
	}
}
