package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/mindchat/internal/domain"
)

type ctxKey string

const UserKey ctxKey = "user"

// GetUser extracts user from context.
func GetUser(ctx context.Context) *domain.User {
	u, ok := ctx.Value(UserKey).(*domain.User)
	if !ok {
		return nil
	}
	return u
}

// WithUser stores user in ctx.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

type TelegramIdentity interface {
	EnsureTelegramUser(ctx context.Context, telegramID int64, displayName string) (domain.User, bool, error)
}

// UserLoader returns middleware that provisions the sender's account and puts
// it into the context. onRegister is called for accounts created on the way.
func UserLoader(identity TelegramIdentity, onRegister func(telegramID int64, name string, userID domain.UserID)) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			var from *models.User
			if update.Message != nil {
				from = update.Message.From
			} else if update.CallbackQuery != nil {
				from = &update.CallbackQuery.From
			}

			if from == nil || from.IsBot {
				next(ctx, b, update)
				return
			}

			name := strings.TrimSpace(from.FirstName + " " + from.LastName)
			if name == "" {
				name = from.Username
			}

			user, created, err := identity.EnsureTelegramUser(ctx, from.ID, name)
			if err != nil {
				slog.Error("load telegram user", "error", err, "telegram_id", from.ID)
			} else {
				ctx = WithUser(ctx, &user)
				if created && onRegister != nil {
					onRegister(from.ID, name, user.ID)
				}
			}

			next(ctx, b, update)
		}
	}
}
