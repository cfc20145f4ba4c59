package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/mindchat/internal/config"
	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/middleware"
	"github.com/set-night/mindchat/internal/service"
	tg "github.com/set-night/mindchat/internal/telegram"
)

// HandleMessage turns a private text, photo or document message into a
// submission on the chat's current session.
func (h *Handler) HandleMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}
	msg := update.Message

	// Unknown commands
	if strings.HasPrefix(msg.Text, "/") {
		return
	}

	user := middleware.GetUser(ctx)
	if user == nil {
		return
	}
	chatID := msg.Chat.ID

	text := msg.Text
	if msg.Caption != "" {
		text = msg.Caption
	}

	if hasAttachment(msg) {
		if short := h.shortfall(ctx, user.ID, text); short != nil {
			b.SendMessage(ctx, &bot.SendMessageParams{
				ChatID: chatID,
				Text:   insufficientText(short),
			})
			return
		}
	}

	attachment, err := h.attachmentFrom(ctx, b, msg, user.ID)
	if err != nil {
		slog.Error("import attachment", "error", err, "user_id", user.ID)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "❌ Không thể tải tệp đính kèm. Vui lòng thử lại.",
		})
		return
	}
	if !domain.Sendable(text, attachment) {
		return
	}

	sess, welcome, err := h.currentSession(ctx, chatID, user.ID)
	if err != nil {
		slog.Error("resolve session", "error", err, "user_id", user.ID)
		h.tgLogger.LogError(err, "resolve session")
		return
	}
	if welcome != nil {
		tg.SendLongMessage(ctx, b, chatID, welcome.Text, nil)
	}

	var stopTyping context.CancelFunc
	onState := func(s service.State) {
		if s == service.StateSending {
			stopTyping = tg.StartTyping(ctx, b, chatID)
			return
		}
		if stopTyping != nil {
			stopTyping()
			stopTyping = nil
		}
	}
	defer func() {
		if stopTyping != nil {
			stopTyping()
		}
	}()

	outcome, err := h.chat.Submit(ctx, service.SubmitRequest{
		SessionID:  sess.ID,
		Text:       text,
		Attachment: attachment,
		OnState:    onState,
	})

	var insufficient *domain.InsufficientFundsError
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrEmptySubmission):
		return
	case errors.As(err, &insufficient) && outcome == nil:
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   insufficientText(insufficient),
		})
		return
	case outcome == nil:
		slog.Error("submit message", "error", err, "session_id", sess.ID)
		h.tgLogger.LogError(err, "submit message")
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   config.FallbackReplyText,
		})
		return
	}

	replyTo := msg.ID
	if sendErr := tg.SendLongMessage(ctx, b, chatID, outcome.Reply.Text, &replyTo); sendErr != nil {
		slog.Error("send reply", "error", sendErr, "chat_id", chatID)
	}
	if mediaErr := tg.SendMedia(ctx, b, chatID, outcome.Reply.Media); mediaErr != nil {
		slog.Warn("send media", "error", mediaErr, "chat_id", chatID)
	}

	// The reply arrived but the settle step could not charge for it.
	if insufficient != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   insufficientText(insufficient),
		})
	}
}

func insufficientText(e *domain.InsufficientFundsError) string {
	return fmt.Sprintf("❌ Không đủ tín dụng: cần %d, còn %d.", e.Required, e.Available)
}

func hasAttachment(msg *models.Message) bool {
	return len(msg.Photo) > 0 || msg.Document != nil
}

// shortfall checks the price of a draft with an attachment before the file
// is downloaded. Submit still gates the spend itself.
func (h *Handler) shortfall(ctx context.Context, owner domain.UserID, text string) *domain.InsufficientFundsError {
	cost := service.EstimateCost(text, true)
	balance, err := h.chat.Balance(ctx, owner)
	if err != nil {
		slog.Warn("balance pre-check", "error", err, "user_id", owner)
		return nil
	}
	if balance >= cost {
		return nil
	}
	return &domain.InsufficientFundsError{Required: cost, Available: balance}
}

// attachmentFrom copies a photo or document into attachment storage. The
// Telegram download URL carries the bot token, so it is never stored as is.
func (h *Handler) attachmentFrom(ctx context.Context, b *bot.Bot, msg *models.Message, owner domain.UserID) (*domain.Attachment, error) {
	switch {
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1]
		name := photo.FileUniqueID + ".jpg"
		locator, err := h.importFile(ctx, b, owner, photo.FileID, name, "image/jpeg", int64(photo.FileSize))
		if err != nil {
			return nil, err
		}
		return domain.NewImageAttachment(locator, name, int64(photo.FileSize)), nil

	case msg.Document != nil:
		doc := msg.Document
		if doc.FileSize > config.MaxAttachmentBytes {
			return nil, fmt.Errorf("%w: file larger than %d bytes", domain.ErrInvalidAttachment, config.MaxAttachmentBytes)
		}
		contentType := doc.MimeType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		locator, err := h.importFile(ctx, b, owner, doc.FileID, doc.FileName, contentType, doc.FileSize)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(contentType, "image/") {
			return domain.NewImageAttachment(locator, doc.FileName, doc.FileSize), nil
		}
		return domain.NewDocumentAttachment(locator, doc.FileName, doc.FileSize), nil
	}
	return nil, nil
}

func (h *Handler) importFile(ctx context.Context, b *bot.Bot, owner domain.UserID, fileID, name, contentType string, size int64) (string, error) {
	url, err := tg.GetFileURL(ctx, b, fileID)
	if err != nil {
		return "", err
	}
	return h.files.Import(ctx, owner, url, name, contentType, size)
}
