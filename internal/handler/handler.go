package handler

import (
	"context"

	"github.com/go-telegram/bot"

	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/service"
	"github.com/set-night/mindchat/internal/telegram"
)

type ChatService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.Outcome, error)
	NewChat(ctx context.Context, owner domain.UserID) (domain.Session, domain.Message, error)
	Session(ctx context.Context, id domain.SessionID) (domain.Session, error)
	Messages(ctx context.Context, id domain.SessionID) ([]domain.Message, error)
	Sessions(ctx context.Context, owner domain.UserID) ([]domain.Session, error)
	Balance(ctx context.Context, owner domain.UserID) (int64, error)
}

// AttachmentImporter copies a downloadable file into attachment storage.
type AttachmentImporter interface {
	Import(ctx context.Context, owner domain.UserID, rawURL, name, contentType string, size int64) (string, error)
}

// Handler holds all dependencies needed by command and callback handlers.
type Handler struct {
	bot      *bot.Bot
	chat     ChatService
	files    AttachmentImporter
	tgLogger *telegram.Logger
	active   *activeSessions
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot      *bot.Bot
	Chat     ChatService
	Files    AttachmentImporter
	TgLogger *telegram.Logger
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:      deps.Bot,
		chat:     deps.Chat,
		files:    deps.Files,
		tgLogger: deps.TgLogger,
		active:   newActiveSessions(),
	}
}
