package service

import (
	"context"
	"io"

	"github.com/set-night/mindchat/internal/domain"
)

type ExchangeRequest struct {
	Text       string
	SessionID  domain.SessionID
	UserID     domain.UserID
	Attachment *domain.Attachment
	// History holds the messages that precede Text, oldest first.
	History []domain.Message
}

type Reply struct {
	Text  string
	Media *domain.GeneratedMedia
}

// Exchange sends one user turn to the remote assistant.
type Exchange interface {
	Send(ctx context.Context, req ExchangeRequest) (Reply, error)
}

// AttachmentOpener turns an attachment locator into its bytes.
type AttachmentOpener interface {
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
}
