package handler

import (
	"context"

	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/service"
)

type AuthService interface {
	SignUp(ctx context.Context, email, password string) (*service.AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*service.AuthResult, error)
	SignOut(ctx context.Context, owner domain.UserID) error
	User(ctx context.Context, id domain.UserID) (domain.User, error)
}

type ChatService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.Outcome, error)
	NewChat(ctx context.Context, owner domain.UserID) (domain.Session, domain.Message, error)
	Session(ctx context.Context, id domain.SessionID) (domain.Session, error)
	Messages(ctx context.Context, id domain.SessionID) ([]domain.Message, error)
	Sessions(ctx context.Context, owner domain.UserID) ([]domain.Session, error)
	Balance(ctx context.Context, owner domain.UserID) (int64, error)
}

// TransactionHistory is implemented by ledgers that keep an audit trail.
type TransactionHistory interface {
	Transactions(ctx context.Context, owner domain.UserID, limit int) ([]domain.Transaction, error)
}
