package domain

import "time"

type User struct {
	ID           UserID
	Email        string
	PasswordHash string
	TelegramID   *int64
	DisplayName  string
	TokenVersion int
	CreatedAt    time.Time
}

// IdentityEvent is one element of the current-identity stream. SignedIn=false
// means the user no longer has an identity on this service.
type IdentityEvent struct {
	UserID   UserID
	SignedIn bool
	At       time.Time
}
