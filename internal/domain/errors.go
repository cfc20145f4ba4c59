package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySubmission   = errors.New("empty submission")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownSession    = errors.New("unknown session")
	ErrRemoteExchange    = errors.New("remote exchange failed")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidAttachment = errors.New("invalid attachment")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserExists        = errors.New("user already exists")
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrObjectNotFound    = errors.New("object not found")
)

// InsufficientFundsError carries the quote and the balance it was compared against.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
