package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestInsufficientFundsErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("settle: %w", &InsufficientFundsError{Required: 50, Available: 40})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Error("wrapped InsufficientFundsError does not match ErrInsufficientFunds")
	}
	var target *InsufficientFundsError
	if !errors.As(err, &target) || target.Required != 50 || target.Available != 40 {
		t.Errorf("errors.As: got %+v", target)
	}
}

func TestSendable(t *testing.T) {
	if Sendable("  \n", nil) {
		t.Error("whitespace-only text is sendable")
	}
	if !Sendable("", NewImageAttachment("mem://a", "a.jpg", 1)) {
		t.Error("attachment-only submission is not sendable")
	}
	if !Sendable("hi", nil) {
		t.Error("text submission is not sendable")
	}
}

func TestAttachmentValidate(t *testing.T) {
	if err := (&Attachment{Kind: "video", Locator: "mem://a"}).Validate(); !errors.Is(err, ErrInvalidAttachment) {
		t.Errorf("unknown kind: got %v", err)
	}
	if err := NewDocumentAttachment(" ", "a.pdf", 1).Validate(); !errors.Is(err, ErrInvalidAttachment) {
		t.Errorf("empty locator: got %v", err)
	}
	if got := NewDocumentAttachment("mem://a", "a.pdf", 1).ContentType(); got != "application/pdf" {
		t.Errorf("document content type: got %q", got)
	}
}

func TestAuthErrorDisplayMessage(t *testing.T) {
	for _, reason := range []AuthReason{AuthUserNotFound, AuthWrongPassword, AuthEmailInUse, AuthWeakPassword, AuthInvalidEmail, AuthNetwork, AuthUnknown} {
		if msg := (&AuthError{Reason: reason}).DisplayMessage(); msg == "" {
			t.Errorf("DisplayMessage(%s) is empty", reason)
		}
	}
}
