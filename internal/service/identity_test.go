package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/set-night/mindchat/internal/config"
	"github.com/set-night/mindchat/internal/domain"
)

func newTestIdentity() (*IdentityService, *MemoryLedger) {
	ledger := NewMemoryLedger()
	return NewIdentityService(NewMemoryUserRepository(), ledger, "test-secret", time.Hour), ledger
}

func authReason(err error) domain.AuthReason {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	return ""
}

func TestSignUpGrantsStartingCredits(t *testing.T) {
	ctx := context.Background()
	s, ledger := newTestIdentity()

	res, err := s.SignUp(ctx, "Ann@Example.com", "secret1")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if res.Token == "" {
		t.Error("SignUp returned an empty token")
	}
	if res.User.Email != "ann@example.com" {
		t.Errorf("email: got %q, want lower-cased", res.User.Email)
	}
	if got, _ := ledger.Balance(ctx, res.User.ID); got != config.StartingGrant {
		t.Errorf("balance: got %d, want %d", got, config.StartingGrant)
	}

	user, err := s.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.ID != res.User.ID {
		t.Errorf("Authenticate: got %q, want %q", user.ID, res.User.ID)
	}
}

func TestSignUpValidation(t *testing.T) {
	s, _ := newTestIdentity()
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		want     domain.AuthReason
	}{
		{"missing email", "", "secret1", domain.AuthInvalidEmail},
		{"bad email", "not-an-email", "secret1", domain.AuthInvalidEmail},
		{"short password", "a@b.co", "12345", domain.AuthWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SignUp(ctx, tt.email, tt.password)
			if got := authReason(err); got != tt.want {
				t.Errorf("reason: got %q, want %q (err %v)", got, tt.want, err)
			}
		})
	}

	if _, err := s.SignUp(ctx, "dup@b.co", "secret1"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if _, err := s.SignUp(ctx, "DUP@b.co", "secret1"); authReason(err) != domain.AuthEmailInUse {
		t.Errorf("duplicate sign-up: got %v, want %q", err, domain.AuthEmailInUse)
	}
}

func TestSignInDoesNotGrantAgain(t *testing.T) {
	ctx := context.Background()
	s, ledger := newTestIdentity()

	up, err := s.SignUp(ctx, "a@b.co", "secret1")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if _, err := s.SignIn(ctx, "a@b.co", "secret1"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if got, _ := ledger.Balance(ctx, up.User.ID); got != config.StartingGrant {
		t.Errorf("balance: got %d, want %d", got, config.StartingGrant)
	}

	if _, err := s.SignIn(ctx, "a@b.co", "wrong-pass"); authReason(err) != domain.AuthWrongPassword {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := s.SignIn(ctx, "nobody@b.co", "secret1"); authReason(err) != domain.AuthUserNotFound {
		t.Errorf("unknown user: got %v", err)
	}
}

func TestSignOutRevokesTokenAndZeroesBalance(t *testing.T) {
	ctx := context.Background()
	s, ledger := newTestIdentity()

	res, _ := s.SignUp(ctx, "a@b.co", "secret1")
	if err := s.SignOut(ctx, res.User.ID); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if _, err := s.Authenticate(ctx, res.Token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("Authenticate after sign-out: got %v, want ErrInvalidToken", err)
	}
	if got, _ := ledger.Balance(ctx, res.User.ID); got != 0 {
		t.Errorf("balance after sign-out: got %d, want 0", got)
	}

	again, err := s.SignIn(ctx, "a@b.co", "secret1")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if _, err := s.Authenticate(ctx, again.Token); err != nil {
		t.Errorf("Authenticate with new token: %v", err)
	}
}

func TestAuthenticateRejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestIdentity()
	other := NewIdentityService(NewMemoryUserRepository(), NewMemoryLedger(), "other-secret", time.Hour)

	res, _ := other.SignUp(ctx, "a@b.co", "secret1")
	if _, err := s.Authenticate(ctx, res.Token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("foreign token: got %v, want ErrInvalidToken", err)
	}
	if _, err := s.Authenticate(ctx, "garbage"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("garbage token: got %v, want ErrInvalidToken", err)
	}
}

func TestEnsureTelegramUserGrantsOnce(t *testing.T) {
	ctx := context.Background()
	s, ledger := newTestIdentity()

	first, created, err := s.EnsureTelegramUser(ctx, 42, "Ann")
	if err != nil {
		t.Fatalf("EnsureTelegramUser failed: %v", err)
	}
	if !created {
		t.Error("first call: created = false, want true")
	}
	second, created, err := s.EnsureTelegramUser(ctx, 42, "Ann")
	if err != nil {
		t.Fatalf("EnsureTelegramUser failed: %v", err)
	}
	if created {
		t.Error("second call: created = true, want false")
	}
	if first.ID != second.ID {
		t.Errorf("user ids differ: %q vs %q", first.ID, second.ID)
	}
	if got, _ := ledger.Balance(ctx, first.ID); got != config.StartingGrant {
		t.Errorf("balance: got %d, want %d", got, config.StartingGrant)
	}
}

// flakyGrantLedger fails the first n grants.
type flakyGrantLedger struct {
	*MemoryLedger
	failures int
}

func (l *flakyGrantLedger) Grant(ctx context.Context, owner domain.UserID, amount int64) error {
	if l.failures > 0 {
		l.failures--
		return errors.New("ledger unavailable")
	}
	return l.MemoryLedger.Grant(ctx, owner, amount)
}

func TestSignUpRetriesAfterFailedGrant(t *testing.T) {
	ctx := context.Background()
	ledger := &flakyGrantLedger{MemoryLedger: NewMemoryLedger(), failures: 1}
	s := NewIdentityService(NewMemoryUserRepository(), ledger, "test-secret", time.Hour)

	if _, err := s.SignUp(ctx, "ann@example.com", "secret1"); authReason(err) != domain.AuthUnknown {
		t.Fatalf("SignUp with failing ledger: got %v, want AuthUnknown", err)
	}
	if _, err := s.SignIn(ctx, "ann@example.com", "secret1"); authReason(err) != domain.AuthUserNotFound {
		t.Errorf("SignIn after failed sign-up: got %v, want AuthUserNotFound", err)
	}

	res, err := s.SignUp(ctx, "ann@example.com", "secret1")
	if err != nil {
		t.Fatalf("retried SignUp failed: %v", err)
	}
	if got, _ := ledger.Balance(ctx, res.User.ID); got != config.StartingGrant {
		t.Errorf("balance: got %d, want %d", got, config.StartingGrant)
	}
}

func TestEnsureTelegramUserRetriesAfterFailedGrant(t *testing.T) {
	ctx := context.Background()
	ledger := &flakyGrantLedger{MemoryLedger: NewMemoryLedger(), failures: 1}
	s := NewIdentityService(NewMemoryUserRepository(), ledger, "test-secret", time.Hour)

	if _, _, err := s.EnsureTelegramUser(ctx, 42, "Ann"); err == nil {
		t.Fatal("EnsureTelegramUser with failing ledger: got nil error")
	}
	user, created, err := s.EnsureTelegramUser(ctx, 42, "Ann")
	if err != nil {
		t.Fatalf("EnsureTelegramUser failed: %v", err)
	}
	if !created {
		t.Error("retry: created = false, want true")
	}
	if got, _ := ledger.Balance(ctx, user.ID); got != config.StartingGrant {
		t.Errorf("balance: got %d, want %d", got, config.StartingGrant)
	}
}

func TestSubscribeReceivesIdentityEvents(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestIdentity()
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	res, _ := s.SignUp(ctx, "a@b.co", "secret1")
	s.SignOut(ctx, res.User.ID)

	for _, want := range []bool{true, false} {
		select {
		case ev := <-events:
			if ev.UserID != res.User.ID || ev.SignedIn != want {
				t.Errorf("event: got %+v, want signed_in=%v", ev, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for identity event")
		}
	}
}
