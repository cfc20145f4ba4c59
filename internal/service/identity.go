package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/set-night/mindchat/internal/config"
	"github.com/set-night/mindchat/internal/domain"
)

// AuthResult is returned by sign-up and sign-in.
type AuthResult struct {
	Token string      `json:"token"`
	User  domain.User `json:"-"`
}

type tokenClaims struct {
	UserID  string `json:"user_id"`
	Version int    `json:"ver"`
	jwt.RegisteredClaims
}

// IdentityService signs users in and out and grants the starting credits
// exactly once per account.
type IdentityService struct {
	users      UserRepository
	ledger     Ledger
	secret     []byte
	expiration time.Duration

	mu          sync.Mutex
	subscribers map[int]chan domain.IdentityEvent
	nextSub     int
}

func NewIdentityService(users UserRepository, ledger Ledger, secret string, expiration time.Duration) *IdentityService {
	return &IdentityService{
		users:       users,
		ledger:      ledger,
		secret:      []byte(secret),
		expiration:  expiration,
		subscribers: make(map[int]chan domain.IdentityEvent),
	}
}

func (s *IdentityService) SignUp(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, &domain.AuthError{Reason: domain.AuthInvalidEmail}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &domain.AuthError{Reason: domain.AuthInvalidEmail, Err: err}
	}
	if len(password) < config.MinPasswordLength {
		return nil, &domain.AuthError{Reason: domain.AuthWeakPassword}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, &domain.AuthError{Reason: domain.AuthUnknown, Err: fmt.Errorf("hash password: %w", err)}
	}

	user, err := s.users.Create(ctx, domain.User{
		ID:           domain.UserID(uuid.NewString()),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  email,
	})
	if err != nil {
		return nil, classifyStoreError(err)
	}
	if err := s.grantOrRollback(ctx, user.ID); err != nil {
		return nil, &domain.AuthError{Reason: domain.AuthUnknown, Err: err}
	}
	slog.Info("user signed up", "user_id", user.ID)

	return s.signedIn(user)
}

func (s *IdentityService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, &domain.AuthError{Reason: domain.AuthInvalidEmail}
	}
	user, err := s.users.ByEmail(ctx, email)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, &domain.AuthError{Reason: domain.AuthWrongPassword}
	}
	return s.signedIn(user)
}

// SignOut revokes the user's tokens and clears the balance.
func (s *IdentityService) SignOut(ctx context.Context, owner domain.UserID) error {
	if _, err := s.users.BumpTokenVersion(ctx, owner); err != nil {
		return classifyStoreError(err)
	}
	if err := s.ledger.Zero(ctx, owner); err != nil {
		return fmt.Errorf("zero balance: %w", err)
	}
	s.publish(domain.IdentityEvent{UserID: owner, SignedIn: false, At: time.Now()})
	return nil
}

// Authenticate resolves a bearer token to its user.
func (s *IdentityService) Authenticate(ctx context.Context, token string) (domain.User, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return domain.User{}, domain.ErrInvalidToken
	}

	user, err := s.users.ByID(ctx, domain.UserID(claims.UserID))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.User{}, domain.ErrInvalidToken
		}
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if user.TokenVersion != claims.Version {
		return domain.User{}, domain.ErrInvalidToken
	}
	return user, nil
}

// EnsureTelegramUser returns the account bound to a Telegram id, creating and
// funding it on first sight.
func (s *IdentityService) EnsureTelegramUser(ctx context.Context, telegramID int64, displayName string) (domain.User, bool, error) {
	user, err := s.users.ByTelegramID(ctx, telegramID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, false, fmt.Errorf("get user: %w", err)
	}

	tgID := telegramID
	user, err = s.users.Create(ctx, domain.User{
		ID:          domain.UserID(uuid.NewString()),
		TelegramID:  &tgID,
		DisplayName: displayName,
	})
	if errors.Is(err, domain.ErrUserExists) {
		// Lost a race with a concurrent update from the same chat.
		user, err = s.users.ByTelegramID(ctx, telegramID)
		if err != nil {
			return domain.User{}, false, fmt.Errorf("get user: %w", err)
		}
		return user, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("create user: %w", err)
	}

	if err := s.grantOrRollback(ctx, user.ID); err != nil {
		return domain.User{}, false, err
	}
	slog.Info("telegram user registered", "user_id", user.ID, "telegram_id", telegramID)
	s.publish(domain.IdentityEvent{UserID: user.ID, SignedIn: true, At: time.Now()})
	return user, true, nil
}

// grantOrRollback funds a new account. When the grant fails the account is
// removed again so the email or Telegram id can register on the next try.
func (s *IdentityService) grantOrRollback(ctx context.Context, id domain.UserID) error {
	err := s.ledger.Grant(ctx, id, config.StartingGrant)
	if err == nil {
		return nil
	}
	if delErr := s.users.Delete(context.WithoutCancel(ctx), id); delErr != nil {
		slog.Error("remove unfunded user", "error", delErr, "user_id", id)
	}
	return fmt.Errorf("grant starting credits: %w", err)
}

func (s *IdentityService) User(ctx context.Context, id domain.UserID) (domain.User, error) {
	return s.users.ByID(ctx, id)
}

// Subscribe returns the identity event stream and a function that ends the
// subscription. Slow subscribers miss events rather than block publishers.
func (s *IdentityService) Subscribe() (<-chan domain.IdentityEvent, func()) {
	ch := make(chan domain.IdentityEvent, 16)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *IdentityService) publish(ev domain.IdentityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *IdentityService) signedIn(user domain.User) (*AuthResult, error) {
	token, err := s.issueToken(user)
	if err != nil {
		return nil, &domain.AuthError{Reason: domain.AuthUnknown, Err: err}
	}
	s.publish(domain.IdentityEvent{UserID: user.ID, SignedIn: true, At: time.Now()})
	return &AuthResult{Token: token, User: user}, nil
}

func (s *IdentityService) issueToken(user domain.User) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID:  string(user.ID),
		Version: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func classifyStoreError(err error) error {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return &domain.AuthError{Reason: domain.AuthUserNotFound, Err: err}
	case errors.Is(err, domain.ErrUserExists):
		return &domain.AuthError{Reason: domain.AuthEmailInUse, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &domain.AuthError{Reason: domain.AuthNetwork, Err: err}
	default:
		return &domain.AuthError{Reason: domain.AuthUnknown, Err: err}
	}
}
