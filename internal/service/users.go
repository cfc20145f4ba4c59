package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/set-night/mindchat/internal/domain"
)

// UserRepository persists accounts. Create returns domain.ErrUserExists when
// the email or Telegram id is taken.
type UserRepository interface {
	Create(ctx context.Context, u domain.User) (domain.User, error)
	ByID(ctx context.Context, id domain.UserID) (domain.User, error)
	ByEmail(ctx context.Context, email string) (domain.User, error)
	ByTelegramID(ctx context.Context, telegramID int64) (domain.User, error)
	BumpTokenVersion(ctx context.Context, id domain.UserID) (int, error)
	Delete(ctx context.Context, id domain.UserID) error
}

type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[domain.UserID]domain.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[domain.UserID]domain.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, u domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return domain.User{}, domain.ErrUserExists
		}
		if u.TelegramID != nil && existing.TelegramID != nil && *existing.TelegramID == *u.TelegramID {
			return domain.User{}, domain.ErrUserExists
		}
	}
	if _, ok := r.users[u.ID]; ok {
		return domain.User{}, domain.ErrUserExists
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	r.users[u.ID] = u
	return u, nil
}

func (r *MemoryUserRepository) ByID(_ context.Context, id domain.UserID) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryUserRepository) ByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email != "" && strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (r *MemoryUserRepository) ByTelegramID(_ context.Context, telegramID int64) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.TelegramID != nil && *u.TelegramID == telegramID {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (r *MemoryUserRepository) BumpTokenVersion(_ context.Context, id domain.UserID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	u.TokenVersion++
	r.users[id] = u
	return u.TokenVersion, nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id domain.UserID) error {
	r.mu.Lock()
	delete(r.users, id)
	r.mu.Unlock()
	return nil
}
