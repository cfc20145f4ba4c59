package service

import (
	"context"
	"sync"

	"github.com/set-night/mindchat/internal/domain"
)

// Ledger holds a non-negative credit balance per owner. TrySpend must be a
// single atomic check-and-decrement.
type Ledger interface {
	Balance(ctx context.Context, owner domain.UserID) (int64, error)
	Grant(ctx context.Context, owner domain.UserID, amount int64) error
	TrySpend(ctx context.Context, owner domain.UserID, amount int64) (int64, error)
	Zero(ctx context.Context, owner domain.UserID) error
}

type MemoryLedger struct {
	mu       sync.Mutex
	balances map[domain.UserID]int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[domain.UserID]int64)}
}

func (l *MemoryLedger) Balance(_ context.Context, owner domain.UserID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[owner], nil
}

func (l *MemoryLedger) Grant(_ context.Context, owner domain.UserID, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[owner] += amount
	return nil
}

// TrySpend deducts amount and returns the new balance. On failure the balance
// is left untouched and an *InsufficientFundsError is returned.
func (l *MemoryLedger) TrySpend(_ context.Context, owner domain.UserID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.balances[owner]
	if current < amount {
		return current, &domain.InsufficientFundsError{Required: amount, Available: current}
	}
	l.balances[owner] = current - amount
	return current - amount, nil
}

func (l *MemoryLedger) Zero(_ context.Context, owner domain.UserID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.balances, owner)
	return nil
}
