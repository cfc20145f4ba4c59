package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/set-night/mindchat/internal/domain"
)

// LedgerRepository keeps balances in ledger_balances and records every change
// in ledger_transactions within the same database transaction.
type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Balance(ctx context.Context, owner domain.UserID) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx,
		`SELECT balance FROM ledger_balances WHERE owner_id = $1`, owner,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (r *LedgerRepository) Grant(ctx context.Context, owner domain.UserID, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_balances (owner_id, balance) VALUES ($1, $2)
		ON CONFLICT (owner_id) DO UPDATE
		SET balance = ledger_balances.balance + EXCLUDED.balance, updated_at = now()`,
		owner, amount)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	if err := recordTransaction(ctx, tx, owner, amount, domain.TxTypeCredit, "grant"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TrySpend deducts amount with a conditional update, so concurrent spends can
// never drive the balance below zero.
func (r *LedgerRepository) TrySpend(ctx context.Context, owner domain.UserID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE ledger_balances
		SET balance = balance - $2, updated_at = now()
		WHERE owner_id = $1 AND balance >= $2
		RETURNING balance`,
		owner, amount,
	).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		var current int64
		if err := tx.QueryRow(ctx,
			`SELECT balance FROM ledger_balances WHERE owner_id = $1`, owner,
		).Scan(&current); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("get balance: %w", err)
		}
		return current, &domain.InsufficientFundsError{Required: amount, Available: current}
	}
	if err != nil {
		return 0, fmt.Errorf("deduct balance: %w", err)
	}

	if err := recordTransaction(ctx, tx, owner, -amount, domain.TxTypeDebit, "chat exchange"); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newBalance, nil
}

func (r *LedgerRepository) Zero(ctx context.Context, owner domain.UserID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM ledger_balances WHERE owner_id = $1 FOR UPDATE`, owner,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && current == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock balance: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE ledger_balances SET balance = 0, updated_at = now() WHERE owner_id = $1`, owner,
	); err != nil {
		return fmt.Errorf("zero balance: %w", err)
	}
	if err := recordTransaction(ctx, tx, owner, -current, domain.TxTypeDebit, "sign-out"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Transactions lists the most recent ledger entries of an owner, newest first.
func (r *LedgerRepository) Transactions(ctx context.Context, owner domain.UserID, limit int) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, amount, tx_type, description, created_at
		FROM ledger_transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			t         domain.Transaction
			txType    string
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Amount, &txType, &t.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.TxType = domain.TxType(txType)
		t.CreatedAt = pgTimestamptzToTime(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func recordTransaction(ctx context.Context, tx pgx.Tx, owner domain.UserID, amount int64, txType domain.TxType, description string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_transactions (owner_id, amount, tx_type, description)
		VALUES ($1, $2, $3, $4)`,
		owner, amount, string(txType), description)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}
