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

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, telegram_id, display_name, token_version, created_at`

func (r *UserRepository) Create(ctx context.Context, u domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, telegram_id, display_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		u.ID, textOrNull(u.Email), u.PasswordHash, int64PtrToPgInt8(u.TelegramID), u.DisplayName)
	created, err := scanUser(row)
	if isPgError(err, pgUniqueViolation) {
		return domain.User{}, domain.ErrUserExists
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *UserRepository) ByID(ctx context.Context, id domain.UserID) (domain.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *UserRepository) ByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
}

func (r *UserRepository) BumpTokenVersion(ctx context.Context, id domain.UserID) (int, error) {
	var version int
	err := r.db.QueryRow(ctx,
		`UPDATE users SET token_version = token_version + 1 WHERE id = $1 RETURNING token_version`, id,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("bump token version: %w", err)
	}
	return version, nil
}

func (r *UserRepository) Delete(ctx context.Context, id domain.UserID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (r *UserRepository) one(ctx context.Context, query string, arg any) (domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u          domain.User
		email      pgtype.Text
		telegramID pgtype.Int8
		createdAt  pgtype.Timestamptz
	)
	if err := row.Scan(&u.ID, &email, &u.PasswordHash, &telegramID, &u.DisplayName, &u.TokenVersion, &createdAt); err != nil {
		return domain.User{}, err
	}
	u.Email = nullToText(email)
	u.TelegramID = pgInt8ToInt64Ptr(telegramID)
	u.CreatedAt = pgTimestamptzToTime(createdAt)
	return u, nil
}
