package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/set-night/mindchat/internal/domain"
)

type ConversationRepository struct {
	db *pgxpool.Pool
}

func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) CreateSession(ctx context.Context, owner domain.UserID, title string) (domain.Session, error) {
	sess := domain.Session{
		ID:      domain.SessionID(uuid.NewString()),
		OwnerID: owner,
		Title:   title,
	}
	var createdAt pgtype.Timestamptz
	err := r.db.QueryRow(ctx, `
		INSERT INTO chat_sessions (id, owner_id, title) VALUES ($1, $2, $3)
		RETURNING created_at`,
		sess.ID, sess.OwnerID, sess.Title,
	).Scan(&createdAt)
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	sess.CreatedAt = pgTimestamptzToTime(createdAt)
	return sess, nil
}

func (r *ConversationRepository) Session(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, owner_id, title, created_at FROM chat_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrUnknownSession
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (r *ConversationRepository) Append(ctx context.Context, id domain.SessionID, msg domain.Message) (domain.Message, error) {
	var kind, locator, name pgtype.Text
	var size pgtype.Int8
	if a := msg.Attachment; a != nil {
		kind = textOrNull(string(a.Kind))
		locator = textOrNull(a.Locator)
		name = textOrNull(a.Name)
		size = int64PtrToPgInt8(&a.Size)
	}
	var imageURL, videoURL pgtype.Text
	if !msg.Media.Empty() {
		imageURL = textOrNull(msg.Media.ImageURL)
		videoURL = textOrNull(msg.Media.VideoURL)
	}

	msg.SessionID = id
	var createdAt pgtype.Timestamptz
	err := r.db.QueryRow(ctx, `
		INSERT INTO chat_messages (
			session_id, origin, text,
			attachment_kind, attachment_locator, attachment_name, attachment_size,
			media_image_url, media_video_url, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))
		RETURNING id, created_at`,
		id, string(msg.Origin), msg.Text,
		kind, locator, name, size,
		imageURL, videoURL, timeToPgTimestamptz(msg.CreatedAt),
	).Scan(&msg.ID, &createdAt)
	if isPgError(err, pgForeignKeyViolation) {
		return domain.Message{}, domain.ErrUnknownSession
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("add message: %w", err)
	}
	msg.CreatedAt = pgTimestamptzToTime(createdAt)
	return msg, nil
}

// MessagesOf queries the database each time the sequence is ranged over. A
// query failure is logged and ends the sequence early.
func (r *ConversationRepository) MessagesOf(ctx context.Context, id domain.SessionID) iter.Seq[domain.Message] {
	return func(yield func(domain.Message) bool) {
		rows, err := r.db.Query(ctx, `
			SELECT id, session_id, origin, text,
				attachment_kind, attachment_locator, attachment_name, attachment_size,
				media_image_url, media_video_url, created_at
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY id`, id)
		if err != nil {
			slog.Error("query messages", "error", err, "session_id", id)
			return
		}
		defer rows.Close()

		for rows.Next() {
			msg, err := scanMessage(rows)
			if err != nil {
				slog.Error("scan message", "error", err, "session_id", id)
				return
			}
			if !yield(msg) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			slog.Error("iterate messages", "error", err, "session_id", id)
		}
	}
}

func (r *ConversationRepository) SessionsOf(ctx context.Context, owner domain.UserID) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, title, created_at
		FROM chat_sessions
		WHERE owner_id = $1
		ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		sess      domain.Session
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&sess.ID, &sess.OwnerID, &sess.Title, &createdAt); err != nil {
		return domain.Session{}, err
	}
	sess.CreatedAt = pgTimestamptzToTime(createdAt)
	return sess, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		msg                 domain.Message
		origin              string
		kind, locator, name pgtype.Text
		size                pgtype.Int8
		imageURL, videoURL  pgtype.Text
		createdAt           pgtype.Timestamptz
	)
	err := row.Scan(&msg.ID, &msg.SessionID, &origin, &msg.Text,
		&kind, &locator, &name, &size,
		&imageURL, &videoURL, &createdAt)
	if err != nil {
		return domain.Message{}, err
	}
	msg.Origin = domain.Origin(origin)
	msg.CreatedAt = pgTimestamptzToTime(createdAt)

	if kind.Valid {
		var sz int64
		if p := pgInt8ToInt64Ptr(size); p != nil {
			sz = *p
		}
		msg.Attachment = &domain.Attachment{
			Kind:    domain.AttachmentKind(kind.String),
			Locator: nullToText(locator),
			Name:    nullToText(name),
			Size:    sz,
		}
	}
	if imageURL.Valid || videoURL.Valid {
		msg.Media = &domain.GeneratedMedia{
			ImageURL: nullToText(imageURL),
			VideoURL: nullToText(videoURL),
		}
	}
	return msg, nil
}
