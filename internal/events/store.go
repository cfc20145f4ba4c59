package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/service"
)

type Publisher interface {
	Publish(ctx context.Context, ev MessageAppended) error
}

// PublishingStore announces every successful Append. A publish failure is
// logged and never fails the append.
type PublishingStore struct {
	service.ConversationStore
	publisher Publisher
}

func NewPublishingStore(inner service.ConversationStore, publisher Publisher) *PublishingStore {
	return &PublishingStore{ConversationStore: inner, publisher: publisher}
}

func (s *PublishingStore) Append(ctx context.Context, id domain.SessionID, msg domain.Message) (domain.Message, error) {
	appended, err := s.ConversationStore.Append(ctx, id, msg)
	if err != nil {
		return appended, err
	}

	ev := MessageAppended{SessionID: id, Message: appended, At: time.Now()}
	if sess, err := s.ConversationStore.Session(ctx, id); err == nil {
		ev.OwnerID = sess.OwnerID
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		slog.Warn("publish message event", "error", err, "session_id", id, "message_id", appended.ID)
	}
	return appended, nil
}
