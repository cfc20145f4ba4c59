package service

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/mindchat/internal/domain"
)

// ConversationStore keeps sessions and their append-only message lists.
type ConversationStore interface {
	CreateSession(ctx context.Context, owner domain.UserID, title string) (domain.Session, error)
	Session(ctx context.Context, id domain.SessionID) (domain.Session, error)
	Append(ctx context.Context, id domain.SessionID, msg domain.Message) (domain.Message, error)
	// MessagesOf yields messages in insertion order. The sequence can be
	// ranged over more than once; an unknown session yields nothing.
	MessagesOf(ctx context.Context, id domain.SessionID) iter.Seq[domain.Message]
	SessionsOf(ctx context.Context, owner domain.UserID) ([]domain.Session, error)
}

type memorySession struct {
	session  domain.Session
	messages []domain.Message
}

type MemoryConversationStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*memorySession
	nextID   int64
	now      func() time.Time
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		sessions: make(map[domain.SessionID]*memorySession),
		now:      time.Now,
	}
}

func (s *MemoryConversationStore) CreateSession(_ context.Context, owner domain.UserID, title string) (domain.Session, error) {
	sess := domain.Session{
		ID:        domain.SessionID(uuid.NewString()),
		OwnerID:   owner,
		Title:     title,
		CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = &memorySession{session: sess}
	s.mu.Unlock()
	return sess, nil
}

func (s *MemoryConversationStore) Session(_ context.Context, id domain.SessionID) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrUnknownSession
	}
	return ms.session, nil
}

func (s *MemoryConversationStore) Append(_ context.Context, id domain.SessionID, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.sessions[id]
	if !ok {
		return domain.Message{}, domain.ErrUnknownSession
	}
	s.nextID++
	msg.ID = s.nextID
	msg.SessionID = id
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	ms.messages = append(ms.messages, msg)
	return msg, nil
}

func (s *MemoryConversationStore) MessagesOf(_ context.Context, id domain.SessionID) iter.Seq[domain.Message] {
	return func(yield func(domain.Message) bool) {
		s.mu.RLock()
		ms, ok := s.sessions[id]
		var snapshot []domain.Message
		if ok {
			snapshot = slices.Clone(ms.messages)
		}
		s.mu.RUnlock()

		for _, m := range snapshot {
			if !yield(m) {
				return
			}
		}
	}
}

func (s *MemoryConversationStore) SessionsOf(_ context.Context, owner domain.UserID) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Session
	for _, ms := range s.sessions {
		if ms.session.OwnerID == owner {
			out = append(out, ms.session)
		}
	}
	slices.SortFunc(out, func(a, b domain.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}
