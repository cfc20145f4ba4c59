package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/set-night/mindchat/internal/domain"
)

// activeSessions remembers which chat a Telegram conversation is writing to.
// Without an entry the owner's newest session is used.
type activeSessions struct {
	mu   sync.Mutex
	byTG map[int64]domain.SessionID
}

func newActiveSessions() *activeSessions {
	return &activeSessions{byTG: make(map[int64]domain.SessionID)}
}

func (a *activeSessions) get(chatID int64) (domain.SessionID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.byTG[chatID]
	return id, ok
}

func (a *activeSessions) set(chatID int64, id domain.SessionID) {
	a.mu.Lock()
	a.byTG[chatID] = id
	a.mu.Unlock()
}

func (a *activeSessions) clear(chatID int64) {
	a.mu.Lock()
	delete(a.byTG, chatID)
	a.mu.Unlock()
}

// currentSession resolves the session for chatID. welcome is set when a new
// chat had to be opened.
func (h *Handler) currentSession(ctx context.Context, chatID int64, owner domain.UserID) (sess domain.Session, welcome *domain.Message, err error) {
	if id, ok := h.active.get(chatID); ok {
		sess, err := h.chat.Session(ctx, id)
		if err == nil && sess.OwnerID == owner {
			return sess, nil, nil
		}
		if err != nil && !errors.Is(err, domain.ErrUnknownSession) {
			return domain.Session{}, nil, fmt.Errorf("get session: %w", err)
		}
		h.active.clear(chatID)
	}

	sessions, err := h.chat.Sessions(ctx, owner)
	if err != nil {
		return domain.Session{}, nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) > 0 {
		h.active.set(chatID, sessions[0].ID)
		return sessions[0], nil, nil
	}

	sess, msg, err := h.chat.NewChat(ctx, owner)
	if err != nil {
		return domain.Session{}, nil, err
	}
	h.active.set(chatID, sess.ID)
	return sess, &msg, nil
}
