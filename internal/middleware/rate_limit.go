package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is longer than any bucket takes to refill, so an evicted
// chat starts over with the same allowance it would have had.
const limiterIdleTTL = 10 * time.Minute

type chatBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ChatLimiter hands out one token bucket per chat and drops buckets of
// chats that have gone quiet.
type ChatLimiter struct {
	mu        sync.Mutex
	buckets   map[int64]*chatBucket
	every     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewChatLimiter(perMinute, burst int) *ChatLimiter {
	return &ChatLimiter{
		buckets: make(map[int64]*chatBucket),
		every:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		idleTTL: limiterIdleTTL,
		now:     time.Now,
	}
}

func (l *ChatLimiter) Allow(chatID int64) bool {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	b, ok := l.buckets[chatID]
	if !ok {
		b = &chatBucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[chatID] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// sweep removes idle buckets. Callers hold l.mu.
func (l *ChatLimiter) sweep(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idleTTL {
			delete(l.buckets, id)
		}
	}
	l.lastSweep = now
}

// size reports how many chats currently hold a bucket.
func (l *ChatLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit returns middleware that enforces per-chat rate limits on messages.
func RateLimit(limiter *ChatLimiter) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			// Only rate limit messages (not callbacks or other updates)
			if update.Message == nil {
				next(ctx, b, update)
				return
			}

			chatID := update.Message.Chat.ID
			if !limiter.Allow(chatID) {
				slog.Debug("rate limited", "chat_id", chatID)
				b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: chatID,
					Text:   "⏳ Bạn gửi quá nhanh. Vui lòng đợi một chút.",
				})
				return
			}

			next(ctx, b, update)
		}
	}
}
