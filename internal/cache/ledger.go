package cache

import (
	"context"
	"errors"
	"fmt"

	redisv9 "github.com/redis/go-redis/v9"

	"github.com/set-night/mindchat/internal/domain"
)

// spendScript decrements KEYS[1] by ARGV[1] only when the balance covers it.
// Returns {1, new_balance} on success and {0, current_balance} otherwise.
var spendScript = redisv9.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
if current < amount then
	return {0, current}
end
return {1, redis.call('DECRBY', KEYS[1], amount)}
`)

// RedisLedger stores balances as integer keys. TrySpend runs as a Lua script
// so the check and the decrement are one atomic step.
type RedisLedger struct {
	client *redisv9.Client
	prefix string
}

func NewRedisLedger(client *redisv9.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "ledger:balance:"
	}
	return &RedisLedger{client: client, prefix: prefix}
}

func (l *RedisLedger) Balance(ctx context.Context, owner domain.UserID) (int64, error) {
	balance, err := l.client.Get(ctx, l.key(owner)).Int64()
	if errors.Is(err, redisv9.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get balance failed: %w", err)
	}
	return balance, nil
}

func (l *RedisLedger) Grant(ctx context.Context, owner domain.UserID, amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	if err := l.client.IncrBy(ctx, l.key(owner), amount).Err(); err != nil {
		return fmt.Errorf("redis grant failed: %w", err)
	}
	return nil
}

func (l *RedisLedger) TrySpend(ctx context.Context, owner domain.UserID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	res, err := spendScript.Run(ctx, l.client, []string{l.key(owner)}, amount).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("redis spend failed: %w", err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("redis spend: unexpected reply %v", res)
	}
	if res[0] == 0 {
		return res[1], &domain.InsufficientFundsError{Required: amount, Available: res[1]}
	}
	return res[1], nil
}

func (l *RedisLedger) Zero(ctx context.Context, owner domain.UserID) error {
	if err := l.client.Del(ctx, l.key(owner)).Err(); err != nil {
		return fmt.Errorf("redis zero balance failed: %w", err)
	}
	return nil
}

func (l *RedisLedger) key(owner domain.UserID) string {
	return l.prefix + string(owner)
}
