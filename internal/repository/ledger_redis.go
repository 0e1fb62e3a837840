package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habit-updater/internal/model"

	"github.com/redis/go-redis/v9"
)

// claimScript stores ARGV[1] only if the key is missing or holds an earlier
// date. YYYY-MM-DD strings order the same as the dates they name.
var claimScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and cur >= ARGV[1] then
    return {0, cur}
end
redis.call('SET', KEYS[1], ARGV[1])
if cur then
    return {1, cur}
end
return {1, ''}
`)

// RedisLedger keeps the last run date under a single Redis key.
type RedisLedger struct {
	rdb *redis.Client
	key string
}

func NewRedisLedger(rdb *redis.Client, key string) *RedisLedger {
	return &RedisLedger{rdb: rdb, key: key}
}

func (l *RedisLedger) Claim(ctx context.Context, day time.Time) (*time.Time, bool, error) {
	res, err := claimScript.Run(ctx, l.rdb, []string{l.key}, model.FormatDay(day)).Slice()
	if err != nil {
		return nil, false, err
	}
	if len(res) != 2 {
		return nil, false, fmt.Errorf("unexpected claim reply %v", res)
	}

	claimed, _ := res[0].(int64)
	prevStr, _ := res[1].(string)
	prev, err := parseLedgerDay(prevStr)
	if err != nil {
		return nil, false, err
	}
	return prev, claimed == 1, nil
}

func (l *RedisLedger) LastRun(ctx context.Context) (*time.Time, error) {
	val, err := l.rdb.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseLedgerDay(val)
}

func parseLedgerDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDay(s)
	if err != nil {
		return nil, fmt.Errorf("corrupt ledger value %q: %w", s, err)
	}
	return &d, nil
}
