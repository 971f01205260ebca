package lockout

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	failPrefix = "lockout:fail:"
	lockPrefix = "lockout:lock:"
)

// failScript increments the failure counter, starting its window on the first failure.
// Reaching the threshold sets the lock key for the lock duration and clears the counter.
const failScript = `
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if n >= tonumber(ARGV[1]) then
	redis.call('SET', KEYS[2], '1', 'PX', ARGV[2])
	redis.call('DEL', KEYS[1])
	return 1
end
return 0
`

// RedisClient is the subset of *redis.Client used by RedisLimiter.
type RedisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisLimiter shares counters across server instances through Redis.
type RedisLimiter struct {
	client RedisClient
	cfg    Config
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client RedisClient, cfg Config) (*RedisLimiter, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, cfg: cfg}, nil
}

func (l *RedisLimiter) Locked(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, lockPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisLimiter) Fail(ctx context.Context, key string) (bool, error) {
	res, err := l.client.Eval(ctx, failScript,
		[]string{failPrefix + key, lockPrefix + key},
		l.cfg.MaxAttempts,
		strconv.FormatInt(l.cfg.Duration.Milliseconds(), 10),
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, failPrefix+key, lockPrefix+key).Err()
}
