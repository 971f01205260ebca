package lockout

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryLimiter_LocksAfterMaxAttempts(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	l, err := NewMemoryLimiter(Config{MaxAttempts: 3, Duration: 15 * time.Minute}, c.now)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		locked, err := l.Fail(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, locked, "attempt %d", i+1)
	}
	locked, err := l.Fail(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, locked)

	isLocked, _ := l.Locked(ctx, "u1")
	assert.True(t, isLocked)
	other, _ := l.Locked(ctx, "u2")
	assert.False(t, other)

	c.advance(15*time.Minute - time.Second)
	isLocked, _ = l.Locked(ctx, "u1")
	assert.True(t, isLocked)

	c.advance(time.Second)
	isLocked, _ = l.Locked(ctx, "u1")
	assert.False(t, isLocked, "lock expires after the configured duration")
}

func TestMemoryLimiter_ResetClearsFailures(t *testing.T) {
	l, err := NewMemoryLimiter(Config{MaxAttempts: 2}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = l.Fail(ctx, "u1")
	require.NoError(t, l.Reset(ctx, "u1"))
	locked, _ := l.Fail(ctx, "u1")
	assert.False(t, locked, "reset must restart the count")
}

func TestMemoryLimiter_WindowRestartsCount(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	l, _ := NewMemoryLimiter(Config{MaxAttempts: 2, Duration: time.Minute}, c.now)
	ctx := context.Background()

	_, _ = l.Fail(ctx, "u1")
	c.advance(2 * time.Minute)
	locked, _ := l.Fail(ctx, "u1")
	assert.False(t, locked)
}

func TestConfig_Defaults(t *testing.T) {
	l, err := NewMemoryLimiter(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxAttempts, l.cfg.MaxAttempts)
	assert.Equal(t, DefaultDuration, l.cfg.Duration)

	_, err = NewMemoryLimiter(Config{MaxAttempts: -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewRedisLimiter(nil, Config{Duration: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

type RedisLimiterSuite struct {
	suite.Suite
	client *redis.Client
	ctx    context.Context
}

func TestRedisLimiterSuite(t *testing.T) {
	if os.Getenv("REDIS_ADDR") == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	suite.Run(t, new(RedisLimiterSuite))
}

func (s *RedisLimiterSuite) SetupSuite() {
	s.client = redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDR")})
	s.ctx = context.Background()
	require.NoError(s.T(), s.client.Ping(s.ctx).Err())
}

func (s *RedisLimiterSuite) TearDownSuite() {
	s.client.Close()
}

func (s *RedisLimiterSuite) TestLocksAndResets() {
	l, err := NewRedisLimiter(s.client, Config{MaxAttempts: 2, Duration: time.Minute})
	s.Require().NoError(err)
	key := uuid.NewString()

	locked, err := l.Fail(s.ctx, key)
	s.Require().NoError(err)
	s.False(locked)
	locked, err = l.Fail(s.ctx, key)
	s.Require().NoError(err)
	s.True(locked)

	isLocked, err := l.Locked(s.ctx, key)
	s.Require().NoError(err)
	s.True(isLocked)

	s.Require().NoError(l.Reset(s.ctx, key))
	isLocked, err = l.Locked(s.ctx, key)
	s.Require().NoError(err)
	s.False(isLocked)
}
