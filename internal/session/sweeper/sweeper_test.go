package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kriptoproyek/backend/internal/session/domain"
	"kriptoproyek/backend/internal/session/repository"
)

type countingPurger struct {
	calls   atomic.Int32
	failFor int32
	block   bool
}

func (p *countingPurger) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	n := p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if n <= p.failFor {
		return 0, errors.New("store down")
	}
	return 0, nil
}

func TestSweepOnce_DeletesExactlyExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	repo := repository.NewMemoryRepository()
	insert := func(token string, expires time.Time, revoked bool) {
		require.NoError(t, repo.Insert(ctx, &domain.Session{
			UserID: token, Token: token, CreatedAt: expires.Add(-time.Hour), ExpiresAt: expires, IsRevoked: revoked,
		}))
	}
	insert("past-1", now.Add(-3*time.Hour), false)
	insert("past-2", now.Add(-time.Minute), true)
	insert("past-3", now.Add(-time.Second), false)
	insert("future-1", now.Add(time.Second), true)
	insert("future-2", now.Add(time.Hour), false)

	s := New(repo, Config{Now: func() time.Time { return now }})
	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, 2, repo.Len())

	for _, tok := range []string{"future-1", "future-2"} {
		got, err := repo.FindByToken(ctx, tok)
		require.NoError(t, err)
		assert.NotNil(t, got, tok)
	}
}

func TestRun_SweepsOnSchedule(t *testing.T) {
	p := &countingPurger{}
	s := New(p, Config{Schedule: Interval(5 * time.Millisecond)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_RetriesAfterFailure(t *testing.T) {
	p := &countingPurger{failFor: 2}
	s := New(p, Config{Schedule: Interval(time.Hour), RetryInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	// Two failures retried quickly, then a success that waits for the hourly schedule.
	assert.Eventually(t, func() bool { return p.calls.Load() == 3 }, 2*time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 3, p.calls.Load())
}

func TestRun_CancelAbortsInFlightSweep(t *testing.T) {
	p := &countingPurger{block: true}
	s := New(p, Config{StoreTimeout: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop while a sweep was in flight")
	}
}

func TestSweepOnce_Timeout(t *testing.T) {
	s := New(&countingPurger{block: true}, Config{StoreTimeout: 10 * time.Millisecond})
	_, err := s.SweepOnce(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseSchedule(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)

	sched, err := ParseSchedule("")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), sched.Next(base))

	sched, err = ParseSchedule("0 * * * *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), sched.Next(base))

	_, err = ParseSchedule("not a schedule")
	assert.Error(t, err)

	_, err = ParseSchedule("0 0 30 2 *")
	assert.ErrorIs(t, err, ErrNeverFires)
}

type neverSchedule struct{}

func (neverSchedule) Next(time.Time) time.Time { return time.Time{} }

func TestRun_ScheduleWithoutNextWaitsRetryInterval(t *testing.T) {
	p := &countingPurger{}
	s := New(p, Config{Schedule: neverSchedule{}, RetryInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), p.calls.Load(), "sweeper must not spin on a schedule with no next activation")

	cancel()
	require.NoError(t, <-done)
}

func TestNew_Defaults(t *testing.T) {
	s := New(&countingPurger{}, Config{})
	assert.Equal(t, DefaultRetryInterval, s.retry)
	assert.Equal(t, DefaultStoreTimeout, s.timeout)
	assert.Equal(t, Interval(time.Hour), s.schedule)
}
