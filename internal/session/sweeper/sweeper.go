// Package sweeper periodically purges expired session records.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"kriptoproyek/backend/internal/logger"
	"kriptoproyek/backend/internal/telemetry"
	telemetrydomain "kriptoproyek/backend/internal/telemetry/domain"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultSpec          = "@every 1h"
	DefaultRetryInterval = 5 * time.Minute
	DefaultStoreTimeout  = 30 * time.Second
)

// Purger deletes session records whose expiry is at or before now.
type Purger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Interval is a fixed-delay cron.Schedule with sub-second resolution.
// cron.Every rounds to whole seconds.
type Interval time.Duration

// Next implements cron.Schedule.
func (i Interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// ErrNeverFires is returned by ParseSchedule for a spec with no future activation, such as "0 0 30 2 *".
var ErrNeverFires = errors.New("sweeper: schedule never fires")

// ParseSchedule parses a standard cron spec or descriptor such as "@every 1h" or "0 * * * *".
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, err
	}
	if sched.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("%w: %q", ErrNeverFires, spec)
	}
	return sched, nil
}

// Config configures a Sweeper.
type Config struct {
	// Schedule decides when the next sweep runs after a successful one.
	Schedule cron.Schedule
	// RetryInterval is the delay after a failed sweep.
	RetryInterval time.Duration
	// StoreTimeout bounds a single purge.
	StoreTimeout time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
	Events       telemetry.EventEmitter
}

// Sweeper deletes expired sessions on a schedule. It shares no locks with the request path.
type Sweeper struct {
	store    Purger
	schedule cron.Schedule
	retry    time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      *zap.Logger
	events   telemetry.EventEmitter
}

// New returns a Sweeper over store.
func New(store Purger, cfg Config) *Sweeper {
	s := &Sweeper{
		store:    store,
		schedule: cfg.Schedule,
		retry:    cfg.RetryInterval,
		timeout:  cfg.StoreTimeout,
		now:      cfg.Now,
		log:      logger.OrNop(cfg.Logger),
		events:   cfg.Events,
	}
	if s.schedule == nil {
		s.schedule = Interval(time.Hour)
	}
	if s.retry <= 0 {
		s.retry = DefaultRetryInterval
	}
	if s.timeout <= 0 {
		s.timeout = DefaultStoreTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// SweepOnce deletes every record that expired at or before the current time.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.store.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 && s.events != nil {
		telemetry.EmitAsync(s.events, ctx, &telemetrydomain.Event{
			EventType: telemetrydomain.EventSessionsSwept,
			Source:    "session-sweeper",
			Metadata:  map[string]string{"count": strconv.FormatInt(n, 10)},
		})
	}
	return n, nil
}

// Run sweeps immediately and then on the schedule until ctx is cancelled. A failed sweep
// is logged and retried after the retry interval. Run returns nil on cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("session sweeper started", zap.Duration("retry_interval", s.retry))
	for {
		var wait time.Duration
		n, err := s.SweepOnce(ctx)
		switch {
		case ctx.Err() != nil:
			s.log.Info("session sweeper stopped")
			return nil
		case err != nil:
			level := zap.ErrorLevel
			if errors.Is(err, context.DeadlineExceeded) {
				level = zap.WarnLevel
			}
			s.log.Log(level, "session sweep failed", zap.Error(err), zap.Duration("retry_in", s.retry))
			wait = s.retry
		default:
			if n > 0 {
				s.log.Info("expired sessions purged", zap.Int64("count", n))
			}
			wait = s.untilNext()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("session sweeper stopped")
			return nil
		case <-timer.C:
		}
	}
}

// untilNext is the delay before the next scheduled sweep. A schedule with no next
// activation falls back to the retry interval.
func (s *Sweeper) untilNext() time.Duration {
	now := s.now()
	next := s.schedule.Next(now)
	if next.IsZero() {
		s.log.Warn("session sweep schedule has no next activation", zap.Duration("retry_in", s.retry))
		return s.retry
	}
	return next.Sub(now)
}
