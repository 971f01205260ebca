// Package service implements the session authority: issuing, validating and revoking
// server-side session records while keeping at most one valid session per user.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"kriptoproyek/backend/internal/logger"
	"kriptoproyek/backend/internal/session/domain"
	"kriptoproyek/backend/internal/session/repository"
	"kriptoproyek/backend/internal/telemetry"
	telemetrydomain "kriptoproyek/backend/internal/telemetry/domain"
)

const (
	instrumentationName = "kriptoproyek/backend/internal/session"
	eventSource         = "session-authority"

	// DefaultStoreTimeout bounds a single store call when Options.StoreTimeout is zero.
	DefaultStoreTimeout = 3 * time.Second
)

var (
	// ErrInvalidRequest is returned by Issue when the user id or token is empty.
	ErrInvalidRequest = errors.New("session: user id and token are required")
	// ErrInvalidTTL is returned by NewAuthority for a non-positive TTL.
	ErrInvalidTTL = errors.New("session: ttl must be positive")
)

// IssueRequest describes a freshly signed credential to record for a user.
type IssueRequest struct {
	UserID     string
	Token      string
	DeviceInfo string
	IPAddress  string
}

// Options configures an Authority. Zero values select defaults.
type Options struct {
	// StoreTimeout bounds every store call; DefaultStoreTimeout when zero.
	StoreTimeout time.Duration
	// Now is the clock; time.Now when nil.
	Now func() time.Time
	// Logger receives storage failures; no-op when nil.
	Logger *zap.Logger
	// Events receives lifecycle events asynchronously; disabled when nil.
	Events telemetry.EventEmitter
	// Meter and Tracer default to the global OTel providers.
	Meter  metric.Meter
	Tracer trace.Tracer
}

// Authority owns the session lifecycle. It is safe for concurrent use.
type Authority struct {
	repo    repository.Repository
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
	events  telemetry.EventEmitter
	tracer  trace.Tracer
	locks   *keyLock

	issued      metric.Int64Counter
	revoked     metric.Int64Counter
	validations metric.Int64Counter
}

// NewAuthority returns an Authority recording sessions in repo with the given lifetime.
// When repo also implements repository.Transactor, issuance runs inside its WithUserTx.
func NewAuthority(repo repository.Repository, ttl time.Duration, opts Options) (*Authority, error) {
	if repo == nil {
		return nil, errors.New("session: repository is required")
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	a := &Authority{
		repo:    repo,
		ttl:     ttl,
		timeout: opts.StoreTimeout,
		now:     opts.Now,
		log:     logger.OrNop(opts.Logger),
		events:  opts.Events,
		tracer:  opts.Tracer,
		locks:   newKeyLock(),
	}
	if a.timeout <= 0 {
		a.timeout = DefaultStoreTimeout
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer(instrumentationName)
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	var err error
	if a.issued, err = meter.Int64Counter("session.issued", metric.WithDescription("Sessions issued")); err != nil {
		return nil, err
	}
	if a.revoked, err = meter.Int64Counter("session.revoked", metric.WithDescription("Sessions revoked, including those displaced by a new login")); err != nil {
		return nil, err
	}
	if a.validations, err = meter.Int64Counter("session.validations", metric.WithDescription("Session validations by result")); err != nil {
		return nil, err
	}
	return a, nil
}

// TTL returns the lifetime given to new sessions.
func (a *Authority) TTL() time.Duration {
	return a.ttl
}

// Issue revokes every currently valid session of req.UserID and records req.Token as the
// user's only valid session. Concurrent calls for the same user are serialized; the
// revoke and insert commit together or not at all when the store supports transactions.
func (a *Authority) Issue(ctx context.Context, req IssueRequest) (*domain.Session, error) {
	if req.UserID == "" || req.Token == "" {
		return nil, ErrInvalidRequest
	}
	ctx, span := a.tracer.Start(ctx, "session.Issue", trace.WithAttributes(attribute.String("user.id", req.UserID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	unlock, err := a.locks.Lock(ctx, req.UserID)
	if err != nil {
		return nil, a.storageErr(span, "issue", err)
	}
	defer unlock()

	var (
		created   *domain.Session
		displaced int64
	)
	err = a.withUserTx(ctx, req.UserID, func(repo repository.Repository) error {
		now := a.now().UTC()
		active, err := repo.FindActiveByUser(ctx, req.UserID, now)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			ids := make([]string, len(active))
			for i, s := range active {
				ids[i] = s.ID
			}
			if displaced, err = repo.MarkRevoked(ctx, ids, now); err != nil {
				return err
			}
		}
		s := &domain.Session{
			UserID:     req.UserID,
			Token:      req.Token,
			CreatedAt:  now,
			ExpiresAt:  now.Add(a.ttl),
			DeviceInfo: req.DeviceInfo,
			IPAddress:  req.IPAddress,
		}
		if err := repo.Insert(ctx, s); err != nil {
			return err
		}
		created = s
		return nil
	})
	if err != nil {
		return nil, a.storageErr(span, "issue", err)
	}

	span.SetAttributes(attribute.String("session.id", created.ID), attribute.Int64("session.displaced", displaced))
	a.issued.Add(ctx, 1)
	if displaced > 0 {
		a.revoked.Add(ctx, displaced, metric.WithAttributes(attribute.String("reason", "displaced")))
	}
	a.emit(ctx, telemetrydomain.EventSessionIssued, created.UserID, created.ID, map[string]string{
		"ip_address":  created.IPAddress,
		"device_info": created.DeviceInfo,
		"displaced":   strconv.FormatInt(displaced, 10),
	})
	return created, nil
}

func (a *Authority) withUserTx(ctx context.Context, userID string, fn func(repository.Repository) error) error {
	if tx, ok := a.repo.(repository.Transactor); ok {
		return tx.WithUserTx(ctx, userID, fn)
	}
	return fn(a.repo)
}

// Validate reports whether token has a session record that is not revoked and not expired.
// It returns domain.ErrSessionInvalid for an unknown, revoked or expired token and an error
// wrapping domain.ErrStorageUnavailable when the store fails or times out.
func (a *Authority) Validate(ctx context.Context, token string) error {
	if token == "" {
		a.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "invalid")))
		return domain.ErrSessionInvalid
	}
	ctx, span := a.tracer.Start(ctx, "session.Validate")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	s, err := a.repo.FindByToken(ctx, token)
	if err != nil {
		a.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		return a.storageErr(span, "validate", err)
	}
	if !s.Valid(a.now()) {
		a.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "invalid")))
		return domain.ErrSessionInvalid
	}
	a.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "valid")))
	return nil
}

// IsValid is Validate reduced to a boolean. Storage failures yield false.
func (a *Authority) IsValid(ctx context.Context, token string) bool {
	return a.Validate(ctx, token) == nil
}

// Revoke revokes the session recorded for token, whoever owns it. It returns false without
// error when the token is unknown or already revoked.
func (a *Authority) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	ctx, span := a.tracer.Start(ctx, "session.Revoke")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	s, err := a.repo.FindByToken(ctx, token)
	if err != nil {
		return false, a.storageErr(span, "revoke", err)
	}
	if s == nil || s.IsRevoked {
		return false, nil
	}
	n, err := a.repo.MarkRevoked(ctx, []string{s.ID}, a.now().UTC())
	if err != nil {
		return false, a.storageErr(span, "revoke", err)
	}
	if n == 0 {
		return false, nil
	}
	a.revoked.Add(ctx, n, metric.WithAttributes(attribute.String("reason", "logout")))
	a.emit(ctx, telemetrydomain.EventSessionRevoked, s.UserID, s.ID, nil)
	return true, nil
}

// RevokeAll revokes every currently valid session of userID and returns how many were revoked.
func (a *Authority) RevokeAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	ctx, span := a.tracer.Start(ctx, "session.RevokeAll", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	n, err := a.repo.RevokeAllByUser(ctx, userID, a.now().UTC())
	if err != nil {
		return 0, a.storageErr(span, "revoke all", err)
	}
	if n > 0 {
		a.revoked.Add(ctx, n, metric.WithAttributes(attribute.String("reason", "logout_all")))
		a.emit(ctx, telemetrydomain.EventSessionRevokedAll, userID, "", map[string]string{"count": strconv.FormatInt(n, 10)})
	}
	return int(n), nil
}

// ListActive returns the user's currently valid sessions, most recent first. Tokens are not included.
func (a *Authority) ListActive(ctx context.Context, userID string) ([]domain.ActiveSession, error) {
	ctx, span := a.tracer.Start(ctx, "session.ListActive", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	list, err := a.repo.FindActiveByUser(ctx, userID, a.now().UTC())
	if err != nil {
		return nil, a.storageErr(span, "list active", err)
	}
	out := make([]domain.ActiveSession, len(list))
	for i, s := range list {
		out[i] = s.Active()
	}
	return out, nil
}

func (a *Authority) storageErr(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	a.log.Warn("session store failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("session: %s: %w: %w", op, domain.ErrStorageUnavailable, err)
}

func (a *Authority) emit(ctx context.Context, eventType, userID, sessionID string, meta map[string]string) {
	if a.events == nil {
		return
	}
	telemetry.EmitAsync(a.events, ctx, &telemetrydomain.Event{
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		Source:    eventSource,
		Metadata:  meta,
		CreatedAt: a.now().UTC(),
	})
}
