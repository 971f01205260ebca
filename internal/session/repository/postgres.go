package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kriptoproyek/backend/internal/session/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const sessionColumns = `id, user_id, token, created_at, expires_at, is_revoked, revoked_at, device_info, ip_address`

// PostgresRepository stores sessions in the sessions table.
type PostgresRepository struct {
	db *sql.DB
	q  querier
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Transactor = (*PostgresRepository)(nil)
)

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, q: db}
}

// WithUserTx runs fn in one transaction holding a transaction-scoped advisory lock on userID,
// so concurrent issuers for the same user are serialized across processes.
func (r *PostgresRepository) WithUserTx(ctx context.Context, userID string, fn func(Repository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(&PostgresRepository{db: r.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// FindActiveByUser returns the user's non-revoked, unexpired sessions ordered by created_at desc.
func (r *PostgresRepository) FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND NOT is_revoked AND expires_at > $2
		 ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindByToken returns the session for token, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token = $1 ORDER BY created_at DESC LIMIT 1`, token)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// Insert persists the session. An empty ID is replaced with a new UUID.
func (r *PostgresRepository) Insert(ctx context.Context, s *domain.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.Token, s.CreatedAt, s.ExpiresAt, s.IsRevoked,
		timeToNullTime(s.RevokedAt), stringToNull(s.DeviceInfo), stringToNull(s.IPAddress))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// MarkRevoked flips is_revoked for the given ids in one statement. Already revoked rows are untouched.
func (r *PostgresRepository) MarkRevoked(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET is_revoked = TRUE, revoked_at = $2 WHERE id = ANY($1) AND NOT is_revoked`, ids, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RevokeAllByUser revokes the user's currently valid sessions in one statement.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET is_revoked = TRUE, revoked_at = $2
		 WHERE user_id = $1 AND NOT is_revoked AND expires_at > $2`, userID, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired removes sessions whose expires_at is at or before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s          domain.Session
		revokedAt  sql.NullTime
		deviceInfo sql.NullString
		ip         sql.NullString
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Token, &s.CreatedAt, &s.ExpiresAt, &s.IsRevoked, &revokedAt, &deviceInfo, &ip); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.RevokedAt = nullTimeToPtr(revokedAt)
	s.DeviceInfo = deviceInfo.String
	s.IPAddress = ip.String
	return &s, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
