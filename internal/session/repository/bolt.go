package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"kriptoproyek/backend/internal/session/domain"
)

var (
	bucketSessions     = []byte("sessions")
	bucketTokenIndex   = []byte("session_tokens")
	bucketUserSessions = []byte("user_sessions")
)

const keySep = 0x00

// BoltRepository stores sessions in an embedded bbolt database. Records live in the
// sessions bucket keyed by id; session_tokens and user_sessions are secondary indexes.
type BoltRepository struct {
	db *bbolt.DB
}

var (
	_ Repository = (*BoltRepository)(nil)
	_ Transactor = (*BoltRepository)(nil)
)

// NewBoltRepository returns a Repository backed by db, creating its buckets if needed.
func NewBoltRepository(db *bbolt.DB) (*BoltRepository, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketSessions, bucketTokenIndex, bucketUserSessions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltRepository{db: db}, nil
}

// OpenBoltRepository opens a bbolt database at path and returns a Repository on it.
func OpenBoltRepository(path string, options *bbolt.Options) (*BoltRepository, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	r, err := NewBoltRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying bbolt database.
func (r *BoltRepository) Close() error {
	return r.db.Close()
}

// WithUserTx runs fn inside a single read-write transaction. bbolt allows one writer at a
// time, so the unit is serialized against every other write.
func (r *BoltRepository) WithUserTx(ctx context.Context, _ string, fn func(Repository) error) error {
	return r.update(ctx, func(b boltTx) error { return fn(b) })
}

func (r *BoltRepository) view(ctx context.Context, fn func(boltTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.View(func(tx *bbolt.Tx) error { return fn(boltTx{tx: tx}) })
}

// update runs fn in a read-write transaction bounded by ctx. bbolt waits for the writer
// lock without a context, so the wait happens in a goroutine: if ctx ends first the
// transaction is abandoned and rolls back once it gets the lock. A transaction that has
// already started is waited for, and rolls back if ctx ended while fn ran.
func (r *BoltRepository) update(ctx context.Context, fn func(boltTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		mu        sync.Mutex
		started   bool
		abandoned bool
	)
	done := make(chan error, 1)
	go func() {
		done <- r.db.Update(func(tx *bbolt.Tx) error {
			mu.Lock()
			if abandoned {
				mu.Unlock()
				return ctx.Err()
			}
			started = true
			mu.Unlock()
			if err := fn(boltTx{tx: tx}); err != nil {
				return err
			}
			return ctx.Err()
		})
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		mu.Lock()
		running := started
		abandoned = !started
		mu.Unlock()
		if running {
			return <-done
		}
		return ctx.Err()
	}
}

func (r *BoltRepository) FindActiveByUser(ctx context.Context, userID string, now time.Time) (out []*domain.Session, err error) {
	err = r.view(ctx, func(b boltTx) error {
		out, err = b.FindActiveByUser(ctx, userID, now)
		return err
	})
	return out, err
}

func (r *BoltRepository) FindByToken(ctx context.Context, token string) (s *domain.Session, err error) {
	err = r.view(ctx, func(b boltTx) error {
		s, err = b.FindByToken(ctx, token)
		return err
	})
	return s, err
}

func (r *BoltRepository) Insert(ctx context.Context, s *domain.Session) error {
	return r.update(ctx, func(b boltTx) error { return b.Insert(ctx, s) })
}

func (r *BoltRepository) MarkRevoked(ctx context.Context, ids []string, at time.Time) (n int64, err error) {
	err = r.update(ctx, func(b boltTx) error {
		n, err = b.MarkRevoked(ctx, ids, at)
		return err
	})
	return n, err
}

func (r *BoltRepository) RevokeAllByUser(ctx context.Context, userID string, now time.Time) (n int64, err error) {
	err = r.update(ctx, func(b boltTx) error {
		n, err = b.RevokeAllByUser(ctx, userID, now)
		return err
	})
	return n, err
}

func (r *BoltRepository) DeleteExpired(ctx context.Context, now time.Time) (n int64, err error) {
	err = r.update(ctx, func(b boltTx) error {
		n, err = b.DeleteExpired(ctx, now)
		return err
	})
	return n, err
}

// boltRecord is the JSON encoding of a session in the sessions bucket.
type boltRecord struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Token      string     `json:"token"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	IsRevoked  bool       `json:"is_revoked"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	DeviceInfo string     `json:"device_info,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
}

func toRecord(s *domain.Session) boltRecord {
	return boltRecord{
		ID: s.ID, UserID: s.UserID, Token: s.Token,
		CreatedAt: s.CreatedAt.UTC(), ExpiresAt: s.ExpiresAt.UTC(),
		IsRevoked: s.IsRevoked, RevokedAt: s.RevokedAt,
		DeviceInfo: s.DeviceInfo, IPAddress: s.IPAddress,
	}
}

func (rec boltRecord) toDomain() *domain.Session {
	return &domain.Session{
		ID: rec.ID, UserID: rec.UserID, Token: rec.Token,
		CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt,
		IsRevoked: rec.IsRevoked, RevokedAt: rec.RevokedAt,
		DeviceInfo: rec.DeviceInfo, IPAddress: rec.IPAddress,
	}
}

func indexKey(prefix, id string) []byte {
	k := make([]byte, 0, len(prefix)+1+len(id))
	k = append(k, prefix...)
	k = append(k, keySep)
	return append(k, id...)
}

func indexPrefix(prefix string) []byte {
	return append([]byte(prefix), keySep)
}

// boltTx implements Repository on an open bbolt transaction.
type boltTx struct {
	tx *bbolt.Tx
}

func (b boltTx) get(id string) (*boltRecord, error) {
	data := b.tx.Bucket(bucketSessions).Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	var rec boltRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &rec, nil
}

func (b boltTx) put(rec boltRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.tx.Bucket(bucketSessions).Put([]byte(rec.ID), data)
}

// idsWithPrefix returns the ids indexed under prefix in bucket.
func (b boltTx) idsWithPrefix(bucket []byte, prefix string) []string {
	var ids []string
	p := indexPrefix(prefix)
	c := b.tx.Bucket(bucket).Cursor()
	for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
		ids = append(ids, string(k[len(p):]))
	}
	return ids
}

func (b boltTx) FindActiveByUser(_ context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	var out []*domain.Session
	for _, id := range b.idsWithPrefix(bucketUserSessions, userID) {
		rec, err := b.get(id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if s := rec.toDomain(); s.Valid(now) {
			out = append(out, s)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (b boltTx) FindByToken(_ context.Context, token string) (*domain.Session, error) {
	var found *boltRecord
	for _, id := range b.idsWithPrefix(bucketTokenIndex, token) {
		rec, err := b.get(id)
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.Token != token {
			continue
		}
		if found == nil || rec.CreatedAt.After(found.CreatedAt) {
			found = rec
		}
	}
	if found == nil {
		return nil, nil
	}
	return found.toDomain(), nil
}

func (b boltTx) Insert(_ context.Context, s *domain.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := b.put(toRecord(s)); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if err := b.tx.Bucket(bucketTokenIndex).Put(indexKey(s.Token, s.ID), nil); err != nil {
		return err
	}
	return b.tx.Bucket(bucketUserSessions).Put(indexKey(s.UserID, s.ID), nil)
}

func (b boltTx) MarkRevoked(_ context.Context, ids []string, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		rec, err := b.get(id)
		if err != nil {
			return n, err
		}
		if rec == nil || rec.IsRevoked {
			continue
		}
		rec.IsRevoked = true
		revokedAt := at.UTC()
		rec.RevokedAt = &revokedAt
		if err := b.put(*rec); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (b boltTx) RevokeAllByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	active, err := b.FindActiveByUser(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(active))
	for i, s := range active {
		ids[i] = s.ID
	}
	return b.MarkRevoked(ctx, ids, now)
}

func (b boltTx) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var expired []boltRecord
	err := b.tx.Bucket(bucketSessions).ForEach(func(k, v []byte) error {
		var rec boltRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("decode session %s: %w", k, err)
		}
		if !now.Before(rec.ExpiresAt) {
			expired = append(expired, rec)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, rec := range expired {
		if err := b.tx.Bucket(bucketSessions).Delete([]byte(rec.ID)); err != nil {
			return 0, err
		}
		if err := b.tx.Bucket(bucketTokenIndex).Delete(indexKey(rec.Token, rec.ID)); err != nil {
			return 0, err
		}
		if err := b.tx.Bucket(bucketUserSessions).Delete(indexKey(rec.UserID, rec.ID)); err != nil {
			return 0, err
		}
	}
	return int64(len(expired)), nil
}
