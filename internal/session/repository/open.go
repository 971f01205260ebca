package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Backend names accepted by Open.
const (
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
)

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("session: unknown store backend")

// Open returns the session store named by backend together with a func releasing it.
// conn is required for postgres and boltPath for bolt.
func Open(backend string, conn *sql.DB, boltPath string) (Repository, func() error, error) {
	noop := func() error { return nil }
	switch backend {
	case BackendPostgres:
		if conn == nil {
			return nil, nil, errors.New("session: postgres store requires a database connection")
		}
		return NewPostgresRepository(conn), noop, nil
	case BackendBolt:
		r, err := OpenBoltRepository(boltPath, &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case BackendMemory:
		return NewMemoryRepository(), noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
