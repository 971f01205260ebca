package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kriptoproyek/backend/internal/session/domain"
	sessionrepo "kriptoproyek/backend/internal/session/repository"
	sessionservice "kriptoproyek/backend/internal/session/service"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func useMemoryEnv(t *testing.T) (*sessionrepo.MemoryRepository, *sessionservice.Authority) {
	t.Helper()
	store := sessionrepo.NewMemoryRepository()
	authority, err := sessionservice.NewAuthority(store, time.Hour, sessionservice.Options{
		Now: func() time.Time { return now },
	})
	require.NoError(t, err)

	prev := openEnv
	openEnv = func(context.Context) (*env, error) {
		return &env{store: store, authority: authority, log: zap.NewNop(), close: func() {}}, nil
	}
	t.Cleanup(func() {
		openEnv = prev
		sessionsUser, revokeToken, revokeUser = "", "", ""
	})
	return store, authority
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSessionsCommand(t *testing.T) {
	_, authority := useMemoryEnv(t)
	_, err := authority.Issue(context.Background(), sessionservice.IssueRequest{
		UserID: "u1", Token: "tok-1", DeviceInfo: "curl/8.0", IPAddress: "198.51.100.4",
	})
	require.NoError(t, err)

	out, err := run(t, "sessions", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "198.51.100.4")
	assert.Contains(t, out, "curl/8.0")
	assert.NotContains(t, out, "tok-1")

	out, err = run(t, "sessions", "--user", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "no valid sessions")
}

func TestRevokeCommands(t *testing.T) {
	_, authority := useMemoryEnv(t)
	ctx := context.Background()
	_, err := authority.Issue(ctx, sessionservice.IssueRequest{UserID: "u1", Token: "tok-1"})
	require.NoError(t, err)

	out, err := run(t, "revoke", "--token", "tok-1")
	require.NoError(t, err)
	assert.Contains(t, out, "session revoked")
	assert.False(t, authority.IsValid(ctx, "tok-1"))

	out, err = run(t, "revoke", "--token", "tok-1")
	require.NoError(t, err)
	assert.Contains(t, out, "no session found")

	_, err = authority.Issue(ctx, sessionservice.IssueRequest{UserID: "u2", Token: "tok-2"})
	require.NoError(t, err)
	out, err = run(t, "revoke-all", "--user", "u2")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked 1 session(s)")
	assert.False(t, authority.IsValid(ctx, "tok-2"))
}

func TestSweepCommand(t *testing.T) {
	store, _ := useMemoryEnv(t)
	ctx := context.Background()
	wall := time.Now().UTC()
	require.NoError(t, store.Insert(ctx, &domain.Session{
		UserID: "u1", Token: "old", CreatedAt: wall.Add(-2 * time.Hour), ExpiresAt: wall.Add(-time.Hour),
	}))
	require.NoError(t, store.Insert(ctx, &domain.Session{
		UserID: "u1", Token: "live", CreatedAt: wall, ExpiresAt: wall.Add(time.Hour),
	}))

	out, err := run(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 expired session(s)")
	assert.Equal(t, 1, store.Len())
}

func TestRequiredFlags(t *testing.T) {
	useMemoryEnv(t)
	_, err := run(t, "sessions")
	assert.Error(t, err)
	_, err = run(t, "revoke")
	assert.Error(t, err)
	_, err = run(t, "revoke-all")
	assert.Error(t, err)
}

func TestOpenEnv_NeedsNoSigningSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SESSION_STORE", "bolt")
	t.Setenv("BOLT_PATH", filepath.Join(t.TempDir(), "sessions.db"))
	t.Setenv("STORE_TIMEOUT", "2s")

	e, err := openEnv(context.Background())
	require.NoError(t, err)
	defer e.close()

	assert.IsType(t, &sessionrepo.BoltRepository{}, e.store)
	assert.Equal(t, 2*time.Second, storeTimeout(e))
	n, err := e.authority.RevokeAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
