package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kriptoproyek/backend/internal/security"
	"kriptoproyek/backend/internal/server/interceptors"
	sessiondomain "kriptoproyek/backend/internal/session/domain"
	telemetrydomain "kriptoproyek/backend/internal/telemetry/domain"
)

type stubValidator struct {
	mu    sync.Mutex
	valid map[string]bool
	err   error
	calls []string
}

func (v *stubValidator) Validate(_ context.Context, token string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, token)
	if v.err != nil {
		return v.err
	}
	if v.valid[token] {
		return nil
	}
	return sessiondomain.ErrSessionInvalid
}

type recordingEmitter struct {
	events chan *telemetrydomain.Event
}

func (e *recordingEmitter) Emit(_ context.Context, ev *telemetrydomain.Event) error {
	e.events <- ev
	return nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestGate(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		validator *stubValidator
		wantCode  int
		wantCalls int
	}{
		{"no header passes", "", &stubValidator{}, http.StatusNoContent, 0},
		{"non bearer passes", "Basic dXNlcjpwYXNz", &stubValidator{}, http.StatusNoContent, 0},
		{"valid session", "Bearer good", &stubValidator{valid: map[string]bool{"good": true}}, http.StatusNoContent, 1},
		{"lowercase scheme", "bearer good", &stubValidator{valid: map[string]bool{"good": true}}, http.StatusNoContent, 1},
		{"revoked session", "Bearer revoked", &stubValidator{}, http.StatusUnauthorized, 1},
		{"empty bearer", "Bearer ", &stubValidator{}, http.StatusUnauthorized, 1},
		{"store down", "Bearer good", &stubValidator{err: fmt.Errorf("%w: timeout", sessiondomain.ErrStorageUnavailable)}, http.StatusUnauthorized, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			Gate(tt.validator, nil, nil)(okHandler()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Len(t, tt.validator.calls, tt.wantCalls)
			if tt.wantCode == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"unauthorized","reason":"invalid_token"}`, rec.Body.String())
			}
		})
	}
}

func TestGate_EmitsDenial(t *testing.T) {
	events := &recordingEmitter{events: make(chan *telemetrydomain.Event, 1)}
	v := &stubValidator{err: errors.Join(sessiondomain.ErrStorageUnavailable, errors.New("conn refused"))}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	Gate(v, nil, events)(okHandler()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	ev := <-events.events
	assert.Equal(t, telemetrydomain.EventGateDenied, ev.EventType)
	assert.Equal(t, "http_gate", ev.Source)
	assert.Equal(t, "storage_unavailable", ev.Metadata["reason"])
	assert.Equal(t, "/api/auth/logout", ev.Metadata["path"])
}

func TestAuthenticate(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	token, _, err := tokens.Issue(security.Subject{ID: "user-1", Email: "a@example.com", Roles: []string{"User"}})
	require.NoError(t, err)

	var gotID, gotToken string
	var gotRoles []string
	var gotOK bool
	h := Authenticate(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = interceptors.GetUserID(r.Context())
		gotToken, _ = interceptors.GetToken(r.Context())
		gotRoles = interceptors.GetRoles(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, gotOK)
	assert.Equal(t, "user-1", gotID)
	assert.Equal(t, token, gotToken)
	assert.Equal(t, []string{"User"}, gotRoles)

	for _, header := range []string{"", "Bearer not-a-jwt", "Basic abc"} {
		gotOK = false
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.False(t, gotOK, "header %q must not attach an identity", header)
	}
}

func TestRequireAuth(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireAuth(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(interceptors.WithIdentity(req.Context(), "user-1", "tok", nil))
	rec = httptest.NewRecorder()
	RequireAuth(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClientIP(t *testing.T) {
	var got string
	h := ClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = interceptors.ClientIP(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.7", got)
}
