package interceptors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	sessiondomain "kriptoproyek/backend/internal/session/domain"
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

type stubStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stubStream) Context() context.Context { return s.ctx }

var gateInfo = &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}

func TestSessionGateUnary(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		validator *stubValidator
		wantCode  codes.Code
		wantCalls int
	}{
		{"no header passes", context.Background(), &stubValidator{}, codes.OK, 0},
		{"non bearer passes", withAuthorization("Basic dXNlcjpwYXNz"), &stubValidator{}, codes.OK, 0},
		{"valid session", withAuthorization("Bearer good"), &stubValidator{valid: map[string]bool{"good": true}}, codes.OK, 1},
		{"revoked session", withAuthorization("Bearer revoked"), &stubValidator{}, codes.Unauthenticated, 1},
		{"empty bearer", withAuthorization("Bearer "), &stubValidator{}, codes.Unauthenticated, 1},
		{"store failure fails closed", withAuthorization("Bearer good"),
			&stubValidator{valid: map[string]bool{"good": true}, err: fmt.Errorf("session: validate: %w: %w", sessiondomain.ErrStorageUnavailable, errors.New("timeout"))},
			codes.Unauthenticated, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				called = true
				return "ok", nil
			}
			_, err := SessionGateUnary(tt.validator, nil, nil)(tt.ctx, "req", gateInfo, handler)
			assert.Equal(t, tt.wantCode, status.Code(err))
			assert.Equal(t, tt.wantCode == codes.OK, called, "handler invocation")
			assert.Len(t, tt.validator.calls, tt.wantCalls)
			if err != nil {
				assert.Equal(t, "unauthorized", status.Convert(err).Message(), "denials must not reveal the cause")
			}
		})
	}
}

func TestSessionGateStream(t *testing.T) {
	v := &stubValidator{valid: map[string]bool{"good": true}}
	interceptor := SessionGateStream(v, nil, nil)
	info := &grpc.StreamServerInfo{FullMethod: "/test.Service/Stream"}

	called := false
	handler := func(srv interface{}, ss grpc.ServerStream) error {
		called = true
		return nil
	}
	require.NoError(t, interceptor(nil, &stubStream{ctx: withAuthorization("Bearer good")}, info, handler))
	assert.True(t, called)

	called = false
	err := interceptor(nil, &stubStream{ctx: withAuthorization("Bearer bad")}, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.False(t, called)
}
