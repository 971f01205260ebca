package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kriptoproyek/backend/internal/security"
)

// TokenVerifier checks a credential's signature and claims.
type TokenVerifier interface {
	Verify(token string) (*security.Claims, error)
}

var errMissingAuth = status.Error(codes.Unauthenticated, "missing or invalid authorization")

// AuthUnary returns a unary server interceptor that verifies the Bearer credential and
// attaches user id, token and roles to the context. Methods in publicMethods run with or
// without a usable credential; every other method is rejected with Unauthenticated.
func AuthUnary(tokens TokenVerifier, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := authenticate(ctx, tokens, publicMethods[info.FullMethod])
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthStream is the streaming counterpart of AuthUnary.
func AuthStream(tokens TokenVerifier, publicMethods map[string]bool) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), tokens, publicMethods[info.FullMethod])
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticate(ctx context.Context, tokens TokenVerifier, public bool) (context.Context, error) {
	token, _ := bearerFromMetadata(ctx)
	if token != "" {
		if claims, err := tokens.Verify(token); err == nil {
			return WithIdentity(ctx, claims.Subject, token, claims.Roles), nil
		}
	}
	if public {
		return ctx, nil
	}
	return ctx, errMissingAuth
}

// identityStream overrides Context so stream handlers see the authenticated identity.
type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }
