package interceptors

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"kriptoproyek/backend/internal/logger"
	"kriptoproyek/backend/internal/security"
	sessiondomain "kriptoproyek/backend/internal/session/domain"
	"kriptoproyek/backend/internal/telemetry"
	telemetrydomain "kriptoproyek/backend/internal/telemetry/domain"
)

// SessionValidator checks whether a presented credential has a currently valid session record.
type SessionValidator interface {
	Validate(ctx context.Context, token string) error
}

var errUnauthorized = status.Error(codes.Unauthenticated, "unauthorized")

// SessionGateUnary returns a unary server interceptor that rejects calls whose Bearer
// credential has no valid session record. Calls without a Bearer authorization header
// pass through; deciding whether they may run anonymously is left to AuthUnary.
// events may be nil.
func SessionGateUnary(v SessionValidator, log *zap.Logger, events telemetry.EventEmitter) grpc.UnaryServerInterceptor {
	log = logger.OrNop(log)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := checkSession(ctx, v, log, events, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// SessionGateStream is the streaming counterpart of SessionGateUnary.
func SessionGateStream(v SessionValidator, log *zap.Logger, events telemetry.EventEmitter) grpc.StreamServerInterceptor {
	log = logger.OrNop(log)
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkSession(ss.Context(), v, log, events, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func checkSession(ctx context.Context, v SessionValidator, log *zap.Logger, events telemetry.EventEmitter, method string) error {
	token, ok := bearerFromMetadata(ctx)
	if !ok {
		return nil
	}
	err := v.Validate(ctx, token)
	if err == nil {
		return nil
	}
	reason := "invalid_session"
	if errors.Is(err, sessiondomain.ErrStorageUnavailable) {
		reason = "storage_unavailable"
		log.Warn("session gate: store unavailable, denying", zap.String("method", method), zap.Error(err))
	} else {
		log.Debug("session gate: denied", zap.String("method", method))
	}
	telemetry.EmitAsync(events, ctx, &telemetrydomain.Event{
		EventType: telemetrydomain.EventGateDenied,
		Source:    "grpc_gate",
		Metadata:  map[string]string{"method": method, "reason": reason, "client_ip": ClientIP(ctx)},
	})
	return errUnauthorized
}

// bearerFromMetadata returns the Bearer credential from ctx metadata; ok is false when the
// call carries no Bearer authorization header.
func bearerFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return "", false
	}
	return security.ParseBearer(vals[0])
}
