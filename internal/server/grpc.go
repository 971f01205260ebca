package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"kriptoproyek/backend/internal/health"
	healthhandler "kriptoproyek/backend/internal/health/handler"
	"kriptoproyek/backend/internal/server/interceptors"
	"kriptoproyek/backend/internal/telemetry"
)

// Health service methods; callable without credentials and never emitted as telemetry.
var publicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// Deps holds the dependencies of the gRPC server.
type Deps struct {
	// Sessions backs the session gate. Required.
	Sessions interceptors.SessionValidator
	// Tokens verifies credential signatures and claims. Required.
	Tokens interceptors.TokenVerifier
	// Health drives the grpc.health.v1 status. If nil, the server always reports SERVING.
	Health *health.Checker
	// Events receives request and gate-denial telemetry. May be nil.
	Events telemetry.EventEmitter
	Logger *zap.Logger
}

// NewGRPCServer returns a server with OTel stats, the interceptor chain
// telemetry → session gate → auth, and every service registered.
func NewGRPCServer(deps Deps) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.TelemetryUnary(deps.Events, publicMethods),
			interceptors.SessionGateUnary(deps.Sessions, deps.Logger, deps.Events),
			interceptors.AuthUnary(deps.Tokens, publicMethods),
		),
		grpc.ChainStreamInterceptor(
			interceptors.SessionGateStream(deps.Sessions, deps.Logger, deps.Events),
			interceptors.AuthStream(deps.Tokens, publicMethods),
		),
	)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the gRPC services with the given server.
//
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.Health, deps.Logger))
}
