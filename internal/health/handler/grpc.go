package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"kriptoproyek/backend/internal/health"
	"kriptoproyek/backend/internal/logger"
)

// ServiceName is the service name reported by the health server besides the overall "" status.
const ServiceName = "kriptoproyek.Backend"

// Server implements grpc.health.v1.Health for readiness/liveness. Each Check runs the probes.
type Server struct {
	healthpb.UnimplementedHealthServer
	checker *health.Checker
	log     *zap.Logger
}

// NewServer returns a new Health gRPC server. checker may be nil; then the server always reports SERVING.
func NewServer(checker *health.Checker, log *zap.Logger) *Server {
	return &Server{checker: checker, log: logger.OrNop(log)}
}

// Check reports SERVING when every probe passes and NOT_SERVING otherwise.
// Probe failures are not returned as gRPC errors.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	if err := s.checker.Check(ctx); err != nil {
		s.log.Warn("health: not serving", zap.Error(err))
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
