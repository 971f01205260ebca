package handler

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"kriptoproyek/backend/internal/health"
)

type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestHealthCheck_NilChecker(t *testing.T) {
	srv := NewServer(nil, nil)
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestHealthCheck_PingerFailure(t *testing.T) {
	srv := NewServer(&health.Checker{Pinger: &mockPinger{pingErr: errors.New("connection refused")}}, nil)
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check must not return gRPC error on ping failure: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", resp.GetStatus())
	}
}

func TestHealthCheck_PolicyCheckerFailure(t *testing.T) {
	srv := NewServer(&health.Checker{PolicyChecker: &mockPolicyChecker{healthErr: errors.New("rego compile failed")}}, nil)
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check must not return gRPC error on policy check failure: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", resp.GetStatus())
	}
}

func TestHealthCheck_AllHealthy(t *testing.T) {
	srv := NewServer(&health.Checker{Pinger: &mockPinger{}, PolicyChecker: &mockPolicyChecker{}}, nil)
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestHealthCheck_UnknownService(t *testing.T) {
	srv := NewServer(nil, nil)
	_, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "other.Service"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("code = %v, want NotFound", status.Code(err))
	}
}
