package interceptors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	telemetrydomain "kriptoproyek/backend/internal/telemetry/domain"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []*telemetrydomain.Event
	ch     chan struct{}
}

func newCaptureEmitter() *captureEmitter {
	return &captureEmitter{ch: make(chan struct{}, 8)}
}

func (c *captureEmitter) Emit(_ context.Context, e *telemetrydomain.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.ch <- struct{}{}
	return nil
}

func TestTelemetryUnary_EmitsRequestEvent(t *testing.T) {
	emitter := newCaptureEmitter()
	interceptor := TelemetryUnary(emitter, nil)
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "nope")
	}

	_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Get"}, handler)
	require.Error(t, err)

	select {
	case <-emitter.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no telemetry event emitted")
	}
	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	e := emitter.events[0]
	assert.Equal(t, telemetrydomain.EventGRPCRequest, e.EventType)
	assert.Equal(t, "/test.Service/Get", e.Metadata["full_method"])
	assert.Equal(t, codes.NotFound.String(), e.Metadata["status_code"])
}

func TestTelemetryUnary_SkipsAndNilEmitter(t *testing.T) {
	emitter := newCaptureEmitter()
	skip := "/grpc.health.v1.Health/Check"
	handlerErr := errors.New("boom")
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "resp", handlerErr
	}

	resp, err := TelemetryUnary(emitter, map[string]bool{skip: true})(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: skip}, handler)
	assert.Equal(t, "resp", resp)
	assert.Equal(t, handlerErr, err)

	resp, err = TelemetryUnary(nil, nil)(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"}, handler)
	assert.Equal(t, "resp", resp)
	assert.Equal(t, handlerErr, err)

	select {
	case <-emitter.ch:
		t.Fatal("skipped method emitted an event")
	case <-time.After(50 * time.Millisecond):
	}
}
