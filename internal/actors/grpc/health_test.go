package grpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthService(t *testing.T) {
	var mongoErr error
	h := NewHealthService(HealthServiceArgs{Checks: map[string]Check{
		"mongo":  func(context.Context) error { return mongoErr },
		"pubsub": func(context.Context) error { return nil },
	}}, WithInterval(time.Millisecond))

	status, err := h.Check(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)

	h.Probe(context.Background())
	for _, service := range []string{"", "mongo", "pubsub"} {
		status, err := h.Check(context.Background(), service)
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status, service)
	}

	mongoErr = errors.New("unreachable")
	h.Probe(context.Background())
	status, err = h.Check(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)
	status, err = h.Check(context.Background(), "pubsub")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	_, err = h.Check(context.Background(), "unknown")
	assert.Error(t, err)
}
