package grpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func status(h *Health) grpc_health_v1.HealthCheckResponse_ServingStatus {
	resp, err := h.srv.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN
	}
	return resp.GetStatus()
}

func TestHealth_StartsNotServing(t *testing.T) {
	h := New()
	require.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(h))

	h.SetServing("")
	require.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(h))
}

func TestHealth_WatchFollowsCheck(t *testing.T) {
	h := New()

	var failing atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Watch(ctx, 10*time.Millisecond, func(context.Context) error {
		if failing.Load() {
			return errors.New("db down")
		}
		return nil
	})

	require.Eventually(t, func() bool {
		return status(h) == grpc_health_v1.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	failing.Store(true)
	require.Eventually(t, func() bool {
		return status(h) == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)
}
