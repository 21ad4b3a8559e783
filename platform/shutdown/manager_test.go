package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_ShutdownRunsInReverseOrder(t *testing.T) {
	m := New(time.Second, zap.NewNop())

	var order []string
	for _, name := range []string{"postgres", "kafka", "http"} {
		name := name
		m.Add(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, m.Shutdown())
	require.Equal(t, []string{"http", "kafka", "postgres"}, order)
}

func TestManager_ShutdownContinuesAfterError(t *testing.T) {
	m := New(time.Second, zap.NewNop())

	called := false
	boom := errors.New("boom")
	m.Add("first", func(context.Context) error {
		called = true
		return nil
	})
	m.Add("second", func(context.Context) error { return boom })

	err := m.Shutdown()
	require.ErrorIs(t, err, boom)
	require.True(t, called)
}

func TestManager_WaitReturnsOnContextCancel(t *testing.T) {
	m := New(time.Second, zap.NewNop())

	closed := make(chan struct{})
	m.Add("worker", func(context.Context) error {
		close(closed)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m.Wait(ctx)

	select {
	case <-closed:
	default:
		t.Fatal("shutdown function was not called")
	}
}
