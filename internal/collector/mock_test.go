package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netsentinel/agent/internal/types"
)

func TestMockEmitsFixtureFlows(t *testing.T) {
	m := NewMock(nil)
	m.tick = 10 * time.Millisecond

	var mu sync.Mutex
	count := 0
	m.Subscribe(func(types.FlowEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= len(defaultMockFlows())
	}, time.Second, 5*time.Millisecond)
}

func TestMockStartIsIdempotent(t *testing.T) {
	m := NewMock(nil)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop())
}

func TestMockStopJoinsWorker(t *testing.T) {
	m := NewMock(nil)
	m.tick = 5 * time.Millisecond
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}
