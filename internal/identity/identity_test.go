package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netsentinel/agent/internal/types"
)

func TestCacheResolveMemoizes(t *testing.T) {
	calls := 0
	c := NewCache(time.Minute)
	c.resolve = func(pid int32) (types.ProcessIdentity, error) {
		calls++
		return types.ProcessIdentity{PID: pid, Name: "svc"}, nil
	}

	id1, err := c.Resolve(42)
	require.NoError(t, err)
	id2, err := c.Resolve(42)
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Equal(t, 1, calls)
}

func TestCacheEvict(t *testing.T) {
	calls := 0
	c := NewCache(time.Minute)
	c.resolve = func(pid int32) (types.ProcessIdentity, error) {
		calls++
		return types.ProcessIdentity{PID: pid}, nil
	}

	_, _ = c.Resolve(1)
	c.Evict(1)
	_, _ = c.Resolve(1)

	require.Equal(t, 2, calls)
}

func TestCacheSweepEvictsStaleEntries(t *testing.T) {
	c := NewCache(time.Millisecond)
	c.resolve = func(pid int32) (types.ProcessIdentity, error) {
		return types.ProcessIdentity{PID: pid}, nil
	}

	_, _ = c.Resolve(1)
	c.Sweep(time.Now().Add(time.Hour))

	c.mu.RLock()
	_, ok := c.entries[1]
	c.mu.RUnlock()
	require.False(t, ok)
}
