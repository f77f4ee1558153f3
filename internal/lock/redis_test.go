package lock

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewManager(client)
}

func TestTryLockExclusiveUntilUnlocked(t *testing.T) {
	m := newTestManager(t)
	ctx := t.Context()

	h, ok := m.TryLock(ctx, "ACME", 5*time.Second)
	require.True(t, ok)
	require.NotNil(t, h)

	_, ok = m.TryLock(ctx, "ACME", 5*time.Second)
	require.False(t, ok, "second lock on same key should fail while held")

	m.Unlock(ctx, h)

	_, ok = m.TryLock(ctx, "ACME", 5*time.Second)
	require.True(t, ok, "lock should be acquirable again after unlock")
}

func TestTryLockDifferentKeysIndependent(t *testing.T) {
	m := newTestManager(t)
	ctx := t.Context()

	_, ok1 := m.TryLock(ctx, "ACME", 5*time.Second)
	_, ok2 := m.TryLock(ctx, "OTHER", 5*time.Second)
	require.True(t, ok1)
	require.True(t, ok2)
}

func TestNilClientIsLocalNoOp(t *testing.T) {
	m := NewManager(nil)
	ctx := t.Context()

	h, ok := m.TryLock(ctx, "ACME", time.Second)
	require.True(t, ok)
	m.Unlock(ctx, h) // must not panic
}
