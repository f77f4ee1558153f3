// Package lock provides a Redis-backed advisory lock (SET NX PX / Lua
// compare-and-delete unlock), grounded on the teacher's internal/market
// Redis cache wrapper (short per-call context timeouts, nil-client is a
// valid no-op configuration, zerolog on every miss/error path). It backs
// the Deliberation Orchestrator's per-ticker serialization (spec §4.8); the
// Signal Deduper talks to Redis directly and does not use this package.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Manager acquires/releases short-lived advisory locks keyed by name.
type Manager struct {
	client *redis.Client
}

// NewManager wraps client. A nil client yields a Manager whose TryLock
// always succeeds (for tests and local runs without Redis); in that mode no
// mutual exclusion is provided, not even within one process.
func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// Handle is returned by TryLock; pass it to Unlock to release.
type Handle struct {
	key   string
	token string
	local bool
}

// TryLock attempts to acquire key for ttl, non-blocking. It returns
// (handle, true) on success, (nil, false) if already held.
func (m *Manager) TryLock(ctx context.Context, key string, ttl time.Duration) (*Handle, bool) {
	if m.client == nil {
		return &Handle{key: key, local: true}, true
	}

	token := uuid.NewString()
	cctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	ok, err := m.client.SetNX(cctx, lockKey(key), token, ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("lock: redis SETNX failed, treating as unavailable")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &Handle{key: key, token: token}, true
}

// Unlock releases h if it still owns the lock (compare-and-delete), so a
// stale caller past its TTL never deletes someone else's lock.
func (m *Manager) Unlock(ctx context.Context, h *Handle) {
	if h == nil || h.local || m.client == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := m.client.Eval(cctx, unlockScript, []string{lockKey(h.key)}, h.token).Err(); err != nil {
		log.Warn().Err(err).Str("key", h.key).Msg("lock: redis unlock failed")
	}
}

func lockKey(key string) string {
	return fmt.Sprintf("warroom:lock:%s", key)
}
