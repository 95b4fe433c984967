package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// unlockLua deletes the key only while it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// refreshLua extends the TTL only while the key still holds the caller's token.
const refreshLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements domain.LockManager with SET NX and token-checked
// release. Hold adds a refresh loop for long-lived leadership.
type LockManager struct {
	c         *Client
	unlockSc  *redis.Script
	refreshSc *redis.Script
	logger    *slog.Logger
}

// NewLockManager creates a LockManager.
func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		c:         c,
		unlockSc:  redis.NewScript(unlockLua),
		refreshSc: redis.NewScript(refreshLua),
		logger:    logger.With(slog.String("component", "leader_lock")),
	}
}

// Acquire takes key for ttl. It returns domain.ErrLockHeld when another
// holder has it. The returned unlock is idempotent.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	unlock, _, err := lm.acquire(ctx, key, ttl)
	return unlock, err
}

func (lm *LockManager) acquire(ctx context.Context, key string, ttl time.Duration) (func(), string, error) {
	token := uuid.NewString()
	lk := lm.c.key("lock", key)
	ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, "", fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, "", domain.ErrLockHeld
	}
	released := false
	unlock := func() {
		if released {
			return
		}
		released = true
		// the caller's context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.unlockSc.Run(ctx, lm.c.rdb, []string{lk}, token).Err()
	}
	return unlock, token, nil
}

// Hold acquires key and keeps refreshing it every ttl/3 until ctx ends or a
// refresh finds the lock taken over. The lost channel closes in the second
// case. release stops refreshing and frees the lock.
func (lm *LockManager) Hold(ctx context.Context, key string, ttl time.Duration) (lost <-chan struct{}, release func(), err error) {
	unlock, token, err := lm.acquire(ctx, key, ttl)
	if err != nil {
		return nil, nil, err
	}
	lk := lm.c.key("lock", key)
	lostCh := make(chan struct{})
	hctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-hctx.Done():
				return
			case <-ticker.C:
				n, err := lm.refreshSc.Run(hctx, lm.c.rdb, []string{lk}, token, ttl.Milliseconds()).Int64()
				if err != nil {
					if hctx.Err() == nil {
						lm.logger.Warn("lock refresh failed", slog.String("key", key), slog.String("error", err.Error()))
					}
					continue
				}
				if n == 0 {
					lm.logger.Error("leadership lost", slog.String("key", key))
					close(lostCh)
					return
				}
			}
		}
	}()

	release = func() {
		cancel()
		<-done
		unlock()
	}
	return lostCh, release, nil
}

var _ domain.LockManager = (*LockManager)(nil)
