package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockHeld is returned by TryLock when another holder owns the key.
var ErrLockHeld = errors.New("lock held by another holder")

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript resets the TTL only if the key still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// ErrLockLost is returned by Extend when the lease expired or was taken over.
var ErrLockLost = errors.New("lock no longer held")

// Lock is a held lease on a key. It expires on its own after the TTL.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	logger *zap.Logger
}

// TryLock acquires key for ttl without waiting. Returns ErrLockHeld when taken.
func (c *Client) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	c.logger.Debug("lock acquired", zap.String("key", key), zap.Duration("ttl", ttl))
	return &Lock{client: c.Client, key: key, token: token, logger: c.logger}, nil
}

// Release frees the lock if it is still ours.
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if n == 0 {
		l.logger.Warn("lock expired before release", zap.String("key", l.key))
	}
	return nil
}

// Extend resets the lease to ttl. Returns ErrLockLost if the lock is no longer ours.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Acquire is TryLock returning a release func, for callers that only need the guard.
// The lease is renewed every ttl/3 until release, so a holder that runs longer than ttl
// keeps it. The release uses a fresh context so it runs even after ctx is done.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l, err := c.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.keepAlive(ttl, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.Release(rctx); err != nil {
				l.logger.Warn("lock release failed", zap.Error(err))
			}
		})
	}, nil
}

func (l *Lock) keepAlive(ttl time.Duration, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
			err := l.Extend(ctx, ttl)
			cancel()
			if errors.Is(err, ErrLockLost) {
				l.logger.Warn("lock lost before release", zap.String("key", l.key))
				return
			}
			if err != nil {
				l.logger.Warn("lock renewal failed", zap.String("key", l.key), zap.Error(err))
			}
		}
	}
}
