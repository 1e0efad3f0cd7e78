package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zkinzler/dfw-openings/pkg/locking"
)

var (
	// ErrLockNotAcquired is returned when a key is still held by someone else after the wait
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock whose token expired or was taken over
	ErrLockNotHeld = errors.New("lock not held")
)

// Compare-and-delete so a holder whose TTL lapsed cannot free the next owner's lock
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

const (
	minBackoff = 10 * time.Millisecond
	maxBackoff = 500 * time.Millisecond
)

// Lock is one held key and the token proving ownership
type Lock struct {
	client *Client
	key    string
	token  string
}

// Locker serializes merges across replicas with SET NX keys
type Locker struct {
	client    *Client
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
}

var _ locking.Locker = (*Locker)(nil)

// NewLocker creates a Locker. ttl bounds how long a crashed holder blocks a key and
// wait bounds how long Lock retries a contended key.
func NewLocker(client *Client, keyPrefix string, ttl, wait time.Duration) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &Locker{client: client, keyPrefix: keyPrefix, ttl: ttl, wait: wait}
}

// Lock takes every key in sorted order, waiting up to the configured wait for each.
// If any key cannot be taken the ones already held are released.
func (l *Locker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = locking.Keys(keys...)
	held := make([]*Lock, 0, len(keys))

	release := func() {
		releaseCtx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(releaseCtx); err != nil {
				l.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock: %s", held[i].key)
			}
		}
	}

	for _, k := range keys {
		lock, err := l.acquireWithin(ctx, k, l.wait)
		if err != nil {
			release()
			return nil, fmt.Errorf("failed to lock %s: %w", k, err)
		}
		held = append(held, lock)
	}
	return release, nil
}

// Acquire tries key once
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{client: l.client, key: l.keyPrefix + key, token: uuid.NewString()}

	ok, err := l.client.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", lock.key)
	return lock, nil
}

// acquireWithin retries key with doubling backoff until it is taken or wait elapses
func (l *Locker) acquireWithin(ctx context.Context, key string, wait time.Duration) (*Lock, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	backoff := minBackoff
	for {
		lock, err := l.Acquire(ctx, key, l.ttl)
		if !errors.Is(err, ErrLockNotAcquired) {
			return lock, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrLockNotAcquired
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Release frees the lock if the token still matches
func (lock *Lock) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.token).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}
	lock.client.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}
