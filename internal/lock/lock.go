// Package lock provides best-effort mutual exclusion for background cycles.
// Redis is used when configured so that several API replicas share one
// lock; otherwise the lock is local to the process.
//
// A held lock is extended every ttl/3 until it is released, so a cycle that
// runs longer than its ttl keeps the lock. The ttl only bounds how long a
// crashed holder blocks others.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript resets the expiry only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// errLost means the lock expired and another holder took it.
var errLost = errors.New("lock no longer held")

// Redis is a lock backed by SET NX PX.
type Redis struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewRedis creates a Redis lock. Multiple addrs with useCluster select a
// cluster client.
func NewRedis(addrs []string, password string, useCluster bool, logger *slog.Logger) *Redis {
	var rdb redis.UniversalClient
	if useCluster && len(addrs) > 1 {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    addrs,
			Password: password,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addrs[0],
			Password: password,
			DB:       0,
		})
	}
	return NewRedisFromClient(rdb, logger)
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client redis.UniversalClient, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger}
}

// Ping verifies connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// TryLock acquires key for ttl without blocking.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	stop := keepAlive(key, ttl, r.logger, func() error {
		return r.extend(key, token, ttl)
	})
	unlock := func() {
		stop()
		if err := r.release(key, token); err != nil {
			r.logger.Warn("lock release failed, key expires on its own",
				"key", key, "ttl", ttl, "error", err)
		}
	}
	return unlock, true, nil
}

// release uses a fresh context: the caller's may already be done.
func (r *Redis) release(key, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

func (r *Redis) extend(key, token string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := extendScript.Run(ctx, r.client, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", key, err)
	}
	if n == 0 {
		return errLost
	}
	return nil
}

// keepAlive calls extend every ttl/3 until stop is called or the lock is
// lost. A transient extend error is logged and retried on the next tick.
func keepAlive(key string, ttl time.Duration, logger *slog.Logger, extend func() error) (stop func()) {
	interval := ttl / 3
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				err := extend()
				if errors.Is(err, errLost) {
					logger.Error("lock lost while held", "key", key, "ttl", ttl)
					return
				}
				if err != nil {
					logger.Warn("lock extend failed", "key", key, "error", err)
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// Local is an in-process lock keyed by name. Expired entries are reclaimed
// on the next TryLock.
type Local struct {
	mu     sync.Mutex
	seq    uint64
	held   map[string]localEntry
	now    func() time.Time
	logger *slog.Logger
}

type localEntry struct {
	token     uint64
	expiresAt time.Time
}

// NewLocal creates an in-process lock.
func NewLocal() *Local {
	return &Local{held: make(map[string]localEntry), now: time.Now, logger: slog.Default()}
}

// TryLock acquires key for ttl without blocking.
func (l *Local) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expiresAt) {
		return nil, false, nil
	}
	l.seq++
	token := l.seq
	l.held[key] = localEntry{token: token, expiresAt: now.Add(ttl)}

	stop := keepAlive(key, ttl, l.logger, func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		e, ok := l.held[key]
		if !ok || e.token != token {
			return errLost
		}
		e.expiresAt = l.now().Add(ttl)
		l.held[key] = e
		return nil
	})
	unlock := func() {
		stop()
		l.mu.Lock()
		defer l.mu.Unlock()
		if e, ok := l.held[key]; ok && e.token == token {
			delete(l.held, key)
		}
	}
	return unlock, true, nil
}
