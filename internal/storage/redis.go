package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "scraper:lock:"

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// Lock is a held run lock
type Lock interface {
	Release(ctx context.Context) error
}

// RedisLocker guards source runs across instances with SET NX PX
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker whose locks expire after ttl
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// TryLock acquires the lock for key. ok is false when another holder has it.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (Lock, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKeyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLock{client: l.client, key: lockKeyPrefix + key, token: token}, true, nil
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// LocalLocker is the single-instance fallback when Redis is not configured
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string) (Lock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return &localLock{locker: l, key: key}, true, nil
}

type localLock struct {
	locker *LocalLocker
	key    string
	once   sync.Once
}

func (l *localLock) Release(context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		delete(l.locker.held, l.key)
		l.locker.mu.Unlock()
	})
	return nil
}
