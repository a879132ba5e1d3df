package enforcement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"resellerhq/warden/pkg/panels"
)

// DefaultLockTTL bounds how long a crashed holder can keep a Redis lock.
// A live holder refreshes it every third of the TTL.
const DefaultLockTTL = 5 * time.Minute

const lockPollInterval = 100 * time.Millisecond

// Deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the key only if it still carries our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a panel lock shared through Redis. Locks expire after TTL
// so a crashed holder cannot block a panel forever. While held, the lock is
// refreshed in the background so long bulk toggles keep it.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	clock  quartz.Clock
	logger *slog.Logger
}

// RedisLockerConfig configures a RedisLocker.
type RedisLockerConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces lock keys. Defaults to "warden:lock:panel:".
	Prefix string

	TTL   time.Duration
	Clock quartz.Clock
}

// NewRedisLocker connects to Redis and verifies the connection.
func NewRedisLocker(ctx context.Context, cfg RedisLockerConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return newRedisLocker(client, cfg), nil
}

func newRedisLocker(client *redis.Client, cfg RedisLockerConfig) *RedisLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "warden:lock:panel:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLockTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	return &RedisLocker{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		clock:  cfg.Clock,
		logger: slog.Default().With("component", "enforcement.redis_lock"),
	}
}

func (r *RedisLocker) Lock(ctx context.Context, panelID int64) (func(), error) {
	for {
		release, err := r.TryLock(ctx, panelID)
		if !errors.Is(err, panels.ErrLocked) {
			return release, err
		}

		timer := r.clock.NewTimer(lockPollInterval, "redis_lock", "poll")
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *RedisLocker) TryLock(ctx context.Context, panelID int64) (func(), error) {
	key := r.key(panelID)
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, panels.ErrLocked
	}

	ticker := r.clock.NewTicker(r.ttl/3, "redis_lock", "refresh")
	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(panelID, key, token, ticker, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				r.logger.Warn("failed to release panel lock", "panel_id", panelID, "error", err)
			}
		})
	}, nil
}

func (r *RedisLocker) keepAlive(panelID int64, key, token string, ticker *quartz.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, err := refreshScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			r.logger.Warn("failed to refresh panel lock", "panel_id", panelID, "error", err)
		case n == 0:
			r.logger.Error("panel lock lost while held", "panel_id", panelID)
			return
		}
	}
}

// Close closes the Redis connection.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}

func (r *RedisLocker) key(panelID int64) string {
	return fmt.Sprintf("%s%d", r.prefix, panelID)
}
