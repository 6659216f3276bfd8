// Package cooldown suppresses repeat alerts for coins that already fired
// recently. The Redis-backed guard survives restarts and is shared across
// replicas; the in-memory guard is the single-process fallback when Redis
// is disabled.
package cooldown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/coinsentry/engine/internal/logger"
)

// Guard filters a list of coin IDs down to the ones not currently in
// cooldown, marking the survivors so they won't pass again until the
// window expires.
type Guard interface {
	Filter(ctx context.Context, coinIDs []string) ([]string, error)
}

// RedisGuard stores cooldown marks as keys with a TTL. A coin passes the
// filter exactly when its key can be created, so concurrent collectors
// agree on who alerts.
type RedisGuard struct {
	client *redis.Client
	window time.Duration
}

// NewRedisGuard connects to Redis and verifies the connection.
func NewRedisGuard(addr, password string, db int, window time.Duration) (*RedisGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis at %s", addr)
	return &RedisGuard{client: client, window: window}, nil
}

// Filter keeps coins whose cooldown key does not exist yet. SET NX EX both
// checks and marks in one round trip per coin.
func (g *RedisGuard) Filter(ctx context.Context, coinIDs []string) ([]string, error) {
	var passed []string
	for _, id := range coinIDs {
		ok, err := g.client.SetNX(ctx, "cooldown:"+id, 1, g.window).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check cooldown for %s: %w", id, err)
		}
		if ok {
			passed = append(passed, id)
		}
	}
	return passed, nil
}

// Close releases the Redis connection.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

// MemoryGuard tracks cooldowns in a process-local map. Entries are pruned
// lazily on each Filter call.
type MemoryGuard struct {
	mu       sync.Mutex
	notified map[string]time.Time
	window   time.Duration
	now      func() time.Time
}

// NewMemoryGuard creates an in-memory cooldown guard.
func NewMemoryGuard(window time.Duration) *MemoryGuard {
	return &MemoryGuard{
		notified: make(map[string]time.Time),
		window:   window,
		now:      time.Now,
	}
}

// Seed marks coins as already notified, as of now. Used on startup to
// restore cooldown state from persisted events, since the map itself does
// not survive restarts.
func (g *MemoryGuard) Seed(coinIDs []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for _, id := range coinIDs {
		g.notified[id] = now
	}
}

// Filter keeps coins not marked within the window, marking the survivors.
func (g *MemoryGuard) Filter(_ context.Context, coinIDs []string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, at := range g.notified {
		if now.Sub(at) >= g.window {
			delete(g.notified, id)
		}
	}

	var passed []string
	for _, id := range coinIDs {
		if _, hot := g.notified[id]; hot {
			continue
		}
		g.notified[id] = now
		passed = append(passed, id)
	}
	return passed, nil
}
