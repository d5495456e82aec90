package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
)

// Deduplicator remembers inbound message ids so each email is answered once
type Deduplicator interface {
	// Claim records messageID and reports whether it was seen for the first time
	Claim(ctx context.Context, messageID string) (bool, error)
	// Release forgets messageID so a later delivery is processed again
	Release(ctx context.Context, messageID string) error
}

const dedupPrefix = "inbound:"

// NewDeduplicator returns a redis-backed set when REDIS_ADDRESS is set and an
// in-process one otherwise
func NewDeduplicator(cfg *config.Config) (Deduplicator, error) {
	if cfg.RedisAddress == "" {
		return NewMemoryDeduplicator(cfg.DedupTTL), nil
	}
	return NewRedisDeduplicator(cfg.RedisAddress, cfg.DedupTTL)
}

// RedisDeduplicator keeps message ids in redis with a TTL
type RedisDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduplicator connects to redis at address
func NewRedisDeduplicator(address string, ttl time.Duration) (*RedisDeduplicator, error) {
	client := redis.NewClient(&redis.Options{
		Addr: address,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return &RedisDeduplicator{client: client, ttl: ttl}, nil
}

// Claim implements Deduplicator
func (d *RedisDeduplicator) Claim(ctx context.Context, messageID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupPrefix+messageID, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record message id: %w", err)
	}
	return ok, nil
}

// Release implements Deduplicator
func (d *RedisDeduplicator) Release(ctx context.Context, messageID string) error {
	return d.client.Del(ctx, dedupPrefix+messageID).Err()
}

// Close closes the redis client
func (d *RedisDeduplicator) Close() error {
	return d.client.Close()
}

// MemoryDeduplicator keeps message ids in process memory
type MemoryDeduplicator struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryDeduplicator creates an empty in-process set
func NewMemoryDeduplicator(ttl time.Duration) *MemoryDeduplicator {
	return &MemoryDeduplicator{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Claim implements Deduplicator
func (d *MemoryDeduplicator) Claim(ctx context.Context, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, id)
		}
	}
	if _, ok := d.seen[messageID]; ok {
		return false, nil
	}
	d.seen[messageID] = now.Add(d.ttl)
	return true, nil
}

// Release implements Deduplicator
func (d *MemoryDeduplicator) Release(ctx context.Context, messageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, messageID)
	return nil
}
