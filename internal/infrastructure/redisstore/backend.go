// Package redisstore keeps cached digests in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"NewsDigest/internal/cache"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

const scanBatch = 100

// Backend stores JSON encoded cache entries under their cache key. Keys carry no
// Redis expiry; the cache store evicts expired entries when it reads them.
type Backend struct {
	client redis.UniversalClient
}

var _ ports.CacheBackend = (*Backend)(nil)

// New wraps an existing client.
func New(client redis.UniversalClient) *Backend {
	return &Backend{client: client}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int) (*Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return New(client), nil
}

// Close releases the underlying connection pool.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Load fetches and decodes the entry under key.
func (b *Backend) Load(ctx context.Context, key string) (domain.CacheEntry, bool, error) {
	raw, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("get %s: %w", key, err)
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return entry, true, nil
}

// Save overwrites the entry under entry.Key.
func (b *Backend) Save(ctx context.Context, entry domain.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := b.client.Set(ctx, entry.Key, raw, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", entry.Key, err)
	}
	return nil
}

// Delete removes key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// DeleteAll removes every digest key, leaving unrelated keys alone.
func (b *Backend) DeleteAll(ctx context.Context) error {
	keys, err := b.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del digests: %w", err)
	}
	return nil
}

// List decodes every stored digest entry.
func (b *Backend) List(ctx context.Context) ([]domain.CacheEntry, error) {
	keys, err := b.keys(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CacheEntry, 0, len(keys))
	for _, key := range keys {
		entry, ok, err := b.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (b *Backend) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, cache.KeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan digests: %w", err)
	}
	return keys, nil
}
