// Package redis provides a Redis-backed implementation of storage.Storage,
// letting every edgeauth instance in a fleet read the same cached key set
// document.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/edgeauth/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces all keys written by this package.
const DefaultKeyPrefix = "edgeauth:keyset:"

// Config contains configuration options for the Redis storage.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "edgeauth:keyset:"
	KeyPrefix string
}

// Storage implements storage.Storage using Redis.
type Storage struct {
	client    *redis.Client
	keyPrefix string
	owned     bool
}

// storedItem is the JSON envelope written to Redis.
type storedItem struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New creates a Redis storage around an existing client. The caller keeps
// ownership of the client; Close leaves it open.
func New(cfg Config) (*Storage, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &Storage{client: cfg.Client, keyPrefix: cfg.KeyPrefix}, nil
}

// Dial connects to addr, verifies the connection with PING and returns a
// Storage that owns the client.
func Dial(ctx context.Context, addr, keyPrefix string) (*Storage, error) {
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s, err := New(Config{Client: cl, KeyPrefix: keyPrefix})
	if err != nil {
		_ = cl.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Get retrieves the document stored under key.
func (s *Storage) Get(ctx context.Context, key string) (*storage.Item, error) {
	if key == "" {
		return nil, storage.ErrInvalidKey
	}
	redisKey := s.keyPrefix + key

	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %s: %w", redisKey, err)
	}

	var si storedItem
	if err := json.Unmarshal(raw, &si); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored data: %w", err)
	}
	item := &storage.Item{Data: si.Data, CreatedAt: si.CreatedAt, ExpiresAt: si.ExpiresAt}

	// Redis expires keys itself; this covers clock drift between writers.
	if item.IsExpired(time.Now()) {
		s.client.Del(ctx, redisKey)
		return nil, nil
	}
	return item, nil
}

// Set stores data under key.
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	if key == "" {
		return storage.ErrInvalidKey
	}
	o := storage.Apply(opts...)
	redisKey := s.keyPrefix + key

	now := time.Now()
	si := storedItem{Data: data, CreatedAt: now}
	if o.TTL > 0 {
		exp := now.Add(o.TTL)
		si.ExpiresAt = &exp
	}

	b, err := json.Marshal(si)
	if err != nil {
		return fmt.Errorf("failed to marshal storage item: %w", err)
	}
	if err := s.client.Set(ctx, redisKey, b, o.TTL).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", redisKey, err)
	}
	return nil
}

// Delete removes key.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return storage.ErrInvalidKey
	}
	redisKey := s.keyPrefix + key
	if err := s.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", redisKey, err)
	}
	return nil
}

// Close closes the underlying client if it was opened by Dial.
func (s *Storage) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

var _ storage.Storage = (*Storage)(nil)
