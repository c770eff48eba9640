// Package memory provides an in-process implementation of storage.Storage
// backed by github.com/hashicorp/golang-lru/v2.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ggoodman/edgeauth/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxItems bounds the number of documents held when New is given a
// non-positive size.
const DefaultMaxItems = 64

// Storage implements storage.Storage in memory.
type Storage struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *storage.Item]
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates an in-memory storage holding at most maxItems documents.
// Expired items are swept every sweepInterval; zero disables sweeping and
// relies on lazy expiry in Get.
func New(maxItems int, sweepInterval time.Duration) (*Storage, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	cache, err := lru.New[string, *storage.Item](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	s := &Storage{
		cache: cache,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweep(sweepInterval)
	}
	return s, nil
}

// Get retrieves the document stored under key.
func (s *Storage) Get(ctx context.Context, key string) (*storage.Item, error) {
	if key == "" {
		return nil, storage.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	if item.IsExpired(s.now()) {
		s.cache.Remove(key)
		return nil, nil
	}

	out := *item
	out.Data = append([]byte(nil), item.Data...)
	return &out, nil
}

// Set stores a copy of data under key.
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	if key == "" {
		return storage.ErrInvalidKey
	}
	o := storage.Apply(opts...)

	now := s.now()
	item := &storage.Item{
		Data:      append([]byte(nil), data...),
		CreatedAt: now,
	}
	if o.TTL > 0 {
		exp := now.Add(o.TTL)
		item.ExpiresAt = &exp
	}

	s.mu.Lock()
	s.cache.Add(key, item)
	s.mu.Unlock()
	return nil
}

// Delete removes key.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return storage.ErrInvalidKey
	}
	s.mu.Lock()
	s.cache.Remove(key)
	s.mu.Unlock()
	return nil
}

// Close stops the sweeper and drops all documents.
func (s *Storage) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	s.cache.Purge()
	s.mu.Unlock()
	return nil
}

func (s *Storage) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
		s.mu.Lock()
		now := s.now()
		for _, key := range s.cache.Keys() {
			if item, ok := s.cache.Peek(key); ok && item.IsExpired(now) {
				s.cache.Remove(key)
			}
		}
		s.mu.Unlock()
	}
}

var _ storage.Storage = (*Storage)(nil)
