// Package storage provides a small key/value abstraction used to share
// fetched key set documents between edgeauth instances.
//
// The key set cache reads through a Storage on cold start and writes every
// successfully fetched document back, so a fleet of short-lived instances can
// amortize one identity provider fetch. Storage never holds verification
// results.
package storage

import (
	"context"
	"errors"
	"time"
)

// Storage defines the key/value contract for document backends.
type Storage interface {
	// Get retrieves data for key.
	// Returns a nil Item if the key doesn't exist or has expired.
	// Returns an error only for legitimate storage system failures.
	Get(ctx context.Context, key string) (*Item, error)

	// Set stores data for key, replacing any previous value.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the backend.
	Close() error
}

// Item represents a stored document with metadata.
type Item struct {
	Data      []byte     // The stored data
	CreatedAt time.Time  // When the item was written
	ExpiresAt *time.Time // When the item expires (nil = no expiration)
}

// IsExpired checks if the item has expired at now.
func (it *Item) IsExpired(now time.Time) bool {
	return it.ExpiresAt != nil && now.After(*it.ExpiresAt)
}

// Option configures a Set operation.
type Option func(*Options)

// Options contains configuration for Set operations.
type Options struct {
	TTL time.Duration // zero means no expiration
}

// Apply folds opts into a fresh Options value.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTTL sets a time-to-live for the stored data.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.TTL = ttl
	}
}

// ErrInvalidKey is returned when an empty key is supplied.
var ErrInvalidKey = errors.New("storage: invalid key")
