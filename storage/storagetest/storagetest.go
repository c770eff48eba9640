// Package storagetest contains a conformance suite shared by every
// storage.Storage implementation.
package storagetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ggoodman/edgeauth/storage"
)

// Factory returns a fresh, empty Storage for a single subtest.
type Factory func(t *testing.T) storage.Storage

// RunStorageTests runs the conformance suite against storages produced by newStorage.
func RunStorageTests(t *testing.T, newStorage Factory) {
	t.Helper()

	t.Run("SetAndGet", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()
		ctx := context.Background()

		doc := []byte(`{"keys":[]}`)
		if err := s.Set(ctx, "set-get", doc); err != nil {
			t.Fatalf("set: %v", err)
		}
		item, err := s.Get(ctx, "set-get")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if item == nil {
			t.Fatal("expected item, got nil")
		}
		if !bytes.Equal(item.Data, doc) {
			t.Fatalf("data mismatch: got %q want %q", item.Data, doc)
		}
		if item.CreatedAt.IsZero() {
			t.Fatal("CreatedAt should be set")
		}
		if item.ExpiresAt != nil {
			t.Fatal("ExpiresAt should be nil without TTL")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		item, err := s.Get(context.Background(), "missing")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if item != nil {
			t.Fatalf("expected nil item, got %+v", item)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()
		ctx := context.Background()

		_ = s.Set(ctx, "ow", []byte("one"))
		if err := s.Set(ctx, "ow", []byte("two")); err != nil {
			t.Fatalf("set: %v", err)
		}
		item, err := s.Get(ctx, "ow")
		if err != nil || item == nil {
			t.Fatalf("get: item=%v err=%v", item, err)
		}
		if string(item.Data) != "two" {
			t.Fatalf("want two, got %q", item.Data)
		}
	})

	t.Run("TTL", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()
		ctx := context.Background()

		ttl := 150 * time.Millisecond
		if err := s.Set(ctx, "ttl", []byte("x"), storage.WithTTL(ttl)); err != nil {
			t.Fatalf("set: %v", err)
		}
		item, err := s.Get(ctx, "ttl")
		if err != nil || item == nil {
			t.Fatalf("get before expiry: item=%v err=%v", item, err)
		}
		if item.ExpiresAt == nil {
			t.Fatal("ExpiresAt should be set with TTL")
		}

		time.Sleep(ttl + 100*time.Millisecond)

		item, err = s.Get(ctx, "ttl")
		if err != nil {
			t.Fatalf("get after expiry: %v", err)
		}
		if item != nil {
			t.Fatal("expected expired item to be gone")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()
		ctx := context.Background()

		_ = s.Set(ctx, "del", []byte("x"))
		if err := s.Delete(ctx, "del"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.Delete(ctx, "del"); err != nil {
			t.Fatalf("delete missing: %v", err)
		}
		item, err := s.Get(ctx, "del")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if item != nil {
			t.Fatal("expected deleted item to be gone")
		}
	})

	t.Run("EmptyKey", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		if _, err := s.Get(context.Background(), ""); err == nil {
			t.Fatal("expected error for empty key")
		}
		if err := s.Set(context.Background(), "", []byte("x")); err == nil {
			t.Fatal("expected error for empty key")
		}
	})
}
