package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ggoodman/edgeauth/storage"
	"github.com/ggoodman/edgeauth/storage/storagetest"
)

func TestMemoryStorage(t *testing.T) {
	storagetest.RunStorageTests(t, func(t *testing.T) storage.Storage {
		s, err := New(8, 0)
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		return s
	})
}

func TestMemoryStorage_Eviction(t *testing.T) {
	s, err := New(2, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("a"))
	_ = s.Set(ctx, "b", []byte("b"))
	_ = s.Set(ctx, "c", []byte("c"))

	if item, _ := s.Get(ctx, "a"); item != nil {
		t.Fatal("expected oldest entry to be evicted")
	}
	if item, _ := s.Get(ctx, "c"); item == nil {
		t.Fatal("expected newest entry to be present")
	}
}

func TestMemoryStorage_Sweep(t *testing.T) {
	s, err := New(4, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	_ = s.Set(context.Background(), "k", []byte("v"), storage.WithTTL(10*time.Millisecond))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := s.cache.Len()
		s.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expired entry was never swept")
}

func TestMemoryStorage_GetReturnsCopy(t *testing.T) {
	s, _ := New(4, 0)
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("abc"))
	item, _ := s.Get(ctx, "k")
	item.Data[0] = 'z'

	again, _ := s.Get(ctx, "k")
	if string(again.Data) != "abc" {
		t.Fatalf("stored data mutated through Get result: %q", again.Data)
	}
}
