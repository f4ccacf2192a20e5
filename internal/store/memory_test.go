package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/af-corp/llmcache/internal/llmcache"
)

func TestMemory_Contract(t *testing.T) {
	testStoreContract(t, NewMemory())
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	now = now.Add(59 * time.Second)
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("expected entry before expiry, got %v", err)
	}
	now = now.Add(time.Second)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, llmcache.ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss at expiry, got %v", err)
	}
	if m.size() != 0 {
		t.Errorf("expected expired entry to be dropped, %d left", m.size())
	}
}

func TestMemory_NonPositiveTTLStoresNothing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, "k"); !errors.Is(err, llmcache.ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemory_Purge(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Set(ctx, "short", []byte("a"), time.Second)
	m.Set(ctx, "long", []byte("b"), time.Hour)
	now = now.Add(time.Minute)

	n, err := m.Purge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged entry, got %d", n)
	}
	if m.size() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", m.size())
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	value := []byte("abc")
	m.Set(ctx, "k", value, time.Hour)
	value[0] = 'x'

	got, _ := m.Get(ctx, "k")
	got[1] = 'y'
	again, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value was aliased: %q", again)
	}
}
