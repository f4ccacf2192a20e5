package store

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/af-corp/llmcache/internal/llmcache"
)

// testStoreContract exercises the behavior every backend must share.
func testStoreContract(t *testing.T, s llmcache.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "llmcache:chat:absent")
		if !errors.Is(err, llmcache.ErrCacheMiss) {
			t.Fatalf("expected ErrCacheMiss, got %v", err)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		value := []byte{0x01, '"', 'h', 'i', '"'}
		if err := s.Set(ctx, "llmcache:chat:k1", value, time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := s.Get(ctx, "llmcache:chat:k1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, value) {
			t.Errorf("Get() = %q, want %q", got, value)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		if err := s.Set(ctx, "llmcache:chat:k2", []byte("first"), time.Hour); err != nil {
			t.Fatal(err)
		}
		if err := s.Set(ctx, "llmcache:chat:k2", []byte("second"), time.Hour); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, "llmcache:chat:k2")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "second" {
			t.Errorf("expected last write to win, got %q", got)
		}
	})

	t.Run("non-positive ttl stores nothing", func(t *testing.T) {
		for _, ttl := range []time.Duration{0, -time.Second} {
			if err := s.Set(ctx, "llmcache:completion:nottl", []byte("v"), ttl); err != nil {
				t.Fatalf("Set(ttl=%v) failed: %v", ttl, err)
			}
			if _, err := s.Get(ctx, "llmcache:completion:nottl"); !errors.Is(err, llmcache.ErrCacheMiss) {
				t.Errorf("ttl=%v: expected ErrCacheMiss, got %v", ttl, err)
			}
		}
	})

	t.Run("binary values survive", func(t *testing.T) {
		value := []byte{0x02, 0x78, 0x9c, 0x00, 0xff, 0x00}
		if err := s.Set(ctx, "llmcache:vision:bin", value, time.Hour); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, "llmcache:vision:bin")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, value) {
			t.Errorf("Get() = % x, want % x", got, value)
		}
	})
}
