// Package store holds the shared key-value backends behind the response cache.
// Every backend returns llmcache.ErrCacheMiss for absent or expired keys and
// wraps transport failures in llmcache.ErrStoreUnavailable.
package store

import "github.com/af-corp/llmcache/internal/llmcache"

var (
	_ llmcache.Store = (*Redis)(nil)
	_ llmcache.Store = (*Postgres)(nil)
	_ llmcache.Store = (*SQLite)(nil)
	_ llmcache.Store = (*Memory)(nil)

	_ Purger = (*Postgres)(nil)
	_ Purger = (*SQLite)(nil)
	_ Purger = (*Memory)(nil)
)
