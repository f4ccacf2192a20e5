package llmcache

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks transport-level store failures. Stores wrap their
// client errors with it; the Resolver treats such reads as misses and such
// writes as no-ops.
var ErrStoreUnavailable = errors.New("llmcache: store unavailable")

// ErrCacheMiss is returned by a Store when the key is absent or expired.
var ErrCacheMiss = errors.New("llmcache: cache miss")

// EncodingError reports a request that has no canonical representation.
type EncodingError struct {
	Path   string
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Path == "" {
		return "llmcache: cannot encode request: " + e.Reason
	}
	return fmt.Sprintf("llmcache: cannot encode request at %s: %s", e.Path, e.Reason)
}

// DecodeError reports a stored payload that could not be decoded.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llmcache: decode stored payload: %s: %v", e.Reason, e.Err)
	}
	return "llmcache: decode stored payload: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProviderError wraps a failed provider invocation, including timeouts.
type ProviderError struct {
	Kind Kind
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s provider call failed", e.Kind)
	}
	return e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }
