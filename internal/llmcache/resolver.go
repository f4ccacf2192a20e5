package llmcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/af-corp/llmcache/internal/httputil"
	"github.com/af-corp/llmcache/internal/telemetry"
)

// DefaultTTL is how long a stored result stays valid.
const DefaultTTL = 24 * time.Hour

// Store is the shared key-value store behind the cache. Get returns
// ErrCacheMiss for absent or expired keys; transport failures should wrap
// ErrStoreUnavailable. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// InvokeFunc calls the provider for one request.
type InvokeFunc func(ctx context.Context) (json.RawMessage, error)

type Options struct {
	Store   Store
	Codec   *Codec
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	// Backend labels store metrics, e.g. "redis".
	Backend string
	// Coalesce merges concurrent misses for the same key into one provider call
	// within this process.
	Coalesce bool
}

// Resolver runs the cache-aside protocol for one request at a time; it holds no
// per-request state and is safe for concurrent use.
type Resolver struct {
	store   Store
	codec   *Codec
	ttl     time.Duration
	logger  *slog.Logger
	metrics *telemetry.Metrics
	backend string
	group   *singleflight.Group
}

func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		store:   opts.Store,
		codec:   opts.Codec,
		ttl:     opts.TTL,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		backend: opts.Backend,
	}
	if r.codec == nil {
		r.codec = NewCodec(CodecOptions{})
	}
	if r.ttl <= 0 {
		r.ttl = DefaultTTL
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.backend == "" {
		r.backend = "unknown"
	}
	if opts.Coalesce {
		r.group = &singleflight.Group{}
	}
	return r
}

// Resolve returns the cached result for req or obtains a fresh one from
// invoke. With cacheEnabled false the store is neither read nor written. A ttl
// of zero or less uses the resolver default.
//
// Store failures never fail the request. Provider failures are returned as
// *ProviderError and nothing is stored.
func (r *Resolver) Resolve(ctx context.Context, req Request, cacheEnabled bool, invoke InvokeFunc, ttl time.Duration) (Envelope, error) {
	kind := req.Kind()
	if !cacheEnabled {
		result, err := r.invoke(ctx, kind, invoke)
		if err != nil {
			r.recordLookup(kind, telemetry.OutcomeError)
			return Envelope{}, err
		}
		r.recordLookup(kind, telemetry.OutcomeBypass)
		return fresh(result), nil
	}

	key, err := Key(req)
	if err != nil {
		r.recordLookup(kind, telemetry.OutcomeError)
		return Envelope{}, err
	}
	if ttl <= 0 {
		ttl = r.ttl
	}
	logger := r.requestLogger(ctx, kind).With("cache_key", key)

	result, ok, err := r.lookup(ctx, kind, key, logger)
	if err != nil {
		r.recordLookup(kind, telemetry.OutcomeError)
		return Envelope{}, err
	}
	if ok {
		r.recordLookup(kind, telemetry.OutcomeHit)
		logger.Debug("cache hit")
		return hit(result), nil
	}

	var env Envelope
	if r.group != nil {
		env, err = r.fillCoalesced(ctx, kind, key, invoke, ttl, logger)
	} else {
		env, err = r.fill(ctx, kind, key, invoke, ttl, logger)
	}
	if err != nil {
		r.recordLookup(kind, telemetry.OutcomeError)
		return Envelope{}, err
	}
	r.recordLookup(kind, telemetry.OutcomeMiss)
	return env, nil
}

// lookup reads and decodes key. Store and decode failures are reported as a
// miss; only cancellation of ctx is returned as an error.
func (r *Resolver) lookup(ctx context.Context, kind Kind, key string, logger *slog.Logger) (json.RawMessage, bool, error) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		if !errors.Is(err, ErrCacheMiss) {
			logger.Warn("cache read failed, treating as miss", "error", err, "backend", r.backend)
			if r.metrics != nil {
				r.metrics.RecordStoreError(r.backend, "get")
			}
		}
		return nil, false, nil
	}

	result, err := r.codec.Decode(data)
	if err != nil {
		logger.Warn("cached entry undecodable, treating as miss", "error", err, "size", len(data))
		if r.metrics != nil {
			r.metrics.RecordDecodeError(string(kind))
		}
		return nil, false, nil
	}
	return result, true, nil
}

// fill invokes the provider and stores its result under key.
func (r *Resolver) fill(ctx context.Context, kind Kind, key string, invoke InvokeFunc, ttl time.Duration, logger *slog.Logger) (Envelope, error) {
	result, err := r.invoke(ctx, kind, invoke)
	if err != nil {
		return Envelope{}, err
	}
	// The caller is gone; do not write a result nobody asked to keep.
	if err := ctx.Err(); err != nil {
		return Envelope{}, err
	}
	r.write(ctx, kind, key, result, ttl, logger)
	return fresh(result), nil
}

// fillCoalesced shares one fill among concurrent callers for the same key.
// When the shared call fails, callers that did not run it fall back to their
// own uncached provider call.
func (r *Resolver) fillCoalesced(ctx context.Context, kind Kind, key string, invoke InvokeFunc, ttl time.Duration, logger *slog.Logger) (Envelope, error) {
	led := false
	ch := r.group.DoChan(key, func() (any, error) {
		led = true
		env, err := r.fill(ctx, kind, key, invoke, ttl, logger)
		return env.Result, err
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			return fresh(res.Val.(json.RawMessage)), nil
		}
		if led {
			return Envelope{}, res.Err
		}
		logger.Warn("shared provider call failed, calling provider directly", "error", res.Err)
		result, err := r.invoke(ctx, kind, invoke)
		if err != nil {
			return Envelope{}, err
		}
		return fresh(result), nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (r *Resolver) invoke(ctx context.Context, kind Kind, invoke InvokeFunc) (json.RawMessage, error) {
	start := time.Now()
	result, err := invoke(ctx)
	if r.metrics != nil {
		r.metrics.RecordProviderCall(string(kind), float64(time.Since(start).Milliseconds()), err)
	}
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, &ProviderError{Kind: kind, Err: err}
	}
	return result, nil
}

// write stores result. Failures are logged and counted only: the caller
// already has the result it needs.
func (r *Resolver) write(ctx context.Context, kind Kind, key string, result json.RawMessage, ttl time.Duration, logger *slog.Logger) {
	data, err := r.codec.Encode(result)
	if err != nil {
		logger.Warn("provider result not cacheable", "error", err)
		return
	}
	if err := r.store.Set(ctx, key, data, ttl); err != nil {
		logger.Warn("cache write failed", "error", err, "backend", r.backend)
		if r.metrics != nil {
			r.metrics.RecordStoreError(r.backend, "set")
		}
		return
	}
	if r.metrics != nil {
		r.metrics.RecordStored(string(kind), len(data))
	}
}

// requestLogger tags log lines with the request kind and, when the caller came
// through the HTTP middleware, its request ID.
func (r *Resolver) requestLogger(ctx context.Context, kind Kind) *slog.Logger {
	logger := r.logger.With("kind", string(kind))
	if id := httputil.RequestIDFromContext(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	return logger
}

func (r *Resolver) recordLookup(kind Kind, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordLookup(string(kind), outcome)
	}
}
