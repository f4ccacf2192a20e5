package provider

import (
	"sync"
	"time"
)

// Breakers holds one circuit breaker per upstream model.
type Breakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

func NewBreakers(failureThreshold int, recoveryProbeInterval time.Duration) *Breakers {
	return &Breakers{
		breakers:              make(map[string]*CircuitBreaker),
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
	}
}

// Get returns (or lazily creates) the breaker for model.
func (b *Breakers) Get(model string) *CircuitBreaker {
	b.mu.RLock()
	cb, ok := b.breakers[model]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[model]; ok {
		return cb
	}
	cb = NewCircuitBreaker(b.failureThreshold, b.recoveryProbeInterval)
	b.breakers[model] = cb
	return cb
}

// States reports the state of every breaker created so far.
func (b *Breakers) States() map[string]CircuitState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]CircuitState, len(b.breakers))
	for model, cb := range b.breakers {
		out[model] = cb.State()
	}
	return out
}
