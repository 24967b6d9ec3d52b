package storage

import (
	"context"

	"github.com/GriffinCanCode/codelive/internal/infrastructure/resilience"
)

// Guarded routes writes through a circuit breaker. Once the backend keeps
// failing (a full disk, a locked database) saves fail fast until the
// breaker's timeout passes. Reads pass straight through.
type Guarded struct {
	Backend
	breaker *resilience.Breaker
}

// Guard wraps b with breaker
func Guard(b Backend, breaker *resilience.Breaker) *Guarded {
	return &Guarded{Backend: b, breaker: breaker}
}

// Put stores value under key unless the breaker is open
func (g *Guarded) Put(ctx context.Context, key string, value []byte) error {
	return g.breaker.Do(func() error {
		return g.Backend.Put(ctx, key, value)
	})
}

// Delete removes key unless the breaker is open
func (g *Guarded) Delete(ctx context.Context, key string) error {
	return g.breaker.Do(func() error {
		return g.Backend.Delete(ctx, key)
	})
}

// State reports the breaker state
func (g *Guarded) State() resilience.State {
	return g.breaker.State()
}
