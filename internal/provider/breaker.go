package provider

import (
	"context"
	"errors"

	"dwiju-assistant/backend/pkg/logger"
	"dwiju-assistant/backend/pkg/resilience"
)

// Guarded stops calling a provider that keeps failing. While the circuit is
// open calls fail fast with KindUnavailable.
type Guarded struct {
	next    Completer
	breaker *resilience.CircuitBreaker
}

// NewGuarded wraps next. cfg.IsFailure is replaced: only unavailability and
// timeouts count against the provider.
func NewGuarded(next Completer, cfg resilience.Config, log *logger.Logger) *Guarded {
	cfg.IsFailure = countsAgainstProvider
	return &Guarded{next: next, breaker: resilience.NewCircuitBreaker(cfg, log)}
}

// Breaker exposes the circuit for health reporting.
func (g *Guarded) Breaker() *resilience.CircuitBreaker { return g.breaker }

// Complete implements Completer.
func (g *Guarded) Complete(ctx context.Context, req Request) (*Completion, error) {
	var out *Completion
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.next.Complete(ctx, req)
		return err
	})
	if errors.Is(err, resilience.ErrOpen) {
		return nil, &Error{Kind: KindUnavailable, Err: err}
	}
	return out, err
}

func countsAgainstProvider(err error) bool {
	pe, ok := AsError(err)
	if !ok {
		return false
	}
	return pe.Kind == KindUnavailable || pe.Kind == KindTimeout
}
