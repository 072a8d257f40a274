package llm

import (
	"context"
	"log/slog"
	"time"

	"voxgit/internal/observe"
	"voxgit/internal/resilience"
)

// Guarded wraps a Provider with a circuit breaker, latency metrics and a
// debug log of every call.
type Guarded struct {
	next    Provider
	cb      *resilience.CircuitBreaker
	metrics *observe.Metrics
	log     *slog.Logger
}

func NewGuarded(next Provider, cb *resilience.CircuitBreaker, metrics *observe.Metrics, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, cb: cb, metrics: metrics, log: logger}
}

func (g *Guarded) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()

	var out string
	call := func() error {
		var err error
		out, err = g.next.Complete(ctx, req)
		return err
	}

	var err error
	if g.cb != nil {
		err = g.cb.Execute(call)
	} else {
		err = call()
	}

	elapsed := time.Since(start)
	g.metrics.RecordLLM(ctx, req.Purpose, elapsed, err)
	g.log.Debug("llm completion", "purpose", req.Purpose, "took", elapsed, "err", err)

	if err != nil {
		return "", err
	}
	return out, nil
}
