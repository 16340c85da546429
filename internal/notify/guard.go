package notify

import (
	"context"

	"crypto-trader/internal/resilience"
)

// guardedChannel retries a remote channel with backoff and stops calling
// it while its circuit is open, so an unreachable endpoint does not stall
// every watch tick.
type guardedChannel struct {
	Channel
	breaker *resilience.CircuitBreaker
	retry   resilience.Retry
}

// Guard wraps ch with a circuit breaker and retry policy.
func Guard(ch Channel, breaker resilience.CircuitBreakerConfig, retry resilience.Retry) Channel {
	return &guardedChannel{
		Channel: ch,
		breaker: resilience.NewCircuitBreaker(ch.Name(), breaker),
		retry:   retry,
	}
}

func (g *guardedChannel) Send(ctx context.Context, n Notification) error {
	return g.retry.Execute(ctx, func(ctx context.Context) error {
		return g.breaker.Execute(ctx, func(ctx context.Context) error {
			return g.Channel.Send(ctx, n)
		})
	})
}

// Stats returns the channel's circuit breaker statistics.
func (g *guardedChannel) Stats() resilience.CircuitBreakerStats {
	return g.breaker.Stats()
}
