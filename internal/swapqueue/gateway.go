package swapqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/walltrack/engine/internal/apperr"
	"github.com/walltrack/engine/pkg/models"
)

// QuoteResult is the outcome of a successful swap against the gateway.
type QuoteResult struct {
	TxSignature string
	FillPrice   decimal.Decimal
}

// Gateway talks to the external swap gateway: quote(input, output, amount)
// then swap(quote, slippage). A simulated no-op
// implementation fills synthetically in simulation mode.
type Gateway interface {
	Execute(ctx context.Context, order models.Order) (QuoteResult, error)
}

// breakerGateway wraps a Gateway in a gobreaker.CircuitBreaker so repeated
// gateway failures open a breaker around *this* client, independent of the
// capital-protection breaker's
// capital-level circuit breaker — a narrower resilience concern protecting
// the queue worker from hammering a degraded gateway, the same way
// sawpanic-cryptorun wraps its exchange API client.
type breakerGateway struct {
	inner Gateway
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerGateway(inner Gateway) Gateway {
	settings := gobreaker.Settings{
		Name:        "swap-gateway",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &breakerGateway{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerGateway) Execute(ctx context.Context, order models.Order) (QuoteResult, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Execute(ctx, order)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return QuoteResult{}, fmt.Errorf("%w: gateway breaker open: %v", apperr.ErrGatewayFailure, err)
		}
		return QuoteResult{}, err
	}
	return res.(QuoteResult), nil
}

// SimulationGateway fills orders synthetically at the order's observed
// price without contacting the real gateway, for dry-run simulation mode.
type SimulationGateway struct{}

func (SimulationGateway) Execute(ctx context.Context, order models.Order) (QuoteResult, error) {
	return QuoteResult{TxSignature: "sim-" + order.ID, FillPrice: decimal.Zero}, nil
}
