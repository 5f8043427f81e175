package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerSettings tune the provider circuit breaker
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// BreakerProvider wraps a Provider so that an unreachable provider fails fast.
// Only outages count as failures; declines and missing intents do not trip it.
type BreakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[*Intent]
}

func WithBreaker(next Provider, name string, settings BreakerSettings, logger *zap.Logger) *BreakerProvider {
	cb := gobreaker.NewCircuitBreaker[*Intent](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsUnavailable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Payment provider breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &BreakerProvider{next: next, cb: cb}
}

// Unwrap returns the wrapped provider
func (b *BreakerProvider) Unwrap() Provider {
	return b.next
}

// State reports the breaker state
func (b *BreakerProvider) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerProvider) CreateIntent(ctx context.Context, params CreateParams) (*Intent, error) {
	return b.execute(func() (*Intent, error) { return b.next.CreateIntent(ctx, params) })
}

func (b *BreakerProvider) ConfirmIntent(ctx context.Context, intentID, paymentMethod string, billing BillingDetails) (*Intent, error) {
	return b.execute(func() (*Intent, error) {
		return b.next.ConfirmIntent(ctx, intentID, paymentMethod, billing)
	})
}

func (b *BreakerProvider) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	return b.execute(func() (*Intent, error) { return b.next.GetIntent(ctx, intentID) })
}

func (b *BreakerProvider) execute(fn func() (*Intent, error)) (*Intent, error) {
	in, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return in, err
}
