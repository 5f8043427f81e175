package worker

import (
	"context"
	"errors"
	"testing"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/payment"

	"github.com/stretchr/testify/assert"
)

func TestRetryOutagesMarksProviderOutages(t *testing.T) {
	down := retryOutages(func(context.Context, *models.OrderUnverifiedEvent) error {
		return payment.ErrProviderUnavailable
	})
	err := down(context.Background(), &models.OrderUnverifiedEvent{})
	assert.ErrorIs(t, err, broker.ErrRetryLater)
	assert.ErrorIs(t, err, payment.ErrProviderUnavailable)

	boom := errors.New("db down")
	other := retryOutages(func(context.Context, *models.OrderUnverifiedEvent) error { return boom })
	err = other(context.Background(), &models.OrderUnverifiedEvent{})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, broker.ErrRetryLater)

	ok := retryOutages(func(context.Context, *models.OrderUnverifiedEvent) error { return nil })
	assert.NoError(t, ok(context.Background(), &models.OrderUnverifiedEvent{}))
}
