package service

import (
	"context"
	"testing"

	"storefront-service/internal/models"
	"storefront-service/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fallbackOrder writes an order while the provider is down and returns the unverified event
func fallbackOrder(t *testing.T, env *testEnv, intentID string, amountCents int64) *models.OrderUnverifiedEvent {
	t.Helper()
	env.provider.SetUnavailable(true)
	_, err := env.gateway.PersistOrder(context.Background(), intentID, testDraft(newGuest(), amountCents))
	require.NoError(t, err)
	env.provider.SetUnavailable(false)
	require.NotEmpty(t, env.publisher.unverified)
	return env.publisher.unverified[len(env.publisher.unverified)-1]
}

func TestReconcilerVerifiesPaidIntent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	intentID := succeededIntent(t, env, 5299)
	event := fallbackOrder(t, env, intentID, 5299)

	require.NoError(t, env.reconciler.HandleOrderUnverified(ctx, event))

	order, err := env.orders.GetOrderByID(ctx, event.OrderID)
	require.NoError(t, err)
	assert.True(t, order.Verified)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	require.Len(t, env.publisher.reconciled, 1)
	assert.Equal(t, models.EventTypeOrderVerified, env.publisher.reconciled[0].EventType)

	require.NoError(t, env.reconciler.HandleOrderUnverified(ctx, event))
	assert.Len(t, env.publisher.reconciled, 1)
}

func TestReconcilerFlagsUnpaidIntent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in, err := env.provider.CreateIntent(ctx, payment.CreateParams{AmountCents: 5299, Currency: "usd"})
	require.NoError(t, err)
	event := fallbackOrder(t, env, in.ID, 5299)

	require.NoError(t, env.reconciler.HandleOrderUnverified(ctx, event))

	order, err := env.orders.GetOrderByID(ctx, event.OrderID)
	require.NoError(t, err)
	assert.False(t, order.Verified)
	assert.Equal(t, models.OrderStatusPaymentReview, order.Status)
	require.Len(t, env.publisher.reconciled, 1)
	assert.Equal(t, models.EventTypeOrderFlagged, env.publisher.reconciled[0].EventType)
	assert.Equal(t, payment.StatusRequiresPaymentMethod, env.publisher.reconciled[0].IntentStatus)
}

func TestReconcilerDefersWhileProviderDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	intentID := succeededIntent(t, env, 5299)
	event := fallbackOrder(t, env, intentID, 5299)

	env.provider.SetUnavailable(true)
	err := env.reconciler.HandleOrderUnverified(ctx, event)
	assert.True(t, payment.IsUnavailable(err))

	processed, err := env.orders.IsEventProcessed(ctx, event.EventID)
	require.NoError(t, err)
	assert.False(t, processed)

	env.provider.SetUnavailable(false)
	require.NoError(t, env.reconciler.HandleOrderUnverified(ctx, event))
	order, err := env.orders.GetOrderByID(ctx, event.OrderID)
	require.NoError(t, err)
	assert.True(t, order.Verified)
}
