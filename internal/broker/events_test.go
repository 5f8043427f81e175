package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"storefront-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestHandleMessageRoutesOrderUnverified(t *testing.T) {
	h := NewEventHandler()
	var got *models.OrderUnverifiedEvent
	h.OnOrderUnverified(func(_ context.Context, e *models.OrderUnverifiedEvent) error {
		got = e
		return nil
	})

	event := &models.OrderUnverifiedEvent{
		BaseEvent:       models.NewBaseEvent(models.EventTypeOrderUnverified),
		OrderID:         "o-1",
		PaymentIntentID: "pi_1",
		AmountCents:     5299,
	}
	require.NoError(t, h.HandleMessage(context.Background(), message(t, event)))
	require.NotNil(t, got)
	assert.Equal(t, "o-1", got.OrderID)
	assert.Equal(t, int64(5299), got.AmountCents)
	assert.Equal(t, event.EventID, got.EventID)
}

func TestHandleMessagePropagatesHandlerError(t *testing.T) {
	h := NewEventHandler()
	boom := errors.New("provider down")
	h.OnOrderUnverified(func(context.Context, *models.OrderUnverifiedEvent) error { return boom })

	event := &models.OrderUnverifiedEvent{BaseEvent: models.NewBaseEvent(models.EventTypeOrderUnverified)}
	assert.ErrorIs(t, h.HandleMessage(context.Background(), message(t, event)), boom)
}

func TestHandleMessageSkipsOtherEvents(t *testing.T) {
	h := NewEventHandler()
	called := false
	h.OnOrderUnverified(func(context.Context, *models.OrderUnverifiedEvent) error {
		called = true
		return nil
	})

	paid := &models.OrderPaidEvent{BaseEvent: models.NewBaseEvent(models.EventTypeOrderPaid), OrderID: "o-1"}
	require.NoError(t, h.HandleMessage(context.Background(), message(t, paid)))
	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.False(t, called)
}

func TestOrderKey(t *testing.T) {
	assert.Equal(t, "order-o-1", orderKey("o-1"))
}
