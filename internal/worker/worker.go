package worker

import (
	"context"
	"fmt"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/payment"
	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

const maxHandleAttempts = 5

// ReconcileWorker consumes order events and re-verifies orders written
// while the payment provider was unreachable.
type ReconcileWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(consumer *broker.Consumer, reconciler *service.Reconciler) *ReconcileWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderUnverified(retryOutages(reconciler.HandleOrderUnverified))

	return &ReconcileWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconcile worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage, maxHandleAttempts)
}

// Stop stops the worker
func (w *ReconcileWorker) Stop() error {
	w.logger.Info("Stopping reconcile worker")
	return w.consumer.Close()
}

// retryOutages keeps an event on the partition while the payment provider is
// unreachable, so an unverified order is never skipped.
func retryOutages(fn func(context.Context, *models.OrderUnverifiedEvent) error) func(context.Context, *models.OrderUnverifiedEvent) error {
	return func(ctx context.Context, event *models.OrderUnverifiedEvent) error {
		err := fn(ctx, event)
		if payment.IsUnavailable(err) {
			return fmt.Errorf("%w: %w", broker.ErrRetryLater, err)
		}
		return err
	}
}
