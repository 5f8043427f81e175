package service

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/internal/models"
	"storefront-service/internal/payment"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// Reconciler re-checks orders written on the fallback path once the
// provider is reachable again.
type Reconciler struct {
	orders    OrderStore
	verifier  payment.Provider
	publisher EventPublisher
	logger    *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(orders OrderStore, verifier payment.Provider, publisher EventPublisher) *Reconciler {
	return &Reconciler{
		orders:    orders,
		verifier:  verifier,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// HandleOrderUnverified verifies the order's intent. A succeeded intent for
// the right amount marks the order verified; anything else moves it to review.
// Provider outages are returned so the message is not committed.
func (r *Reconciler) HandleOrderUnverified(ctx context.Context, event *models.OrderUnverifiedEvent) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleOrderUnverified")
	defer span.End()

	processed, err := r.orders.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		r.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	order, err := r.orders.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			r.logger.Warn("Unverified order not found", zap.String("order_id", event.OrderID))
			return r.markProcessed(ctx, event.BaseEvent)
		}
		return fmt.Errorf("failed to load order: %w", err)
	}
	if order.Verified {
		return r.markProcessed(ctx, event.BaseEvent)
	}

	status := ""
	intent, err := r.verifier.GetIntent(ctx, order.PaymentIntentID)
	switch {
	case payment.IsUnavailable(err):
		util.OrdersReconciledTotal.WithLabelValues("deferred").Inc()
		return util.RecordError(span, err)
	case errors.Is(err, payment.ErrIntentNotFound):
		status = "not_found"
	case err != nil:
		return util.RecordError(span, fmt.Errorf("failed to verify payment intent: %w", err))
	default:
		status = intent.Status
	}

	verified := intent != nil && intent.Status == payment.StatusSucceeded && intent.Amount == payment.ToCents(order.TotalAmount)

	reconciled := &models.OrderReconciledEvent{
		OrderID:         order.ID,
		PaymentIntentID: order.PaymentIntentID,
		IntentStatus:    status,
	}

	if verified {
		if err := r.orders.MarkOrderVerified(ctx, order.ID); err != nil {
			return fmt.Errorf("failed to mark order verified: %w", err)
		}
		util.OrdersReconciledTotal.WithLabelValues("verified").Inc()
		reconciled.BaseEvent = models.NewBaseEvent(models.EventTypeOrderVerified)
		r.logger.Info("Order verified", zap.String("order_id", order.ID))
	} else {
		if err := r.orders.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPaymentReview); err != nil {
			return fmt.Errorf("failed to flag order: %w", err)
		}
		util.OrdersReconciledTotal.WithLabelValues("flagged").Inc()
		reconciled.BaseEvent = models.NewBaseEvent(models.EventTypeOrderFlagged)
		r.logger.Warn("Order flagged for payment review",
			zap.String("order_id", order.ID),
			zap.String("intent_status", status))
	}

	if err := r.publisher.PublishOrderReconciled(ctx, reconciled); err != nil {
		r.logger.Error("Failed to publish OrderReconciled event", zap.Error(err))
	}

	return r.markProcessed(ctx, event.BaseEvent)
}

func (r *Reconciler) markProcessed(ctx context.Context, event models.BaseEvent) error {
	if err := r.orders.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		r.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
