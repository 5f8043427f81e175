package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"storefront-service/internal/models"
	"storefront-service/internal/payment"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderGateway writes exactly one order per succeeded payment intent.
// verifier should be wrapped in a circuit breaker; when it reports the
// provider unavailable the order is written unverified for later reconciliation.
type OrderGateway struct {
	orders    OrderStore
	verifier  payment.Provider
	publisher EventPublisher
	logger    *zap.Logger
}

// NewOrderGateway creates a new order gateway
func NewOrderGateway(orders OrderStore, verifier payment.Provider, publisher EventPublisher) *OrderGateway {
	return &OrderGateway{
		orders:    orders,
		verifier:  verifier,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// PersistOrder verifies intentID with the provider and writes the order and
// its payment record. A second call for the same intent returns the first order.
func (g *OrderGateway) PersistOrder(ctx context.Context, intentID string, draft *models.OrderDraft) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderGateway.PersistOrder")
	defer span.End()

	existing, err := g.orders.GetOrderByPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to check existing order: %w", err))
	}
	if existing != nil {
		g.logger.Info("Order already exists for payment intent",
			zap.String("payment_intent_id", intentID),
			zap.String("order_id", existing.ID))
		return existing, nil
	}

	source := models.OrderSourceVerified
	intent, err := g.verifier.GetIntent(ctx, intentID)
	switch {
	case payment.IsUnavailable(err):
		g.logger.Warn("Payment provider unavailable, writing unverified order",
			zap.String("payment_intent_id", intentID),
			zap.Error(err))
		source = models.OrderSourceFallback
	case errors.Is(err, payment.ErrIntentNotFound):
		util.OrdersFailedTotal.WithLabelValues("not_verified").Inc()
		return nil, util.RecordError(span, fmt.Errorf("%w: %v", ErrPaymentNotVerified, err))
	case err != nil:
		util.OrdersFailedTotal.WithLabelValues("verify_error").Inc()
		return nil, util.RecordError(span, fmt.Errorf("failed to verify payment intent: %w", err))
	case intent.Status != payment.StatusSucceeded:
		util.OrdersFailedTotal.WithLabelValues("not_verified").Inc()
		return nil, util.RecordError(span, fmt.Errorf("%w: status %s", ErrPaymentNotVerified, intent.Status))
	case intent.Amount != draft.AmountCents:
		util.OrdersFailedTotal.WithLabelValues("amount_mismatch").Inc()
		g.logger.Error("Authorized amount differs from order total",
			zap.String("payment_intent_id", intentID),
			zap.Int64("authorized", intent.Amount),
			zap.Int64("expected", draft.AmountCents))
		return nil, util.RecordError(span, ErrAmountMismatch)
	}

	order, record := buildOrder(intentID, draft, source, intent)
	created, err := g.orders.CreateOrderWithPayment(ctx, order, record)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, util.RecordError(span, fmt.Errorf("failed to create order: %w", err))
	}
	if !created {
		return order, nil
	}

	util.OrdersCreatedTotal.WithLabelValues(source).Inc()
	g.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("payment_intent_id", intentID),
		zap.String("source", source))

	g.publish(ctx, order)
	return order, nil
}

func (g *OrderGateway) publish(ctx context.Context, order *models.Order) {
	paid := &models.OrderPaidEvent{
		BaseEvent:       models.NewBaseEvent(models.EventTypeOrderPaid),
		OrderID:         order.ID,
		UserID:          order.UserID,
		PaymentIntentID: order.PaymentIntentID,
		TotalAmount:     order.TotalAmount,
		Currency:        order.Currency,
		Verified:        order.Verified,
		ItemCount:       len(order.Items),
	}
	if err := g.publisher.PublishOrderPaid(ctx, paid); err != nil {
		g.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}

	if order.Verified {
		return
	}
	unverified := &models.OrderUnverifiedEvent{
		BaseEvent:       models.NewBaseEvent(models.EventTypeOrderUnverified),
		OrderID:         order.ID,
		PaymentIntentID: order.PaymentIntentID,
		AmountCents:     payment.ToCents(order.TotalAmount),
	}
	if err := g.publisher.PublishOrderUnverified(ctx, unverified); err != nil {
		g.logger.Error("Failed to publish OrderUnverified event", zap.Error(err))
	}
}

func buildOrder(intentID string, draft *models.OrderDraft, source string, intent *payment.Intent) (*models.Order, *models.Payment) {
	var guestEmail *string
	if draft.Principal.IsGuest() {
		email := draft.Customer.Email
		guestEmail = &email
	}

	order := &models.Order{
		ID:              uuid.New().String(),
		UserID:          draft.Principal.ID,
		PrincipalKind:   draft.Principal.Kind,
		GuestEmail:      guestEmail,
		PaymentIntentID: intentID,
		Subtotal:        draft.Subtotal,
		ShippingCost:    draft.Shipping.Price,
		TotalAmount:     draft.Total,
		Currency:        draft.Currency,
		Items:           models.OrderItems(draft.Items),
		ShippingDetails: draft.Customer,
		ShippingOption:  draft.Shipping,
		Status:          models.OrderStatusPaid,
		Verified:        source == models.OrderSourceVerified,
		Source:          source,
	}

	snapshot := models.GatewayResponse{
		"paymentIntentId": intentID,
		"amountCents":     strconv.FormatInt(draft.AmountCents, 10),
		"source":          source,
	}
	if intent != nil {
		snapshot["status"] = intent.Status
		snapshot["paymentMethod"] = intent.PaymentMethod
	}

	record := &models.Payment{
		ID:              uuid.New().String(),
		OrderID:         order.ID,
		UserID:          order.UserID,
		GuestEmail:      guestEmail,
		TransactionID:   intentID,
		Amount:          draft.Total,
		Currency:        draft.Currency,
		Method:          "card",
		Status:          models.PaymentStatusCompleted,
		GatewayResponse: snapshot,
	}
	return order, record
}

// ListOrders returns the user's orders, newest first
func (g *OrderGateway) ListOrders(ctx context.Context, p models.Principal) ([]models.Order, error) {
	if p.IsGuest() {
		return nil, ErrGuestOrderHistory
	}
	return g.orders.ListOrdersByUser(ctx, p.ID)
}

// GetOrder returns an order owned by p
func (g *OrderGateway) GetOrder(ctx context.Context, p models.Principal, id string) (*models.Order, error) {
	order, err := g.orders.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.UserID != p.ID || order.PrincipalKind != p.Kind {
		return nil, ErrOrderNotFound
	}
	return order, nil
}
