package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/payment"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

const (
	msgPaymentFailed       = "Payment failed. Please try again."
	msgPaymentNotCompleted = "Payment not completed. Please try again."
)

// PaymentCoordinator creates and confirms payment intents for a checkout
// session and hands succeeded payments to the OrderGateway.
type PaymentCoordinator struct {
	checkout       *CheckoutService
	provider       payment.Provider
	gateway        *OrderGateway
	locker         Locker
	confirmLockTTL time.Duration
	draftTTL       time.Duration
	logger         *zap.Logger
}

func NewPaymentCoordinator(checkout *CheckoutService, provider payment.Provider, gateway *OrderGateway, locker Locker, confirmLockTTL, draftTTL time.Duration) *PaymentCoordinator {
	return &PaymentCoordinator{
		checkout:       checkout,
		provider:       provider,
		gateway:        gateway,
		locker:         locker,
		confirmLockTTL: confirmLockTTL,
		draftTTL:       draftTTL,
		logger:         util.GetLogger(),
	}
}

// IntentResult is what the client needs to collect card details
type IntentResult struct {
	IntentID     string                `json:"paymentIntentId"`
	ClientSecret string                `json:"clientSecret"`
	Quote        *models.CheckoutQuote `json:"quote"`
	Reused       bool                  `json:"reused"`
}

// ConfirmResult reports a succeeded payment. OrderPending means the payment
// went through but the order is still to be written.
type ConfirmResult struct {
	Status       string        `json:"status"`
	Order        *models.Order `json:"order,omitempty"`
	OrderPending bool          `json:"orderPending"`
}

// CreateIntent prepares an intent for the current quote. The session's intent
// is reused while amount and tier are unchanged; its draft is rewritten either
// way so the webhook sees the latest customer details and items.
func (c *PaymentCoordinator) CreateIntent(ctx context.Context, p models.Principal) (*IntentResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentCoordinator.CreateIntent")
	defer span.End()

	session, err := c.checkout.paymentSession(ctx, p)
	if err != nil {
		return nil, err
	}
	quote, err := c.checkout.quote(ctx, p, session.ShippingTier)
	if err != nil {
		return nil, err
	}
	if quote.AmountCents <= 0 {
		return nil, payment.ErrInvalidAmount
	}

	if h := session.Intent; h != nil && h.AmountCents == quote.AmountCents && h.ShippingTier == session.ShippingTier {
		if err := c.checkout.sessions.SaveOrderDraft(ctx, h.ID, newDraft(p, session, quote), c.draftTTL); err != nil {
			return nil, util.RecordError(span, fmt.Errorf("failed to store order draft: %w", err))
		}
		return &IntentResult{IntentID: h.ID, ClientSecret: h.ClientSecret, Quote: quote, Reused: true}, nil
	}

	intent, err := c.provider.CreateIntent(ctx, payment.CreateParams{
		AmountCents:  quote.AmountCents,
		Currency:     quote.Currency,
		ReceiptEmail: session.Customer.Email,
		Metadata: map[string]string{
			"principal":     p.Key(),
			"shipping_tier": session.ShippingTier,
		},
	})
	if err != nil {
		c.logger.Error("Failed to create payment intent", zap.String("principal", p.Key()), zap.Error(err))
		return nil, util.RecordError(span, err)
	}
	util.PaymentIntentsCreatedTotal.Inc()

	draft := newDraft(p, session, quote)
	if err := c.checkout.sessions.SaveOrderDraft(ctx, intent.ID, draft, c.draftTTL); err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to store order draft: %w", err))
	}

	session.Intent = &models.IntentHandle{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  quote.AmountCents,
		Currency:     quote.Currency,
		ShippingTier: session.ShippingTier,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.checkout.save(ctx, session); err != nil {
		return nil, util.RecordError(span, err)
	}

	c.logger.Info("Payment intent created",
		zap.String("principal", p.Key()),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount_cents", quote.AmountCents))

	return &IntentResult{IntentID: intent.ID, ClientSecret: intent.ClientSecret, Quote: quote}, nil
}

// Confirm charges the prepared intent with paymentMethod
func (c *PaymentCoordinator) Confirm(ctx context.Context, p models.Principal, paymentMethod string) (*ConfirmResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentCoordinator.Confirm")
	defer span.End()

	session, err := c.checkout.paymentSession(ctx, p)
	if err != nil {
		return nil, err
	}
	if session.Intent == nil {
		return nil, ErrNoPaymentIntent
	}
	intentID := session.Intent.ID

	lockKey := "confirm:" + intentID
	token, ok, err := c.locker.AcquireLock(ctx, lockKey, c.confirmLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire confirm lock: %w", err)
	}
	if !ok {
		return nil, ErrConfirmInProgress
	}
	defer func() {
		if err := c.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			c.logger.Warn("Failed to release confirm lock", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	// a confirm that finished while we waited already wrote the order
	existing, err := c.gateway.orders.GetOrderByPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing order: %w", err)
	}
	if existing != nil {
		return &ConfirmResult{Status: payment.StatusSucceeded, Order: existing}, nil
	}

	quote, err := c.checkout.quote(ctx, p, session.ShippingTier)
	if err != nil {
		return nil, err
	}
	if quote.AmountCents != session.Intent.AmountCents {
		session.Intent = nil
		if err := c.checkout.save(ctx, session); err != nil {
			return nil, err
		}
		c.logger.Info("Discarded payment intent after total changed",
			zap.String("payment_intent_id", intentID),
			zap.Int64("amount_cents", quote.AmountCents))
		return nil, ErrAmountChanged
	}

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	intent, err := c.provider.ConfirmIntent(ctx, intentID, paymentMethod, billingDetails(session.Customer))
	util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		var cardErr *payment.CardError
		if errors.As(err, &cardErr) {
			util.PaymentFailedTotal.WithLabelValues("declined").Inc()
			c.logger.Info("Card declined",
				zap.String("payment_intent_id", intentID),
				zap.String("code", cardErr.Code),
				zap.String("decline_code", cardErr.DeclineCode))
			return nil, &PaymentError{Message: cardErr.Message, Status: "declined", Err: err}
		}
		util.PaymentFailedTotal.WithLabelValues("error").Inc()
		c.logger.Error("Payment confirmation failed", zap.String("payment_intent_id", intentID), zap.Error(err))
		return nil, util.RecordError(span, &PaymentError{Message: msgPaymentFailed, Err: err})
	}

	if intent.Status != payment.StatusSucceeded {
		util.PaymentFailedTotal.WithLabelValues(intent.Status).Inc()
		c.logger.Info("Payment not completed",
			zap.String("payment_intent_id", intentID),
			zap.String("status", intent.Status))
		return nil, &PaymentError{Message: msgPaymentNotCompleted, Status: intent.Status}
	}

	util.PaymentSuccessTotal.Inc()
	result := &ConfirmResult{Status: payment.StatusSucceeded}

	order, err := c.gateway.PersistOrder(ctx, intentID, newDraft(p, session, quote))
	if err != nil {
		c.logger.Error("Payment succeeded but order was not written",
			zap.String("payment_intent_id", intentID),
			zap.String("principal", p.Key()),
			zap.Error(err))
		result.OrderPending = true
	} else {
		result.Order = order
	}

	c.finish(ctx, p)
	return result, nil
}

// HandleIntentSucceeded writes the order for an intent reported by the
// provider. It is safe to call for intents that Confirm already handled.
func (c *PaymentCoordinator) HandleIntentSucceeded(ctx context.Context, intentID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentCoordinator.HandleIntentSucceeded")
	defer span.End()

	draft, err := c.checkout.sessions.GetOrderDraft(ctx, intentID)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to load order draft: %w", err))
	}
	if draft == nil {
		existing, err := c.gateway.orders.GetOrderByPaymentIntent(ctx, intentID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		return nil, ErrDraftNotFound
	}

	order, err := c.gateway.PersistOrder(ctx, intentID, draft)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	// the client confirmed directly with the provider; checkout is still open
	session, err := c.checkout.sessions.GetCheckoutSession(ctx, draft.Principal.Key())
	if err == nil && session != nil && session.Intent != nil && session.Intent.ID == intentID {
		c.finish(ctx, draft.Principal)
	}
	return order, nil
}

// finish clears the cart and ends checkout after a succeeded payment
func (c *PaymentCoordinator) finish(ctx context.Context, p models.Principal) {
	if _, err := c.checkout.carts.Clear(ctx, p); err != nil {
		c.logger.Error("Failed to clear cart after payment", zap.String("principal", p.Key()), zap.Error(err))
	}
	if err := c.checkout.sessions.DeleteCheckoutSession(ctx, p.Key()); err != nil {
		c.logger.Error("Failed to delete checkout session", zap.String("principal", p.Key()), zap.Error(err))
	}
}

func newDraft(p models.Principal, session *models.CheckoutSession, quote *models.CheckoutQuote) *models.OrderDraft {
	items := make([]models.CartItem, len(quote.Items))
	copy(items, quote.Items)
	return &models.OrderDraft{
		Principal:   p,
		Items:       items,
		Subtotal:    quote.Subtotal,
		Shipping:    quote.Shipping,
		Total:       quote.Total,
		AmountCents: quote.AmountCents,
		Currency:    quote.Currency,
		Customer:    session.Customer,
		CreatedAt:   time.Now().UTC(),
	}
}

func billingDetails(info models.CustomerInfo) payment.BillingDetails {
	return payment.BillingDetails{
		Name:       info.Name,
		Email:      info.Email,
		Phone:      info.Phone,
		Line1:      info.Address,
		City:       info.City,
		State:      info.State,
		PostalCode: info.ZipCode,
	}
}
