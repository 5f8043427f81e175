package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/payment"
	"storefront-service/internal/shipping"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// CheckoutService drives the two-step checkout flow. The session lives in
// the SessionStore keyed by principal.
type CheckoutService struct {
	carts         *CartService
	sessions      SessionStore
	users         UserStore
	table         shipping.Table
	currency      string
	sessionTTL    time.Duration
	guestEmailTTL time.Duration
	logger        *zap.Logger
}

type CheckoutOptions struct {
	Table         shipping.Table
	Currency      string
	SessionTTL    time.Duration
	GuestEmailTTL time.Duration
}

func NewCheckoutService(carts *CartService, sessions SessionStore, users UserStore, opts CheckoutOptions) *CheckoutService {
	if opts.Table == nil {
		opts.Table = shipping.DefaultTable()
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	return &CheckoutService{
		carts:         carts,
		sessions:      sessions,
		users:         users,
		table:         opts.Table,
		currency:      opts.Currency,
		sessionTTL:    opts.SessionTTL,
		guestEmailTTL: opts.GuestEmailTTL,
		logger:        util.GetLogger(),
	}
}

// Begin returns the current session, creating and prefilling one if needed
func (s *CheckoutService) Begin(ctx context.Context, p models.Principal) (*models.CheckoutSession, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Begin")
	defer span.End()

	session, err := s.sessions.GetCheckoutSession(ctx, p.Key())
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to load checkout session: %w", err))
	}
	if session != nil {
		return session, nil
	}

	session = &models.CheckoutSession{
		PrincipalKey: p.Key(),
		Step:         models.StepCollectingInfo,
		Customer:     s.prefill(ctx, p),
		ShippingTier: s.table.Default().ID,
	}
	if err := s.save(ctx, session); err != nil {
		return nil, util.RecordError(span, err)
	}
	util.CheckoutTransitionsTotal.WithLabelValues(string(models.StepCollectingInfo)).Inc()
	return session, nil
}

// prefill copies what we already know about the customer. Lookup errors only lose the prefill.
func (s *CheckoutService) prefill(ctx context.Context, p models.Principal) models.CustomerInfo {
	if p.IsGuest() {
		email, err := s.sessions.GetGuestEmail(ctx, p.ID)
		if err != nil {
			s.logger.Warn("Failed to read guest email", zap.String("guest_id", p.ID), zap.Error(err))
		}
		return models.CustomerInfo{Email: email}
	}

	user, err := s.users.GetUserByID(ctx, p.ID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("Failed to read user profile", zap.String("user_id", p.ID), zap.Error(err))
		}
		return models.CustomerInfo{Email: p.Email}
	}
	return models.CustomerInfo{
		Name:    user.Name,
		Email:   user.Email,
		Address: user.Address,
		City:    user.City,
		State:   user.State,
		ZipCode: user.ZipCode,
		Phone:   user.Phone,
	}
}

// SubmitCustomerInfo validates info and advances to the payment step. An
// invalid submission leaves the session untouched.
func (s *CheckoutService) SubmitCustomerInfo(ctx context.Context, p models.Principal, info models.CustomerInfo) (*models.CheckoutSession, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.SubmitCustomerInfo")
	defer span.End()

	session, err := s.Begin(ctx, p)
	if err != nil {
		return nil, err
	}

	info = trimCustomer(info)
	if err := validateCustomer(info); err != nil {
		util.CheckoutValidationFailuresTotal.Inc()
		return nil, err
	}

	session.Customer = info
	session.Step = models.StepShippingAndPay
	if err := s.save(ctx, session); err != nil {
		return nil, util.RecordError(span, err)
	}
	util.CheckoutTransitionsTotal.WithLabelValues(string(models.StepShippingAndPay)).Inc()

	if p.IsGuest() {
		if err := s.sessions.SetGuestEmail(ctx, p.ID, info.Email, s.guestEmailTTL); err != nil {
			s.logger.Warn("Failed to cache guest email", zap.String("guest_id", p.ID), zap.Error(err))
		}
	}
	return session, nil
}

// Back returns to the info step, keeping what was entered
func (s *CheckoutService) Back(ctx context.Context, p models.Principal) (*models.CheckoutSession, error) {
	session, err := s.Begin(ctx, p)
	if err != nil {
		return nil, err
	}
	if session.Step == models.StepCollectingInfo {
		return session, nil
	}

	session.Step = models.StepCollectingInfo
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	util.CheckoutTransitionsTotal.WithLabelValues(string(models.StepCollectingInfo)).Inc()
	return session, nil
}

// ShippingOptions prices every tier for the current cart
func (s *CheckoutService) ShippingOptions(ctx context.Context, p models.Principal) ([]models.ShippingOption, error) {
	cart, err := s.carts.GetList(ctx, p, models.ListCart)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	return shipping.ComputeOptions(cart.Items, s.table), nil
}

// SelectShipping sets the tier. A different tier invalidates any prepared intent.
func (s *CheckoutService) SelectShipping(ctx context.Context, p models.Principal, tierID string) (*models.CheckoutQuote, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.SelectShipping")
	defer span.End()

	if _, ok := s.table.Lookup(tierID); !ok {
		return nil, ErrUnknownShippingTier
	}
	session, err := s.paymentSession(ctx, p)
	if err != nil {
		return nil, err
	}

	quote, err := s.quote(ctx, p, tierID)
	if err != nil {
		return nil, err
	}

	if session.ShippingTier != tierID {
		session.ShippingTier = tierID
		session.Intent = nil
		if err := s.save(ctx, session); err != nil {
			return nil, util.RecordError(span, err)
		}
	}
	return quote, nil
}

// Quote prices the current cart with the session's tier
func (s *CheckoutService) Quote(ctx context.Context, p models.Principal) (*models.CheckoutQuote, error) {
	session, err := s.Begin(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.quote(ctx, p, session.ShippingTier)
}

func (s *CheckoutService) quote(ctx context.Context, p models.Principal, tierID string) (*models.CheckoutQuote, error) {
	cart, err := s.carts.GetList(ctx, p, models.ListCart)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	option, err := shipping.Quote(cart.Items, s.table, tierID)
	if err != nil {
		if errors.Is(err, shipping.ErrUnknownTier) {
			return nil, ErrUnknownShippingTier
		}
		return nil, err
	}

	subtotal := cart.Subtotal()
	total := subtotal.Add(option.Price)
	return &models.CheckoutQuote{
		Items:       cart.Items,
		Subtotal:    subtotal,
		Shipping:    option,
		Total:       total,
		AmountCents: payment.ToCents(total),
		Currency:    s.currency,
	}, nil
}

// paymentSession loads the session and requires the payment step
func (s *CheckoutService) paymentSession(ctx context.Context, p models.Principal) (*models.CheckoutSession, error) {
	session, err := s.sessions.GetCheckoutSession(ctx, p.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout session: %w", err)
	}
	if session == nil || session.Step != models.StepShippingAndPay {
		return nil, ErrInvalidCheckoutStep
	}
	return session, nil
}

func (s *CheckoutService) save(ctx context.Context, session *models.CheckoutSession) error {
	session.UpdatedAt = time.Now().UTC()
	if err := s.sessions.SaveCheckoutSession(ctx, session, s.sessionTTL); err != nil {
		return fmt.Errorf("failed to save checkout session: %w", err)
	}
	return nil
}
