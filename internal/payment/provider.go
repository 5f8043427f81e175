// Package payment talks to the card-processing collaborator. Amounts are in
// the currency's minor unit.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Intent statuses reported by the provider
const (
	StatusSucceeded             = "succeeded"
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusRequiresConfirmation  = "requires_confirmation"
	StatusRequiresAction        = "requires_action"
	StatusProcessing            = "processing"
	StatusCanceled              = "canceled"
)

var (
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrIntentNotFound      = errors.New("payment intent not found")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
)

// CardError is a decline reported by the card network. Message is safe to
// show to the customer.
type CardError struct {
	Code        string
	DeclineCode string
	Message     string
}

func (e *CardError) Error() string {
	return fmt.Sprintf("card error %s: %s", e.Code, e.Message)
}

// IsUnavailable reports whether err means the provider could not be reached
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// Intent is the provider's view of one payment intent
type Intent struct {
	ID            string
	ClientSecret  string
	Status        string
	Amount        int64
	Currency      string
	PaymentMethod string
	Created       time.Time
	Metadata      map[string]string
}

// BillingDetails travel with the confirmation
type BillingDetails struct {
	Name       string
	Email      string
	Phone      string
	Line1      string
	City       string
	State      string
	PostalCode string
}

type CreateParams struct {
	AmountCents  int64
	Currency     string
	ReceiptEmail string
	Metadata     map[string]string
}

// Provider is the card-processing collaborator
type Provider interface {
	CreateIntent(ctx context.Context, params CreateParams) (*Intent, error)
	ConfirmIntent(ctx context.Context, intentID, paymentMethod string, billing BillingDetails) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
}

// WebhookEvent is a verified provider push
type WebhookEvent struct {
	ID     string
	Type   string
	Intent *Intent
}

// WebhookParser is implemented by providers that push signed events
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// ToCents converts a decimal amount to minor units, rounding half away from zero
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromCents converts minor units back to a decimal amount
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
