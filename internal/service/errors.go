package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrEmailTaken             = errors.New("email already registered")
	ErrInvalidItem            = errors.New("item must have an id and a quantity of at least 1")
	ErrItemNotFound           = errors.New("item not found")
	ErrCartBusy               = errors.New("cart is being modified, try again")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrUnknownShippingTier    = errors.New("unknown shipping tier")
	ErrInvalidCheckoutStep    = errors.New("operation not allowed in current checkout step")
	ErrNoPaymentIntent        = errors.New("no payment intent prepared for this checkout")
	ErrAmountChanged          = errors.New("order total changed since the payment was prepared")
	ErrConfirmInProgress      = errors.New("payment confirmation already in progress")
	ErrPaymentNotVerified     = errors.New("payment intent has not succeeded")
	ErrAmountMismatch         = errors.New("authorized amount does not match order total")
	ErrOrderNotFound          = errors.New("order not found")
	ErrGuestOrderHistory      = errors.New("order history requires an account")
	ErrConcurrentModification = errors.New("cart changed concurrently, retries exhausted")
)

// ValidationError carries one message per invalid field, keyed by JSON name
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid fields: " + strings.Join(names, ", ")
}

// PaymentError is a failed confirmation. Message is safe to display and the
// caller may retry from the payment step.
type PaymentError struct {
	Message string
	Status  string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

var ErrDraftNotFound = errors.New("no order draft stored for payment intent")
