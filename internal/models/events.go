package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPaid       = "ORDER_PAID"
	EventTypeOrderUnverified = "ORDER_UNVERIFIED"
	EventTypeOrderVerified   = "ORDER_VERIFIED"
	EventTypeOrderFlagged    = "ORDER_FLAGGED"
	EventTypeCartMerged      = "CART_MERGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// OrderPaidEvent published when a new order is written
type OrderPaidEvent struct {
	BaseEvent
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	Verified        bool            `json:"verified"`
	ItemCount       int             `json:"item_count"`
}

// OrderUnverifiedEvent published when an order was written on the fallback path
type OrderUnverifiedEvent struct {
	BaseEvent
	OrderID         string `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	AmountCents     int64  `json:"amount_cents"`
}

// OrderReconciledEvent published after an unverified order is re-checked
type OrderReconciledEvent struct {
	BaseEvent
	OrderID         string `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	IntentStatus    string `json:"intent_status"`
}

// CartMergedEvent published when a guest cart is folded into a user cart
type CartMergedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	GuestID    string `json:"guest_id"`
	CartItems  int    `json:"cart_items"`
	SavedItems int    `json:"saved_items"`
}
