package service

import (
	"context"
	"time"

	"storefront-service/internal/models"
)

// ListRepository stores one cart or saved list per owner. PutList must fail
// with models.ErrVersionConflict when list.Version is stale.
type ListRepository interface {
	GetList(ctx context.Context, ownerID string, kind models.ListKind) (*models.ItemList, error)
	PutList(ctx context.Context, list *models.ItemList) error
	DeleteList(ctx context.Context, ownerID string, kind models.ListKind) error
}

// Locker is a non-blocking distributed lock
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	DeleteIdempotencyKey(ctx context.Context, keys ...string) error
}

// SessionStore holds short-lived checkout state
type SessionStore interface {
	GetCheckoutSession(ctx context.Context, principalKey string) (*models.CheckoutSession, error)
	SaveCheckoutSession(ctx context.Context, session *models.CheckoutSession, ttl time.Duration) error
	DeleteCheckoutSession(ctx context.Context, principalKey string) error
	SaveOrderDraft(ctx context.Context, intentID string, draft *models.OrderDraft, ttl time.Duration) error
	GetOrderDraft(ctx context.Context, intentID string) (*models.OrderDraft, error)
	SetGuestEmail(ctx context.Context, guestID, email string, ttl time.Duration) error
	GetGuestEmail(ctx context.Context, guestID string) (string, error)
}

type OrderStore interface {
	CreateOrderWithPayment(ctx context.Context, order *models.Order, payment *models.Payment) (bool, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	MarkOrderVerified(ctx context.Context, orderID string) error
	UpdateOrderStatus(ctx context.Context, orderID string, status string) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUserAddress(ctx context.Context, userID string, addr models.ProfileAddress) error
}

// EventPublisher is satisfied by broker.EventPublisher
type EventPublisher interface {
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderUnverified(ctx context.Context, event *models.OrderUnverifiedEvent) error
	PublishOrderReconciled(ctx context.Context, event *models.OrderReconciledEvent) error
	PublishCartMerged(ctx context.Context, event *models.CartMergedEvent) error
}
