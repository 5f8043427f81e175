package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PrincipalKind distinguishes signed-in users from anonymous guest sessions
type PrincipalKind string

const (
	PrincipalUser  PrincipalKind = "user"
	PrincipalGuest PrincipalKind = "guest"
)

// Principal is the acting identity for cart, checkout and order operations
type Principal struct {
	Kind  PrincipalKind `json:"kind"`
	ID    string        `json:"id"`
	Email string        `json:"email,omitempty"`
}

func UserPrincipal(id, email string) Principal {
	return Principal{Kind: PrincipalUser, ID: id, Email: email}
}

func GuestPrincipal(id string) Principal {
	return Principal{Kind: PrincipalGuest, ID: id}
}

func (p Principal) IsGuest() bool {
	return p.Kind == PrincipalGuest
}

// Key is unique across principal kinds; used for locks and checkout sessions.
func (p Principal) Key() string {
	return string(p.Kind) + ":" + p.ID
}

// CartItem is one purchasable variant. ID is product + size and unique within a list.
type CartItem struct {
	ID            string          `json:"id" binding:"required"`
	Name          string          `json:"name" binding:"required"`
	ProductNumber string          `json:"productNumber"`
	SizeID        string          `json:"sizeId"`
	SizeName      string          `json:"sizeName"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity" binding:"required,min=1"`
	ImageURL      string          `json:"imageUrl"`
}

// LineTotal returns price * quantity
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ListKind names the two per-principal lists
type ListKind string

const (
	ListCart  ListKind = "cart"
	ListSaved ListKind = "saved"
)

// ItemList is a cart or a saved-for-later list. Version is 0 for a list that
// has never been persisted.
type ItemList struct {
	OwnerID   string     `json:"ownerId"`
	Kind      ListKind   `json:"kind"`
	Items     []CartItem `json:"items"`
	Version   int64      `json:"version"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewItemList returns an empty, never-persisted list
func NewItemList(ownerID string, kind ListKind) *ItemList {
	return &ItemList{OwnerID: ownerID, Kind: kind, Items: []CartItem{}}
}

func (l *ItemList) Index(id string) int {
	for i := range l.Items {
		if l.Items[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *ItemList) Contains(id string) bool {
	return l.Index(id) >= 0
}

// Add sums quantities when the id is already present, otherwise appends.
func (l *ItemList) Add(item CartItem) {
	if i := l.Index(item.ID); i >= 0 {
		l.Items[i].Quantity += item.Quantity
		return
	}
	l.Items = append(l.Items, item)
}

// AddUnique appends only when the id is absent. Returns false on a duplicate.
func (l *ItemList) AddUnique(item CartItem) bool {
	if l.Contains(item.ID) {
		return false
	}
	l.Items = append(l.Items, item)
	return true
}

// Remove drops the item with id and returns it.
func (l *ItemList) Remove(id string) (CartItem, bool) {
	i := l.Index(id)
	if i < 0 {
		return CartItem{}, false
	}
	item := l.Items[i]
	l.Items = append(l.Items[:i:i], l.Items[i+1:]...)
	return item, true
}

func (l *ItemList) Units() int {
	units := 0
	for _, item := range l.Items {
		units += item.Quantity
	}
	return units
}

func (l *ItemList) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range l.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (l *ItemList) IsEmpty() bool {
	return len(l.Items) == 0
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (l *ItemList) Clone() *ItemList {
	c := *l
	c.Items = make([]CartItem, len(l.Items))
	copy(c.Items, l.Items)
	return &c
}

// CartView is the pair of lists owned by a principal
type CartView struct {
	Cart  *ItemList `json:"cart"`
	Saved *ItemList `json:"saved"`
}

// CustomerInfo is the contact and shipping address collected at checkout
type CustomerInfo struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zipCode" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
}

func (c CustomerInfo) Value() (driver.Value, error) { return jsonValue(c) }
func (c *CustomerInfo) Scan(src interface{}) error  { return jsonScan(src, c) }

// ShippingOption is a priced shipping tier for the current cart
type ShippingOption struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	EstimatedDelivery string          `json:"estimatedDelivery"`
}

func (o ShippingOption) Value() (driver.Value, error) { return jsonValue(o) }
func (o *ShippingOption) Scan(src interface{}) error  { return jsonScan(src, o) }

// OrderItems is the item snapshot stored on an order
type OrderItems []CartItem

func (i OrderItems) Value() (driver.Value, error) { return jsonValue(i) }
func (i *OrderItems) Scan(src interface{}) error  { return jsonScan(src, i) }

// GatewayResponse is the provider snapshot kept on a payment record
type GatewayResponse map[string]string

func (g GatewayResponse) Value() (driver.Value, error) { return jsonValue(g) }
func (g *GatewayResponse) Scan(src interface{}) error  { return jsonScan(src, g) }

// Order is append-only once written
type Order struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"userId"`
	PrincipalKind   PrincipalKind   `db:"principal_kind" json:"principalKind"`
	GuestEmail      *string         `db:"guest_email" json:"guestEmail,omitempty"`
	PaymentIntentID string          `db:"payment_intent_id" json:"paymentIntentId"`
	Subtotal        decimal.Decimal `db:"subtotal" json:"subtotal"`
	ShippingCost    decimal.Decimal `db:"shipping_cost" json:"shippingCost"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"totalAmount"`
	Currency        string          `db:"currency" json:"currency"`
	Items           OrderItems      `db:"items" json:"items"`
	ShippingDetails CustomerInfo    `db:"shipping_details" json:"shippingDetails"`
	ShippingOption  ShippingOption  `db:"shipping_option" json:"shippingOption"`
	Status          string          `db:"status" json:"status"`
	Verified        bool            `db:"verified" json:"verified"`
	Source          string          `db:"source" json:"source"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// Payment is the audit ledger entry written alongside an order
type Payment struct {
	ID              string          `db:"id" json:"id"`
	OrderID         string          `db:"order_id" json:"orderId"`
	UserID          string          `db:"user_id" json:"userId"`
	GuestEmail      *string         `db:"guest_email" json:"guestEmail,omitempty"`
	TransactionID   string          `db:"transaction_id" json:"transactionId"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Currency        string          `db:"currency" json:"currency"`
	Method          string          `db:"method" json:"method"`
	Status          string          `db:"status" json:"status"`
	GatewayResponse GatewayResponse `db:"gateway_response" json:"gatewayResponse"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// User is a registered customer with an optional saved address
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Address      string    `db:"address" json:"address"`
	City         string    `db:"city" json:"city"`
	State        string    `db:"state" json:"state"`
	ZipCode      string    `db:"zip_code" json:"zipCode"`
	Phone        string    `db:"phone" json:"phone"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// ProfileAddress is the saved shipping address of a user
type ProfileAddress struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zipCode" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
}

// CheckoutStep is a state of the checkout flow
type CheckoutStep string

const (
	StepCollectingInfo CheckoutStep = "collecting_info"
	StepShippingAndPay CheckoutStep = "selecting_shipping_and_paying"
)

// CheckoutSession is the server-held checkout state for one principal
type CheckoutSession struct {
	PrincipalKey string        `json:"principalKey"`
	Step         CheckoutStep  `json:"step"`
	Customer     CustomerInfo  `json:"customer"`
	ShippingTier string        `json:"shippingTier"`
	Intent       *IntentHandle `json:"intent,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// IntentHandle is a payment intent bound to one amount
type IntentHandle struct {
	ID           string    `json:"id"`
	ClientSecret string    `json:"clientSecret"`
	AmountCents  int64     `json:"amountCents"`
	Currency     string    `json:"currency"`
	ShippingTier string    `json:"shippingTier"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CheckoutQuote is the priced cart used for display and for intent creation
type CheckoutQuote struct {
	Items       []CartItem      `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Shipping    ShippingOption  `json:"shipping"`
	Total       decimal.Decimal `json:"total"`
	AmountCents int64           `json:"amountCents"`
	Currency    string          `json:"currency"`
}

// OrderDraft is everything needed to write an order once its intent succeeds
type OrderDraft struct {
	Principal   Principal       `json:"principal"`
	Items       []CartItem      `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Shipping    ShippingOption  `json:"shipping"`
	Total       decimal.Decimal `json:"total"`
	AmountCents int64           `json:"amountCents"`
	Currency    string          `json:"currency"`
	Customer    CustomerInfo    `json:"customer"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Order statuses
const (
	OrderStatusPaid          = "paid"
	OrderStatusPaymentReview = "payment_review"
)

// Order sources
const (
	OrderSourceVerified = "verified"
	OrderSourceFallback = "fallback"
)

// Payment statuses
const (
	PaymentStatusCompleted = "completed"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// jsonValue returns text, not bytes: lib/pq sends []byte in binary format,
// which jsonb rejects.
func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src interface{}, dst interface{}) error {
	switch s := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(s, dst)
	case string:
		return json.Unmarshal([]byte(s), dst)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}
