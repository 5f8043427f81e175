// Package memstore holds in-process implementations of the storage ports.
// STORAGE_DRIVER=memory selects it for local development; tests use it too.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront-service/internal/models"
)

// Lists is an in-memory cart and saved-list repository with version checks
type Lists struct {
	mu   sync.Mutex
	data map[string]*models.ItemList
}

func NewLists() *Lists {
	return &Lists{data: make(map[string]*models.ItemList)}
}

func listKey(ownerID string, kind models.ListKind) string {
	return ownerID + "|" + string(kind)
}

func (l *Lists) GetList(_ context.Context, ownerID string, kind models.ListKind) (*models.ItemList, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if stored, ok := l.data[listKey(ownerID, kind)]; ok {
		return stored.Clone(), nil
	}
	return models.NewItemList(ownerID, kind), nil
}

func (l *Lists) PutList(_ context.Context, list *models.ItemList) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := listKey(list.OwnerID, list.Kind)
	var current int64
	if stored, ok := l.data[key]; ok {
		current = stored.Version
	}
	if current != list.Version {
		return models.ErrVersionConflict
	}

	list.Version++
	list.UpdatedAt = time.Now().UTC()
	l.data[key] = list.Clone()
	return nil
}

func (l *Lists) DeleteList(_ context.Context, ownerID string, kind models.ListKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.data, listKey(ownerID, kind))
	return nil
}

func (l *Lists) Ping(context.Context) error { return nil }

// Orders is an in-memory order, payment and processed-event store
type Orders struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	byIntent  map[string]string
	payments  map[string]*models.Payment
	processed map[string]string
}

func NewOrders() *Orders {
	return &Orders{
		orders:    make(map[string]*models.Order),
		byIntent:  make(map[string]string),
		payments:  make(map[string]*models.Payment),
		processed: make(map[string]string),
	}
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append(models.OrderItems(nil), o.Items...)
	return &c
}

// CreateOrderWithPayment stores both records unless the intent already has an order
func (o *Orders) CreateOrderWithPayment(_ context.Context, order *models.Order, payment *models.Payment) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if id, ok := o.byIntent[order.PaymentIntentID]; ok {
		*order = *copyOrder(o.orders[id])
		return false, nil
	}

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	payment.OrderID = order.ID
	payment.CreatedAt = now

	o.orders[order.ID] = copyOrder(order)
	o.byIntent[order.PaymentIntentID] = order.ID
	p := *payment
	o.payments[order.ID] = &p
	return true, nil
}

func (o *Orders) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	order, ok := o.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyOrder(order), nil
}

func (o *Orders) GetOrderByPaymentIntent(_ context.Context, intentID string) (*models.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id, ok := o.byIntent[intentID]
	if !ok {
		return nil, nil
	}
	return copyOrder(o.orders[id]), nil
}

func (o *Orders) ListOrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	orders := []models.Order{}
	for _, order := range o.orders {
		if order.UserID == userID {
			orders = append(orders, *copyOrder(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (o *Orders) MarkOrderVerified(_ context.Context, orderID string) error {
	return o.update(orderID, func(order *models.Order) { order.Verified = true })
}

func (o *Orders) UpdateOrderStatus(_ context.Context, orderID string, status string) error {
	return o.update(orderID, func(order *models.Order) { order.Status = status })
}

func (o *Orders) update(orderID string, fn func(*models.Order)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	order, ok := o.orders[orderID]
	if !ok {
		return models.ErrNotFound
	}
	fn(order)
	order.UpdatedAt = time.Now().UTC()
	return nil
}

// PaymentFor returns the payment record written with an order
func (o *Orders) PaymentFor(orderID string) (*models.Payment, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.payments[orderID]
	if !ok {
		return nil, false
	}
	c := *p
	return &c, true
}

// Count returns the number of stored orders
func (o *Orders) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.orders)
}

func (o *Orders) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.processed[eventID]
	return ok, nil
}

func (o *Orders) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processed[eventID] = eventType
	return nil
}

func (o *Orders) Ping(context.Context) error { return nil }

// Users is an in-memory user store keyed by id and email
type Users struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func NewUsers() *Users {
	return &Users{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (u *Users) CreateUser(_ context.Context, user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.byEmail[user.Email]; ok {
		return models.ErrDuplicate
	}
	user.CreatedAt = time.Now().UTC()
	c := *user
	u.byID[user.ID] = &c
	u.byEmail[user.Email] = user.ID
	return nil
}

func (u *Users) UpdateUserAddress(_ context.Context, userID string, addr models.ProfileAddress) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.byID[userID]
	if !ok {
		return models.ErrNotFound
	}
	user.Name = addr.Name
	user.Address = addr.Address
	user.City = addr.City
	user.State = addr.State
	user.ZipCode = addr.ZipCode
	user.Phone = addr.Phone
	return nil
}

func (u *Users) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	id, ok := u.byEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *u.byID[id]
	return &c, nil
}

func (u *Users) GetUserByID(_ context.Context, id string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *user
	return &c, nil
}
