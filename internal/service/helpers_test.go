package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront-service/internal/memstore"
	"storefront-service/internal/models"
	"storefront-service/internal/payment"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	util.SetLogger(zap.NewNop())
}

type recordingPublisher struct {
	mu         sync.Mutex
	paid       []*models.OrderPaidEvent
	unverified []*models.OrderUnverifiedEvent
	reconciled []*models.OrderReconciledEvent
	merged     []*models.CartMergedEvent
}

func (p *recordingPublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, e)
	return nil
}

func (p *recordingPublisher) PublishOrderUnverified(_ context.Context, e *models.OrderUnverifiedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unverified = append(p.unverified, e)
	return nil
}

func (p *recordingPublisher) PublishOrderReconciled(_ context.Context, e *models.OrderReconciledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconciled = append(p.reconciled, e)
	return nil
}

func (p *recordingPublisher) PublishCartMerged(_ context.Context, e *models.CartMergedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.merged = append(p.merged, e)
	return nil
}

// flakyLists fails PutList for one list kind, or returns version conflicts a fixed number of times
type flakyLists struct {
	ListRepository
	mu        sync.Mutex
	failKind  models.ListKind
	failErr   error
	conflicts int
}

func (f *flakyLists) PutList(ctx context.Context, list *models.ItemList) error {
	f.mu.Lock()
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return models.ErrVersionConflict
	}
	failKind, failErr := f.failKind, f.failErr
	f.mu.Unlock()

	if failErr != nil && list.Kind == failKind {
		return failErr
	}
	return f.ListRepository.PutList(ctx, list)
}

func (f *flakyLists) set(kind models.ListKind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failKind, f.failErr = kind, err
}

// flakyOrders fails order writes while fail is set
type flakyOrders struct {
	*memstore.Orders
	mu   sync.Mutex
	fail error
}

func (f *flakyOrders) CreateOrderWithPayment(ctx context.Context, order *models.Order, p *models.Payment) (bool, error) {
	f.mu.Lock()
	err := f.fail
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.Orders.CreateOrderWithPayment(ctx, order, p)
}

func (f *flakyOrders) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

type testEnv struct {
	mr          *miniredis.Miniredis
	redis       *redisclient.Client
	guestLists  *flakyLists
	userLists   *flakyLists
	orders      *flakyOrders
	users       *memstore.Users
	provider    *payment.MockProvider
	publisher   *recordingPublisher
	identity    *IdentityResolver
	carts       *CartService
	merger      *CartMerger
	auth        *AuthService
	checkout    *CheckoutService
	gateway     *OrderGateway
	coordinator *PaymentCoordinator
	reconciler  *Reconciler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	rc := redisclient.Wrap(rdb)

	env := &testEnv{
		mr:         mr,
		redis:      rc,
		guestLists: &flakyLists{ListRepository: rc.GuestLists(time.Hour)},
		userLists:  &flakyLists{ListRepository: memstore.NewLists()},
		orders:     &flakyOrders{Orders: memstore.NewOrders()},
		users:      memstore.NewUsers(),
		provider:   payment.NewMockProvider(),
		publisher:  &recordingPublisher{},
		identity:   NewIdentityResolver("test-secret", time.Hour),
	}

	env.carts = NewCartService(env.guestLists, env.userLists, rc, time.Second, time.Second)
	env.merger = NewCartMerger(env.carts, rc, env.publisher, time.Hour)
	env.auth = NewAuthService(env.users, env.identity, env.merger)
	env.checkout = NewCheckoutService(env.carts, rc, env.users, CheckoutOptions{
		SessionTTL:    time.Hour,
		GuestEmailTTL: time.Hour,
	})
	env.gateway = NewOrderGateway(env.orders, env.provider, env.publisher)
	env.coordinator = NewPaymentCoordinator(env.checkout, env.provider, env.gateway, rc, 10*time.Second, time.Hour)
	env.reconciler = NewReconciler(env.orders, env.provider, env.publisher)
	return env
}

func item(id string, price string, qty int) models.CartItem {
	return models.CartItem{
		ID:       id,
		Name:     "Item " + id,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	}
}

func validCustomer() models.CustomerInfo {
	return models.CustomerInfo{
		Name:    "Ada Lovelace",
		Email:   "ada@example.com",
		Address: "12 Analytical Way",
		City:    "London",
		State:   "LDN",
		ZipCode: "10001",
		Phone:   "555-0100",
	}
}

// readyToPay fills the cart and walks checkout to the payment step
func (e *testEnv) readyToPay(t *testing.T, p models.Principal, items ...models.CartItem) {
	t.Helper()
	ctx := context.Background()
	for _, it := range items {
		_, err := e.carts.AddItem(ctx, p, it)
		require.NoError(t, err)
	}
	_, err := e.checkout.SubmitCustomerInfo(ctx, p, validCustomer())
	require.NoError(t, err)
}

func newGuest() models.Principal {
	return models.GuestPrincipal(NewGuestID())
}
