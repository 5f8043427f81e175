package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-service/internal/memstore"
	"storefront-service/internal/models"
	"storefront-service/internal/payment"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	util.SetLogger(zap.NewNop())
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderPaid(context.Context, *models.OrderPaidEvent) error { return nil }
func (nopPublisher) PublishOrderUnverified(context.Context, *models.OrderUnverifiedEvent) error {
	return nil
}
func (nopPublisher) PublishOrderReconciled(context.Context, *models.OrderReconciledEvent) error {
	return nil
}
func (nopPublisher) PublishCartMerged(context.Context, *models.CartMergedEvent) error { return nil }

type fakeWebhooks struct {
	event *payment.WebhookEvent
	err   error
}

func (f *fakeWebhooks) ParseWebhook([]byte, string) (*payment.WebhookEvent, error) {
	return f.event, f.err
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	router   *gin.Engine
	mr       *miniredis.Miniredis
	orders   *memstore.Orders
	provider *payment.MockProvider
	webhooks *fakeWebhooks
	deps     Deps
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	rc := redisclient.Wrap(rdb)

	orders := memstore.NewOrders()
	users := memstore.NewUsers()
	provider := payment.NewMockProvider()
	publisher := nopPublisher{}

	identity := service.NewIdentityResolver("test-secret", time.Hour)
	carts := service.NewCartService(rc.GuestLists(time.Hour), memstore.NewLists(), rc, time.Second, time.Second)
	merger := service.NewCartMerger(carts, rc, publisher, time.Hour)
	checkout := service.NewCheckoutService(carts, rc, users, service.CheckoutOptions{SessionTTL: time.Hour, GuestEmailTTL: time.Hour})
	gateway := service.NewOrderGateway(orders, provider, publisher)
	webhooks := &fakeWebhooks{}

	deps := Deps{
		Identity: identity,
		Auth:     service.NewAuthService(users, identity, merger),
		Carts:    carts,
		Checkout: checkout,
		Payments: service.NewPaymentCoordinator(checkout, provider, gateway, rc, 10*time.Second, time.Hour),
		Orders:   gateway,
		Profiles: service.NewProfileService(users),
		Webhooks: webhooks,
		Ready:    map[string]Pinger{"redis": rc, "orders": orders},
		GuestTTL: time.Hour,
	}

	router := gin.New()
	NewHandler(deps).SetupRoutes(router)

	return &testServer{router: router, mr: mr, orders: orders, provider: provider, webhooks: webhooks, deps: deps}
}

// client carries the guest id and token between requests, like a browser would
type client struct {
	t       *testing.T
	srv     *testServer
	guestID string
	token   string
}

func (s *testServer) client(t *testing.T) *client {
	return &client{t: t, srv: s}
}

func (cl *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	cl.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(cl.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cl.guestID != "" {
		req.AddCookie(&http.Cookie{Name: guestCookie, Value: cl.guestID})
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}

	w := httptest.NewRecorder()
	cl.srv.router.ServeHTTP(w, req)

	if id := w.Header().Get(guestHeader); id != "" && cl.token == "" {
		cl.guestID = id
	}
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func addItemBody(id string, qty int) gin.H {
	return gin.H{"id": id, "name": "Item " + id, "price": "20.00", "quantity": qty}
}

func customerBody() gin.H {
	return gin.H{
		"name":    "Ada Lovelace",
		"email":   "ada@example.com",
		"address": "12 Analytical Way",
		"city":    "London",
		"state":   "LDN",
		"zipCode": "10001",
		"phone":   "555-0100",
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	cl := srv.client(t)

	assert.Equal(t, http.StatusOK, cl.do(http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, cl.do(http.MethodGet, "/ready", nil).Code)

	srv.deps.Ready["mongo"] = failingPinger{}
	router := gin.New()
	NewHandler(srv.deps).SetupRoutes(router)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGuestSessionIsIssuedAndReused(t *testing.T) {
	srv := newTestServer(t)
	cl := srv.client(t)

	w := cl.do(http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, service.ValidGuestID(cl.guestID))
	assert.Contains(t, w.Header().Get("Set-Cookie"), guestCookie+"="+cl.guestID)

	first := cl.guestID
	w = cl.do(http.MethodPost, "/api/v1/cart/items", addItemBody("a", 2))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first, cl.guestID)
	assert.Empty(t, w.Header().Get("Set-Cookie"))
}

func TestInvalidTokenIsRejected(t *testing.T) {
	srv := newTestServer(t)
	cl := srv.client(t)
	cl.token = "not-a-jwt"

	w := cl.do(http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartEndpoints(t *testing.T) {
	srv := newTestServer(t)
	cl := srv.client(t)

	require.Equal(t, http.StatusOK, cl.do(http.MethodPost, "/api/v1/cart/items", addItemBody("a", 2)).Code)
	require.Equal(t, http.StatusOK, cl.do(http.MethodPost, "/api/v1/cart/items", addItemBody("b", 1)).Code)

	assert.Equal(t, http.StatusBadRequest, cl.do(http.MethodPost, "/api/v1/cart/items", gin.H{"name": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, cl.do(http.MethodPut, "/api/v1/cart/items/missing", gin.H{"quantity": 2}).Code)

	w := cl.do(http.MethodPut, "/api/v1/cart/items/a", gin.H{"quantity": 0})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Cart models.ItemList `json:"cart"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Cart.Items[0].Quantity)

	w = cl.do(http.MethodPost, "/api/v1/cart/items/b/save", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view models.CartView
	decode(t, w, &view)
	assert.Len(t, view.Cart.Items, 1)
	assert.Len(t, view.Saved.Items, 1)

	w = cl.do(http.MethodPost, "/api/v1/saved/b/move", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &view)
	assert.Len(t, view.Cart.Items, 2)
	assert.Empty(t, view.Saved.Items)

	require.Equal(t, http.StatusOK, cl.do(http.MethodDelete, "/api/v1/cart/items/b", nil).Code)
	require.Equal(t, http.StatusOK, cl.do(http.MethodDelete, "/api/v1/cart", nil).Code)

	w = cl.do(http.MethodGet, "/api/v1/cart", nil)
	decode(t, w, &view)
	assert.Empty(t, view.Cart.Items)
}

func TestCustomerValidationReturns422(t *testing.T) {
	srv := newTestServer(t)
	cl := srv.client(t)

	body := customerBody()
	body["email"] = "nope"
	w := cl.do(http.MethodPut, "/api/v1/checkout/customer", body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &resp)
	assert.Contains(t, resp.Fields, "email")
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	cl := srv.client(t)

	require.Equal(t, http.StatusOK, cl.do(http.MethodPost, "/api/v1/cart/items", addItemBody("a", 2)).Code)
	assert.Equal(t, http.StatusConflict, cl.do(http.MethodPost, "/api/v1/checkout/intent", nil).Code)

	require.Equal(t, http.StatusOK, cl.do(http.MethodGet, "/api/v1/checkout", nil).Code)
	require.Equal(t, http.StatusOK, cl.do(http.MethodPut, "/api/v1/checkout/customer", customerBody()).Code)

	w := cl.do(http.MethodGet, "/api/v1/checkout/shipping", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusBadRequest, cl.do(http.MethodPut, "/api/v1/checkout/shipping", gin.H{"tier": "drone"}).Code)
	require.Equal(t, http.StatusOK, cl.do(http.MethodPut, "/api/v1/checkout/shipping", gin.H{"tier": "standard"}).Code)

	w = cl.do(http.MethodPost, "/api/v1/checkout/intent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var intent service.IntentResult
	decode(t, w, &intent)
	assert.Equal(t, int64(5299), intent.Quote.AmountCents)

	w = cl.do(http.MethodPost, "/api/v1/checkout/confirm", gin.H{"paymentMethod": payment.TestCardDeclined})
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	var failed struct {
		Error string `json:"error"`
	}
	decode(t, w, &failed)
	assert.Equal(t, "Your card was declined.", failed.Error)

	w = cl.do(http.MethodPost, "/api/v1/checkout/confirm", gin.H{"paymentMethod": payment.TestCardVisa})
	require.Equal(t, http.StatusCreated, w.Code)
	var result service.ConfirmResult
	decode(t, w, &result)
	require.NotNil(t, result.Order)
	assert.Equal(t, 1, srv.orders.Count())

	assert.Equal(t, http.StatusUnauthorized, cl.do(http.MethodGet, "/api/v1/orders", nil).Code)
}

func TestRegisterMergesAndListsOrders(t *testing.T) {
	srv := newTestServer(t)
	cl := srv.client(t)

	require.Equal(t, http.StatusOK, cl.do(http.MethodPost, "/api/v1/cart/items", addItemBody("a", 2)).Code)

	w := cl.do(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "ada@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusCreated, w.Code)
	var auth service.AuthResult
	decode(t, w, &auth)
	require.NotNil(t, auth.Cart)
	assert.Len(t, auth.Cart.Cart.Items, 1)

	assert.Equal(t, http.StatusConflict,
		cl.do(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "ada@example.com", "password": "correct horse"}).Code)

	cl.token = auth.Token
	w = cl.do(http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, cl.do(http.MethodGet, "/api/v1/orders/missing", nil).Code)

	w = cl.do(http.MethodPost, "/api/v1/auth/login", gin.H{"email": "ada@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPaymentWebhook(t *testing.T) {
	srv := newTestServer(t)
	cl := srv.client(t)

	require.Equal(t, http.StatusOK, cl.do(http.MethodPost, "/api/v1/cart/items", addItemBody("a", 2)).Code)
	require.Equal(t, http.StatusOK, cl.do(http.MethodPut, "/api/v1/checkout/customer", customerBody()).Code)
	w := cl.do(http.MethodPost, "/api/v1/checkout/intent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var intent service.IntentResult
	decode(t, w, &intent)

	srv.webhooks.err = payment.ErrInvalidSignature
	assert.Equal(t, http.StatusBadRequest, cl.do(http.MethodPost, "/api/v1/payments/webhook", gin.H{}).Code)

	srv.provider.MarkSucceeded(intent.IntentID)
	srv.webhooks.err = nil
	srv.webhooks.event = &payment.WebhookEvent{
		ID:     "evt_1",
		Type:   "payment_intent.succeeded",
		Intent: &payment.Intent{ID: intent.IntentID, Status: payment.StatusSucceeded},
	}
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, cl.do(http.MethodPost, "/api/v1/payments/webhook", gin.H{}).Code)
	}
	assert.Equal(t, 1, srv.orders.Count())

	var view models.CartView
	decode(t, cl.do(http.MethodGet, "/api/v1/cart", nil), &view)
	assert.Empty(t, view.Cart.Items)
}

func TestProfileAddressPrefillsCheckout(t *testing.T) {
	srv := newTestServer(t)
	cl := srv.client(t)

	assert.Equal(t, http.StatusUnauthorized, cl.do(http.MethodGet, "/api/v1/profile", nil).Code)

	w := cl.do(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "ada@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusCreated, w.Code)
	var auth service.AuthResult
	decode(t, w, &auth)
	cl.token = auth.Token

	address := gin.H{
		"name":    "Ada Lovelace",
		"address": "99 New Street",
		"city":    "London",
		"state":   "LDN",
		"zipCode": "10001",
	}
	assert.Equal(t, http.StatusUnprocessableEntity, cl.do(http.MethodPut, "/api/v1/profile/address", address).Code)

	address["phone"] = "555-0100"
	w = cl.do(http.MethodPut, "/api/v1/profile/address", address)
	require.Equal(t, http.StatusOK, w.Code)

	w = cl.do(http.MethodGet, "/api/v1/checkout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var checkout struct {
		Session models.CheckoutSession `json:"session"`
	}
	decode(t, w, &checkout)
	assert.Equal(t, "99 New Street", checkout.Session.Customer.Address)
	assert.Equal(t, "ada@example.com", checkout.Session.Customer.Email)
}
