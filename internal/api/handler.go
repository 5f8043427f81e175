package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/payment"
	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	guestCookie     = "guest_session_id"
	guestHeader     = "X-Guest-Session"
	principalCtxKey = "principal"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the HTTP surface. Webhooks is nil when the
// provider does not push events.
type Deps struct {
	Identity *service.IdentityResolver
	Auth     *service.AuthService
	Carts    *service.CartService
	Checkout *service.CheckoutService
	Payments *service.PaymentCoordinator
	Orders   *service.OrderGateway
	Profiles *service.ProfileService
	Webhooks payment.WebhookParser
	Ready    map[string]Pinger
	GuestTTL time.Duration
	Secure   bool
}

// Handler contains HTTP handlers
type Handler struct {
	Deps
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps, logger: util.GetLogger()}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/payments/webhook", h.paymentWebhook)

	shop := v1.Group("", h.identify)
	{
		shop.POST("/auth/register", h.register)
		shop.POST("/auth/login", h.login)

		shop.GET("/cart", h.getCart)
		shop.DELETE("/cart", h.clearCart)
		shop.POST("/cart/items", h.addItem)
		shop.PUT("/cart/items/:id", h.updateQuantity)
		shop.DELETE("/cart/items/:id", h.removeItem)
		shop.POST("/cart/items/:id/save", h.moveToSaved)
		shop.POST("/saved/:id/move", h.moveToCart)
		shop.DELETE("/saved/:id", h.removeSaved)

		shop.GET("/checkout", h.getCheckout)
		shop.PUT("/checkout/customer", h.submitCustomer)
		shop.POST("/checkout/back", h.checkoutBack)
		shop.GET("/checkout/shipping", h.shippingOptions)
		shop.PUT("/checkout/shipping", h.selectShipping)
		shop.POST("/checkout/intent", h.createIntent)
		shop.POST("/checkout/confirm", h.confirmPayment)

		shop.GET("/orders", h.listOrders)
		shop.GET("/orders/:id", h.getOrder)

		shop.GET("/profile", h.getProfile)
		shop.PUT("/profile/address", h.updateProfileAddress)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing store
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, dep := range h.Ready {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// identify resolves the caller. New guest ids are returned as a cookie and a header.
func (h *Handler) identify(c *gin.Context) {
	guestID := c.GetHeader(guestHeader)
	if guestID == "" {
		guestID, _ = c.Cookie(guestCookie)
	}

	p, issued, err := h.Identity.Resolve(c.GetHeader("Authorization"), guestID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "Invalid or expired token",
			"details": err.Error(),
		})
		return
	}

	if p.IsGuest() {
		if issued {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(guestCookie, p.ID, int(h.GuestTTL.Seconds()), "/", "", h.Secure, true)
		}
		c.Header(guestHeader, p.ID)
	}

	c.Set(principalCtxKey, p)
	c.Next()
}

func principal(c *gin.Context) models.Principal {
	return c.MustGet(principalCtxKey).(models.Principal)
}

// respondError maps service errors to status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "Invalid input",
			"fields": verr.Fields,
		})
		return
	}

	var perr *service.PaymentError
	if errors.As(err, &perr) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":  perr.Message,
			"status": perr.Status,
		})
		return
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidItem),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrUnknownShippingTier),
		errors.Is(err, payment.ErrInvalidAmount):
		code = http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrGuestOrderHistory):
		code = http.StatusUnauthorized
	case errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrOrderNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrCartBusy),
		errors.Is(err, service.ErrConcurrentModification),
		errors.Is(err, service.ErrInvalidCheckoutStep),
		errors.Is(err, service.ErrNoPaymentIntent),
		errors.Is(err, service.ErrAmountChanged),
		errors.Is(err, service.ErrConfirmInProgress):
		code = http.StatusConflict
	case payment.IsUnavailable(err):
		code = http.StatusServiceUnavailable
	}

	if code == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(code, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
