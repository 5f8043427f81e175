package api

import (
	"errors"
	"net/http"

	"storefront-service/internal/models"
	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

type selectShippingRequest struct {
	Tier string `json:"tier" binding:"required"`
}

type confirmRequest struct {
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

// getCheckout returns the session and, when the cart has items, the current quote
func (h *Handler) getCheckout(c *gin.Context) {
	ctx := c.Request.Context()
	p := principal(c)

	session, err := h.Checkout.Begin(ctx, p)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{"session": session}
	quote, err := h.Checkout.Quote(ctx, p)
	switch {
	case err == nil:
		resp["quote"] = quote
	case !errors.Is(err, service.ErrEmptyCart):
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) submitCustomer(c *gin.Context) {
	var info models.CustomerInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		badRequest(c, err)
		return
	}

	session, err := h.Checkout.SubmitCustomerInfo(c.Request.Context(), principal(c), info)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *Handler) checkoutBack(c *gin.Context) {
	session, err := h.Checkout.Back(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *Handler) shippingOptions(c *gin.Context) {
	options, err := h.Checkout.ShippingOptions(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": options})
}

func (h *Handler) selectShipping(c *gin.Context) {
	var req selectShippingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	quote, err := h.Checkout.SelectShipping(c.Request.Context(), principal(c), req.Tier)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": quote})
}

func (h *Handler) createIntent(c *gin.Context) {
	result, err := h.Payments.CreateIntent(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) confirmPayment(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.Payments.Confirm(c.Request.Context(), principal(c), req.PaymentMethod)
	if err != nil {
		h.respondError(c, err)
		return
	}

	code := http.StatusCreated
	if result.OrderPending {
		code = http.StatusAccepted
	}
	c.JSON(code, result)
}
