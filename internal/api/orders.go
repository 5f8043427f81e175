package api

import (
	"errors"
	"io"
	"net/http"

	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.Orders.ListOrders(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.Orders.GetOrder(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// paymentWebhook completes orders for intents that succeeded outside Confirm.
// A 5xx makes the provider redeliver.
func (h *Handler) paymentWebhook(c *gin.Context) {
	if h.Webhooks == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhooks not enabled"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, err)
		return
	}

	event, err := h.Webhooks.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("Rejected webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid webhook",
			"details": err.Error(),
		})
		return
	}

	if event.Type != "payment_intent.succeeded" || event.Intent == nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	order, err := h.Payments.HandleIntentSucceeded(c.Request.Context(), event.Intent.ID)
	switch {
	case errors.Is(err, service.ErrDraftNotFound):
		h.logger.Warn("Webhook for unknown payment intent", zap.String("payment_intent_id", event.Intent.ID))
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, service.ErrAmountMismatch), errors.Is(err, service.ErrPaymentNotVerified):
		h.logger.Error("Webhook intent failed verification",
			zap.String("payment_intent_id", event.Intent.ID),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true})
	case err != nil:
		h.logger.Error("Webhook processing failed", zap.String("event_id", event.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
	default:
		c.JSON(http.StatusOK, gin.H{"received": true, "orderId": order.ID})
	}
}
