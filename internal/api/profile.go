package api

import (
	"net/http"

	"storefront-service/internal/models"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getProfile(c *gin.Context) {
	user, err := h.Profiles.GetProfile(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) updateProfileAddress(c *gin.Context) {
	var addr models.ProfileAddress
	if err := c.ShouldBindJSON(&addr); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.Profiles.UpdateAddress(c.Request.Context(), principal(c), addr)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
