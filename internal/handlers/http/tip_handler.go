package http

import (
	"errors"
	"net/http"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"
	"peerline/pkg/validation"

	"github.com/gin-gonic/gin"
)

type TipHandler struct {
	tippingService ports.TippingService
}

func NewTipHandler(tippingService ports.TippingService) *TipHandler {
	return &TipHandler{
		tippingService: tippingService,
	}
}

func (h *TipHandler) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	api := router.Group("/api/v1/tips")
	api.Use(authMiddleware)
	{
		api.POST("", h.SendTip)
		api.GET("/total", h.GetTotal)
	}
}

func (h *TipHandler) SendTip(c *gin.Context) {
	var req struct {
		RecipientID string `json:"recipient_id" binding:"required,max=100"`
		ChannelKey  string `json:"channel_key" binding:"required,max=201"`
		Amount      int64  `json:"amount" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.ValidateParticipantID(req.RecipientID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateChannelKey(req.ChannelKey); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.tippingService.SendTip(
		c.Request.Context(),
		domain.ParticipantID(req.RecipientID),
		domain.ChannelKey(req.ChannelKey),
		req.Amount,
	)
	if err != nil {
		status, message := tipErrorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"tip": record,
	})
}

func (h *TipHandler) GetTotal(c *gin.Context) {
	recipientID := c.Query("recipient_id")
	channelKey := c.Query("channel_key")

	if err := validation.ValidateParticipantID(recipientID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateChannelKey(channelKey); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	total, err := h.tippingService.GetTotal(
		c.Request.Context(),
		domain.ParticipantID(recipientID),
		domain.ChannelKey(channelKey),
	)
	if err != nil {
		status, message := tipErrorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recipient_id": recipientID,
		"channel_key":  channelKey,
		"total":        total,
	})
}

func tipErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid tip amount"
	case errors.Is(err, domain.ErrTransferFailed):
		return http.StatusBadGateway, "transfer failed"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
