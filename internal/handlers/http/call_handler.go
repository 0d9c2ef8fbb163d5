package http

import (
	"errors"
	"net/http"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"
	"peerline/pkg/validation"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	callService ports.CallService
}

func NewCallHandler(callService ports.CallService) *CallHandler {
	return &CallHandler{
		callService: callService,
	}
}

func (h *CallHandler) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	api := router.Group("/api/v1/call")
	api.Use(authMiddleware)
	{
		api.POST("/start", h.StartCall)
		api.POST("/end", h.EndCall)
		api.POST("/mute", h.ToggleMute)
		api.POST("/video", h.ToggleVideo)
		api.GET("/active", h.ActiveCall)
	}
}

func (h *CallHandler) StartCall(c *gin.Context) {
	var req struct {
		RemoteID string `json:"remote_id" binding:"required,max=100"`
		Role     string `json:"role" binding:"required,oneof=caller callee"`
		Video    bool   `json:"video"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := validation.ValidateParticipantID(req.RemoteID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.callService.Start(
		c.Request.Context(),
		domain.ParticipantID(req.RemoteID),
		domain.CallRole(req.Role),
		req.Video,
	)
	if err != nil {
		status, message := callErrorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session": session,
	})
}

func (h *CallHandler) EndCall(c *gin.Context) {
	if err := h.callService.End(c.Request.Context()); err != nil {
		status, message := callErrorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ended",
	})
}

func (h *CallHandler) ToggleMute(c *gin.Context) {
	muted, err := h.callService.ToggleMute(c.Request.Context())
	if err != nil {
		status, message := callErrorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"muted": muted,
	})
}

func (h *CallHandler) ToggleVideo(c *gin.Context) {
	enabled, err := h.callService.ToggleVideo(c.Request.Context())
	if err != nil {
		status, message := callErrorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"video_enabled": enabled,
	})
}

func (h *CallHandler) ActiveCall(c *gin.Context) {
	session, err := h.callService.Active(c.Request.Context())
	if err != nil {
		status, message := callErrorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session,
	})
}

// callErrorStatus maps domain sentinels to HTTP responses.
func callErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, domain.ErrCallActive):
		return http.StatusConflict, "a call is already active"
	case errors.Is(err, domain.ErrNoActiveCall):
		return http.StatusNotFound, "no active call"
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden, "media permission denied"
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable, "media device unavailable"
	case errors.Is(err, domain.ErrSignalingUnavailable):
		return http.StatusServiceUnavailable, "signaling unavailable"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
