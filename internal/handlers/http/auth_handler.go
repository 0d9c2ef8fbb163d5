package http

import (
	"net/http"
	"strings"
	"time"

	"peerline/internal/core/domain"
	"peerline/internal/core/services"
	"peerline/pkg/errors"
	"peerline/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues access tokens for development and testing. The hosting
// platform normally issues tokens itself and this endpoint is disabled there.
type AuthHandler struct {
	authService    services.AuthService
	accessTokenTTL time.Duration
}

func NewAuthHandler(authService services.AuthService, accessTokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		accessTokenTTL: accessTokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type TokenRequest struct {
	UserID   string `json:"user_id" binding:"required,max=100"`
	Username string `json:"username" binding:"required,min=3,max=50"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.Username = strings.TrimSpace(req.Username)

	if err := validation.ValidateParticipantID(req.UserID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateUsername(req.Username); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	token, err := h.authService.GenerateToken(domain.ParticipantID(req.UserID), req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      req.UserID,
		"username":     req.Username,
		"access_token": token,
		"expires_in":   int(h.accessTokenTTL / time.Second),
	})
}
