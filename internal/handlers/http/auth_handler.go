package http

import (
	"crypto/subtle"
	"net/http"

	"guildwarden/internal/core/services"
	"guildwarden/pkg/errors"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService services.AuthService
	adminKey    string
}

func NewAuthHandler(authService services.AuthService, adminKey string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		adminKey:    adminKey,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type TokenRequest struct {
	Name   string `json:"name" binding:"required,min=1,max=50"`
	APIKey string `json:"api_key" binding:"required,max=256"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.adminKey)) != 1 {
		c.Error(errors.NewUnauthorizedError("invalid api key"))
		return
	}

	token, err := h.authService.GenerateToken(req.Name)
	if err != nil {
		c.Error(errors.NewInternalError("failed to issue token"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token})
}
