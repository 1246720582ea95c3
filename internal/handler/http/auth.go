package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mdscolour/clawfactory/internal/domain"
	"github.com/mdscolour/clawfactory/internal/middleware"
	"github.com/mdscolour/clawfactory/internal/service"
)

// AuthHandler covers registration, login and token introspection.
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	if authService == nil {
		panic("AuthService cannot be nil for AuthHandler")
	}
	return &AuthHandler{authService: authService}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"omitempty,email"`
}

type userPayload struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

func newUserPayload(u *domain.User) userPayload {
	return userPayload{ID: u.ID, Username: u.Username, Email: u.Email}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Register: invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	user, token, err := h.authService.Register(c.Request.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    newUserPayload(user),
		"token":   token,
	})
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: username and password required"})
		return
	}

	user, token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    newUserPayload(user),
		"token":   token,
	})
}

type OAuthRequest struct {
	Provider   string `json:"provider" binding:"required"`
	ProviderID string `json:"provider_id" binding:"required"`
	Username   string `json:"username"`
	Email      string `json:"email" binding:"omitempty,email"`
}

func (h *AuthHandler) OAuth(c *gin.Context) {
	var req OAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: provider and provider_id required"})
		return
	}

	user, token, err := h.authService.OAuthLogin(c.Request.Context(), req.Provider, req.ProviderID, req.Username, req.Email)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    newUserPayload(user),
		"token":   token,
	})
}

// Me returns the user behind the bearer token.
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.UserFromContext(c)
	if user == nil {
		ErrorResponse(c, http.StatusUnauthorized, "Invalid token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserPayload(user)})
}
