package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/mediakit-go/internal/application/services"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/mediakit-go/internal/presentation/http/middleware"
)

// AuthHandlers contains all authentication-related HTTP handlers
type AuthHandlers struct {
	authService *services.AuthService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewAuthHandlers creates auth handlers with injected dependencies
func NewAuthHandlers(authService *services.AuthService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// PostLogin handles POST /api/v1/auth/login - editor authentication
func (h *AuthHandlers) PostLogin(c *gin.Context) {
	start := time.Now()
	marker := h.perfTracker.StartOperation("post_login_request", "")
	defer marker.Complete()
	h.logger.Auth().Debug("Received login request", "method", c.Request.Method, "path", c.Request.URL.Path)

	var loginReq struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		h.logger.Auth().Error("Login request JSON binding failed", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	result, err := h.authService.AuthenticateEditor(loginReq.Password)
	if err != nil {
		marker.SetSuccess(false)
		h.logger.Auth().Warn("Login attempt failed", "error", err.Error(), "duration", time.Since(start))
		respondError(c, err)
		return
	}

	h.logger.Auth().Info("Login successful", "role", result.Role, "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     result.Token,
		"role":      result.Role,
		"expiresAt": result.ExpiresAt,
	})
}

// GetAuthStatus handles GET /api/v1/auth/status - reports the caller's token state
func (h *AuthHandlers) GetAuthStatus(c *gin.Context) {
	token := middleware.BearerToken(c)
	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	status := gin.H{"authenticated": true, "role": claims.Role}
	if claims.ExpiresAt != nil {
		status["expiresAt"] = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, status)
}
