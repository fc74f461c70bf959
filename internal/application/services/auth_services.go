package services

import (
	"errors"
	"time"

	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/security"
)

// ErrInvalidCredentials is returned for a wrong editor password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService handles editor login and token checks
type AuthService struct {
	jwtSecret    string
	passwordHash string
	tokenTTL     time.Duration
	logger       *logging.ChanneledLogger
	perfTracker  *performance.Tracker
}

// NewAuthService creates a new authentication service
func NewAuthService(jwtSecret, passwordHash string, tokenTTL time.Duration, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if jwtSecret == "" {
		// tokens will not survive a restart
		if key, err := security.GenerateSecureKey(64); err == nil {
			jwtSecret = key
			logger.Auth().Warn("JWT_SECRET not set, signing tokens with a throwaway key")
		}
	}
	return &AuthService{
		jwtSecret:    jwtSecret,
		passwordHash: passwordHash,
		tokenTTL:     tokenTTL,
		logger:       logger,
		perfTracker:  perfTracker,
	}
}

// AuthResult holds authentication result data
type AuthResult struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthenticateEditor checks the editor password and issues a token.
func (a *AuthService) AuthenticateEditor(password string) (*AuthResult, error) {
	marker := a.perfTracker.StartOperation("auth:login", "")
	defer marker.Complete()

	if !security.CheckPassword(a.passwordHash, password) {
		marker.SetSuccess(false)
		a.logger.Auth().Warn("Editor login rejected")
		return nil, ErrInvalidCredentials
	}

	token, expires, err := security.GenerateEditorToken(security.RoleEditor, a.jwtSecret, a.tokenTTL)
	if err != nil {
		marker.SetError(err)
		a.logger.Auth().Error("Token generation failed", "error", err.Error())
		return nil, err
	}
	a.logger.Auth().Info("Editor logged in", "expiresAt", expires)
	return &AuthResult{Token: token, Role: security.RoleEditor, ExpiresAt: expires}, nil
}

// ValidateToken returns the claims of a valid editor token.
func (a *AuthService) ValidateToken(token string) (*security.EditorClaims, error) {
	if token == "" {
		return nil, security.ErrInvalidToken
	}
	return security.ValidateJWT(token, a.jwtSecret)
}
