// Package security provides JWT token utilities
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// EditorClaims identifies an authenticated editor.
type EditorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RoleEditor is the only role the editing API issues.
const RoleEditor = "editor"

// GenerateEditorToken signs an HS256 token for subject valid for ttl.
func GenerateEditorToken(subject, jwtSecret string, ttl time.Duration) (string, time.Time, error) {
	if jwtSecret == "" {
		return "", time.Time{}, errors.New("jwt secret is not configured")
	}
	now := time.Now().UTC()
	expires := now.Add(ttl)
	claims := EditorClaims{
		Role: RoleEditor,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        GenerateULID(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// ValidateJWT validates a token and returns its editor claims.
func ValidateJWT(tokenString, jwtSecret string) (*EditorClaims, error) {
	claims := &EditorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Role != RoleEditor {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
