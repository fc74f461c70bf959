// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/mediakit-go/internal/application/services"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/eventloop"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/security"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mediakit.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, mediakit.ErrNotFound), errors.Is(err, mediakit.ErrNoStoredState):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, security.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, mediakit.ErrCancelled),
		errors.Is(err, mediakit.ErrNothingToSync),
		errors.Is(err, mediakit.ErrNothingToClear),
		errors.Is(err, mediakit.ErrNoSnapshot),
		errors.Is(err, mediakit.ErrSyncConflict),
		errors.Is(err, mediakit.ErrDuplicateDetected),
		errors.Is(err, services.ErrTooManySessions),
		errors.Is(err, eventloop.ErrStopped):
		return http.StatusConflict
	case errors.Is(err, messaging.ErrTooManyConnections):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status.
func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
