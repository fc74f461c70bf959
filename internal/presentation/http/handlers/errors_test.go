package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AtRiskMedia/mediakit-go/internal/application/services"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/eventloop"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/security"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{mediakit.ErrInvalidArgument, http.StatusBadRequest},
		{mediakit.ErrNotFound, http.StatusNotFound},
		{mediakit.ErrNoStoredState, http.StatusNotFound},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
		{security.ErrInvalidToken, http.StatusUnauthorized},
		{mediakit.ErrCancelled, http.StatusConflict},
		{mediakit.ErrNothingToSync, http.StatusConflict},
		{mediakit.ErrNoSnapshot, http.StatusConflict},
		{services.ErrTooManySessions, http.StatusConflict},
		{eventloop.ErrStopped, http.StatusConflict},
		{messaging.ErrTooManyConnections, http.StatusServiceUnavailable},
		{mediakit.ErrPersistence, http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", mediakit.ErrNotFound), http.StatusNotFound},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://editor.example.com"}
	assert.True(t, originAllowed("", allowed))
	assert.True(t, originAllowed("https://editor.example.com", allowed))
	assert.False(t, originAllowed("https://evil.example.com", allowed))
	assert.True(t, originAllowed("https://anything.example.com", []string{"*"}))
	assert.False(t, originAllowed("https://editor.example.com", nil))
}
