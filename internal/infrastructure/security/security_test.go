package security

import (
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditorTokenRoundTrip(t *testing.T) {
	token, expires, err := GenerateEditorToken("editor", "s3cret", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := ValidateJWT(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "editor", claims.Subject)
	assert.Equal(t, RoleEditor, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestEditorTokenRejected(t *testing.T) {
	token, _, err := GenerateEditorToken("editor", "s3cret", time.Hour)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "other")
	assert.True(t, errors.Is(err, ErrInvalidToken))

	expired, _, err := GenerateEditorToken("editor", "s3cret", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired, "s3cret")
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, _, err = GenerateEditorToken("editor", "", time.Hour)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("", "correct horse"))
}

func TestGenerators(t *testing.T) {
	id := GenerateULID()
	_, err := ulid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, GenerateULID())

	key, err := GenerateSecureKey(64)
	require.NoError(t, err)
	assert.Len(t, key, 64)
}
