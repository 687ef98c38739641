package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignParseRoundTrip(t *testing.T) {
	t.Parallel()

	svc := NewJWTService("test-secret")
	userID := uuid.New()

	token, err := svc.Sign(userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	svc := NewJWTService("test-secret")
	_, err := svc.Parse("not-a-token")
	assert.Error(t, err)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := NewJWTService("secret-a").Sign(uuid.New())
	require.NoError(t, err)

	_, err = NewJWTService("secret-b").Parse(token)
	assert.Error(t, err)
}
