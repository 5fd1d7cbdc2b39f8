package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/annel0/plotmines/internal/mine"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	a := NewAuthenticator("test-secret")
	player := mine.Owner{ID: uuid.New(), Name: "P"}

	token, expiresAt, err := a.GenerateJWT(player, true)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "JWT из трёх частей")
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, time.Minute)

	claims, err := a.ValidateJWT(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, player, claims.Owner())
}

func TestValidateJWT_Rejects(t *testing.T) {
	a := NewAuthenticator("test-secret")
	other := NewAuthenticator("other-secret")
	player := mine.Owner{ID: uuid.New(), Name: "P"}

	foreign, _, err := other.GenerateJWT(player, true)
	require.NoError(t, err)
	_, err = a.ValidateJWT(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ValidateJWT("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Истёкший токен
	a.expiry = -time.Minute
	expired, _, err := a.GenerateJWT(player, false)
	require.NoError(t, err)
	_, err = a.ValidateJWT(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Алгоритм none не принимается
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{PlayerID: player.ID.String()})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.ValidateJWT(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewAuthenticator_RandomSecret(t *testing.T) {
	a := NewAuthenticator("")
	b := NewAuthenticator("")
	player := mine.Owner{ID: uuid.New(), Name: "P"}

	token, _, err := a.GenerateJWT(player, false)
	require.NoError(t, err)
	_, err = b.ValidateJWT(token)
	assert.Error(t, err)
}

func TestAccounts(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	accounts := NewAccounts([]Account{{Name: "Admin", PasswordHash: hash, Admin: true}})

	acc, ok := accounts.Verify("admin", "hunter2")
	require.True(t, ok)
	assert.True(t, acc.Admin)
	assert.Equal(t, acc.PlayerID(), acc.PlayerID(), "id детерминирован")

	_, ok = accounts.Verify("admin", "wrong")
	assert.False(t, ok)
	_, ok = accounts.Verify("nobody", "hunter2")
	assert.False(t, ok)

	fixed := uuid.New()
	assert.Equal(t, fixed, Account{Name: "x", ID: fixed.String()}.PlayerID())
}
