package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewJWTManager(t *testing.T) {
	secret := "test-secret-key-for-testing-purposes"
	accessExpiry := 15 * time.Minute
	refreshExpiry := 24 * time.Hour

	manager := NewJWTManager(secret, accessExpiry, refreshExpiry)

	assert.NotNil(t, manager)
	assert.Equal(t, secret, manager.secretKey)
	assert.Equal(t, accessExpiry, manager.accessTokenDuration)
	assert.Equal(t, refreshExpiry, manager.refreshTokenDuration)
}

func TestGenerateAccessToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour)

	token, err := manager.GenerateAccessToken("uid-1", "test@example.com", "iphone-15")

	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestValidateToken_ValidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour)

	token, err := manager.GenerateAccessToken("uid-1", "test@example.com", "iphone-15")
	assert.NoError(t, err)

	claims, err := manager.ValidateToken(token)

	assert.NoError(t, err)
	assert.NotNil(t, claims)
	assert.Equal(t, "uid-1", claims.UID)
	assert.Equal(t, "test@example.com", claims.Email)
	assert.Equal(t, "iphone-15", claims.Device)
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 1*time.Nanosecond, 24*time.Hour)

	token, err := manager.GenerateAccessToken("uid-1", "test@example.com", "")
	assert.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	claims, err := manager.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateToken_InvalidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour)

	claims, err := manager.ValidateToken("invalid.token.here")

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	manager1 := NewJWTManager("secret-1", 15*time.Minute, 24*time.Hour)
	token, err := manager1.GenerateAccessToken("uid-1", "test@example.com", "")
	assert.NoError(t, err)

	manager2 := NewJWTManager("secret-2", 15*time.Minute, 24*time.Hour)
	claims, err := manager2.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestExtractUID(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour)

	token, err := manager.GenerateAccessToken("uid-1", "test@example.com", "")
	assert.NoError(t, err)

	uid, err := manager.ExtractUID(token)
	assert.NoError(t, err)
	assert.Equal(t, "uid-1", uid)
}

func TestTokenClaims(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour)

	token, err := manager.GenerateAccessToken("uid-1", "test@example.com", "pixel-9")
	assert.NoError(t, err)

	claims, err := manager.ValidateToken(token)
	assert.NoError(t, err)

	assert.Equal(t, "uid-1", claims.UID)
	assert.NotZero(t, claims.IssuedAt)
	assert.NotZero(t, claims.ExpiresAt)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))
	assert.Equal(t, "sif-auth", claims.Issuer)
	assert.Equal(t, "uid-1", claims.Subject)
	assert.Contains(t, claims.Audience, "sif-sync")
}

func TestIsTokenExpired(t *testing.T) {
	manager := NewJWTManager("test-secret", 1*time.Nanosecond, 24*time.Hour)

	token, err := manager.GenerateAccessToken("uid-1", "test@example.com", "")
	assert.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	assert.True(t, IsTokenExpired(token))
}

func TestRefreshTokenClaims(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour)

	token, err := manager.GenerateRefreshToken("uid-1")
	assert.NoError(t, err)

	claims, err := manager.ValidateToken(token)
	assert.NoError(t, err)

	// refresh tokens carry minimal claims
	assert.Equal(t, "uid-1", claims.UID)
	assert.Empty(t, claims.Email)
	assert.Empty(t, claims.Device)
	assert.NotZero(t, claims.ExpiresAt)
}
