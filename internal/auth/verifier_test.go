package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/supportrag/config"
	"github.com/BaSui01/supportrag/types"
)

const testSecret = "test-secret-key"

func validClaims() Claims {
	return Claims{
		UserID: "user-42",
		Email:  "jane@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func signHS(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestVerifier_HS256(t *testing.T) {
	v, err := NewVerifier(config.JWTConfig{Secret: testSecret}, nil)
	require.NoError(t, err)

	id, err := v.Verify(signHS(t, validClaims(), testSecret))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user-42", Email: "jane@example.com"}, id)
}

func TestVerifier_Rejects(t *testing.T) {
	v, err := NewVerifier(config.JWTConfig{Secret: testSecret}, nil)
	require.NoError(t, err)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other-client"}

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	noUser := validClaims()
	noUser.UserID = ""

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"wrong secret", signHS(t, validClaims(), "other-secret")},
		{"expired", signHS(t, expired, testSecret)},
		{"wrong issuer", signHS(t, wrongIssuer, testSecret)},
		{"wrong audience", signHS(t, wrongAudience, testSecret)},
		{"no expiry", signHS(t, noExpiry, testSecret)},
		{"no user id", signHS(t, noUser, testSecret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidCredential))
			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, 401, e.HTTPStatus)
		})
	}
}

func TestVerifier_UserIDFallbacks(t *testing.T) {
	v, err := NewVerifier(config.JWTConfig{Secret: testSecret}, nil)
	require.NoError(t, err)

	alt := validClaims()
	alt.UserID = ""
	alt.UserIDAlt = "snake"
	id, err := v.Verify(signHS(t, alt, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "snake", id.UserID)

	sub := validClaims()
	sub.UserID = ""
	sub.Subject = "subject-id"
	id, err = v.Verify(signHS(t, sub, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "subject-id", id.UserID)
}

func TestVerifier_CustomIssuerAudience(t *testing.T) {
	v, err := NewVerifier(config.JWTConfig{Secret: testSecret, Issuer: "acme", Audience: "acme-web"}, nil)
	require.NoError(t, err)

	c := validClaims()
	_, err = v.Verify(signHS(t, c, testSecret))
	assert.Error(t, err)

	c.Issuer = "acme"
	c.Audience = jwt.ClaimStrings{"acme-web"}
	_, err = v.Verify(signHS(t, c, testSecret))
	assert.NoError(t, err)
}

func TestVerifier_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := NewVerifier(config.JWTConfig{PublicKey: string(pub)}, nil)
	require.NoError(t, err)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims()).SignedString(key)
	require.NoError(t, err)
	id, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-42", id.UserID)

	// 只配置了公钥时拒绝 HS256
	_, err = v.Verify(signHS(t, validClaims(), testSecret))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidCredential))
}

func TestNewVerifier_Errors(t *testing.T) {
	_, err := NewVerifier(config.JWTConfig{}, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidCredential))

	_, err = NewVerifier(config.JWTConfig{PublicKey: "not a pem"}, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidCredential))
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u1"})
	id, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", id.UserID)
}
