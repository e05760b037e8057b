package firebase_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/identity/firebase"
	"github.com/hiremind/authsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const projectID = "hiremind-test"

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims(exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            firebase.IssuerPrefix + projectID,
		"aud":            projectID,
		"sub":            "uid-123",
		"iat":            time.Now().Add(-time.Minute).Unix(),
		"exp":            exp.Unix(),
		"email":          "Alice@Example.com",
		"email_verified": true,
		"name":           "Alice",
		"picture":        "https://img/alice.png",
		"firebase":       map[string]any{"sign_in_provider": "google.com"},
	}
}

func TestVerifier_VerifyCredential(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := firebase.NewVerifierWithKeySet(projectID, keySet, nil)
	ctx := context.Background()

	t.Run("Valid", func(t *testing.T) {
		raw := signIDToken(t, key, baseClaims(time.Now().Add(time.Hour)))

		claims, err := verifier.VerifyCredential(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, "uid-123", claims.Subject)
		assert.Equal(t, "alice@example.com", claims.Email)
		assert.Equal(t, "Alice", claims.DisplayName)
		assert.True(t, claims.EmailVerified)
		assert.Equal(t, models.ProviderGoogle, claims.Provider)
	})

	t.Run("Expired", func(t *testing.T) {
		raw := signIDToken(t, key, baseClaims(time.Now().Add(-time.Hour)))

		_, err := verifier.VerifyCredential(ctx, raw)
		assert.ErrorIs(t, err, identity.ErrExpiredCredential)
	})

	t.Run("WrongAudience", func(t *testing.T) {
		claims := baseClaims(time.Now().Add(time.Hour))
		claims["aud"] = "another-project"

		_, err := verifier.VerifyCredential(ctx, signIDToken(t, key, claims))
		assert.ErrorIs(t, err, identity.ErrInvalidCredential)
	})

	t.Run("UntrustedKey", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		_, err = verifier.VerifyCredential(ctx, signIDToken(t, other, baseClaims(time.Now().Add(time.Hour))))
		assert.ErrorIs(t, err, identity.ErrInvalidCredential)
	})

	t.Run("UnsupportedProvider", func(t *testing.T) {
		claims := baseClaims(time.Now().Add(time.Hour))
		claims["firebase"] = map[string]any{"sign_in_provider": "anonymous"}

		_, err := verifier.VerifyCredential(ctx, signIDToken(t, key, claims))
		assert.ErrorIs(t, err, identity.ErrInvalidCredential)
	})
}
