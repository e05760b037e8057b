package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hiremind/authsync/internal/identity"
)

// tokenClaims mirrors the layout of a Firebase ID token so both verifiers
// share the same claim mapping.
type tokenClaims struct {
	identity.ProviderClaims
	jwt.RegisteredClaims
}

type signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func (s *signer) sign(acc *account, signInProvider string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.ttl)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   acc.subject,
			Audience:  jwt.ClaimStrings{s.issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	claims.Email = acc.email
	claims.EmailVerified = acc.emailVerified
	claims.Name = acc.displayName
	claims.Picture = acc.avatarURL
	claims.Firebase.SignInProvider = signInProvider

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verifier validates ID tokens minted by the Emulator.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ identity.Verifier = (*Verifier)(nil)

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (v *Verifier) VerifyCredential(_ context.Context, raw string) (*identity.Claims, error) {
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(raw, &tc, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", identity.ErrExpiredCredential, err)
		}
		return nil, fmt.Errorf("%w: %v", identity.ErrInvalidCredential, err)
	}
	return tc.ToClaims(tc.Subject)
}
