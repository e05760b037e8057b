// Package identity defines the server-side view of the identity provider:
// verifying bearer credentials into normalized identity facts.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/hiremind/authsync/internal/models"
)

var (
	ErrMissingCredential = errors.New("missing or malformed bearer credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpiredCredential = errors.New("credential expired")
)

// Claims are the identity facts proven by a verified credential. Provider is
// the kind used to obtain this particular credential.
type Claims struct {
	Subject       string
	Email         string
	DisplayName   string
	AvatarURL     string
	EmailVerified bool
	Provider      models.ProviderKind
}

// Upsert converts the claims into the store input for one sync.
func (c *Claims) Upsert() models.UserUpsert {
	return models.UserUpsert{
		SubjectID:     c.Subject,
		Email:         c.Email,
		DisplayName:   c.DisplayName,
		AvatarURL:     c.AvatarURL,
		EmailVerified: c.EmailVerified,
		Provider:      c.Provider,
	}
}

// Verifier checks a raw credential issued by the identity provider.
// Implementations return errors wrapping ErrExpiredCredential or
// ErrInvalidCredential.
type Verifier interface {
	VerifyCredential(ctx context.Context, token string) (*Claims, error)
}

// ParseBearer extracts the token from an Authorization header value of the
// form "Bearer <token>".
func ParseBearer(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingCredential
	}
	return parts[1], nil
}

// ProviderClaims holds the provider-specific fields shared by Firebase-style
// ID tokens.
type ProviderClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Firebase      struct {
		SignInProvider string `json:"sign_in_provider"`
	} `json:"firebase"`
}

// ToClaims validates the provider-specific fields and normalizes them.
func (pc *ProviderClaims) ToClaims(subject string) (*Claims, error) {
	if subject == "" {
		return nil, errors.Join(ErrInvalidCredential, errors.New("subject claim is empty"))
	}
	if pc.Email == "" {
		return nil, errors.Join(ErrInvalidCredential, errors.New("email claim is empty"))
	}
	provider, ok := models.ParseProviderKind(pc.Firebase.SignInProvider)
	if !ok {
		return nil, errors.Join(ErrInvalidCredential, errors.New("unsupported sign-in provider "+pc.Firebase.SignInProvider))
	}
	return &Claims{
		Subject:       subject,
		Email:         models.NormalizeEmail(pc.Email),
		DisplayName:   pc.Name,
		AvatarURL:     pc.Picture,
		EmailVerified: pc.EmailVerified,
		Provider:      provider,
	}, nil
}
