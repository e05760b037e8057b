// Package firebase talks to Firebase Authentication: server-side ID token
// verification through OIDC discovery, and the client-side REST API used by
// the orchestrator.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hiremind/authsync/internal/identity"
)

// IssuerPrefix is prepended to the project id to form the token issuer.
const IssuerPrefix = "https://securetoken.google.com/"

// Verifier checks Firebase ID tokens against the project's published keys.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

var _ identity.Verifier = (*Verifier)(nil)

// NewVerifier discovers the signing keys of the project's issuer.
func NewVerifier(ctx context.Context, projectID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, IssuerPrefix+projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to discover firebase issuer: %w", err)
	}
	return &Verifier{verifier: provider.Verifier(&oidc.Config{ClientID: projectID})}, nil
}

// NewVerifierWithKeySet builds a Verifier from an explicit key set. now may be nil.
func NewVerifierWithKeySet(projectID string, keySet oidc.KeySet, now func() time.Time) *Verifier {
	cfg := &oidc.Config{ClientID: projectID, Now: now}
	return &Verifier{verifier: oidc.NewVerifier(IssuerPrefix+projectID, keySet, cfg)}
}

func (v *Verifier) VerifyCredential(ctx context.Context, raw string) (*identity.Claims, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: expired at %s", identity.ErrExpiredCredential, expired.Expiry.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("%w: %v", identity.ErrInvalidCredential, err)
	}

	var pc identity.ProviderClaims
	if err := token.Claims(&pc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode claims: %v", identity.ErrInvalidCredential, err)
	}
	return pc.ToClaims(token.Subject)
}
