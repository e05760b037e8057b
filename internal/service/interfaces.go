package service

import (
	"context"
	"errors"

	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/models"
)

// ErrInternal is returned when a verified sync could not be persisted.
var ErrInternal = errors.New("internal error")

type SyncGenerator interface {
	// SyncUser verifies the bearer credential in authHeader and upserts the
	// matching user record. Credential errors wrap identity.ErrMissingCredential,
	// identity.ErrInvalidCredential or identity.ErrExpiredCredential and never
	// touch the store; store failures wrap ErrInternal.
	SyncUser(ctx context.Context, authHeader string) (*models.UserView, error)

	// CurrentUser returns the record of an already verified subject.
	CurrentUser(ctx context.Context, claims *identity.Claims) (*models.UserView, error)
}
