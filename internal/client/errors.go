package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/models"
)

// ValidationError is returned before the identity provider is contacted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AuthErrorKind classifies a rejected authentication operation.
type AuthErrorKind string

const (
	KindEmailAlreadyInUse AuthErrorKind = "email_already_in_use"
	KindWeakPassword      AuthErrorKind = "weak_password"
	KindUserNotFound      AuthErrorKind = "user_not_found"
	KindWrongPassword     AuthErrorKind = "wrong_password"
	KindInvalidCredential AuthErrorKind = "invalid_credential"
	KindLinkingError      AuthErrorKind = "linking_error"
	KindProviderError     AuthErrorKind = "provider_error"
)

// AuthError carries a user-readable message; Err keeps the provider failure.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }
func (e *AuthError) Unwrap() error { return e.Err }

// CredentialError means the current session cannot produce or use a
// credential and the user has to sign in again.
type CredentialError struct {
	Message string
	Err     error
}

func (e *CredentialError) Error() string { return e.Message }
func (e *CredentialError) Unwrap() error { return e.Err }

// LinkRequiredError is the ConflictDetected outcome of a federated sign-in:
// Email already belongs to an account with a different provider. Pending is
// attached by LoginAndLink once the user has signed in with that account's
// password.
type LinkRequiredError struct {
	Email   string
	Pending identity.PendingCredential
}

func (e *LinkRequiredError) Error() string {
	return fmt.Sprintf("An account already exists for %s. Sign in with your password to link Google.", e.Email)
}

// SyncError wraps a failed backend sync. It is only reported through
// SyncStatus, never returned by an authentication operation.
type SyncError struct {
	Err error
}

func (e *SyncError) Error() string { return "backend sync failed: " + e.Err.Error() }
func (e *SyncError) Unwrap() error { return e.Err }

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := fieldErrs[0]
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", humanize(field))
	case "email":
		msg = "Please enter a valid email address"
	case "min":
		msg = fmt.Sprintf("Password must be at least %d characters", models.MinPasswordLength)
	case "max":
		msg = fmt.Sprintf("%s is too long", humanize(field))
	default:
		msg = fmt.Sprintf("%s is invalid", humanize(field))
	}
	return &ValidationError{Field: field, Message: msg}
}

// humanize turns a Go field name such as "NewPassword" into "New password".
func humanize(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// authError maps identity provider failures to messages that can be shown
// to the user as-is.
func authError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, identity.ErrNotSignedIn) {
		return &CredentialError{Message: "You need to sign in first.", Err: err}
	}

	switch identity.CodeOf(err) {
	case identity.CodeEmailExists:
		return &AuthError{Kind: KindEmailAlreadyInUse, Message: "An account with this email already exists.", Err: err}
	case identity.CodeWeakPassword:
		return &AuthError{Kind: KindWeakPassword, Message: fmt.Sprintf("Password must be at least %d characters", models.MinPasswordLength), Err: err}
	case identity.CodeUserNotFound:
		return &AuthError{Kind: KindUserNotFound, Message: "No account found with this email.", Err: err}
	case identity.CodeWrongPassword:
		return &AuthError{Kind: KindWrongPassword, Message: "Incorrect password.", Err: err}
	case identity.CodeInvalidCredential:
		return &AuthError{Kind: KindInvalidCredential, Message: "Invalid email or password.", Err: err}
	case identity.CodeCredentialInUse:
		return &AuthError{Kind: KindLinkingError, Message: "This Google account is already linked to another user.", Err: err}
	case identity.CodeCancelled:
		return &AuthError{Kind: KindProviderError, Message: "Google sign-in was cancelled.", Err: err}
	case identity.CodeRequiresRecentLogin:
		return &CredentialError{Message: "Please sign in again to continue.", Err: err}
	case identity.CodeTokenExpired:
		return &CredentialError{Message: "Your session has expired. Please sign in again.", Err: err}
	default:
		return &AuthError{Kind: KindProviderError, Message: "Authentication failed. Please try again.", Err: err}
	}
}

// linkError maps a failed attach of a pending credential.
func linkError(err error) error {
	mapped := authError(err)
	var ae *AuthError
	if errors.As(mapped, &ae) && ae.Kind != KindLinkingError {
		return &AuthError{Kind: KindLinkingError, Message: "Could not link your Google account. Please try again.", Err: err}
	}
	return mapped
}
