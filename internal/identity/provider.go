package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hiremind/authsync/internal/models"
)

// Account is the identity provider's view of the signed-in account.
type Account struct {
	Subject       string
	Email         string
	DisplayName   string
	AvatarURL     string
	EmailVerified bool
	Providers     models.Providers
}

// PendingCredential is a federated credential captured from a sign-in
// attempt that conflicted with an existing account. Token is opaque to
// callers and only meaningful to the provider that issued it.
type PendingCredential struct {
	ProviderID string
	Token      string
}

// Provider is the client-side identity provider capability.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (*Account, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Account, error)
	// SignInWithFederated returns *ConflictError when the federated email is
	// already bound to another provider.
	SignInWithFederated(ctx context.Context) (*Account, error)
	// AttachCredential links pending to the currently signed-in account.
	AttachCredential(ctx context.Context, pending PendingCredential) (*Account, error)
	AttachPassword(ctx context.Context, password string) (*Account, error)
	UpdateProfile(ctx context.Context, displayName string) (*Account, error)
	UpdatePassword(ctx context.Context, newPassword string) error
	SendPasswordReset(ctx context.Context, email string) error
	// IssueCredential returns a short-lived bearer credential for the current
	// account, minting a new one when forceRefresh is set or the cached one
	// is about to expire.
	IssueCredential(ctx context.Context, forceRefresh bool) (string, error)
	CurrentAccount() *Account
	// OnStateChange registers fn for every sign-in, sign-out and account
	// update. The returned func removes the registration.
	OnStateChange(fn func(*Account)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// Persistable is implemented by providers whose signed-in state can be saved
// between processes, such as the CLI's session file.
type Persistable interface {
	ExportState() ([]byte, error)
	ImportState(data []byte) error
}

// ErrNotSignedIn is returned by operations that need a current account.
var ErrNotSignedIn = errors.New("no account is signed in")

// ErrorCode classifies provider failures.
type ErrorCode string

const (
	CodeEmailExists         ErrorCode = "EMAIL_EXISTS"
	CodeWeakPassword        ErrorCode = "WEAK_PASSWORD"
	CodeUserNotFound        ErrorCode = "EMAIL_NOT_FOUND"
	CodeWrongPassword       ErrorCode = "INVALID_PASSWORD"
	CodeInvalidCredential   ErrorCode = "INVALID_LOGIN_CREDENTIALS"
	CodeCredentialInUse     ErrorCode = "FEDERATED_USER_ID_ALREADY_LINKED"
	CodeRequiresRecentLogin ErrorCode = "CREDENTIAL_TOO_OLD_LOGIN_AGAIN"
	CodeTokenExpired        ErrorCode = "TOKEN_EXPIRED"
	CodeCancelled           ErrorCode = "POPUP_CLOSED"
	CodeUnknown             ErrorCode = "UNKNOWN"
)

// ProviderError is a classified failure reported by the identity provider.
type ProviderError struct {
	Code ErrorCode
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError is a convenience constructor.
func NewProviderError(code ErrorCode, err error) *ProviderError {
	return &ProviderError{Code: code, Err: err}
}

// CodeOf returns the classified code of err, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// ConflictError is returned by SignInWithFederated when the federated email
// already belongs to an account bound to a different provider.
type ConflictError struct {
	Email   string
	Pending PendingCredential
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("account exists with different credential for %s", e.Email)
}

// StateNotifier fans account changes out to registered listeners. It is
// embedded by Provider implementations.
type StateNotifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(*Account)
}

func (n *StateNotifier) OnStateChange(fn func(*Account)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[int]func(*Account))
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

// Notify delivers acc to every listener. Each listener receives its own copy.
func (n *StateNotifier) Notify(acc *Account) {
	n.mu.Lock()
	fns := make([]func(*Account), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(acc.Clone())
	}
}

// Clone returns a deep copy; nil stays nil.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Providers = append(models.Providers(nil), a.Providers...)
	return &cp
}
