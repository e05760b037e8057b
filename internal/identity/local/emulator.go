// Package local is an in-process identity provider: password accounts hashed
// with bcrypt, federated sign-in from a pluggable assertion source, and HS256
// ID tokens that the matching Verifier accepts on the server side.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	signInPassword = "password"
	signInGoogle   = "google.com"

	// tokens are re-minted when they expire within this window
	refreshSkew = 5 * time.Minute
)

// FederatedAssertion is what a federated identity provider proves about the
// user after a successful popup/redirect flow.
type FederatedAssertion struct {
	FederatedID   string `json:"federatedId"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	AvatarURL     string `json:"avatarUrl"`
	EmailVerified bool   `json:"emailVerified"`
}

// FederatedSource produces the assertion for SignInWithFederated.
type FederatedSource interface {
	Assertion(ctx context.Context) (*FederatedAssertion, error)
}

// FederatedFunc adapts a function to FederatedSource.
type FederatedFunc func(ctx context.Context) (*FederatedAssertion, error)

func (f FederatedFunc) Assertion(ctx context.Context) (*FederatedAssertion, error) { return f(ctx) }

type Options struct {
	Secret    string
	Issuer    string
	TokenTTL  time.Duration
	Federated FederatedSource
	Now       func() time.Time
}

type account struct {
	subject       string
	email         string
	displayName   string
	avatarURL     string
	emailVerified bool
	passwordHash  []byte
	providers     models.Providers
	federatedID   string
}

func (a *account) toIdentity() *identity.Account {
	return &identity.Account{
		Subject:       a.subject,
		Email:         a.email,
		DisplayName:   a.displayName,
		AvatarURL:     a.avatarURL,
		EmailVerified: a.emailVerified,
		Providers:     append(models.Providers(nil), a.providers...),
	}
}

type session struct {
	subject        string
	signInProvider string
	token          string
	expiresAt      time.Time
}

// Emulator implements identity.Provider entirely in memory.
type Emulator struct {
	identity.StateNotifier

	mu          sync.Mutex
	signer      signer
	federated   FederatedSource
	now         func() time.Time
	accounts    map[string]*account
	byEmail     map[string]string
	byFederated map[string]string
	pending     map[string]*FederatedAssertion
	current     *session
}

var (
	_ identity.Provider    = (*Emulator)(nil)
	_ identity.Persistable = (*Emulator)(nil)
)

func New(opts Options) *Emulator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	return &Emulator{
		signer:      signer{secret: []byte(opts.Secret), issuer: opts.Issuer, ttl: opts.TokenTTL},
		federated:   opts.Federated,
		now:         opts.Now,
		accounts:    make(map[string]*account),
		byEmail:     make(map[string]string),
		byFederated: make(map[string]string),
		pending:     make(map[string]*FederatedAssertion),
	}
}

// SetFederatedSource replaces the assertion source used by SignInWithFederated.
func (e *Emulator) SetFederatedSource(src FederatedSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.federated = src
}

func (e *Emulator) CreateAccount(_ context.Context, email, password string) (*identity.Account, error) {
	email = models.NormalizeEmail(email)
	if tooShort(password) {
		return nil, identity.NewProviderError(identity.CodeWeakPassword, errors.New("password should be at least 6 characters"))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, identity.NewProviderError(identity.CodeUnknown, fmt.Errorf("failed to hash password: %w", err))
	}

	e.mu.Lock()
	if _, exists := e.byEmail[email]; exists {
		e.mu.Unlock()
		return nil, identity.NewProviderError(identity.CodeEmailExists, nil)
	}
	acc := &account{
		subject:      uuid.NewString(),
		email:        email,
		passwordHash: hash,
		providers:    models.Providers{models.ProviderPassword},
	}
	e.accounts[acc.subject] = acc
	e.byEmail[email] = acc.subject
	out, err := e.signInLocked(acc, signInPassword)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	log.Debug().Str("subject", acc.subject).Msg("local identity: account created")
	e.Notify(out)
	return out, nil
}

func (e *Emulator) SignInWithPassword(_ context.Context, email, password string) (*identity.Account, error) {
	email = models.NormalizeEmail(email)

	e.mu.Lock()
	subject, ok := e.byEmail[email]
	if !ok {
		e.mu.Unlock()
		return nil, identity.NewProviderError(identity.CodeUserNotFound, nil)
	}
	acc := e.accounts[subject]
	if len(acc.passwordHash) == 0 {
		e.mu.Unlock()
		return nil, identity.NewProviderError(identity.CodeWrongPassword, errors.New("account has no password"))
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		e.mu.Unlock()
		return nil, identity.NewProviderError(identity.CodeWrongPassword, nil)
	}
	out, err := e.signInLocked(acc, signInPassword)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.Notify(out)
	return out, nil
}

func (e *Emulator) SignInWithFederated(ctx context.Context) (*identity.Account, error) {
	e.mu.Lock()
	src := e.federated
	e.mu.Unlock()
	if src == nil {
		return nil, identity.NewProviderError(identity.CodeUnknown, errors.New("no federated source configured"))
	}

	assertion, err := src.Assertion(ctx)
	if err != nil {
		return nil, identity.NewProviderError(identity.CodeCancelled, err)
	}
	if assertion.FederatedID == "" || assertion.Email == "" {
		return nil, identity.NewProviderError(identity.CodeInvalidCredential, errors.New("federated assertion is incomplete"))
	}
	assertion.Email = models.NormalizeEmail(assertion.Email)

	e.mu.Lock()
	var acc *account
	if subject, ok := e.byFederated[assertion.FederatedID]; ok {
		acc = e.accounts[subject]
	} else if _, exists := e.byEmail[assertion.Email]; exists {
		pendingToken := uuid.NewString()
		e.pending[pendingToken] = assertion
		e.mu.Unlock()
		return nil, &identity.ConflictError{
			Email:   assertion.Email,
			Pending: identity.PendingCredential{ProviderID: signInGoogle, Token: pendingToken},
		}
	} else {
		acc = &account{
			subject:       uuid.NewString(),
			email:         assertion.Email,
			displayName:   assertion.DisplayName,
			avatarURL:     assertion.AvatarURL,
			emailVerified: assertion.EmailVerified,
			providers:     models.Providers{models.ProviderGoogle},
			federatedID:   assertion.FederatedID,
		}
		e.accounts[acc.subject] = acc
		e.byEmail[acc.email] = acc.subject
		e.byFederated[acc.federatedID] = acc.subject
	}
	out, err := e.signInLocked(acc, signInGoogle)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.Notify(out)
	return out, nil
}

func (e *Emulator) AttachCredential(_ context.Context, pending identity.PendingCredential) (*identity.Account, error) {
	e.mu.Lock()
	acc, err := e.currentLocked()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	assertion, ok := e.pending[pending.Token]
	if !ok || pending.ProviderID != signInGoogle {
		e.mu.Unlock()
		return nil, identity.NewProviderError(identity.CodeInvalidCredential, errors.New("unknown pending credential"))
	}
	if owner, linked := e.byFederated[assertion.FederatedID]; linked && owner != acc.subject {
		e.mu.Unlock()
		return nil, identity.NewProviderError(identity.CodeCredentialInUse, nil)
	}

	acc.providers.Add(models.ProviderGoogle)
	acc.federatedID = assertion.FederatedID
	e.byFederated[assertion.FederatedID] = acc.subject
	if acc.displayName == "" {
		acc.displayName = assertion.DisplayName
	}
	if acc.avatarURL == "" {
		acc.avatarURL = assertion.AvatarURL
	}
	acc.emailVerified = acc.emailVerified || assertion.EmailVerified
	delete(e.pending, pending.Token)

	out, err := e.signInLocked(acc, signInGoogle)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	log.Debug().Str("subject", acc.subject).Msg("local identity: federated credential linked")
	e.Notify(out)
	return out, nil
}

func (e *Emulator) AttachPassword(_ context.Context, password string) (*identity.Account, error) {
	if tooShort(password) {
		return nil, identity.NewProviderError(identity.CodeWeakPassword, nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, identity.NewProviderError(identity.CodeUnknown, err)
	}

	e.mu.Lock()
	acc, err := e.currentLocked()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	acc.passwordHash = hash
	acc.providers.Add(models.ProviderPassword)
	out, err := e.signInLocked(acc, signInPassword)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.Notify(out)
	return out, nil
}

func (e *Emulator) UpdateProfile(_ context.Context, displayName string) (*identity.Account, error) {
	e.mu.Lock()
	acc, err := e.currentLocked()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	acc.displayName = displayName
	out, err := e.signInLocked(acc, e.current.signInProvider)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.Notify(out)
	return out, nil
}

func (e *Emulator) UpdatePassword(_ context.Context, newPassword string) error {
	if tooShort(newPassword) {
		return identity.NewProviderError(identity.CodeWeakPassword, nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return identity.NewProviderError(identity.CodeUnknown, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	acc, err := e.currentLocked()
	if err != nil {
		return err
	}
	acc.passwordHash = hash
	acc.providers.Add(models.ProviderPassword)
	return nil
}

// SendPasswordReset only checks that the account exists; no mail is sent.
func (e *Emulator) SendPasswordReset(_ context.Context, email string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byEmail[models.NormalizeEmail(email)]; !ok {
		return identity.NewProviderError(identity.CodeUserNotFound, nil)
	}
	log.Info().Str("email", email).Msg("local identity: password reset requested")
	return nil
}

func (e *Emulator) IssueCredential(_ context.Context, forceRefresh bool) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, err := e.currentLocked()
	if err != nil {
		return "", err
	}
	if forceRefresh || e.now().Add(refreshSkew).After(e.current.expiresAt) {
		token, expiresAt, err := e.signer.sign(acc, e.current.signInProvider, e.now())
		if err != nil {
			return "", identity.NewProviderError(identity.CodeUnknown, err)
		}
		e.current.token, e.current.expiresAt = token, expiresAt
	}
	return e.current.token, nil
}

func (e *Emulator) CurrentAccount() *identity.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, err := e.currentLocked()
	if err != nil {
		return nil
	}
	return acc.toIdentity()
}

func (e *Emulator) SignOut(_ context.Context) error {
	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()

	e.Notify(nil)
	return nil
}

// tooShort counts characters, not bytes, like the client-side validation.
func tooShort(password string) bool {
	return utf8.RuneCountInString(password) < models.MinPasswordLength
}

func (e *Emulator) currentLocked() (*account, error) {
	if e.current == nil {
		return nil, identity.ErrNotSignedIn
	}
	acc, ok := e.accounts[e.current.subject]
	if !ok {
		return nil, identity.ErrNotSignedIn
	}
	return acc, nil
}

func (e *Emulator) signInLocked(acc *account, signInProvider string) (*identity.Account, error) {
	token, expiresAt, err := e.signer.sign(acc, signInProvider, e.now())
	if err != nil {
		return nil, identity.NewProviderError(identity.CodeUnknown, err)
	}
	e.current = &session{subject: acc.subject, signInProvider: signInProvider, token: token, expiresAt: expiresAt}
	return acc.toIdentity(), nil
}

type storedAccount struct {
	Subject       string           `json:"subject"`
	Email         string           `json:"email"`
	DisplayName   string           `json:"displayName,omitempty"`
	AvatarURL     string           `json:"avatarUrl,omitempty"`
	EmailVerified bool             `json:"emailVerified"`
	PasswordHash  []byte           `json:"passwordHash,omitempty"`
	Providers     models.Providers `json:"providers"`
	FederatedID   string           `json:"federatedId,omitempty"`
}

type storedState struct {
	Accounts       []storedAccount                `json:"accounts"`
	Pending        map[string]*FederatedAssertion `json:"pending,omitempty"`
	CurrentSubject string                         `json:"currentSubject,omitempty"`
	SignInProvider string                         `json:"signInProvider,omitempty"`
}

// ExportState serializes the account table and the signed-in subject.
func (e *Emulator) ExportState() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := storedState{Pending: e.pending}
	for _, a := range e.accounts {
		state.Accounts = append(state.Accounts, storedAccount{
			Subject:       a.subject,
			Email:         a.email,
			DisplayName:   a.displayName,
			AvatarURL:     a.avatarURL,
			EmailVerified: a.emailVerified,
			PasswordHash:  a.passwordHash,
			Providers:     a.providers,
			FederatedID:   a.federatedID,
		})
	}
	if e.current != nil {
		state.CurrentSubject = e.current.subject
		state.SignInProvider = e.current.signInProvider
	}
	return json.Marshal(state)
}

// ImportState replaces the emulator's state with one produced by ExportState.
func (e *Emulator) ImportState(data []byte) error {
	var state storedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to decode local identity state: %w", err)
	}

	e.mu.Lock()
	e.accounts = make(map[string]*account, len(state.Accounts))
	e.byEmail = make(map[string]string, len(state.Accounts))
	e.byFederated = make(map[string]string)
	e.pending = make(map[string]*FederatedAssertion)
	for token, a := range state.Pending {
		e.pending[token] = a
	}
	for _, s := range state.Accounts {
		e.accounts[s.Subject] = &account{
			subject:       s.Subject,
			email:         s.Email,
			displayName:   s.DisplayName,
			avatarURL:     s.AvatarURL,
			emailVerified: s.EmailVerified,
			passwordHash:  s.PasswordHash,
			providers:     s.Providers,
			federatedID:   s.FederatedID,
		}
		e.byEmail[s.Email] = s.Subject
		if s.FederatedID != "" {
			e.byFederated[s.FederatedID] = s.Subject
		}
	}
	e.current = nil
	var out *identity.Account
	if acc, ok := e.accounts[state.CurrentSubject]; ok {
		var err error
		if out, err = e.signInLocked(acc, state.SignInProvider); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	e.mu.Unlock()

	e.Notify(out)
	return nil
}
