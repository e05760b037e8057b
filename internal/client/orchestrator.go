// Package client drives sign-in against the identity provider, resolves
// provider conflicts by linking credentials, and mirrors the signed-in
// account into the sync service.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/logger"
	"github.com/hiremind/authsync/internal/models"
	"github.com/rs/zerolog"
)

const defaultSyncTimeout = 15 * time.Second

// Orchestrator is the client side of authentication. Its operations are
// meant to be called one at a time for a given session.
type Orchestrator struct {
	provider    identity.Provider
	syncer      Syncer
	session     *Session
	syncTimeout time.Duration
	now         func() time.Time
	log         zerolog.Logger

	mu      sync.Mutex
	pending *identity.PendingCredential
	syncGen int
	// lastSync is closed when the most recently started sync has finished;
	// each sync waits for its predecessor so the backend sees them in order.
	lastSync chan struct{}
	syncs    sync.WaitGroup
	unsubIDP func()
}

// NewOrchestrator subscribes to provider state changes. A nil syncer
// disables backend sync.
func NewOrchestrator(provider identity.Provider, syncer Syncer) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		syncer:      syncer,
		session:     NewSession(),
		syncTimeout: defaultSyncTimeout,
		now:         time.Now,
		log:         logger.Component("orchestrator"),
	}
	if acc := provider.CurrentAccount(); acc != nil {
		o.session.update(func(s *State) {
			s.Flow = Authenticated
			s.Identity = identityFrom(acc)
		})
	}
	o.unsubIDP = provider.OnStateChange(o.onProviderState)
	return o
}

// onProviderState replaces the session identity once per provider
// notification.
func (o *Orchestrator) onProviderState(acc *identity.Account) {
	o.session.update(func(s *State) {
		s.Identity = identityFrom(acc)
		switch {
		case acc == nil && s.Flow != ConflictDetected:
			s.Flow = Unauthenticated
		case acc != nil && (s.Flow == Unauthenticated || s.Flow == ConflictDetected):
			s.Flow = Authenticated
		}
	})
}

// State returns the current session snapshot.
func (o *Orchestrator) State() State { return o.session.Get() }

// Subscribe registers fn for every session change.
func (o *Orchestrator) Subscribe(fn func(State)) (unsubscribe func()) {
	return o.session.Subscribe(fn)
}

func (o *Orchestrator) RegisterWithPassword(ctx context.Context, email, password string) (*SessionIdentity, error) {
	creds := models.PasswordCredentials{Email: email, Password: password}
	if err := creds.Validate(); err != nil {
		return nil, validationError(err)
	}

	acc, err := o.provider.CreateAccount(ctx, email, password)
	if err != nil {
		o.log.Debug().Err(err).Msg("register failed")
		return nil, authError(err)
	}

	o.settle(Authenticated)
	o.startSync(ctx)
	return identityFrom(acc), nil
}

func (o *Orchestrator) LoginWithPassword(ctx context.Context, email, password string) (*SessionIdentity, error) {
	creds := models.LoginCredentials{Email: email, Password: password}
	if err := creds.Validate(); err != nil {
		return nil, validationError(err)
	}

	acc, err := o.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		o.log.Debug().Err(err).Msg("password login failed")
		return nil, authError(err)
	}

	o.settle(Authenticated)
	o.startSync(ctx)
	return identityFrom(acc), nil
}

// LoginWithFederated signs in with Google. When the Google email already
// belongs to a password account it returns *LinkRequiredError, enters
// ConflictDetected and keeps the pending credential for LoginAndLink. An
// account that is already signed in stays signed in until LoginAndLink
// replaces it.
func (o *Orchestrator) LoginWithFederated(ctx context.Context) (*SessionIdentity, error) {
	acc, err := o.provider.SignInWithFederated(ctx)
	if err != nil {
		var conflict *identity.ConflictError
		if errors.As(err, &conflict) {
			o.mu.Lock()
			pending := conflict.Pending
			o.pending = &pending
			o.mu.Unlock()
			o.session.update(func(s *State) {
				s.Flow = ConflictDetected
				s.ConflictEmail = conflict.Email
			})
			o.log.Info().Str("email", conflict.Email).Msg("federated sign-in conflicts with an existing account")
			return nil, &LinkRequiredError{Email: conflict.Email, Pending: pending}
		}
		o.log.Debug().Err(err).Msg("federated login failed")
		return nil, authError(err)
	}

	o.settle(Authenticated)
	o.startSync(ctx)
	return identityFrom(acc), nil
}

// LoginAndLink signs in with the password of the conflicting account,
// syncs that password session, then attaches the pending federated
// credential to it and syncs again. An empty pending.Token selects the
// credential held from the last conflict.
func (o *Orchestrator) LoginAndLink(ctx context.Context, email, password string, pending identity.PendingCredential) (*SessionIdentity, error) {
	creds := models.LoginCredentials{Email: email, Password: password}
	if err := creds.Validate(); err != nil {
		return nil, validationError(err)
	}

	o.mu.Lock()
	held := o.pending
	o.mu.Unlock()
	if pending.Token == "" {
		if held == nil {
			return nil, &ValidationError{Field: "PendingCredential", Message: "There is no Google sign-in waiting to be linked."}
		}
		pending = *held
	}
	if conflictEmail := o.session.Get().ConflictEmail; conflictEmail != "" && models.NormalizeEmail(email) != conflictEmail {
		return nil, &ValidationError{Field: "Email", Message: "Sign in with " + conflictEmail + " to link your Google account."}
	}

	if _, err := o.provider.SignInWithPassword(ctx, email, password); err != nil {
		o.log.Debug().Err(err).Msg("password step of linking failed")
		return nil, authError(err)
	}
	// The pending credential survives until the attach succeeds.
	o.session.update(func(s *State) { s.Flow = Authenticated })
	o.startSync(ctx)

	acc, err := o.provider.AttachCredential(ctx, pending)
	if err != nil {
		o.log.Warn().Err(err).Msg("failed to attach federated credential")
		return nil, linkError(err)
	}

	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
	o.session.update(func(s *State) {
		s.Flow = Linked
		s.ConflictEmail = ""
		s.Identity = identityFrom(acc)
	})
	o.log.Info().Str("subject", acc.Subject).Msg("federated credential linked")

	o.startSync(ctx)
	return identityFrom(acc), nil
}

// AbandonLink discards the pending federated credential.
func (o *Orchestrator) AbandonLink() {
	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
	o.session.update(func(s *State) {
		s.ConflictEmail = ""
		if s.Flow != ConflictDetected {
			return
		}
		if s.Identity != nil {
			s.Flow = Authenticated
		} else {
			s.Flow = Unauthenticated
		}
	})
}

// Logout always clears the local session, even if the provider call fails.
func (o *Orchestrator) Logout(ctx context.Context) {
	if err := o.provider.SignOut(ctx); err != nil {
		o.log.Warn().Err(err).Msg("provider sign-out failed; clearing local session anyway")
	}
	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
	o.session.update(func(s *State) {
		o.mu.Lock()
		o.syncGen++
		o.mu.Unlock()
		s.Flow = Unauthenticated
		s.Identity = nil
		s.ConflictEmail = ""
		s.Sync = SyncStatus{}
	})
}

// Refresh recomputes the session identity from the provider without
// calling the backend. It returns nil when nobody is signed in.
func (o *Orchestrator) Refresh() *SessionIdentity {
	acc := o.provider.CurrentAccount()
	o.session.update(func(s *State) {
		s.Identity = identityFrom(acc)
		if acc == nil && s.Flow != ConflictDetected {
			s.Flow = Unauthenticated
		}
	})
	return identityFrom(acc)
}

// GetToken returns a fresh credential, or "" when nobody is signed in.
func (o *Orchestrator) GetToken(ctx context.Context) (string, error) {
	if o.provider.CurrentAccount() == nil {
		return "", nil
	}
	token, err := o.provider.IssueCredential(ctx, false)
	if err != nil {
		if errors.Is(err, identity.ErrNotSignedIn) {
			return "", nil
		}
		return "", &CredentialError{Message: "Your session has expired. Please sign in again.", Err: err}
	}
	return token, nil
}

// LinkPassword adds a password to an account that only has Google.
func (o *Orchestrator) LinkPassword(ctx context.Context, password string) (*SessionIdentity, error) {
	req := models.NewPassword{Password: password}
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	acc, err := o.provider.AttachPassword(ctx, password)
	if err != nil {
		return nil, authError(err)
	}
	o.startSync(ctx)
	return identityFrom(acc), nil
}

func (o *Orchestrator) UpdateProfile(ctx context.Context, displayName string) (*SessionIdentity, error) {
	req := models.ProfileUpdate{DisplayName: displayName}
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	acc, err := o.provider.UpdateProfile(ctx, displayName)
	if err != nil {
		return nil, authError(err)
	}
	o.startSync(ctx)
	return identityFrom(acc), nil
}

// ChangePassword re-authenticates with the current password before setting
// the new one.
func (o *Orchestrator) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	req := models.PasswordChange{CurrentPassword: currentPassword, NewPassword: newPassword}
	if err := req.Validate(); err != nil {
		return validationError(err)
	}
	acc := o.provider.CurrentAccount()
	if acc == nil {
		return authError(identity.ErrNotSignedIn)
	}
	if _, err := o.provider.SignInWithPassword(ctx, acc.Email, currentPassword); err != nil {
		return authError(err)
	}
	if err := o.provider.UpdatePassword(ctx, newPassword); err != nil {
		return authError(err)
	}
	return nil
}

func (o *Orchestrator) SendPasswordReset(ctx context.Context, email string) error {
	req := models.PasswordResetRequest{Email: email}
	if err := req.Validate(); err != nil {
		return validationError(err)
	}
	if err := o.provider.SendPasswordReset(ctx, email); err != nil {
		return authError(err)
	}
	return nil
}

// Wait blocks until in-flight background syncs have finished.
func (o *Orchestrator) Wait() {
	o.syncs.Wait()
}

// Close stops listening to the provider and waits for background syncs.
func (o *Orchestrator) Close() {
	o.unsubIDP()
	o.Wait()
}

// settle records a completed sign-in: any held pending credential is
// dropped because the session no longer belongs to the conflict.
func (o *Orchestrator) settle(flow FlowState) {
	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
	o.session.update(func(s *State) {
		s.Flow = flow
		s.ConflictEmail = ""
	})
}

// startSync mirrors the current account into the backend in the
// background with the credential of the operation that just completed.
// Syncs reach the backend in the order they were started and only the
// newest one reports its outcome.
func (o *Orchestrator) startSync(ctx context.Context) {
	if o.syncer == nil {
		return
	}
	var (
		gen  int
		prev chan struct{}
	)
	done := make(chan struct{})
	o.session.update(func(s *State) {
		o.mu.Lock()
		o.syncGen++
		gen = o.syncGen
		prev, o.lastSync = o.lastSync, done
		o.mu.Unlock()
		s.Sync = SyncStatus{State: SyncPending, User: s.Sync.User, UpdatedAt: o.now()}
	})

	token, issueErr := o.provider.IssueCredential(ctx, false)

	o.syncs.Add(1)
	go func() {
		defer o.syncs.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		if issueErr != nil {
			o.finishSync(gen, nil, issueErr)
			return
		}

		syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.syncTimeout)
		defer cancel()
		user, err := o.syncer.Sync(syncCtx, token)
		o.finishSync(gen, user, err)
	}()
}

// finishSync records the outcome unless a newer sync or a logout has
// happened since gen was started.
func (o *Orchestrator) finishSync(gen int, user *models.UserView, err error) {
	var current bool
	o.session.updateIf(func(s *State) bool {
		o.mu.Lock()
		current = gen == o.syncGen
		o.mu.Unlock()
		if !current {
			return false
		}
		if err != nil {
			s.Sync = SyncStatus{State: SyncFailed, User: s.Sync.User, Err: &SyncError{Err: err}, UpdatedAt: o.now()}
		} else {
			s.Sync = SyncStatus{State: SyncSucceeded, User: user, UpdatedAt: o.now()}
		}
		return true
	})
	switch {
	case !current:
	case err != nil:
		o.log.Warn().Err(err).Msg("backend sync failed")
	default:
		o.log.Debug().Str("subject", user.SubjectID).Strs("providers", user.Providers).Msg("backend sync succeeded")
	}
}
