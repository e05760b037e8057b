package client

import (
	"sync"
	"time"

	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/models"
)

// FlowState is the position of the session in the sign-in and linking flow.
type FlowState int

const (
	Unauthenticated FlowState = iota
	ConflictDetected
	Authenticated
	Linked
)

func (s FlowState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case ConflictDetected:
		return "conflict_detected"
	case Authenticated:
		return "authenticated"
	case Linked:
		return "linked"
	default:
		return "unknown"
	}
}

// SessionIdentity is derived from the identity provider's current account.
// Provider flags are computed from Providers on every read.
type SessionIdentity struct {
	SubjectID     string           `json:"subjectId"`
	Email         string           `json:"email"`
	DisplayName   string           `json:"displayName"`
	AvatarURL     string           `json:"avatarUrl"`
	EmailVerified bool             `json:"emailVerified"`
	Providers     models.Providers `json:"providers"`
}

func (s *SessionIdentity) HasPassword() bool  { return s.Providers.HasPassword() }
func (s *SessionIdentity) HasFederated() bool { return s.Providers.HasFederated() }

// IsGoogleOnly reports whether the account can only sign in with Google.
func (s *SessionIdentity) IsGoogleOnly() bool { return s.HasFederated() && !s.HasPassword() }

func identityFrom(acc *identity.Account) *SessionIdentity {
	if acc == nil {
		return nil
	}
	return &SessionIdentity{
		SubjectID:     acc.Subject,
		Email:         acc.Email,
		DisplayName:   acc.DisplayName,
		AvatarURL:     acc.AvatarURL,
		EmailVerified: acc.EmailVerified,
		Providers:     append(models.Providers(nil), acc.Providers...),
	}
}

// SyncState is the outcome of the latest backend sync.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncPending
	SyncSucceeded
	SyncFailed
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncPending:
		return "pending"
	case SyncSucceeded:
		return "succeeded"
	case SyncFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SyncStatus reports backend mirroring separately from the authentication
// outcome. User is the record returned by the last successful sync.
type SyncStatus struct {
	State     SyncState
	User      *models.UserView
	Err       error
	UpdatedAt time.Time
}

// State is a snapshot of the session.
type State struct {
	Flow     FlowState
	Identity *SessionIdentity
	// ConflictEmail is set while a pending federated credential is held.
	ConflictEmail string
	Sync          SyncStatus
}

func (s State) clone() State {
	if s.Identity != nil {
		id := *s.Identity
		id.Providers = append(models.Providers(nil), s.Identity.Providers...)
		s.Identity = &id
	}
	return s
}

// Session owns the client's auth state and notifies subscribers with a fresh
// snapshot after every change.
type Session struct {
	// notifyMu serializes change and delivery so subscribers see snapshots
	// in the order the changes were made.
	notifyMu sync.Mutex
	mu       sync.Mutex
	state    State
	nextID   int
	subs     map[int]func(State)
}

func NewSession() *Session {
	return &Session{subs: make(map[int]func(State))}
}

// Get returns the current snapshot.
func (s *Session) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn for every subsequent change.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) update(fn func(*State)) {
	s.updateIf(func(st *State) bool {
		fn(st)
		return true
	})
}

// updateIf applies fn and notifies subscribers only when fn reports a
// change. Subscribers must not change the session from their callback.
func (s *Session) updateIf(fn func(*State) bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	snapshot := s.state
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snapshot.clone())
	}
}
