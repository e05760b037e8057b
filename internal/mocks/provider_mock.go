package mocks

import (
	"context"

	"github.com/hiremind/authsync/internal/identity"
	"github.com/stretchr/testify/mock"
)

// MockProvider mocks identity.Provider. State listeners are kept by the
// embedded notifier so tests can drive them with Notify.
type MockProvider struct {
	mock.Mock
	identity.StateNotifier
}

func (m *MockProvider) CreateAccount(ctx context.Context, email, password string) (*identity.Account, error) {
	args := m.Called(ctx, email, password)
	acc, _ := args.Get(0).(*identity.Account)
	return acc, args.Error(1)
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Account, error) {
	args := m.Called(ctx, email, password)
	acc, _ := args.Get(0).(*identity.Account)
	return acc, args.Error(1)
}

func (m *MockProvider) SignInWithFederated(ctx context.Context) (*identity.Account, error) {
	args := m.Called(ctx)
	acc, _ := args.Get(0).(*identity.Account)
	return acc, args.Error(1)
}

func (m *MockProvider) AttachCredential(ctx context.Context, pending identity.PendingCredential) (*identity.Account, error) {
	args := m.Called(ctx, pending)
	acc, _ := args.Get(0).(*identity.Account)
	return acc, args.Error(1)
}

func (m *MockProvider) AttachPassword(ctx context.Context, password string) (*identity.Account, error) {
	args := m.Called(ctx, password)
	acc, _ := args.Get(0).(*identity.Account)
	return acc, args.Error(1)
}

func (m *MockProvider) UpdateProfile(ctx context.Context, displayName string) (*identity.Account, error) {
	args := m.Called(ctx, displayName)
	acc, _ := args.Get(0).(*identity.Account)
	return acc, args.Error(1)
}

func (m *MockProvider) UpdatePassword(ctx context.Context, newPassword string) error {
	args := m.Called(ctx, newPassword)
	return args.Error(0)
}

func (m *MockProvider) SendPasswordReset(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockProvider) IssueCredential(ctx context.Context, forceRefresh bool) (string, error) {
	args := m.Called(ctx, forceRefresh)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) CurrentAccount() *identity.Account {
	args := m.Called()
	acc, _ := args.Get(0).(*identity.Account)
	return acc
}

func (m *MockProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var _ identity.Provider = (*MockProvider)(nil)
