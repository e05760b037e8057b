package mocks

import (
	"context"

	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockSyncGenerator struct {
	mock.Mock
}

func (m *MockSyncGenerator) SyncUser(ctx context.Context, authHeader string) (*models.UserView, error) {
	args := m.Called(ctx, authHeader)
	view, _ := args.Get(0).(*models.UserView)
	return view, args.Error(1)
}

func (m *MockSyncGenerator) CurrentUser(ctx context.Context, claims *identity.Claims) (*models.UserView, error) {
	args := m.Called(ctx, claims)
	view, _ := args.Get(0).(*models.UserView)
	return view, args.Error(1)
}
