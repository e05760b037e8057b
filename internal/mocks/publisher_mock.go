package mocks

import (
	"context"

	"github.com/hiremind/authsync/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishUserSynced(ctx context.Context, evt models.UserSyncedEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
