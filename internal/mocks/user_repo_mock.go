package mocks

import (
	"context"

	"github.com/hiremind/authsync/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) UpsertBySubject(ctx context.Context, u models.UserUpsert) (*models.UserRecord, bool, error) {
	args := m.Called(ctx, u)
	rec, _ := args.Get(0).(*models.UserRecord)
	return rec, args.Bool(1), args.Error(2)
}

func (m *MockUserRepository) GetBySubject(ctx context.Context, subjectID string) (*models.UserRecord, error) {
	args := m.Called(ctx, subjectID)
	rec, _ := args.Get(0).(*models.UserRecord)
	return rec, args.Error(1)
}
