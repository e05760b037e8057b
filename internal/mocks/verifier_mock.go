package mocks

import (
	"context"

	"github.com/hiremind/authsync/internal/identity"
	"github.com/stretchr/testify/mock"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyCredential(ctx context.Context, token string) (*identity.Claims, error) {
	args := m.Called(ctx, token)
	claims, _ := args.Get(0).(*identity.Claims)
	return claims, args.Error(1)
}
