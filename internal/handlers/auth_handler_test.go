package handlers_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/hiremind/authsync/internal/handlers"
	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/middleware"
	"github.com/hiremind/authsync/internal/mocks"
	"github.com/hiremind/authsync/internal/models"
	"github.com/hiremind/authsync/internal/repository"
	"github.com/hiremind/authsync/internal/server"
	"github.com/hiremind/authsync/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type authHandlerTestDeps struct {
	mockSyncService *mocks.MockSyncGenerator
	handler         *handlers.AuthHandler
	echo            *echo.Echo
}

func setupAuthHandlerTest(t *testing.T) authHandlerTestDeps {
	t.Helper()
	deps := authHandlerTestDeps{
		mockSyncService: new(mocks.MockSyncGenerator),
	}
	deps.handler = handlers.NewAuthHandler(deps.mockSyncService)
	deps.echo = echo.New()
	deps.echo.HTTPErrorHandler = server.HTTPErrorHandler
	deps.echo.POST("/login", deps.handler.Login)
	deps.echo.GET("/me", deps.handler.Me, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if sub := c.Request().Header.Get("X-Test-Subject"); sub != "" {
				c.Set(middleware.ContextKey, &identity.Claims{Subject: sub})
			}
			return next(c)
		}
	})
	return deps
}

func performRequest(e *echo.Echo, method, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthHandler_Login(t *testing.T) {
	view := &models.UserView{
		ID:            "rec-1",
		SubjectID:     "uid-1",
		Email:         "alice@example.com",
		Name:          "Alice",
		Providers:     []string{"password", "google"},
		EmailVerified: true,
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("Success", func(t *testing.T) {
		deps := setupAuthHandlerTest(t)
		deps.mockSyncService.On("SyncUser", mock.Anything, "Bearer good-token").Return(view, nil).Once()

		rec := performRequest(deps.echo, http.MethodPost, "/login", "Bearer good-token")

		require.Equal(t, http.StatusOK, rec.Code)
		var body models.SyncResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Equal(t, "Login successful", body.Message)
		assert.Equal(t, view, body.User)
		deps.mockSyncService.AssertExpectations(t)
	})

	t.Run("CredentialErrors", func(t *testing.T) {
		tests := []struct {
			name    string
			err     error
			message string
		}{
			{"Missing", identity.ErrMissingCredential, "No token provided. Authorization header must be: Bearer <token>"},
			{"Expired", identity.ErrExpiredCredential, "Token expired. Please login again."},
			{"Invalid", errors.Join(identity.ErrInvalidCredential, errors.New("bad signature")), "Invalid token"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				deps := setupAuthHandlerTest(t)
				deps.mockSyncService.On("SyncUser", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

				rec := performRequest(deps.echo, http.MethodPost, "/login", "")

				assert.Equal(t, http.StatusUnauthorized, rec.Code)
				body := decodeError(t, rec)
				assert.False(t, body.Success)
				assert.Equal(t, tt.message, body.Message)
			})
		}
	})

	t.Run("InternalError", func(t *testing.T) {
		deps := setupAuthHandlerTest(t)
		deps.mockSyncService.On("SyncUser", mock.Anything, "Bearer good-token").
			Return(nil, errors.Join(service.ErrInternal, errors.New("db down"))).Once()

		rec := performRequest(deps.echo, http.MethodPost, "/login", "Bearer good-token")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeError(t, rec)
		assert.False(t, body.Success)
		assert.Equal(t, "Server error during login", body.Message)
	})
}

func TestAuthHandler_Me(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		deps := setupAuthHandlerTest(t)
		view := &models.UserView{ID: "rec-1", SubjectID: "uid-1", Providers: []string{"google"}}
		deps.mockSyncService.On("CurrentUser", mock.Anything, &identity.Claims{Subject: "uid-1"}).Return(view, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("X-Test-Subject", "uid-1")
		rec := httptest.NewRecorder()
		deps.echo.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body models.SyncResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Equal(t, "uid-1", body.User.SubjectID)
	})

	t.Run("NotFound", func(t *testing.T) {
		deps := setupAuthHandlerTest(t)
		deps.mockSyncService.On("CurrentUser", mock.Anything, mock.Anything).Return(nil, repository.ErrUserNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("X-Test-Subject", "uid-2")
		rec := httptest.NewRecorder()
		deps.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "User not found", decodeError(t, rec).Message)
	})

	t.Run("NoClaims", func(t *testing.T) {
		deps := setupAuthHandlerTest(t)

		rec := performRequest(deps.echo, http.MethodGet, "/me", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		deps.mockSyncService.AssertNotCalled(t, "CurrentUser", mock.Anything, mock.Anything)
	})
}
