package handlers

import (
	"errors"
	"net/http"

	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/middleware"
	"github.com/hiremind/authsync/internal/models"
	"github.com/hiremind/authsync/internal/repository"
	"github.com/hiremind/authsync/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type AuthHandler struct {
	SyncService service.SyncGenerator
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(syncService service.SyncGenerator) *AuthHandler {
	return &AuthHandler{
		SyncService: syncService,
	}
}

// Login verifies the bearer credential and creates or refreshes the caller's
// user record.
func (h *AuthHandler) Login(c echo.Context) error {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)

	view, err := h.SyncService.SyncUser(c.Request().Context(), authHeader)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrMissingCredential),
			errors.Is(err, identity.ErrExpiredCredential),
			errors.Is(err, identity.ErrInvalidCredential):
			return echo.NewHTTPError(http.StatusUnauthorized, middleware.CredentialErrorMessage(err))
		default:
			log.Error().Err(err).Msg("[AuthHandler.Login] sync failed")
			return echo.NewHTTPError(http.StatusInternalServerError, "Server error during login")
		}
	}

	return c.JSON(http.StatusOK, models.SyncResponse{
		Success: true,
		Message: "Login successful",
		User:    view,
	})
}

// Me returns the stored record of the authenticated caller.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	view, err := h.SyncService.CurrentUser(c.Request().Context(), claims)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		log.Error().Err(err).Str("subject", claims.Subject).Msg("[AuthHandler.Me] lookup failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Server error")
	}

	return c.JSON(http.StatusOK, models.SyncResponse{Success: true, User: view})
}
