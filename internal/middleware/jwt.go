package middleware

import (
	"errors"
	"net/http"

	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/models"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ContextKey is where RequireIdentity stores the verified *identity.Claims.
const ContextKey = "user"

// RequireIdentity rejects requests without a valid bearer credential and
// stores the verified claims on the context.
func RequireIdentity(verifier identity.Verifier) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  ContextKey,
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			return verifier.VerifyCredential(c.Request().Context(), token)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			log.Debug().Err(err).Str("path", c.Path()).Msg("[RequireIdentity] rejected request")
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Success: false,
				Message: CredentialErrorMessage(err),
			})
		},
	})
}

// ClaimsFrom returns the claims stored by RequireIdentity.
func ClaimsFrom(c echo.Context) (*identity.Claims, bool) {
	claims, ok := c.Get(ContextKey).(*identity.Claims)
	return claims, ok && claims != nil
}

// CredentialErrorMessage maps a credential failure to the message returned
// to the client.
func CredentialErrorMessage(err error) string {
	var extractErr *echojwt.TokenExtractionError
	switch {
	case errors.Is(err, identity.ErrExpiredCredential):
		return "Token expired. Please login again."
	case errors.Is(err, identity.ErrMissingCredential), errors.As(err, &extractErr):
		return "No token provided. Authorization header must be: Bearer <token>"
	default:
		return "Invalid token"
	}
}
