package router

import (
	"github.com/hiremind/authsync/internal/handlers"
	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/middleware"
	"github.com/labstack/echo/v4"
)

func SetupAuthRoutes(e *echo.Echo, authHandler *handlers.AuthHandler, verifier identity.Verifier) {
	api := e.Group("/api/auth")

	api.POST("/login", authHandler.Login)                                // Verify credential, upsert user record
	api.GET("/me", authHandler.Me, middleware.RequireIdentity(verifier)) // Stored record of the caller
}
