package models

import (
	"github.com/go-playground/validator/v10"
)

// MinPasswordLength is the shortest password accepted before the identity
// provider is contacted.
const MinPasswordLength = 6

var validate = validator.New()

// SyncResponse is the body of a successful POST /api/auth/login.
type SyncResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	User    *UserView `json:"user"`
}

// ErrorResponse is the failure envelope used by every endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// PasswordCredentials is an email/password pair submitted by the user.
type PasswordCredentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Validate checks the email format and the minimum password length.
func (c *PasswordCredentials) Validate() error {
	return validate.Struct(c)
}

// LoginCredentials is used where only presence is checked (existing accounts
// may predate the current password policy).
type LoginCredentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (c *LoginCredentials) Validate() error {
	return validate.Struct(c)
}

// ProfileUpdate changes the display name of the signed-in account.
type ProfileUpdate struct {
	DisplayName string `json:"displayName" validate:"required,max=128"`
}

func (p *ProfileUpdate) Validate() error {
	return validate.Struct(p)
}

// PasswordChange replaces the password of the signed-in account.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

func (p *PasswordChange) Validate() error {
	return validate.Struct(p)
}

// PasswordResetRequest asks the identity provider to mail a reset link.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *PasswordResetRequest) Validate() error {
	return validate.Struct(r)
}

// NewPassword is a password added to an account that has none.
type NewPassword struct {
	Password string `json:"password" validate:"required,min=6"`
}

func (p *NewPassword) Validate() error {
	return validate.Struct(p)
}
