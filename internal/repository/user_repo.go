package repository

import (
	"context"
	"fmt"

	"github.com/hiremind/authsync/internal/models"
)

// UserRepository stores the server-side mirror of identity provider accounts,
// keyed by subject id.
type UserRepository interface {
	// UpsertBySubject creates the record for u.SubjectID or refreshes the
	// existing one following models.UserRecord.Apply. Each call is a single
	// write; concurrent calls for one subject never duplicate a provider.
	// created reports whether a new record was inserted.
	UpsertBySubject(ctx context.Context, u models.UserUpsert) (rec *models.UserRecord, created bool, err error)

	// GetBySubject returns ErrUserNotFound if no record exists.
	GetBySubject(ctx context.Context, subjectID string) (*models.UserRecord, error)
}

// Common errors
var ErrUserNotFound = fmt.Errorf("user not found")
