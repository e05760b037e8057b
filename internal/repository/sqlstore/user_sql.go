package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hiremind/authsync/internal/models"
	"github.com/hiremind/authsync/internal/repository"
	"github.com/jmoiron/sqlx"
)

const (
	upsertUserQuery = `
		INSERT INTO users (id, subject_id, email, display_name, avatar_url, email_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_id) DO UPDATE SET
		    email = excluded.email,
		    display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE users.display_name END,
		    avatar_url = CASE WHEN excluded.avatar_url <> '' THEN excluded.avatar_url ELSE users.avatar_url END,
		    email_verified = excluded.email_verified,
		    updated_at = excluded.updated_at
		RETURNING id
	`

	addProviderQuery = `
		INSERT INTO user_providers (subject_id, provider)
		VALUES (?, ?)
		ON CONFLICT (subject_id, provider) DO NOTHING
	`

	selectUserQuery = `
		SELECT id, subject_id, email, display_name, avatar_url, email_verified, created_at, updated_at
		FROM users
		WHERE subject_id = ?
	`

	selectProvidersQuery = `
		SELECT provider FROM user_providers
		WHERE subject_id = ?
		ORDER BY id ASC
	`
)

// SQLUserRepository implements UserRepository with a users table and an
// ordered user_providers table.
type SQLUserRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ repository.UserRepository = (*SQLUserRepository)(nil)

func NewSQLUserRepository(db *sqlx.DB) *SQLUserRepository {
	return &SQLUserRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// UpsertBySubject runs the record upsert and the provider append in one transaction.
func (r *SQLUserRepository) UpsertBySubject(ctx context.Context, u models.UserUpsert) (*models.UserRecord, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	newID := uuid.NewString()
	var id string
	err = tx.QueryRowxContext(ctx, tx.Rebind(upsertUserQuery),
		newID,
		u.SubjectID,
		models.NormalizeEmail(u.Email),
		u.DisplayName,
		u.AvatarURL,
		u.EmailVerified,
		now,
		now,
	).Scan(&id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(addProviderQuery), u.SubjectID, string(u.Provider)); err != nil {
		return nil, false, fmt.Errorf("failed to add provider: %w", err)
	}

	var rec models.UserRecord
	if err := tx.GetContext(ctx, &rec, tx.Rebind(selectUserQuery), u.SubjectID); err != nil {
		return nil, false, fmt.Errorf("failed to reload user: %w", err)
	}
	if rec.Providers, err = loadProviders(ctx, tx, u.SubjectID); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit user upsert: %w", err)
	}
	return &rec, id == newID, nil
}

func (r *SQLUserRepository) GetBySubject(ctx context.Context, subjectID string) (*models.UserRecord, error) {
	var rec models.UserRecord
	err := r.db.GetContext(ctx, &rec, r.db.Rebind(selectUserQuery), subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by subject: %w", err)
	}

	if rec.Providers, err = loadProviders(ctx, r.db, subjectID); err != nil {
		return nil, err
	}
	return &rec, nil
}

func loadProviders(ctx context.Context, q sqlx.QueryerContext, subjectID string) (models.Providers, error) {
	var raw []string
	if err := sqlx.SelectContext(ctx, q, &raw, sqlx.Rebind(bindTypeOf(q), selectProvidersQuery), subjectID); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	providers := make(models.Providers, 0, len(raw))
	for _, p := range raw {
		providers = append(providers, models.ProviderKind(p))
	}
	return providers, nil
}

func bindTypeOf(q sqlx.QueryerContext) int {
	if d, ok := q.(interface{ DriverName() string }); ok {
		return sqlx.BindType(d.DriverName())
	}
	return sqlx.QUESTION
}
