package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hiremind/authsync/internal/events"
	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/logger"
	"github.com/hiremind/authsync/internal/models"
	"github.com/hiremind/authsync/internal/repository"
	"github.com/rs/zerolog/log"
)

var _ SyncGenerator = (*syncService)(nil)

type syncService struct {
	verifier  identity.Verifier
	userRepo  repository.UserRepository
	publisher events.Publisher
	now       func() time.Time
}

func NewSyncService(verifier identity.Verifier, userRepo repository.UserRepository, publisher events.Publisher) *syncService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &syncService{
		verifier:  verifier,
		userRepo:  userRepo,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *syncService) SyncUser(ctx context.Context, authHeader string) (*models.UserView, error) {
	token, err := identity.ParseBearer(authHeader)
	if err != nil {
		return nil, err
	}

	claims, err := s.verifier.VerifyCredential(ctx, token)
	if err != nil {
		log.Warn().Err(err).Str("tokenPrefix", logger.TokenPrefix(token, 10)).Msg("[SyncService.SyncUser] credential rejected")
		return nil, err
	}

	rec, created, err := s.userRepo.UpsertBySubject(ctx, claims.Upsert())
	if err != nil {
		log.Error().Err(err).Str("subject", claims.Subject).Msg("[SyncService.SyncUser] failed to persist user")
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	log.Info().
		Str("subject", rec.SubjectID).
		Str("provider", string(claims.Provider)).
		Strs("providers", rec.Providers.Strings()).
		Bool("created", created).
		Msg("[SyncService.SyncUser] user synced")

	evt := events.NewUserSyncedEvent(rec, claims.Provider, created, s.now())
	if err := s.publisher.PublishUserSynced(ctx, evt); err != nil {
		log.Warn().Err(err).Str("subject", rec.SubjectID).Msg("[SyncService.SyncUser] failed to publish user.synced")
	}

	return rec.View(), nil
}

func (s *syncService) CurrentUser(ctx context.Context, claims *identity.Claims) (*models.UserView, error) {
	rec, err := s.userRepo.GetBySubject(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return rec.View(), nil
}
