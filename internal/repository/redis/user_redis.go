package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hiremind/authsync/internal/models"
	"github.com/hiremind/authsync/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const maxUpsertRetries = 25

// RedisUserRepository implements UserRepository using Redis. Each record is a
// JSON document under user:<subject>, updated with WATCH/MULTI.
type RedisUserRepository struct {
	client *redis.Client
	now    func() time.Time
}

var _ repository.UserRepository = (*RedisUserRepository)(nil)

// Helper to construct user key
func makeUserKey(subjectID string) string {
	return fmt.Sprintf("user:%s", subjectID)
}

func NewRedisUserRepository(client *redis.Client) *RedisUserRepository {
	return &RedisUserRepository{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *RedisUserRepository) UpsertBySubject(ctx context.Context, u models.UserUpsert) (*models.UserRecord, bool, error) {
	if u.SubjectID == "" {
		return nil, false, errors.New("invalid user data: subject id must be set")
	}
	key := makeUserKey(u.SubjectID)

	var (
		rec     *models.UserRecord
		created bool
	)
	txf := func(tx *redis.Tx) error {
		jsonData, err := tx.Get(ctx, key).Bytes()
		now := r.now()
		switch {
		case errors.Is(err, redis.Nil):
			rec = models.NewUserRecord(uuid.NewString(), u, now)
			created = true
		case err != nil:
			return fmt.Errorf("redis GET failed: %w", err)
		default:
			rec = &models.UserRecord{}
			if err := json.Unmarshal(jsonData, rec); err != nil {
				return fmt.Errorf("json unmarshal failed: %w", err)
			}
			rec.Apply(u, now)
			created = false
		}

		encoded, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpsertRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return rec, created, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Str("key", key).Int("attempt", attempt).Msg("user upsert raced, retrying")
			continue
		}
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil, false, fmt.Errorf("failed to upsert user %s: too much contention", u.SubjectID)
}

func (r *RedisUserRepository) GetBySubject(ctx context.Context, subjectID string) (*models.UserRecord, error) {
	jsonData, err := r.client.Get(ctx, makeUserKey(subjectID)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var rec models.UserRecord
	if err := json.Unmarshal(jsonData, &rec); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}
	return &rec, nil
}
