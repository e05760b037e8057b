package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hiremind/authsync/internal/models"
	"github.com/hiremind/authsync/internal/repository"
)

// MemoryUserRepository implements UserRepository in memory (NOT FOR PRODUCTION).
type MemoryUserRepository struct {
	users map[string]*models.UserRecord // subjectID -> record
	mutex sync.RWMutex
	now   func() time.Time
}

var _ repository.UserRepository = (*MemoryUserRepository)(nil)

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[string]*models.UserRecord),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryUserRepository) UpsertBySubject(_ context.Context, u models.UserUpsert) (*models.UserRecord, bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	rec, exists := r.users[u.SubjectID]
	if !exists {
		rec = models.NewUserRecord(uuid.NewString(), u, now)
		r.users[u.SubjectID] = rec
		return copyRecord(rec), true, nil
	}
	rec.Apply(u, now)
	return copyRecord(rec), false, nil
}

func (r *MemoryUserRepository) GetBySubject(_ context.Context, subjectID string) (*models.UserRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rec, exists := r.users[subjectID]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return copyRecord(rec), nil
}

// Count returns the number of stored records.
func (r *MemoryUserRepository) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.users)
}

func copyRecord(rec *models.UserRecord) *models.UserRecord {
	cp := *rec
	cp.Providers = append(models.Providers(nil), rec.Providers...)
	return &cp
}
