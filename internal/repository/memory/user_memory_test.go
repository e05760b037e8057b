package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/hiremind/authsync/internal/models"
	"github.com/hiremind/authsync/internal/repository"
	"github.com/hiremind/authsync/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passwordSync(subject string) models.UserUpsert {
	return models.UserUpsert{
		SubjectID: subject,
		Email:     "alice@example.com",
		Provider:  models.ProviderPassword,
	}
}

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateThenGet", func(t *testing.T) {
		repo := memory.NewMemoryUserRepository()
		rec, created, err := repo.UpsertBySubject(ctx, passwordSync("uid-1"))
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, models.Providers{models.ProviderPassword}, rec.Providers)

		got, err := repo.GetBySubject(ctx, "uid-1")
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	})

	t.Run("GetUserNotFound", func(t *testing.T) {
		repo := memory.NewMemoryUserRepository()
		_, err := repo.GetBySubject(ctx, "nonexistent")
		require.Error(t, err)
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
	})

	t.Run("IdempotentResync", func(t *testing.T) {
		repo := memory.NewMemoryUserRepository()
		first, _, err := repo.UpsertBySubject(ctx, passwordSync("uid-1"))
		require.NoError(t, err)
		second, created, err := repo.UpsertBySubject(ctx, passwordSync("uid-1"))
		require.NoError(t, err)

		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, models.Providers{models.ProviderPassword}, second.Providers)
		assert.Equal(t, 1, repo.Count())
	})

	t.Run("ProviderAccumulation", func(t *testing.T) {
		repo := memory.NewMemoryUserRepository()
		_, _, err := repo.UpsertBySubject(ctx, passwordSync("uid-1"))
		require.NoError(t, err)

		google := passwordSync("uid-1")
		google.Provider = models.ProviderGoogle
		google.DisplayName = "Alice"
		rec, _, err := repo.UpsertBySubject(ctx, google)
		require.NoError(t, err)

		assert.Equal(t, models.Providers{models.ProviderPassword, models.ProviderGoogle}, rec.Providers)
		assert.Equal(t, "Alice", rec.DisplayName)
	})

	t.Run("ConcurrentSyncsKeepOneRecord", func(t *testing.T) {
		repo := memory.NewMemoryUserRepository()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				u := passwordSync("uid-1")
				if i%2 == 0 {
					u.Provider = models.ProviderGoogle
				}
				_, _, err := repo.UpsertBySubject(ctx, u)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		rec, err := repo.GetBySubject(ctx, "uid-1")
		require.NoError(t, err)
		assert.Len(t, rec.Providers, 2)
		assert.Equal(t, 1, repo.Count())
	})
}
