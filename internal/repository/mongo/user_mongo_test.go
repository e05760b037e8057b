package mongo

import (
	"testing"
	"time"

	"github.com/hiremind/authsync/internal/models"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestBuildUpsertUpdate(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("WithProfile", func(t *testing.T) {
		update := buildUpsertUpdate(models.UserUpsert{
			SubjectID:     "uid-1",
			Email:         " Alice@Example.com ",
			DisplayName:   "Alice",
			AvatarURL:     "https://img/a.png",
			EmailVerified: true,
			Provider:      models.ProviderGoogle,
		}, "id-1", now)

		assert.Equal(t, bson.M{
			"email":         "alice@example.com",
			"emailVerified": true,
			"updatedAt":     now,
			"displayName":   "Alice",
			"avatarUrl":     "https://img/a.png",
		}, update["$set"])
		assert.Equal(t, bson.M{"_id": "id-1", "subjectId": "uid-1", "createdAt": now}, update["$setOnInsert"])
		assert.Equal(t, bson.M{"providers": "google"}, update["$addToSet"])
	})

	t.Run("WithoutProfileKeepsExistingValues", func(t *testing.T) {
		update := buildUpsertUpdate(models.UserUpsert{
			SubjectID: "uid-1",
			Email:     "alice@example.com",
			Provider:  models.ProviderPassword,
		}, "id-1", now)

		set := update["$set"].(bson.M)
		assert.NotContains(t, set, "displayName")
		assert.NotContains(t, set, "avatarUrl")

		onInsert := update["$setOnInsert"].(bson.M)
		assert.Equal(t, "", onInsert["displayName"])
		assert.Equal(t, "", onInsert["avatarUrl"])
	})

	t.Run("NoFieldIsSetTwice", func(t *testing.T) {
		update := buildUpsertUpdate(models.UserUpsert{SubjectID: "uid-1", DisplayName: "A", Provider: models.ProviderPassword}, "id-1", now)
		set := update["$set"].(bson.M)
		for key := range update["$setOnInsert"].(bson.M) {
			assert.NotContains(t, set, key)
		}
		assert.NotContains(t, set, "providers")
	})
}
