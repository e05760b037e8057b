// Package mongo keeps user records in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hiremind/authsync/internal/models"
	"github.com/hiremind/authsync/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// MongoUserRepository implements UserRepository on a users collection with a
// unique index on subjectId.
type MongoUserRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ repository.UserRepository = (*MongoUserRepository)(nil)

// Connect opens a client for uri and pings the server.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

// NewMongoUserRepository ensures the subjectId index exists.
func NewMongoUserRepository(ctx context.Context, db *mongo.Database) (*MongoUserRepository, error) {
	coll := db.Collection(usersCollection)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "subjectId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user indexes: %w", err)
	}
	return &MongoUserRepository{
		coll: coll,
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}, nil
}

func (r *MongoUserRepository) UpsertBySubject(ctx context.Context, u models.UserUpsert) (*models.UserRecord, bool, error) {
	newID := primitive.NewObjectID().Hex()
	update := buildUpsertUpdate(u, newID, r.now())
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var rec models.UserRecord
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"subjectId": u.SubjectID}, update, opts).Decode(&rec)
	if mongo.IsDuplicateKeyError(err) {
		// Two first syncs raced on the insert; the loser becomes an update.
		err = r.coll.FindOneAndUpdate(ctx, bson.M{"subjectId": u.SubjectID}, update, opts).Decode(&rec)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &rec, rec.ID == newID, nil
}

func (r *MongoUserRepository) GetBySubject(ctx context.Context, subjectID string) (*models.UserRecord, error) {
	var rec models.UserRecord
	err := r.coll.FindOne(ctx, bson.M{"subjectId": subjectID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by subject: %w", err)
	}
	return &rec, nil
}

// buildUpsertUpdate expresses models.UserRecord.Apply as one update document.
// Display name and avatar go to $setOnInsert when the credential has none so
// an existing value survives.
func buildUpsertUpdate(u models.UserUpsert, newID string, now time.Time) bson.M {
	set := bson.M{
		"email":         models.NormalizeEmail(u.Email),
		"emailVerified": u.EmailVerified,
		"updatedAt":     now,
	}
	onInsert := bson.M{
		"_id":       newID,
		"subjectId": u.SubjectID,
		"createdAt": now,
	}
	if u.DisplayName != "" {
		set["displayName"] = u.DisplayName
	} else {
		onInsert["displayName"] = ""
	}
	if u.AvatarURL != "" {
		set["avatarUrl"] = u.AvatarURL
	} else {
		onInsert["avatarUrl"] = ""
	}
	return bson.M{
		"$set":         set,
		"$setOnInsert": onInsert,
		"$addToSet":    bson.M{"providers": string(u.Provider)},
	}
}
