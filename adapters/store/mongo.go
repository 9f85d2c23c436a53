package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/domain/repositories"
)

const defaultMongoCollection = "voice_sessions"

// ConnectMongo opens and pings a MongoDB client
func ConnectMongo(ctx context.Context, uri string, logger *zap.Logger) (*mongo.Client, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(4).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if logger != nil {
		logger.Info("Successfully connected to MongoDB")
	}
	return client, nil
}

// MongoStore keeps one document per profile, keyed by the profile name
type MongoStore struct {
	collection *mongo.Collection
	profile    string
	now        func() time.Time
}

type sessionDocument struct {
	Profile   string    `bson:"_id"`
	SessionID string    `bson:"session_id"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore creates a store for profile in db
func NewMongoStore(db *mongo.Database, profile string) *MongoStore {
	if profile == "" {
		profile = "default"
	}
	return &MongoStore{
		collection: db.Collection(defaultMongoCollection),
		profile:    profile,
		now:        time.Now,
	}
}

// Get implements repositories.SessionRepository
func (s *MongoStore) Get(ctx context.Context) (string, error) {
	var doc sessionDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": s.profile}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", repositories.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session: %w", err)
	}
	if doc.SessionID == "" {
		return "", repositories.ErrSessionNotFound
	}
	return doc.SessionID, nil
}

// Put implements repositories.SessionRepository
func (s *MongoStore) Put(ctx context.Context, id string) error {
	update := bson.M{"$set": bson.M{
		"session_id": id,
		"updated_at": s.now(),
	}}
	opts := options.Update().SetUpsert(true)
	if _, err := s.collection.UpdateOne(ctx, bson.M{"_id": s.profile}, update, opts); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Delete implements repositories.SessionRepository
func (s *MongoStore) Delete(ctx context.Context) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": s.profile}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
