package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoCacheDocument struct {
	Key       string `bson:"_id"`
	Value     []byte `bson:"value"`
	UpdatedAt int64  `bson:"updated_at"`
}

// MongoDBBackend stores records in the cache_entries collection, keyed by _id.
type MongoDBBackend struct {
	collection *mongo.Collection
}

// NewMongoDBBackend binds the backend to database.cache_entries.
func NewMongoDBBackend(database *mongo.Database) (*MongoDBBackend, error) {
	if database == nil {
		return nil, errors.New("database is required")
	}
	return &MongoDBBackend{collection: database.Collection("cache_entries")}, nil
}

func (b *MongoDBBackend) Name() string { return "mongodb" }

func (b *MongoDBBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var doc mongoCacheDocument
	err := b.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query cache entry: %w", err)
	}
	return doc.Value, true, nil
}

func (b *MongoDBBackend) Set(ctx context.Context, key string, value []byte) error {
	doc := mongoCacheDocument{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UnixMilli(),
	}
	_, err := b.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (b *MongoDBBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Close is a no-op; the client belongs to the storage layer.
func (b *MongoDBBackend) Close() error { return nil }
