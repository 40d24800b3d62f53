package history

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alchemy-app/backend/internal/models"
)

// MongoConfig holds the connection parameters for the Mongo-backed
// repository.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// MongoRepository stores each conversation as one document in a
// conversations collection, for deployments that already run Mongo instead
// of the default file store.
type MongoRepository struct {
	client        *mongo.Client
	conversations *mongo.Collection
}

func NewMongoRepository(ctx context.Context, cfg MongoConfig) (*MongoRepository, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("history: mongo uri is required")
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("history: mongo connect: %w", err)
	}

	database := client.Database(cfg.Database)
	return &MongoRepository{
		client:        client,
		conversations: database.Collection("conversations"),
	}, nil
}

func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("history: ensure conversation index: %w", err)
	}

	return nil
}

func (r *MongoRepository) Load(ctx context.Context) ([]*models.Conversation, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := r.conversations.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("history: mongo find: %w", err)
	}
	defer cursor.Close(ctx)

	var conversations []*models.Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("history: mongo decode: %w", err)
	}

	return conversations, nil
}

func (r *MongoRepository) Upsert(ctx context.Context, conversation *models.Conversation) error {
	if conversation == nil || conversation.ID == "" {
		return fmt.Errorf("history: conversation id is required")
	}

	filter := bson.M{"_id": conversation.ID}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.conversations.ReplaceOne(ctx, filter, conversation, opts); err != nil {
		return fmt.Errorf("history: mongo upsert: %w", err)
	}

	return nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.conversations.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("history: mongo delete: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *MongoRepository) Clear(ctx context.Context) error {
	if _, err := r.conversations.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("history: mongo clear: %w", err)
	}
	return nil
}

func (r *MongoRepository) Close(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.client.Disconnect(ctx)
}

func timeoutOrDefault(value time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return 10 * time.Second
}
