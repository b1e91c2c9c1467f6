package deadLetterRepo

import (
	"context"
	"fmt"
	"time"

	"staybook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DeadLetterRepository interface {
	// Save stores a letter; saving the same id twice keeps one document.
	Save(ctx context.Context, letter *models.DeadLetter) error
}

type MongoDeadLetterRepo struct {
	coll *mongo.Collection
}

func NewMongoDeadLetterRepo(coll *mongo.Collection) *MongoDeadLetterRepo {
	return &MongoDeadLetterRepo{coll: coll}
}

func (r *MongoDeadLetterRepo) Save(ctx context.Context, letter *models.DeadLetter) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"id": letter.ID}, letter, opts); err != nil {
		return fmt.Errorf("error saving dead letter %s: %w", letter.ID, err)
	}
	return nil
}

// EnsureIndexes creates the necessary indexes on the dead letter collection.
func (r *MongoDeadLetterRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		{
			Keys:    bson.D{{Key: "bookingId", Value: 1}, {Key: "archivedAt", Value: -1}},
			Options: options.Index().SetName("booking_archived_idx"),
		},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create dead letter indexes: %w", err)
	}
	return nil
}
