package devbackend

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const AnalysesCollection = "analyses"

// Analysis is the stored association of a user, an image and a verdict.
type Analysis struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username        string             `bson:"username" json:"username"`
	HasStress       bool               `bson:"has_stress" json:"hasStress"`
	ImageURL        string             `bson:"image_url" json:"imageUrl"`
	ConfidenceLevel float64            `bson:"confidence_level" json:"confidenceLevel"`
	CreatedAt       time.Time          `bson:"created_at" json:"createdAt"`
}

type AnalysisRepository interface {
	Insert(ctx context.Context, a *Analysis) error
}

type insertOner interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoAnalyses stores analyses in a MongoDB collection.
type MongoAnalyses struct {
	col insertOner
}

func NewMongoAnalyses(col insertOner) *MongoAnalyses {
	return &MongoAnalyses{col: col}
}

func (s *MongoAnalyses) Insert(ctx context.Context, a *Analysis) error {
	res, err := s.col.InsertOne(ctx, a)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		a.ID = id
	}
	return nil
}

// EnsureAnalysisIndexes indexes analyses by user, newest first.
func EnsureAnalysisIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(AnalysesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("idx_username_created"),
	})
	return err
}
