package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const defaultMongoDatabase = "eyeglaze"

// Mongo bundles a connected client with the database named in the URI.
type Mongo struct {
	Client *mongo.Client
	DB     *mongo.Database
}

func ConnectMongo(ctx context.Context, mongoURI string, log *zap.Logger) (*Mongo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(mongoURI)
	// Atlas clusters can take a while to elect a primary after a cold start.
	clientOptions.SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	name := MongoDatabaseName(mongoURI)
	log.Info("connected to mongodb", zap.String("database", name))
	return &Mongo{Client: client, DB: client.Database(name)}, nil
}

// MongoDatabaseName extracts the database from mongodb://host/<name>?opts,
// falling back to the default name.
func MongoDatabaseName(mongoURI string) string {
	rest := mongoURI
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return defaultMongoDatabase
	}
	name := strings.SplitN(rest[slash+1:], "?", 2)[0]
	if name == "" {
		return defaultMongoDatabase
	}
	return name
}

func (m *Mongo) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.Client.Disconnect(ctx)
}
