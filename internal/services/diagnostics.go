package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	DiagnosticsCollection = "pipeline_diagnostics"
	diagnosticsRetention  = 30 * 24 * time.Hour
	diagnosticsTimeout    = 5 * time.Second
)

// DiagnosticsRecorder keeps swallowed pipeline failures for later inspection.
type DiagnosticsRecorder interface {
	RecordPartialFailure(ctx context.Context, perr *PartialPipelineError)
}

// DiagnosticRecord is one stored partial failure.
type DiagnosticRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind      Kind               `bson:"kind" json:"kind"`
	Username  string             `bson:"username" json:"username"`
	ImageURL  string             `bson:"image_url" json:"image_url"`
	Error     string             `bson:"error" json:"error"`
	Status    int                `bson:"status,omitempty" json:"status,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

type insertOner interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoDiagnostics logs every partial failure and stores it in MongoDB in the
// background. A nil collection keeps the log line only.
type MongoDiagnostics struct {
	col insertOner
	log *zap.Logger
	wg  sync.WaitGroup
}

func NewMongoDiagnostics(col insertOner, log *zap.Logger) *MongoDiagnostics {
	return &MongoDiagnostics{col: col, log: log}
}

func (d *MongoDiagnostics) RecordPartialFailure(_ context.Context, perr *PartialPipelineError) {
	if perr == nil {
		return
	}
	rec := DiagnosticRecord{
		Kind:      KindPartialPipeline,
		Username:  perr.Username,
		ImageURL:  perr.ImageURL,
		Error:     perr.Error(),
		CreatedAt: time.Now().UTC(),
	}
	var pe *PipelineError
	if errors.As(perr.Err, &pe) {
		rec.Status = pe.Status
	}

	d.log.Warn("analysis submission failed; verdict kept",
		zap.String("username", rec.Username),
		zap.String("image_url", rec.ImageURL),
		zap.Int("status", rec.Status),
		zap.Error(perr.Err))

	if d.col == nil {
		return
	}
	d.wg.Add(1)
	go func(r DiagnosticRecord) {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), diagnosticsTimeout)
		defer cancel()
		if _, err := d.col.InsertOne(ctx, r); err != nil {
			d.log.Error("failed to store pipeline diagnostic", zap.Error(err))
		}
	}(rec)
}

// Wait blocks until background writes have finished.
func (d *MongoDiagnostics) Wait() {
	d.wg.Wait()
}

// EnsureDiagnosticsIndexes expires diagnostics after the retention window.
// Called on startup after Mongo has connected.
func EnsureDiagnosticsIndexes(ctx context.Context, db *mongo.Database) error {
	col := db.Collection(DiagnosticsCollection)
	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().
				SetName("idx_created_at_ttl").
				SetExpireAfterSeconds(int32(diagnosticsRetention.Seconds())),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_username_created"),
		},
	}
	for _, m := range models {
		if _, err := col.Indexes().CreateOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
