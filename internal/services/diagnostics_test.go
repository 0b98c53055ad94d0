package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeCollection struct {
	mu   sync.Mutex
	docs []interface{}
	err  error
}

func (c *fakeCollection) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.docs = append(c.docs, document)
	return &mongo.InsertOneResult{}, nil
}

func TestMongoDiagnosticsLogsAndStores(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	col := &fakeCollection{}
	d := NewMongoDiagnostics(col, zap.New(core))

	d.RecordPartialFailure(context.Background(), &PartialPipelineError{
		Username: "jane@example.com",
		ImageURL: testImageURL,
		Err:      backendError(StageSubmission, 503, "storage unavailable"),
	})
	d.Wait()

	warn := logs.FilterMessage("analysis submission failed; verdict kept").All()
	if len(warn) != 1 || warn[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warning, got %+v", logs.All())
	}
	if warn[0].ContextMap()["username"] != "jane@example.com" {
		t.Fatalf("expected username field, got %+v", warn[0].ContextMap())
	}

	if len(col.docs) != 1 {
		t.Fatalf("expected one stored record, got %d", len(col.docs))
	}
	rec := col.docs[0].(DiagnosticRecord)
	if rec.Kind != KindPartialPipeline || rec.Status != 503 || rec.ImageURL != testImageURL {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestMongoDiagnosticsStoreFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	d := NewMongoDiagnostics(&fakeCollection{err: errors.New("no primary")}, zap.New(core))

	d.RecordPartialFailure(context.Background(), &PartialPipelineError{Username: "jane@example.com", Err: errors.New("boom")})
	d.Wait()

	if logs.FilterMessage("failed to store pipeline diagnostic").Len() != 1 {
		t.Fatalf("expected store failure to be logged, got %+v", logs.All())
	}
}

func TestMongoDiagnosticsWithoutCollectionOnlyLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	d := NewMongoDiagnostics(nil, zap.New(core))
	d.RecordPartialFailure(context.Background(), &PartialPipelineError{Username: "jane@example.com", Err: errors.New("boom")})
	d.RecordPartialFailure(context.Background(), nil)
	d.Wait()

	if logs.Len() != 1 {
		t.Fatalf("expected a single log line, got %d", logs.Len())
	}
}
