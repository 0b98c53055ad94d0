package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/eyeglaze/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// UserKeySuffix holds the serialized current identity.
	UserKeySuffix = "user"
	// UploadKeySuffix holds the most recent upload result between upload and submission.
	UploadKeySuffix = "latestUploadResult"
	// DefaultUploadBridgeTTL bounds how long an abandoned upload result survives.
	DefaultUploadBridgeTTL = time.Hour
)

// SessionStore persists the current identity and the transient upload result
// in redis under the application's namespace.
type SessionStore struct {
	rdb       redis.Cmdable
	namespace string
	uploadTTL time.Duration
	log       *zap.Logger
}

func NewSessionStore(rdb redis.Cmdable, namespace string, uploadTTL time.Duration, log *zap.Logger) *SessionStore {
	if uploadTTL <= 0 {
		uploadTTL = DefaultUploadBridgeTTL
	}
	return &SessionStore{rdb: rdb, namespace: namespace, uploadTTL: uploadTTL, log: log}
}

func (s *SessionStore) key(suffix string) string {
	return s.namespace + ":" + suffix
}

// Save persists identity with no expiry.
func (s *SessionStore) Save(ctx context.Context, identity *models.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(UserKeySuffix), data, 0).Err(); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Load returns the stored identity. Missing, unreadable or malformed content
// is reported as absent.
func (s *SessionStore) Load(ctx context.Context) (*models.Identity, bool) {
	raw, err := s.rdb.Get(ctx, s.key(UserKeySuffix)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("session store read failed", zap.Error(err))
		}
		return nil, false
	}

	var identity models.Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		s.log.Warn("ignoring malformed stored identity", zap.Error(err))
		return nil, false
	}
	if identity.Email == "" {
		s.log.Warn("ignoring stored identity without email")
		return nil, false
	}
	return &identity, true
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key(UserKeySuffix), s.key(UploadKeySuffix)).Err()
}

// SaveUpload bridges the upload result across the analysis step.
func (s *SessionStore) SaveUpload(ctx context.Context, result *models.UploadResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode upload result: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(UploadKeySuffix), data, s.uploadTTL).Err(); err != nil {
		return fmt.Errorf("save upload result: %w", err)
	}
	return nil
}

// LoadUpload returns the bridged upload result, failing soft like Load.
func (s *SessionStore) LoadUpload(ctx context.Context) (*models.UploadResult, bool) {
	raw, err := s.rdb.Get(ctx, s.key(UploadKeySuffix)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("upload bridge read failed", zap.Error(err))
		}
		return nil, false
	}
	var result models.UploadResult
	if err := json.Unmarshal(raw, &result); err != nil || result.ImageURL == "" {
		s.log.Warn("ignoring malformed upload bridge content")
		return nil, false
	}
	return &result, true
}

func (s *SessionStore) ClearUpload(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key(UploadKeySuffix)).Err()
}
