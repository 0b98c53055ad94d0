package services

import (
	"context"
	"sync"

	"github.com/AnshRaj112/eyeglaze/internal/models"
	"go.uber.org/zap"
)

// IdentityStore is the durable side of a Session.
type IdentityStore interface {
	Save(ctx context.Context, identity *models.Identity) error
	Load(ctx context.Context) (*models.Identity, bool)
	Clear(ctx context.Context) error
}

// Session holds the single active identity in memory and mirrors it into an
// IdentityStore. It is created once at startup and handed to the components
// that need to know who is signed in.
type Session struct {
	mu      sync.RWMutex
	current *models.Identity
	store   IdentityStore
	log     *zap.Logger
}

// NewSession restores any previously stored identity.
func NewSession(ctx context.Context, store IdentityStore, log *zap.Logger) *Session {
	s := &Session{store: store, log: log}
	if identity, ok := store.Load(ctx); ok {
		s.current = identity
		log.Info("restored session", zap.String("email", identity.Email))
	}
	return s
}

// Current returns a copy of the active identity.
func (s *Session) Current() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.Identity{}, false
	}
	return *s.current, true
}

// SignIn replaces the active identity. A failed durable write is logged; the
// in-memory identity stays usable for this process.
func (s *Session) SignIn(ctx context.Context, identity models.Identity) {
	s.mu.Lock()
	s.current = &identity
	s.mu.Unlock()

	if err := s.store.Save(ctx, &identity); err != nil {
		s.log.Warn("failed to persist session", zap.String("email", identity.Email), zap.Error(err))
	}
}

// SignOut forgets the active identity in memory and in the store.
func (s *Session) SignOut(ctx context.Context) {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		s.log.Warn("failed to clear stored session", zap.Error(err))
	}
}
