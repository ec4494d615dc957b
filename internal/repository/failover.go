package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"marketplace/internal/models"

	"github.com/rs/zerolog"
)

// SessionStore is what the failover wrapper needs from each backend.
type SessionStore interface {
	SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const recoveryInterval = time.Minute

// FailoverSessionRepository routes to the primary store and switches to the
// fallback on the first primary error, probing the primary again after a minute.
type FailoverSessionRepository struct {
	primary   SessionStore
	fallback  SessionStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverSessionRepository(primary, fallback SessionStore, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSessionRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary session store failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary reports whether the call should go to the primary store.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverSessionRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary session store recovered")
	}
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SaveSession(ctx, session, ttl)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveSession(ctx, session, ttl)
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if r.usePrimary() {
		session, err := r.primary.GetSession(ctx, id)
		if err == nil {
			r.recovered()
			if session != nil {
				return session, nil
			}
			// Sessions issued while the primary was down live only in the fallback.
			return r.fallback.GetSession(ctx, id)
		}
		r.markDown(err)
	}
	return r.fallback.GetSession(ctx, id)
}

func (r *FailoverSessionRepository) DeleteSession(ctx context.Context, id string) error {
	// Both stores may hold the session.
	_ = r.fallback.DeleteSession(ctx, id)
	if r.usePrimary() {
		err := r.primary.DeleteSession(ctx, id)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverSessionRepository) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.Claim(ctx, key, ttl)
		if err == nil {
			r.recovered()
			return ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.Claim(ctx, key, ttl)
}

func (r *FailoverSessionRepository) Release(ctx context.Context, key string) error {
	// The key may have been claimed on either store.
	_ = r.fallback.Release(ctx, key)
	if r.usePrimary() {
		err := r.primary.Release(ctx, key)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}
