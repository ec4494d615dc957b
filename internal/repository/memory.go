package repository

import (
	"context"
	"sync"
	"time"

	"marketplace/internal/models"
)

const claimSweepInterval = time.Minute

type expiring struct {
	session   *models.Session
	expiresAt time.Time
}

// MemorySessionRepository is the in-process fallback used when Redis is down.
type MemorySessionRepository struct {
	sessions sync.Map
	mu       sync.Mutex
	claims    map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (r *MemorySessionRepository) SaveSession(_ context.Context, session *models.Session, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = r.now().Add(ttl)
	}
	copied := *session
	r.sessions.Store(session.ID, expiring{session: &copied, expiresAt: exp})
	return nil
}

func (r *MemorySessionRepository) GetSession(_ context.Context, id string) (*models.Session, error) {
	val, ok := r.sessions.Load(id)
	if !ok {
		return nil, nil
	}
	entry := val.(expiring)
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.sessions.Delete(id)
		return nil, nil
	}
	copied := *entry.session
	return &copied, nil
}

func (r *MemorySessionRepository) DeleteSession(_ context.Context, id string) error {
	r.sessions.Delete(id)
	return nil
}

func (r *MemorySessionRepository) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) > claimSweepInterval {
		r.sweepClaimsLocked(now)
	}
	if exp, ok := r.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	r.claims[key] = now.Add(ttl)
	return true, nil
}

func (r *MemorySessionRepository) Release(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims, key)
	return nil
}

// ClaimCount is the number of keys currently held, expired ones included
// until the next sweep.
func (r *MemorySessionRepository) ClaimCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claims)
}

func (r *MemorySessionRepository) sweepClaimsLocked(now time.Time) {
	for key, exp := range r.claims {
		if !now.Before(exp) {
			delete(r.claims, key)
		}
	}
	r.lastSweep = now
}
