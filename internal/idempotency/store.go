// Package idempotency records which webhook deliveries have been accepted so
// that provider redeliveries are acknowledged without being processed twice.
package idempotency

import (
	"context"
	"sync"
	"time"
)

const DefaultTTL = 24 * time.Hour

type Store interface {
	// Claim reports true the first time id is seen within the TTL.
	Claim(ctx context.Context, id string) (bool, error)
	// Release forgets id so a later redelivery is processed again.
	Release(ctx context.Context, id string) error
}

// MemoryStore keeps claims in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	claims map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{claims: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) Claim(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if expires, ok := m.claims[id]; ok && now.Before(expires) {
		return false, nil
	}
	m.claims[id] = now.Add(m.ttl)
	return true, nil
}

func (m *MemoryStore) Release(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, id)
	return nil
}

// Sweep drops expired claims and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, expires := range m.claims {
		if !now.Before(expires) {
			delete(m.claims, id)
			removed++
		}
	}
	return removed
}
