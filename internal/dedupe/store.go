package dedupe

import (
	"context"
	"sync"
	"time"
)

// Store remembers ids of messages that were already processed successfully.
type Store interface {
	Exists(ctx context.Context, messageID string) bool
	Add(ctx context.Context, messageID string) error
}

// InMemoryStore is a simple in-memory implementation with TTL expiry
type InMemoryStore struct {
	mu    sync.RWMutex
	store map[string]time.Time
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return newInMemoryStore(ttl, time.Minute)
}

func newInMemoryStore(ttl, sweep time.Duration) *InMemoryStore {
	s := &InMemoryStore{
		store: make(map[string]time.Time),
		ttl:   ttl,
		done:  make(chan struct{}),
	}
	go s.cleanup(sweep)
	return s
}

func (s *InMemoryStore) Exists(_ context.Context, messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, exists := s.store[messageID]
	return exists && time.Now().Before(expiry)
}

func (s *InMemoryStore) Add(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[messageID] = time.Now().Add(s.ttl)
	return nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.store)
}

// Close stops the background sweeper.
func (s *InMemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *InMemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *InMemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, expiry := range s.store {
		if now.After(expiry) {
			delete(s.store, id)
		}
	}
}
