package blacklist

import (
	"context"
	"sync"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

// MemoryStore is an in-process Store for tests and stub runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[solana.Pubkey]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[solana.Pubkey]Entry)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) LoadAll(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, e Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Wallet]; ok {
		return false, nil
	}
	s.entries[e.Wallet] = e
	return true, nil
}

// Seed preloads entries, for warm-start tests and manual seeding.
func (s *MemoryStore) Seed(entries ...Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.Wallet] = e
	}
}
