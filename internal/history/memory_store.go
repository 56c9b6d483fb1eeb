package history

import (
	"context"
	"sync"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

// MemoryStore is an in-process Store for tests and stub runs.
type MemoryStore struct {
	mu      sync.RWMutex
	byMint  map[solana.Pubkey]*Record
	ordered []*Record
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byMint: make(map[solana.Pubkey]*Record)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) InsertIfAbsent(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byMint[rec.TokenMint]; ok {
		return nil
	}
	if rec.Outcome == "" {
		rec.Outcome = OutcomeUnknown
	}
	r := rec
	s.byMint[rec.TokenMint] = &r
	s.ordered = append(s.ordered, &r)
	return nil
}

func (s *MemoryStore) UpdateOutcome(_ context.Context, mint solana.Pubkey, outcome Outcome, pnlPct float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.byMint[mint]; ok {
		r.Outcome = outcome
		pnl := pnlPct
		r.PnLPct = &pnl
	}
	return nil
}

func (s *MemoryStore) CountCreatorsSharingFunder(_ context.Context, funder solana.Pubkey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creators := make(map[solana.Pubkey]bool)
	for _, r := range s.ordered {
		if r.FundingSource == funder || r.FundingSourceHop2 == funder {
			creators[r.Creator] = true
		}
	}
	return len(creators), nil
}

func (s *MemoryStore) CountRugsForCreator(_ context.Context, creator solana.Pubkey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, r := range s.ordered {
		if r.Creator == creator && r.Outcome == OutcomeRug {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountRugsSharingFunder(_ context.Context, funder solana.Pubkey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, r := range s.ordered {
		if (r.FundingSource == funder || r.FundingSourceHop2 == funder) && r.Outcome == OutcomeRug {
			count++
		}
	}
	return count, nil
}
