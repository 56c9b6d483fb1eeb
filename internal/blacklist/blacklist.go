// Package blacklist tracks wallets tied to confirmed rug operations.
// An in-memory set serves O(1) lookups on the hot path; a durable store
// survives restarts and seeds the set at startup.
package blacklist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

// Entry is one blacklisted wallet.
type Entry struct {
	Wallet         solana.Pubkey `json:"wallet"`
	Reason         string        `json:"reason"`
	LinkedRugCount uint32        `json:"linked_rug_count"`
	AddedAt        time.Time     `json:"added_at"`
}

// Store is the durable backing for the blacklist.
type Store interface {
	// LoadAll returns every stored entry.
	LoadAll(ctx context.Context) ([]Entry, error)

	// Insert persists an entry if the wallet is not already present.
	// Returns true when the entry was newly inserted.
	Insert(ctx context.Context, e Entry) (bool, error)
}

// List is the in-memory mirror of the blacklist. Every wallet in the
// durable store is present here after New returns.
type List struct {
	store Store

	mu      sync.RWMutex
	entries map[solana.Pubkey]Entry
}

// New builds the list and warm-starts it from the durable store.
func New(ctx context.Context, store Store) (*List, error) {
	l := &List{
		store:   store,
		entries: make(map[solana.Pubkey]Entry),
	}

	stored, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("blacklist: warm start: %w", err)
	}
	for _, e := range stored {
		l.entries[e.Wallet] = e
	}

	log.Info().Int("entries", len(stored)).Msg("blacklist: loaded from store")
	return l, nil
}

// Contains reports whether a wallet is blacklisted.
func (l *List) Contains(wallet solana.Pubkey) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[wallet]
	return ok
}

// Get returns the entry for a wallet, if present.
func (l *List) Get(wallet solana.Pubkey) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[wallet]
	return e, ok
}

// Len returns the number of blacklisted wallets.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Add inserts a wallet with the given reason, idempotently. Returns true
// when the wallet was newly added. The memory set is the source of truth
// for dedup; the durable write happens inside the same critical section
// so two concurrent adds of one wallet produce exactly one entry.
func (l *List) Add(ctx context.Context, wallet solana.Pubkey, reason string, linkedRugs uint32) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[wallet]; ok {
		return false, nil
	}

	entry := Entry{
		Wallet:         wallet,
		Reason:         reason,
		LinkedRugCount: linkedRugs,
		AddedAt:        time.Now(),
	}

	if _, err := l.store.Insert(ctx, entry); err != nil {
		return false, fmt.Errorf("blacklist: persist %s: %w", wallet.Short(), err)
	}

	l.entries[wallet] = entry
	log.Warn().
		Str("wallet", wallet.Short()).
		Str("reason", reason).
		Uint32("linked_rugs", linkedRugs).
		Msg("blacklist: wallet added")
	return true, nil
}
