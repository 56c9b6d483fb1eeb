// Package honeypot learns byte-level signatures from confirmed rugs
// and scans new mint accounts against them. Every loss teaches the
// engine a pattern it will refuse a second time.
package honeypot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

// Signature is one learned rug pattern over raw mint account bytes.
type Signature struct {
	PatternID  string        `json:"pattern_id"`
	Pattern    []byte        `json:"pattern"`
	Confidence float64       `json:"confidence"` // grows with hit count
	HitCount   int           `json:"hit_count"`
	FirstSeen  int64         `json:"first_seen"`
	LastSeen   int64         `json:"last_seen"`
	SampleMint solana.Pubkey `json:"sample_mint"`
}

// Config configures the pattern tracker.
type Config struct {
	// MinConfidence gates Scan matches: patterns below it are still
	// tracked but not reported.
	MinConfidence float64 `yaml:"min_confidence"`

	// MinHitsForHighConf is the hit count at which confidence caps out.
	MinHitsForHighConf int `yaml:"min_hits_for_high"`

	// MaxPatterns bounds the pattern DB; the stalest pattern is
	// evicted once the bound is hit.
	MaxPatterns int `yaml:"max_patterns"`

	// PatternBytes is the window of the extension region sampled as
	// the pattern. Buffers shorter than the base mint layout plus this
	// window teach nothing.
	PatternBytes int `yaml:"pattern_bytes"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence:      0.3,
		MinHitsForHighConf: 5,
		MaxPatterns:        2000,
		PatternBytes:       32,
	}
}

// Tracker holds the learned pattern DB. Safe for concurrent use.
type Tracker struct {
	config Config

	mu         sync.RWMutex
	signatures map[string]*Signature

	// Stats.
	rugsRecorded atomic.Int64
	scanHits     atomic.Int64
}

// NewTracker creates an empty pattern tracker.
func NewTracker(config Config) *Tracker {
	if config.PatternBytes <= 0 {
		config.PatternBytes = DefaultConfig().PatternBytes
	}
	if config.MaxPatterns <= 0 {
		config.MaxPatterns = DefaultConfig().MaxPatterns
	}
	return &Tracker{
		config:     config,
		signatures: make(map[string]*Signature),
	}
}

// RecordRug teaches the tracker from a confirmed rug's mint account
// bytes. Returns the signature that was created or reinforced, or nil
// when the buffer is too short to extract a stable pattern.
func (t *Tracker) RecordRug(mint solana.Pubkey, data []byte) *Signature {
	t.rugsRecorded.Add(1)

	pattern := extractPattern(data, t.config.PatternBytes)
	if pattern == nil {
		return nil
	}

	sum := sha256.Sum256(pattern)
	id := hex.EncodeToString(sum[:8])
	now := time.Now().Unix()

	t.mu.Lock()
	defer t.mu.Unlock()

	if sig, ok := t.signatures[id]; ok {
		sig.HitCount++
		sig.LastSeen = now
		sig.Confidence = confidence(sig.HitCount, t.config.MinHitsForHighConf)
		return sig
	}

	if len(t.signatures) >= t.config.MaxPatterns {
		t.evictStalest()
	}

	sig := &Signature{
		PatternID:  id,
		Pattern:    pattern,
		Confidence: confidence(1, t.config.MinHitsForHighConf),
		HitCount:   1,
		FirstSeen:  now,
		LastSeen:   now,
		SampleMint: mint,
	}
	t.signatures[id] = sig
	log.Info().
		Str("pattern_id", id).
		Str("mint", mint.Short()).
		Msg("Learned new rug pattern")
	return sig
}

// Scan checks mint account bytes against the learned patterns and
// returns the highest-confidence match at or above MinConfidence.
func (t *Tracker) Scan(data []byte) *Signature {
	if len(data) == 0 {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *Signature
	for _, sig := range t.signatures {
		if sig.Confidence < t.config.MinConfidence {
			continue
		}
		if !bytes.Contains(data, sig.Pattern) {
			continue
		}
		if best == nil || sig.Confidence > best.Confidence {
			best = sig
		}
	}
	if best != nil {
		t.scanHits.Add(1)
		copied := *best
		return &copied
	}
	return nil
}

// PatternCount returns the number of learned patterns.
func (t *Tracker) PatternCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.signatures)
}

// Stats is a tracker stats snapshot.
type Stats struct {
	Patterns     int   `json:"patterns"`
	RugsRecorded int64 `json:"rugs_recorded"`
	ScanHits     int64 `json:"scan_hits"`
}

// Stats returns a snapshot of tracker counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		Patterns:     t.PatternCount(),
		RugsRecorded: t.rugsRecorded.Load(),
		ScanHits:     t.scanHits.Load(),
	}
}

// extractPattern samples the start of the Token-2022 extension region,
// where rug mechanics live. The fixed base layout is skipped: it is
// near-identical across all mints and would match everything.
func extractPattern(data []byte, window int) []byte {
	const baseLen = 83
	if len(data) < baseLen+window {
		return nil
	}
	pattern := make([]byte, window)
	copy(pattern, data[baseLen:baseLen+window])
	return pattern
}

// confidence maps a hit count onto 0.3..0.9.
func confidence(hits, highAt int) float64 {
	if highAt <= 1 || hits >= highAt {
		return 0.9
	}
	return 0.3 + 0.6*float64(hits-1)/float64(highAt-1)
}

func (t *Tracker) evictStalest() {
	var stalestID string
	var stalest int64
	for id, sig := range t.signatures {
		if stalestID == "" || sig.LastSeen < stalest {
			stalestID = id
			stalest = sig.LastSeen
		}
	}
	if stalestID != "" {
		delete(t.signatures, stalestID)
	}
}
