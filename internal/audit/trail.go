// Package audit keeps an in-memory log of every decision the engine
// produces, for replay and post-mortem of individual tokens.
package audit

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

// Entry event types.
const (
	EventEntryEvaluation = "entry_evaluation"
	EventEntryClassifier = "entry_classifier"
	EventExitAdvisory    = "exit_advisory"
	EventOutcome         = "outcome"
)

// Entry is one audit trail record. Payload carries the full decision
// struct as JSON so offline evaluation can replay it against newer
// models.
type Entry struct {
	EvaluationID string        `json:"evaluation_id"`
	EventType    string        `json:"event_type"`
	Timestamp    time.Time     `json:"ts"`
	TokenMint    solana.Pubkey `json:"token_mint,omitempty"`
	Creator      solana.Pubkey `json:"creator,omitempty"`
	Decision     string        `json:"decision,omitempty"` // pass|block|SELL|HOLD|...
	Payload      string        `json:"payload"`
}

// Trail is a capped FIFO buffer of decision entries. Once full, the
// oldest entries are discarded. Safe for concurrent use.
type Trail struct {
	mu      sync.Mutex
	entries []Entry
	maxBuf  int
}

// NewTrail creates an audit trail holding up to maxBuf entries. A
// maxBuf of 0 disables buffering entirely.
func NewTrail(maxBuf int) *Trail {
	if maxBuf < 0 {
		maxBuf = 0
	}
	return &Trail{entries: make([]Entry, 0, maxBuf), maxBuf: maxBuf}
}

// Record appends a decision to the trail.
func (t *Trail) Record(evalID, eventType string, mint, creator solana.Pubkey, decision string, payload any) {
	entry := Entry{
		EvaluationID: evalID,
		EventType:    eventType,
		Timestamp:    time.Now(),
		TokenMint:    mint,
		Creator:      creator,
		Decision:     decision,
		Payload:      mustMarshal(payload),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxBuf == 0 {
		return
	}
	if len(t.entries) >= t.maxBuf {
		copy(t.entries, t.entries[1:])
		t.entries[len(t.entries)-1] = entry
		return
	}
	t.entries = append(t.entries, entry)
}

// Query returns all entries for one evaluation ID.
func (t *Trail) Query(evalID string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result []Entry
	for _, e := range t.entries {
		if e.EvaluationID == evalID {
			result = append(result, e)
		}
	}
	return result
}

// QueryMint returns all entries recorded for one token mint.
func (t *Trail) QueryMint(mint solana.Pubkey) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result []Entry
	for _, e := range t.entries {
		if e.TokenMint == mint {
			result = append(result, e)
		}
	}
	return result
}

// Entries returns a copy of the buffer.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]Entry, len(t.entries))
	copy(result, t.entries)
	return result
}

// Len returns the number of buffered entries.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal audit payload")
		return "{}"
	}
	return string(data)
}
