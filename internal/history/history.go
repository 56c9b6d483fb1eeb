// Package history persists per-token creator records: which wallet
// deployed which mint, how it was funded, and how the trade ended.
package history

import (
	"context"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

// Outcome is the final classification of a traded token.
type Outcome string

const (
	OutcomeUnknown   Outcome = "unknown"
	OutcomeRug       Outcome = "rug"
	OutcomeWinner    Outcome = "winner"
	OutcomeLoser     Outcome = "loser"
	OutcomeBreakeven Outcome = "breakeven"
)

// OutcomeFromPnL classifies a closed position by its realized PnL.
func OutcomeFromPnL(pnlPct float64) Outcome {
	switch {
	case pnlPct <= -80:
		return OutcomeRug
	case pnlPct >= 50:
		return OutcomeWinner
	case pnlPct <= -10:
		return OutcomeLoser
	default:
		return OutcomeBreakeven
	}
}

// Record is one (creator, token) row. Outcome and PnL are written once,
// when the position closes; rows are never deleted.
type Record struct {
	Creator           solana.Pubkey `json:"creator"`
	TokenMint         solana.Pubkey `json:"token_mint"`
	Outcome           Outcome       `json:"outcome"`
	PnLPct            *float64      `json:"pnl_pct,omitempty"`
	FundingSource     solana.Pubkey `json:"funding_source,omitempty"`
	FundingSourceHop2 solana.Pubkey `json:"funding_source_hop2,omitempty"`
}

// Store is the persistent history backing. Lookups are point queries on
// indexed columns and must stay cheap enough for the analysis hot path.
type Store interface {
	// InsertIfAbsent records a (creator, token) sighting. Existing rows
	// are left untouched.
	InsertIfAbsent(ctx context.Context, rec Record) error

	// UpdateOutcome sets the outcome and PnL for a token's record.
	UpdateOutcome(ctx context.Context, mint solana.Pubkey, outcome Outcome, pnlPct float64) error

	// CountCreatorsSharingFunder counts distinct creators whose hop-1 or
	// hop-2 funding source is the given wallet.
	CountCreatorsSharingFunder(ctx context.Context, funder solana.Pubkey) (int, error)

	// CountRugsForCreator counts confirmed rugs deployed by a creator.
	CountRugsForCreator(ctx context.Context, creator solana.Pubkey) (int, error)

	// CountRugsSharingFunder counts confirmed rugs among creators funded
	// by the given wallet.
	CountRugsSharingFunder(ctx context.Context, funder solana.Pubkey) (int, error)
}
