package solana

import (
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// Pubkey is a Solana public key (base58 string).
type Pubkey string

// Signature is a Solana transaction signature.
type Signature string

// IsValid reports whether the pubkey decodes to the expected 32 bytes.
func (p Pubkey) IsValid() bool {
	raw, err := base58.Decode(string(p))
	return err == nil && len(raw) == 32
}

// Short returns a truncated form of the pubkey for log output.
func (p Pubkey) Short() string {
	if len(p) > 8 {
		return string(p[:8])
	}
	return string(p)
}

// Well-known program IDs and mints.
const (
	TokenProgramID     Pubkey = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID Pubkey = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	SOLMint            Pubkey = "So11111111111111111111111111111111111111112"

	// LamportsPerSOL is the number of base units per SOL.
	LamportsPerSOL = 1_000_000_000
)

// ---------------------------------------------------------------------------
// Account & transaction types
// ---------------------------------------------------------------------------

// AccountData is the raw state of an on-chain account.
type AccountData struct {
	Address  Pubkey `json:"address"`
	Owner    Pubkey `json:"owner"` // owning program
	Data     []byte `json:"-"`
	Lamports uint64 `json:"lamports"`
}

// SignatureInfo describes one historical transaction signature for an address.
type SignatureInfo struct {
	Signature Signature `json:"signature"`
	BlockTime int64     `json:"block_time"` // unix seconds, 0 = unknown
	Failed    bool      `json:"failed"`
}

// BalanceDelta is the lamport change of one account within a transaction.
// Negative delta means the account paid out.
type BalanceDelta struct {
	Account Pubkey `json:"account"`
	Delta   int64  `json:"delta"`
}

// ---------------------------------------------------------------------------
// Token & pool types
// ---------------------------------------------------------------------------

// HolderInfo describes a token holder, ranked by balance.
type HolderInfo struct {
	Address    Pubkey          `json:"address"`
	Balance    decimal.Decimal `json:"balance"`
	Percentage float64         `json:"percentage"` // % of total supply
}

// PoolInfo describes a detected liquidity pool under evaluation.
type PoolInfo struct {
	PoolAddress     Pubkey          `json:"pool_address"`
	Source          string          `json:"source"` // pumpswap|raydium|unknown
	TokenMint       Pubkey          `json:"token_mint"`
	QuoteMint       Pubkey          `json:"quote_mint"`
	Creator         Pubkey          `json:"creator"`
	LiquidityUSD    decimal.Decimal `json:"liquidity_usd"`
	ReserveSOL      decimal.Decimal `json:"reserve_sol"`
	PriceUSD        decimal.Decimal `json:"price_usd"`
	LPBurned        bool            `json:"lp_burned"`
	BundlePenalty   int             `json:"bundle_penalty"` // coordinated-launch penalty from detection
	GraduationTimeS int64           `json:"graduation_time_s"`
	CreatedAt       time.Time       `json:"created_at"`
}

// IsGraduated reports whether the pool came from a graduated bonding curve.
// Mint account data may already be closed for these; callers apply the
// revoked-authority fallback.
func (p PoolInfo) IsGraduated() bool {
	return p.Source == "pumpswap"
}
