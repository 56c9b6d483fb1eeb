// Package scorer aggregates every per-token risk signal into one
// bounded security score with a pass/fail verdict.
package scorer

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sentinel-trading/sentinel/internal/creator"
	"github.com/sentinel-trading/sentinel/internal/holders"
	"github.com/sentinel-trading/sentinel/internal/mint"
	"github.com/sentinel-trading/sentinel/internal/riskapi"
	"github.com/sentinel-trading/sentinel/internal/solana"
)

// Config configures scoring thresholds.
type Config struct {
	BaseScore              int  `yaml:"base_score"`
	MinScore               int  `yaml:"min_score"`
	DisqualifyActiveFreeze bool `yaml:"disqualify_active_freeze"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseScore:              50,
		MinScore:               60,
		DisqualifyActiveFreeze: false,
	}
}

// WatchSignals are observation-window signals supplied by the pool
// watcher. Zero values are neutral.
type WatchSignals struct {
	Stability        float64 `json:"stability"` // 0..1, price stability over the window
	HiddenWhaleCount int     `json:"hidden_whale_count"`
	TxVelocity       float64 `json:"tx_velocity"` // txs per second
	WashPenalty      int     `json:"wash_penalty"`
}

// Input joins the outputs of the leaf analyzers for one pool.
// Nil pointers mean that signal was unavailable.
type Input struct {
	Pool    solana.PoolInfo
	Mint    *mint.Account
	Holders holders.Metrics
	Risk    *riskapi.Report
	Creator *creator.Profile
	Watch   WatchSignals

	// HoneypotCleared is set when a sell simulation confirmed the token
	// can be sold. Absence is neutral, never a bonus.
	HoneypotCleared bool
}

// Checks records every sub-signal that went into a score, both for
// audit logging and as the entry classifier's feature source.
type Checks struct {
	MintAuthorityRevoked   bool     `json:"mint_authority_revoked"`
	FreezeAuthorityRevoked bool     `json:"freeze_authority_revoked"`
	MintDataAvailable      bool     `json:"mint_data_available"`
	DangerousExtensions    []string `json:"dangerous_extensions,omitempty"`
	HoneypotCleared        bool     `json:"honeypot_cleared"`
	LiquidityUSD           float64  `json:"liquidity_usd"`
	ReserveSOL             float64  `json:"reserve_sol"`
	TopHolderPct           float64  `json:"top_holder_pct"`
	Top5Pct                float64  `json:"top5_pct"`
	HolderCount            int      `json:"holder_count"`
	HolderHHI              float64  `json:"holder_hhi"`
	LPBurned               bool     `json:"lp_burned"`
	RiskDataAvailable      bool     `json:"risk_data_available"`
	RiskScore              int      `json:"risk_score"`
	Rugged                 bool     `json:"rugged"`
	InsidersDetected       int      `json:"insiders_detected"`
	LPLocked               bool     `json:"lp_locked"`
	BundlePenalty          int      `json:"bundle_penalty"`
	CreatorDataAvailable   bool     `json:"creator_data_available"`
	WalletAgeSeconds       int64    `json:"wallet_age_seconds"`
	CreatorTxCount         int32    `json:"creator_tx_count"`
	ReputationScore        int      `json:"reputation_score"`
	FundingTraced          bool     `json:"funding_traced"`
	IsGraduated            bool     `json:"is_graduated"`
	GraduationTimeS        int64    `json:"graduation_time_s"`
	Stability              float64  `json:"stability"`
	HiddenWhaleCount       int      `json:"hidden_whale_count"`
	TxVelocity             float64  `json:"tx_velocity"`
	WashPenalty            int      `json:"wash_penalty"`
}

// SecurityResult is the scorer's verdict for one pool.
type SecurityResult struct {
	Score  int      `json:"score"` // clamped 0..100
	Passed bool     `json:"passed"`
	Flags  []string `json:"flags,omitempty"`
	Checks Checks   `json:"checks"`
}

// Scorer computes security scores. Pure: identical inputs always yield
// identical results.
type Scorer struct {
	config Config
}

// New creates a scorer.
func New(config Config) *Scorer {
	return &Scorer{config: config}
}

// Score aggregates all signals into a SecurityResult. Missing signals
// contribute their documented neutral value; missing holder data is the
// one fail-closed exception and scores as maximal concentration.
func (s *Scorer) Score(input Input) SecurityResult {
	res := SecurityResult{
		Score:  s.config.BaseScore,
		Checks: buildChecks(input),
	}
	disqualified := false

	// Authority checks (two independent signals). Unavailable mint data
	// is neutral here; the caller decides graduated-pool fallbacks.
	if input.Mint != nil {
		if input.Mint.MintAuthorityRevoked {
			res.Score += 10
		} else {
			res.Score -= 30
			res.Flags = append(res.Flags, "mint_authority_active")
		}
		if input.Mint.FreezeAuthorityRevoked {
			res.Score += 10
		} else {
			res.Score -= 20
			res.Flags = append(res.Flags, "freeze_authority_active")
			if s.config.DisqualifyActiveFreeze {
				disqualified = true
			}
		}
		if input.Mint.HasDangerousExtension() {
			res.Score -= 80
			disqualified = true
			for _, name := range input.Mint.ExtensionNames() {
				res.Flags = append(res.Flags, "extension_"+name)
			}
		}
	} else {
		res.Flags = append(res.Flags, "mint_data_unavailable")
	}

	// Honeypot confirmation: cleared is a bonus, unknown is neutral.
	if input.HoneypotCleared {
		res.Score += 5
	}

	// Liquidity tiers.
	liq := input.Pool.LiquidityUSD
	switch {
	case liq.GreaterThanOrEqual(decimal.NewFromInt(50_000)):
		res.Score += 15
	case liq.GreaterThanOrEqual(decimal.NewFromInt(10_000)):
		res.Score += 10
	case liq.GreaterThanOrEqual(decimal.NewFromInt(5_000)):
		res.Score += 5
	case liq.LessThan(decimal.NewFromInt(1_000)):
		res.Score -= 10
		res.Flags = append(res.Flags, "liquidity_dust")
	}

	// Holder concentration, fail-closed on missing data.
	h := input.Holders
	if h.Unavailable() {
		res.Score -= 25
		res.Flags = append(res.Flags, "holder_data_unavailable")
	} else {
		switch {
		case h.TopHolderPct <= 10:
			res.Score += 10
		case h.TopHolderPct <= 20:
			res.Score += 5
		case h.TopHolderPct > 60:
			res.Score -= 25
			res.Flags = append(res.Flags, "top_holder_dominant")
		case h.TopHolderPct > 40:
			res.Score -= 15
			res.Flags = append(res.Flags, "top_holder_heavy")
		}
		if h.HolderCount >= 30 {
			res.Score += 5
		} else if h.HolderCount < 10 {
			res.Score -= 10
			res.Flags = append(res.Flags, "few_holders")
		}
		if h.HHI > 0.5 {
			res.Score -= 10
			res.Flags = append(res.Flags, "holder_hhi_high")
		}
	}

	// LP burn confirmation.
	if input.Pool.LPBurned {
		res.Score += 10
	}

	// External risk. No data is neutral.
	if input.Risk != nil {
		if input.Risk.Rugged {
			res.Score -= 60
			disqualified = true
			res.Flags = append(res.Flags, "confirmed_rug")
		} else if input.Risk.Score >= 80 {
			res.Score += 10
		} else if input.Risk.Score <= 30 {
			res.Score -= 15
			res.Flags = append(res.Flags, "external_risk_low_score")
		}
		if n := input.Risk.InsidersDetected; n > 0 {
			penalty := 5 * n
			if penalty > 20 {
				penalty = 20
			}
			res.Score -= penalty
			res.Flags = append(res.Flags, fmt.Sprintf("insiders_%d", n))
		}
		if input.Risk.LPLocked {
			res.Score += 5
		}
	}

	// Coordinated-launch penalty from the detector.
	if input.Pool.BundlePenalty > 0 {
		res.Score -= input.Pool.BundlePenalty
		res.Flags = append(res.Flags, "bundled_launch")
	}

	// Observation-window signals. The whale count merges the static
	// clustering result with whatever the watcher saw live.
	res.Score -= input.Watch.WashPenalty
	if hiddenWhaleCount(input) > 2 {
		res.Score -= 10
		res.Flags = append(res.Flags, "hidden_whales")
	}

	// Creator reputation adjustment. No profile is neutral.
	if input.Creator != nil {
		res.Score += input.Creator.ReputationScore
		if input.Creator.IsKnownScammerNetwork {
			res.Flags = append(res.Flags, "scammer_network")
		}
		if input.Creator.FanOut != nil {
			res.Flags = append(res.Flags, "funder_fan_out")
		}
	}

	if res.Score < 0 {
		res.Score = 0
	}
	if res.Score > 100 {
		res.Score = 100
	}

	res.Passed = res.Score >= s.config.MinScore && !disqualified
	return res
}

// hiddenWhaleCount is the stronger of the holder-snapshot clustering
// count and the watcher's live count.
func hiddenWhaleCount(input Input) int {
	if input.Holders.HiddenWhaleCount > input.Watch.HiddenWhaleCount {
		return input.Holders.HiddenWhaleCount
	}
	return input.Watch.HiddenWhaleCount
}

func buildChecks(input Input) Checks {
	c := Checks{
		HoneypotCleared:  input.HoneypotCleared,
		BundlePenalty:    input.Pool.BundlePenalty,
		LPBurned:         input.Pool.LPBurned,
		IsGraduated:      input.Pool.IsGraduated(),
		GraduationTimeS:  input.Pool.GraduationTimeS,
		TopHolderPct:     input.Holders.TopHolderPct,
		Top5Pct:          input.Holders.Top5Pct,
		HolderCount:      input.Holders.HolderCount,
		HolderHHI:        input.Holders.HHI,
		Stability:        input.Watch.Stability,
		HiddenWhaleCount: hiddenWhaleCount(input),
		TxVelocity:       input.Watch.TxVelocity,
		WashPenalty:      input.Watch.WashPenalty,
	}
	c.LiquidityUSD, _ = input.Pool.LiquidityUSD.Float64()
	c.ReserveSOL, _ = input.Pool.ReserveSOL.Float64()

	if input.Mint != nil {
		c.MintDataAvailable = true
		c.MintAuthorityRevoked = input.Mint.MintAuthorityRevoked
		c.FreezeAuthorityRevoked = input.Mint.FreezeAuthorityRevoked
		c.DangerousExtensions = input.Mint.ExtensionNames()
	}
	if input.Risk != nil {
		c.RiskDataAvailable = true
		c.RiskScore = input.Risk.Score
		c.Rugged = input.Risk.Rugged
		c.InsidersDetected = input.Risk.InsidersDetected
		c.LPLocked = input.Risk.LPLocked
	}
	if input.Creator != nil {
		c.CreatorDataAvailable = true
		c.WalletAgeSeconds = input.Creator.WalletAgeSeconds
		c.CreatorTxCount = input.Creator.TxCount
		c.ReputationScore = input.Creator.ReputationScore
		c.FundingTraced = input.Creator.FundingSource != ""
	}
	return c
}
