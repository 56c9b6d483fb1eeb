// Package creator profiles token deployer wallets by walking their
// funding history, cross-referencing the blacklist and the rug history
// store, and scoring the wallet's reputation.
package creator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-trading/sentinel/internal/blacklist"
	"github.com/sentinel-trading/sentinel/internal/history"
	"github.com/sentinel-trading/sentinel/internal/solana"
)

// TracerConfig controls trace depth, thresholds and caching.
type TracerConfig struct {
	MaxHops               int           `yaml:"max_hops"`
	SignatureWindow       int           `yaml:"signature_window"`        // hops 1-2
	SignatureWindowDeep   int           `yaml:"signature_window_deep"`   // hop 3
	MinFundingLamports    int64         `yaml:"min_funding_lamports"`    // below this a decrease is fee noise
	SharedFunderThreshold int           `yaml:"shared_funder_threshold"` // auto-promote at this many deployers
	FanOutTxThreshold     int           `yaml:"fan_out_tx_threshold"`
	FanOutWindow          time.Duration `yaml:"fan_out_window"`
	FanOutMinLamports     int64         `yaml:"fan_out_min_lamports"`
	CacheTTL              time.Duration `yaml:"cache_ttl"`
	CacheMaxSize          int           `yaml:"cache_max_size"`
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		MaxHops:               3,
		SignatureWindow:       50,
		SignatureWindowDeep:   20,
		MinFundingLamports:    10_000,
		SharedFunderThreshold: 2,
		FanOutTxThreshold:     15,
		FanOutWindow:          5 * time.Minute,
		FanOutMinLamports:     10_000_000, // 0.01 SOL
		CacheTTL:              10 * time.Minute,
		CacheMaxSize:          1000,
	}
}

// FanOutSignal describes a sybil pre-funding pattern: one funder
// spraying near-identical amounts to many wallets in a short burst.
type FanOutSignal struct {
	TxCount       int   `json:"tx_count"`
	WindowSeconds int64 `json:"window_seconds"`
	UniformAmount int64 `json:"uniform_amount"` // mean of the sampled outflows
	SampleAmount1 int64 `json:"sample_amount_1"`
	SampleAmount2 int64 `json:"sample_amount_2"`
}

// Profile is the per-deployer risk assessment.
type Profile struct {
	Wallet                solana.Pubkey `json:"wallet"`
	WalletAgeSeconds      int64         `json:"wallet_age_seconds"` // -1 = unknown
	TxCount               int32         `json:"tx_count"`
	SOLBalance            float64       `json:"sol_balance"`
	FundingSource         solana.Pubkey `json:"funding_source,omitempty"`
	FundingSourceHop2     solana.Pubkey `json:"funding_source_hop2,omitempty"`
	FundingNetworkSize    uint32        `json:"funding_network_size"`
	IsKnownScammerNetwork bool          `json:"is_known_scammer_network"`
	IsNewWallet           bool          `json:"is_new_wallet"`
	FetchFailed           bool          `json:"fetch_failed"`
	FanOut                *FanOutSignal `json:"fan_out,omitempty"`
	ReputationScore       int           `json:"reputation_score"` // -25..+10
	ReputationReason      string        `json:"reputation_reason"`
	FetchedAt             time.Time     `json:"fetched_at"`
}

// Tracer builds creator profiles. Safe for concurrent use; distinct
// wallets are profiled independently.
type Tracer struct {
	config TracerConfig
	rpc    solana.AccountSource
	store  history.Store
	bl     *blacklist.List

	mu    sync.RWMutex
	cache map[solana.Pubkey]*Profile

	// Stats.
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	promotions  atomic.Int64
	fanOutsSeen atomic.Int64
}

// NewTracer creates a creator network tracer.
func NewTracer(config TracerConfig, rpc solana.AccountSource, store history.Store, bl *blacklist.List) *Tracer {
	return &Tracer{
		config: config,
		rpc:    rpc,
		store:  store,
		bl:     bl,
		cache:  make(map[solana.Pubkey]*Profile),
	}
}

// Profile returns the risk profile for a deployer wallet. Cache hits
// short-circuit all RPC work. Any partial failure degrades to scoring
// whatever was gathered; a total fetch failure yields a neutral profile.
func (t *Tracer) Profile(ctx context.Context, wallet solana.Pubkey) *Profile {
	if cached := t.cached(wallet); cached != nil {
		t.cacheHits.Add(1)
		return cached
	}
	t.cacheMisses.Add(1)

	profile := t.build(ctx, wallet)
	t.storeCache(wallet, profile)
	return profile
}

func (t *Tracer) cached(wallet solana.Pubkey) *Profile {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.cache[wallet]; ok && time.Since(p.FetchedAt) < t.config.CacheTTL {
		return p
	}
	return nil
}

func (t *Tracer) storeCache(wallet solana.Pubkey, p *Profile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache[wallet] = p

	// Opportunistic eviction once the cache outgrows its bound; only
	// expired entries are removed.
	if len(t.cache) > t.config.CacheMaxSize {
		for k, v := range t.cache {
			if time.Since(v.FetchedAt) >= t.config.CacheTTL {
				delete(t.cache, k)
			}
		}
	}
}

func (t *Tracer) build(ctx context.Context, wallet solana.Pubkey) *Profile {
	profile := &Profile{
		Wallet:           wallet,
		WalletAgeSeconds: -1,
		FetchedAt:        time.Now(),
	}

	sigs, err := t.rpc.GetSignatures(ctx, wallet, t.config.SignatureWindow)
	if err != nil {
		log.Debug().Err(err).Str("wallet", wallet.Short()).Msg("creator: profile fetch failed")
		profile.FetchFailed = true
		profile.ReputationReason = "profile unavailable"
		return profile
	}

	if balance, err := t.rpc.GetBalance(ctx, wallet); err == nil {
		profile.SOLBalance = float64(balance) / float64(solana.LamportsPerSOL)
	}

	if len(sigs) == 0 {
		profile.IsNewWallet = true
		profile.WalletAgeSeconds = 0
		profile.ReputationScore = -20
		profile.ReputationReason = "brand-new wallet, no history"
		return profile
	}

	profile.TxCount = int32(len(sigs))
	oldest := sigs[len(sigs)-1]
	if oldest.BlockTime > 0 {
		profile.WalletAgeSeconds = time.Now().Unix() - oldest.BlockTime
	}

	t.traceFunding(ctx, wallet, sigs, profile)

	if profile.FundingSource != "" && !profile.IsKnownScammerNetwork {
		profile.FanOut = t.detectFanOut(ctx, profile.FundingSource)
		if profile.FanOut != nil {
			t.fanOutsSeen.Add(1)
		}
	}

	profile.ReputationScore, profile.ReputationReason = t.reputation(ctx, profile)
	return profile
}

// traceFunding walks the funding chain up to MaxHops, short-circuiting
// as soon as fraud is confirmed.
func (t *Tracer) traceFunding(ctx context.Context, wallet solana.Pubkey, sigs []solana.SignatureInfo, profile *Profile) {
	current := wallet
	currentSigs := sigs

	for hop := 1; hop <= t.config.MaxHops; hop++ {
		window := t.config.SignatureWindow
		if hop == t.config.MaxHops {
			window = t.config.SignatureWindowDeep
		}
		funder := t.traceStep(ctx, current, currentSigs, window)
		if funder == "" {
			return
		}

		switch hop {
		case 1:
			profile.FundingSource = funder
		case 2:
			profile.FundingSourceHop2 = funder
		}

		if t.bl.Contains(funder) {
			profile.IsKnownScammerNetwork = true
			log.Info().
				Str("wallet", wallet.Short()).
				Str("funder", funder.Short()).
				Int("hop", hop).
				Msg("creator: funder is blacklisted")
			return
		}

		shared, err := t.store.CountCreatorsSharingFunder(ctx, funder)
		if err == nil {
			if shared > int(profile.FundingNetworkSize) {
				profile.FundingNetworkSize = uint32(shared)
			}
			if shared >= t.config.SharedFunderThreshold {
				reason := fmt.Sprintf("funder shared by %d deployers", shared)
				if added, err := t.bl.Add(ctx, funder, reason, uint32(shared)); err == nil && added {
					t.promotions.Add(1)
				}
				profile.IsKnownScammerNetwork = true
				return
			}
		}

		current = funder
		currentSigs = nil // next hop fetches its own window
	}
}

// traceStep finds who funded a wallet: in its oldest visible
// transaction, the account whose balance dropped the most, ignoring the
// wallet itself and fee-sized decreases. Empty result means the trace
// stops here.
func (t *Tracer) traceStep(ctx context.Context, wallet solana.Pubkey, sigs []solana.SignatureInfo, window int) solana.Pubkey {
	if sigs == nil {
		var err error
		sigs, err = t.rpc.GetSignatures(ctx, wallet, window)
		if err != nil || len(sigs) == 0 {
			return ""
		}
	}

	oldest := sigs[len(sigs)-1]
	deltas, err := t.rpc.GetTransactionDeltas(ctx, oldest.Signature)
	if err != nil {
		return ""
	}

	var funder solana.Pubkey
	var biggest int64
	for _, d := range deltas {
		if d.Account == wallet {
			continue
		}
		if d.Delta >= -t.config.MinFundingLamports {
			continue
		}
		if d.Delta < biggest {
			biggest = d.Delta
			funder = d.Account
		}
	}
	return funder
}

// detectFanOut checks whether the funder sprayed many near-identical
// transfers in a short burst. Best effort; any failure returns nil.
func (t *Tracer) detectFanOut(ctx context.Context, funder solana.Pubkey) *FanOutSignal {
	sigs, err := t.rpc.GetSignatures(ctx, funder, t.config.SignatureWindow)
	if err != nil || len(sigs) < t.config.FanOutTxThreshold {
		return nil
	}

	burst := t.findBurst(sigs)
	if burst == nil {
		return nil
	}

	// Sample two transactions from the burst and compare the funder's
	// outflow amounts.
	a := t.funderOutflow(ctx, funder, burst[0].Signature)
	b := t.funderOutflow(ctx, funder, burst[len(burst)/2].Signature)
	if a < t.config.FanOutMinLamports || b < t.config.FanOutMinLamports {
		return nil
	}

	hi, lo := a, b
	if lo > hi {
		hi, lo = lo, hi
	}
	if float64(hi-lo) > 0.5*float64(hi) {
		return nil
	}

	window := burst[0].BlockTime - burst[len(burst)-1].BlockTime
	uniform := (a + b) / 2
	log.Warn().
		Str("funder", funder.Short()).
		Int("tx_count", len(burst)).
		Int64("uniform_amount", uniform).
		Msg("creator: fan-out pre-funding pattern detected")

	return &FanOutSignal{
		TxCount:       len(burst),
		WindowSeconds: window,
		UniformAmount: uniform,
		SampleAmount1: a,
		SampleAmount2: b,
	}
}

// findBurst returns the first trailing window of FanOutWindow length
// containing at least FanOutTxThreshold transactions, newest first.
func (t *Tracer) findBurst(sigs []solana.SignatureInfo) []solana.SignatureInfo {
	windowS := int64(t.config.FanOutWindow / time.Second)
	for start := 0; start+t.config.FanOutTxThreshold <= len(sigs); start++ {
		end := start + t.config.FanOutTxThreshold - 1
		if sigs[start].BlockTime == 0 || sigs[end].BlockTime == 0 {
			continue
		}
		if sigs[start].BlockTime-sigs[end].BlockTime <= windowS {
			return sigs[start : end+1]
		}
	}
	return nil
}

// funderOutflow returns how many lamports the funder paid out in a
// transaction, 0 if it cannot be determined or is not a simple transfer.
func (t *Tracer) funderOutflow(ctx context.Context, funder solana.Pubkey, sig solana.Signature) int64 {
	deltas, err := t.rpc.GetTransactionDeltas(ctx, sig)
	if err != nil {
		return 0
	}
	for _, d := range deltas {
		if d.Account == funder && d.Delta < 0 {
			return -d.Delta
		}
	}
	return 0
}

// reputation applies the ordered rule cascade; the first matching major
// rule decides, minor age/balance rules stack below it.
func (t *Tracer) reputation(ctx context.Context, p *Profile) (int, string) {
	if p.FanOut != nil {
		return -25, fmt.Sprintf("funder fan-out: %d txs in %ds", p.FanOut.TxCount, p.FanOut.WindowSeconds)
	}
	if p.IsKnownScammerNetwork {
		return -20, "known scammer funding network"
	}
	if p.FundingNetworkSize >= uint32(t.config.SharedFunderThreshold) {
		return -12, fmt.Sprintf("funder shared by %d deployers", p.FundingNetworkSize)
	}
	if p.FundingSource != "" {
		if rugs, err := t.store.CountRugsSharingFunder(ctx, p.FundingSource); err == nil && rugs >= 1 {
			return -12, fmt.Sprintf("funder linked to %d prior rug(s)", rugs)
		}
	}

	age := p.WalletAgeSeconds
	switch {
	case age >= 0 && age < 10:
		return -15, "wallet created <10s before launch"
	case age >= 0 && age < 60:
		return -10, "wallet created <60s before launch"
	case age >= 0 && age < 300:
		return -6, "wallet created <5min before launch"
	}

	score := 0
	reason := "neutral"
	dayS := int64(24 * 3600)
	if age >= 0 && age < dayS && p.TxCount < 5 {
		score -= 4
		reason = "young wallet, little activity"
	}
	if age >= 0 && age < dayS && p.SOLBalance < 0.5 {
		score -= 3
		reason = "young wallet, low balance"
	}
	if score == 0 && age >= 7*dayS && p.TxCount >= 50 {
		score = 5
		reason = "established wallet"
	}
	return score, reason
}

// Stats reports tracer counters.
type Stats struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	Promotions  int64 `json:"promotions"`
	FanOutsSeen int64 `json:"fan_outs_seen"`
	CacheSize   int   `json:"cache_size"`
}

func (t *Tracer) Stats() Stats {
	t.mu.RLock()
	size := len(t.cache)
	t.mu.RUnlock()
	return Stats{
		CacheHits:   t.cacheHits.Load(),
		CacheMisses: t.cacheMisses.Load(),
		Promotions:  t.promotions.Load(),
		FanOutsSeen: t.fanOutsSeen.Load(),
		CacheSize:   size,
	}
}
