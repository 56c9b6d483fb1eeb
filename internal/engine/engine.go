// Package engine is the facade over the risk decision engine: it fans
// out the per-pool analysis branches, joins them into a scored verdict
// plus classifier second opinion, and exposes the position-lifecycle
// hooks the trading layer calls at open and close.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sentinel-trading/sentinel/internal/audit"
	"github.com/sentinel-trading/sentinel/internal/creator"
	"github.com/sentinel-trading/sentinel/internal/history"
	"github.com/sentinel-trading/sentinel/internal/holders"
	"github.com/sentinel-trading/sentinel/internal/honeypot"
	"github.com/sentinel-trading/sentinel/internal/mint"
	"github.com/sentinel-trading/sentinel/internal/mltree"
	"github.com/sentinel-trading/sentinel/internal/observability"
	"github.com/sentinel-trading/sentinel/internal/riskapi"
	"github.com/sentinel-trading/sentinel/internal/scorer"
	"github.com/sentinel-trading/sentinel/internal/solana"
)

// Analysis branch names, used in metrics and degradation reporting.
const (
	BranchMint    = "mint"
	BranchHolders = "holders"
	BranchRisk    = "risk"
	BranchCreator = "creator"
)

// DataQuality distinguishes a confident verdict from one built on too
// little data. Callers wanting a conservative policy treat
// insufficient data as unsafe; the engine does not make that call.
type DataQuality string

const (
	QualityConfident    DataQuality = "confident"
	QualityInsufficient DataQuality = "insufficient_data"
)

// Config configures the engine facade.
type Config struct {
	// Per-branch timeouts. A branch that exceeds its timeout degrades
	// to its documented fallback without delaying the others.
	MintTimeout    time.Duration `yaml:"mint_timeout"`
	HolderTimeout  time.Duration `yaml:"holder_timeout"`
	CreatorTimeout time.Duration `yaml:"creator_timeout"`

	// GraduatedAuthorityFallback assumes revoked authorities when mint
	// data is gone for a graduated pool (the curve closes the account).
	GraduatedAuthorityFallback bool `yaml:"graduated_authority_fallback"`

	// MaxHolderSnapshot bounds the ranked holder list fetched per pool.
	MaxHolderSnapshot int `yaml:"max_holder_snapshot"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MintTimeout:                5 * time.Second,
		HolderTimeout:              5 * time.Second,
		CreatorTimeout:             12 * time.Second,
		GraduatedAuthorityFallback: true,
		MaxHolderSnapshot:          20,
	}
}

// EntryEvaluation is the complete verdict for one detected pool.
type EntryEvaluation struct {
	EvaluationID string                `json:"evaluation_id"`
	TokenMint    solana.Pubkey         `json:"token_mint"`
	Security     scorer.SecurityResult `json:"security"`
	Classifier   mltree.EntryDecision  `json:"classifier"`
	Creator      *creator.Profile      `json:"creator,omitempty"`

	// HoneypotMatch is set when the mint bytes match a learned rug
	// pattern. Any match vetoes approval.
	HoneypotMatch *honeypot.Signature `json:"honeypot_match,omitempty"`

	// Approved is the joined verdict: the scorer passed, the
	// classifier did not block, and no rug pattern matched.
	Approved bool `json:"approved"`

	Quality        DataQuality   `json:"quality"`
	FailedBranches []string      `json:"failed_branches,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Engine wires the analyzers together. Safe for concurrent use; one
// instance serves all pools.
type Engine struct {
	config   Config
	rpc      solana.RPCClient
	risk     *riskapi.Client
	tracer   *creator.Tracer
	scorer   *scorer.Scorer
	entry    *mltree.EntryClassifier
	exit     *mltree.ExitClassifier
	store    history.Store
	trail    *audit.Trail
	metrics  *observability.Metrics
	patterns *honeypot.Tracker

	// Last tracer counters forwarded to prometheus.
	seenCacheHits   atomic.Int64
	seenCacheMisses atomic.Int64
	seenPromotions  atomic.Int64
}

// New creates an engine. trail and metrics may be nil to disable
// auditing and metric export.
func New(config Config, rpc solana.RPCClient, risk *riskapi.Client, tracer *creator.Tracer,
	sc *scorer.Scorer, entry *mltree.EntryClassifier, exit *mltree.ExitClassifier,
	store history.Store, trail *audit.Trail, metrics *observability.Metrics) *Engine {
	if config.MaxHolderSnapshot <= 0 {
		config.MaxHolderSnapshot = DefaultConfig().MaxHolderSnapshot
	}
	return &Engine{
		config:   config,
		rpc:      rpc,
		risk:     risk,
		tracer:   tracer,
		scorer:   sc,
		entry:    entry,
		exit:     exit,
		store:    store,
		trail:    trail,
		metrics:  metrics,
		patterns: honeypot.NewTracker(honeypot.DefaultConfig()),
	}
}

// SetPatternTracker replaces the default rug pattern tracker, for
// callers that share one across restarts or want custom gating.
func (e *Engine) SetPatternTracker(t *honeypot.Tracker) { e.patterns = t }

// EvaluateEntry runs the full entry analysis for a pool evaluated at
// detection time, before any observation window exists.
func (e *Engine) EvaluateEntry(ctx context.Context, pool solana.PoolInfo) EntryEvaluation {
	return e.EvaluateEntryObserved(ctx, pool, scorer.WatchSignals{}, false)
}

// EvaluateEntryObserved is EvaluateEntry plus the signals gathered
// while watching the pool trade (stability, tx velocity, wash and
// hidden-whale counts) and whether a sell simulation cleared the
// token. The four signal branches run concurrently, each bounded by
// its own timeout; a failed branch degrades to its documented fallback
// and never aborts the evaluation.
func (e *Engine) EvaluateEntryObserved(ctx context.Context, pool solana.PoolInfo, watch scorer.WatchSignals, honeypotCleared bool) EntryEvaluation {
	start := time.Now()
	eval := EntryEvaluation{
		EvaluationID: uuid.NewString(),
		TokenMint:    pool.TokenMint,
	}

	var (
		wg          sync.WaitGroup
		mintAcc     *mint.Account
		mintRaw     []byte
		holderStats holders.Metrics
		riskReport  *riskapi.Report
		profile     *creator.Profile

		mu     sync.Mutex
		failed []string
	)
	fail := func(branch string) {
		mu.Lock()
		failed = append(failed, branch)
		mu.Unlock()
		if e.metrics != nil {
			e.metrics.RecordBranchFailure(branch)
		}
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		mintAcc, mintRaw = e.fetchMint(ctx, pool, fail)
	}()
	go func() {
		defer wg.Done()
		holderStats = e.fetchHolders(ctx, pool.TokenMint, fail)
	}()
	go func() {
		defer wg.Done()
		riskReport = e.fetchRisk(ctx, pool.TokenMint, fail)
	}()
	go func() {
		defer wg.Done()
		profile = e.fetchCreator(ctx, pool.Creator, fail)
	}()
	wg.Wait()

	eval.Security = e.scorer.Score(scorer.Input{
		Pool:            pool,
		Mint:            mintAcc,
		Holders:         holderStats,
		Risk:            riskReport,
		Creator:         profile,
		Watch:           watch,
		HoneypotCleared: honeypotCleared,
	})
	eval.Classifier = e.ClassifyEntry(eval.Security.Checks)
	eval.Creator = profile
	if e.patterns != nil && len(mintRaw) > 0 {
		eval.HoneypotMatch = e.patterns.Scan(mintRaw)
	}
	eval.Approved = eval.Security.Passed && !eval.Classifier.Blocked && eval.HoneypotMatch == nil
	eval.FailedBranches = failed
	eval.Quality = quality(failed)
	eval.Elapsed = time.Since(start)

	verdict := "block"
	if eval.Approved {
		verdict = "pass"
	}
	if eval.Quality == QualityInsufficient {
		verdict = "insufficient"
	}
	if e.metrics != nil {
		e.metrics.RecordEvaluation(verdict, eval.Elapsed.Seconds())
		e.syncTracerMetrics()
	}
	if e.trail != nil {
		e.trail.Record(eval.EvaluationID, audit.EventEntryEvaluation, pool.TokenMint, pool.Creator, verdict, eval)
	}
	log.Info().
		Str("mint", pool.TokenMint.Short()).
		Str("evaluation_id", eval.EvaluationID).
		Int("score", eval.Security.Score).
		Bool("approved", eval.Approved).
		Str("quality", string(eval.Quality)).
		Strs("failed_branches", failed).
		Dur("elapsed", eval.Elapsed).
		Msg("Entry evaluation complete")
	return eval
}

// ClassifyEntry runs the entry classifier alone, for callers that
// already hold a checks struct.
func (e *Engine) ClassifyEntry(checks scorer.Checks) mltree.EntryDecision {
	d := e.entry.Classify(checks)
	if e.metrics != nil {
		e.metrics.RecordClassifierDecision(d.Version, string(d.Prediction))
	}
	return d
}

// EvaluateExit runs the exit classifier over a position's sample
// series. Returns nil when the history is too short to predict on.
// Advisory only: stop-loss, take-profit, and rug exits outrank it.
func (e *Engine) EvaluateExit(samples []mltree.Sample, entryPrice decimal.Decimal, securityScore int, liquidityUSD decimal.Decimal) *mltree.ExitDecision {
	d := e.exit.Predict(samples, entryPrice, securityScore, liquidityUSD)
	if d == nil {
		return nil
	}
	if e.metrics != nil {
		e.metrics.RecordExitAdvisory(string(d.Prediction), d.Overridden)
	}
	if e.trail != nil {
		e.trail.Record(uuid.NewString(), audit.EventExitAdvisory, "", "", string(d.Prediction), d)
	}
	return d
}

// RecordCreatorSighting persists the (creator, token) pair at position
// open, carrying the funding trace so future profiles can count
// shared-funder networks.
func (e *Engine) RecordCreatorSighting(ctx context.Context, creatorWallet, tokenMint solana.Pubkey) error {
	rec := history.Record{
		Creator:   creatorWallet,
		TokenMint: tokenMint,
		Outcome:   history.OutcomeUnknown,
	}
	// The profile is cached from the evaluation; a miss refetches.
	if p := e.tracer.Profile(ctx, creatorWallet); p != nil {
		rec.FundingSource = p.FundingSource
		rec.FundingSourceHop2 = p.FundingSourceHop2
	}
	return e.store.InsertIfAbsent(ctx, rec)
}

// RecordOutcome classifies a closed position by realized PnL and
// writes it back to the creator history.
func (e *Engine) RecordOutcome(ctx context.Context, tokenMint solana.Pubkey, pnlPct float64) error {
	outcome := history.OutcomeFromPnL(pnlPct)
	if err := e.store.UpdateOutcome(ctx, tokenMint, outcome, pnlPct); err != nil {
		return err
	}
	// Every confirmed rug teaches the pattern tracker. Best effort:
	// the mint account may already be closed.
	if outcome == history.OutcomeRug && e.patterns != nil {
		if acc, aerr := e.rpc.GetAccount(ctx, tokenMint); aerr == nil {
			e.patterns.RecordRug(tokenMint, acc.Data)
		}
	}
	if e.metrics != nil {
		e.metrics.RecordOutcome(string(outcome))
	}
	if e.trail != nil {
		e.trail.Record(uuid.NewString(), audit.EventOutcome, tokenMint, "", string(outcome), map[string]float64{"pnl_pct": pnlPct})
	}
	return nil
}

// ------------------------------------------------------------------
// Analysis branches
// ------------------------------------------------------------------

func (e *Engine) fetchMint(ctx context.Context, pool solana.PoolInfo, fail func(string)) (*mint.Account, []byte) {
	ctx, cancel := context.WithTimeout(ctx, e.config.MintTimeout)
	defer cancel()

	acc, err := e.rpc.GetAccount(ctx, pool.TokenMint)
	if err == nil {
		parsed, perr := mint.Parse(pool.TokenMint, acc.Data, acc.Owner)
		if perr == nil {
			return parsed, acc.Data
		}
		err = perr
	}

	// Graduated bonding curves close the mint account on migration;
	// their authorities were provably revoked at graduation.
	if pool.IsGraduated() && e.config.GraduatedAuthorityFallback {
		log.Debug().Str("mint", pool.TokenMint.Short()).Err(err).
			Msg("Mint data unavailable for graduated pool, assuming revoked authorities")
		return &mint.Account{
			Mint:                   pool.TokenMint,
			MintAuthorityRevoked:   true,
			FreezeAuthorityRevoked: true,
		}, nil
	}
	fail(BranchMint)
	return nil, nil
}

func (e *Engine) fetchHolders(ctx context.Context, tokenMint solana.Pubkey, fail func(string)) holders.Metrics {
	ctx, cancel := context.WithTimeout(ctx, e.config.HolderTimeout)
	defer cancel()

	snapshot, err := e.rpc.GetTopHolders(ctx, tokenMint, e.config.MaxHolderSnapshot)
	if err != nil || len(snapshot) == 0 {
		fail(BranchHolders)
		return holders.MaxRiskMetrics()
	}
	return holders.Analyze(snapshot)
}

func (e *Engine) fetchRisk(ctx context.Context, tokenMint solana.Pubkey, fail func(string)) *riskapi.Report {
	// The risk client carries its own per-endpoint timeouts.
	report := e.risk.Fetch(ctx, tokenMint)
	if report == nil {
		fail(BranchRisk)
		return nil
	}
	if report.InsidersDetected == 0 {
		if n := e.risk.FetchInsiderCount(ctx, tokenMint); n > 0 {
			report.InsidersDetected = n
		}
	}
	return report
}

func (e *Engine) fetchCreator(ctx context.Context, wallet solana.Pubkey, fail func(string)) *creator.Profile {
	ctx, cancel := context.WithTimeout(ctx, e.config.CreatorTimeout)
	defer cancel()

	p := e.tracer.Profile(ctx, wallet)
	if p.FetchFailed {
		fail(BranchCreator)
	}
	return p
}

// syncTracerMetrics forwards tracer counter deltas to prometheus.
// Each promotion also grows the blacklist, so the gauge follows it.
func (e *Engine) syncTracerMetrics() {
	stats := e.tracer.Stats()
	if d := stats.CacheHits - e.seenCacheHits.Swap(stats.CacheHits); d > 0 {
		e.metrics.CacheEvents.WithLabelValues("hit").Add(float64(d))
	}
	if d := stats.CacheMisses - e.seenCacheMisses.Swap(stats.CacheMisses); d > 0 {
		e.metrics.CacheEvents.WithLabelValues("miss").Add(float64(d))
	}
	if d := stats.Promotions - e.seenPromotions.Swap(stats.Promotions); d > 0 {
		e.metrics.PromotionsTotal.Add(float64(d))
		e.metrics.BlacklistSize.Add(float64(d))
	}
}

// quality marks an evaluation insufficient once two or more signal
// branches degraded: a single missing signal still leaves a usable
// picture, but with half the inputs gone the verdict is guesswork.
func quality(failed []string) DataQuality {
	if len(failed) >= 2 {
		return QualityInsufficient
	}
	return QualityConfident
}
