package mltree

import (
	"github.com/rs/zerolog/log"

	"github.com/sentinel-trading/sentinel/internal/scorer"
)

// Entry feature vector layout. Order is frozen per model version; the
// node tables below index into it.
const (
	featLiquidityUSD = iota
	featTopHolderPct
	featHolderCount
	featRiskScore
	featLPBurned
	featWalletAgeS
	featCreatorTxCount
	featReputationScore
	featIsGraduated
	featReserveSOL
	featFundingTraced
	featGraduationTimeS
	featBundlePenalty
	featInsidersDetected
	featStability
	featHiddenWhaleCount
	featTxVelocity
	featWashPenalty
	entryFeatureCount
)

var entryFeatureNames = []string{
	"liquidity_usd",
	"top_holder_pct",
	"holder_count",
	"risk_score",
	"lp_burned",
	"wallet_age_s",
	"creator_tx_count",
	"reputation_score",
	"is_graduated",
	"reserve_sol",
	"funding_traced",
	"graduation_time_s",
	"bundle_penalty",
	"insiders_detected",
	"stability",
	"hidden_whale_count",
	"tx_velocity",
	"wash_penalty",
}

// entryTreeV7 is the frozen entry model. Leaf node IDs encode the
// model version, the node index, and the leaf's training sample count.
var entryTreeV7 = mustTree("v7", Metadata{
	Version:         7,
	TrainingSamples: 346,
	PositiveSamples: 131,
	NegativeSamples: 215,
	CVF1:            0.78,
	TemporalF1:      0.71,
	FeatureNames:    entryFeatureNames,
}, []Node{
	{Feature: featLiquidityUSD, Threshold: 1500, Left: 1, Right: 8},
	{Feature: featWalletAgeS, Threshold: 120, Left: 2, Right: 3},
	{Leaf: &Leaf{Label: LabelRug, Confidence: 0.93, NodeID: "v7_n2_41s"}},
	{Feature: featRiskScore, Threshold: 45, Left: 4, Right: 5},
	{Leaf: &Leaf{Label: LabelRug, Confidence: 0.81, NodeID: "v7_n4_27s"}},
	{Feature: featTopHolderPct, Threshold: 32, Left: 6, Right: 7},
	{Leaf: &Leaf{Label: LabelSafe, Confidence: 0.62, NodeID: "v7_n6_18s"}},
	{Leaf: &Leaf{Label: LabelRug, Confidence: 0.74, NodeID: "v7_n7_22s"}},
	{Feature: featReputationScore, Threshold: -17.5, Left: 9, Right: 12},
	{Feature: featHiddenWhaleCount, Threshold: 1.5, Left: 10, Right: 11},
	{Leaf: &Leaf{Label: LabelRug, Confidence: 0.71, NodeID: "v7_n10_33s"}},
	{Leaf: &Leaf{Label: LabelRug, Confidence: 0.88, NodeID: "v7_n11_26s"}},
	{Feature: featTopHolderPct, Threshold: 28, Left: 13, Right: 16},
	{Feature: featRiskScore, Threshold: 35, Left: 14, Right: 15},
	{Leaf: &Leaf{Label: LabelRug, Confidence: 0.66, NodeID: "v7_n14_19s"}},
	{Leaf: &Leaf{Label: LabelSafe, Confidence: 0.84, NodeID: "v7_n15_104s"}},
	{Feature: featHolderCount, Threshold: 12, Left: 17, Right: 18},
	{Leaf: &Leaf{Label: LabelRug, Confidence: 0.77, NodeID: "v7_n17_25s"}},
	{Leaf: &Leaf{Label: LabelSafe, Confidence: 0.58, NodeID: "v7_n18_31s"}},
})

// EntryConfig configures the entry classifier's block gate.
type EntryConfig struct {
	// MinBlockConfidence gates the block decision: a rug prediction
	// below this confidence passes the token through.
	MinBlockConfidence float64 `yaml:"min_block_confidence"`
}

// DefaultEntryConfig returns production defaults.
func DefaultEntryConfig() EntryConfig {
	return EntryConfig{MinBlockConfidence: 0.70}
}

// EntryDecision is one classification result.
type EntryDecision struct {
	Prediction Label   `json:"prediction"`
	Confidence float64 `json:"confidence"`
	NodeID     string  `json:"node_id"`
	Version    string  `json:"version"`

	// Blocked is true only when the prediction is rug at or above the
	// configured confidence. A low-confidence rug call passes.
	Blocked bool `json:"blocked"`
}

// EntryClassifier is the frozen second-opinion model run alongside the
// security scorer.
type EntryClassifier struct {
	config EntryConfig
	tree   *Tree
}

// NewEntryClassifier creates a classifier over the current frozen model.
func NewEntryClassifier(config EntryConfig) *EntryClassifier {
	if config.MinBlockConfidence <= 0 {
		config.MinBlockConfidence = DefaultEntryConfig().MinBlockConfidence
	}
	return &EntryClassifier{config: config, tree: entryTreeV7}
}

// Meta returns the frozen model's training provenance.
func (c *EntryClassifier) Meta() Metadata { return c.tree.Meta() }

// EntryFeatures flattens a scorer checks struct into the model's
// feature vector. Unavailable signals are already neutral zeros in the
// checks, so no extra defaulting happens here.
func EntryFeatures(checks scorer.Checks) []float64 {
	f := make([]float64, entryFeatureCount)
	f[featLiquidityUSD] = checks.LiquidityUSD
	f[featTopHolderPct] = checks.TopHolderPct
	f[featHolderCount] = float64(checks.HolderCount)
	f[featRiskScore] = float64(checks.RiskScore)
	f[featLPBurned] = boolFeature(checks.LPBurned)
	f[featWalletAgeS] = float64(checks.WalletAgeSeconds)
	f[featCreatorTxCount] = float64(checks.CreatorTxCount)
	f[featReputationScore] = float64(checks.ReputationScore)
	f[featIsGraduated] = boolFeature(checks.IsGraduated)
	f[featReserveSOL] = checks.ReserveSOL
	f[featFundingTraced] = boolFeature(checks.FundingTraced)
	f[featGraduationTimeS] = float64(checks.GraduationTimeS)
	f[featBundlePenalty] = float64(checks.BundlePenalty)
	f[featInsidersDetected] = float64(checks.InsidersDetected)
	f[featStability] = checks.Stability
	f[featHiddenWhaleCount] = float64(checks.HiddenWhaleCount)
	f[featTxVelocity] = checks.TxVelocity
	f[featWashPenalty] = float64(checks.WashPenalty)
	return f
}

// Classify runs the frozen tree over one feature vector. Deterministic:
// the same checks always reach the same leaf.
func (c *EntryClassifier) Classify(checks scorer.Checks) EntryDecision {
	leaf := c.tree.Evaluate(EntryFeatures(checks))
	d := EntryDecision{
		Prediction: leaf.Label,
		Confidence: leaf.Confidence,
		NodeID:     leaf.NodeID,
		Version:    c.tree.Version(),
		Blocked:    leaf.Label == LabelRug && leaf.Confidence >= c.config.MinBlockConfidence,
	}
	if d.Blocked {
		log.Debug().
			Str("node", d.NodeID).
			Float64("confidence", d.Confidence).
			Msg("entry classifier block")
	}
	return d
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
