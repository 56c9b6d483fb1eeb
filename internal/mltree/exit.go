package mltree

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MinExitSamples is the shortest sample history the exit classifier
// will predict on. Below it the classifier declines rather than guess.
const MinExitSamples = 8

// Sample is one point of a position's price/reserve series, appended by
// the position tracker at its polling cadence. SellCount is the number
// of sell transactions observed since the previous sample.
type Sample struct {
	Price     decimal.Decimal `json:"price"`
	Reserve   decimal.Decimal `json:"reserve"`
	SellCount int             `json:"sell_count"`
	At        int64           `json:"at"` // unix seconds
}

// Exit feature vector layout, frozen per model version.
const (
	exitPriceVel10s = iota
	exitPriceVel30s
	exitPriceVel60s
	exitMultiplier
	exitDropFromPeak
	exitReserveVel30s
	exitReserveVsEntry
	exitReserveAccel
	exitSellBurst30s
	exitSellAccel
	exitElapsedMinutes
	exitTimeAboveEntry
	exitVolatility30s
	exitSecurityScore
	exitLiquidityUSD
	exitFeatureCount
)

var exitFeatureNames = []string{
	"price_velocity_10s",
	"price_velocity_30s",
	"price_velocity_60s",
	"multiplier",
	"drop_from_peak",
	"reserve_velocity_30s",
	"reserve_vs_entry",
	"reserve_acceleration",
	"sell_burst_30s",
	"sell_acceleration",
	"elapsed_minutes",
	"time_above_entry_pct",
	"volatility_30s",
	"security_score",
	"liquidity_usd",
}

// exitTreeV1 is the frozen exit model.
var exitTreeV1 = mustTree("v1", Metadata{
	Version:         1,
	TrainingSamples: 18_240,
	PositiveSamples: 972,
	NegativeSamples: 17_268,
	CVF1:            0.61,
	TemporalF1:      0.58,
	FeatureNames:    exitFeatureNames,
}, []Node{
	{Feature: exitDropFromPeak, Threshold: 0.12, Left: 1, Right: 8},
	{Feature: exitReserveVel30s, Threshold: -0.18, Left: 2, Right: 3},
	{Leaf: &Leaf{Label: LabelSell, Confidence: 0.79, NodeID: "v1_n2_214s"}},
	{Feature: exitSellBurst30s, Threshold: 6.5, Left: 4, Right: 5},
	{Leaf: &Leaf{Label: LabelHold, Confidence: 0.91, NodeID: "v1_n4_11520s"}},
	{Feature: exitPriceVel30s, Threshold: -0.05, Left: 6, Right: 7},
	{Leaf: &Leaf{Label: LabelSell, Confidence: 0.68, NodeID: "v1_n6_341s"}},
	{Leaf: &Leaf{Label: LabelHold, Confidence: 0.72, NodeID: "v1_n7_1908s"}},
	{Feature: exitReserveVsEntry, Threshold: 0.65, Left: 9, Right: 10},
	{Leaf: &Leaf{Label: LabelSell, Confidence: 0.88, NodeID: "v1_n9_187s"}},
	{Feature: exitVolatility30s, Threshold: 0.09, Left: 11, Right: 12},
	{Leaf: &Leaf{Label: LabelHold, Confidence: 0.64, NodeID: "v1_n11_2866s"}},
	{Leaf: &Leaf{Label: LabelSell, Confidence: 0.76, NodeID: "v1_n12_1204s"}},
})

// ExitConfig configures the hard safety overrides applied after the
// raw tree result.
type ExitConfig struct {
	// MultiplierFloor downgrades SELL to HOLD while price/entry is
	// below it. The classifier never recommends realizing a loss.
	MultiplierFloor float64 `yaml:"multiplier_floor"`

	// MinSellConfidence downgrades low-confidence SELL calls to HOLD.
	MinSellConfidence float64 `yaml:"min_sell_confidence"`
}

// DefaultExitConfig returns production defaults.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		MultiplierFloor:   1.05,
		MinSellConfidence: 0.75,
	}
}

// ExitFeatures is the computed 15-feature vector, kept as a named
// struct so the reason string and tests can reference fields directly.
type ExitFeatures struct {
	PriceVelocity10s   float64 `json:"price_velocity_10s"`
	PriceVelocity30s   float64 `json:"price_velocity_30s"`
	PriceVelocity60s   float64 `json:"price_velocity_60s"`
	Multiplier         float64 `json:"multiplier"`
	DropFromPeak       float64 `json:"drop_from_peak"`
	ReserveVelocity30s float64 `json:"reserve_velocity_30s"`
	ReserveVsEntry     float64 `json:"reserve_vs_entry"`
	ReserveAccel       float64 `json:"reserve_acceleration"`
	SellBurst30s       int     `json:"sell_burst_30s"`
	SellAccel          int     `json:"sell_acceleration"`
	ElapsedMinutes     float64 `json:"elapsed_minutes"`
	TimeAboveEntryPct  float64 `json:"time_above_entry_pct"`
	Volatility30s      float64 `json:"volatility_30s"`
	SecurityScore      int     `json:"security_score"`
	LiquidityUSD       float64 `json:"liquidity_usd"`
}

func (f ExitFeatures) vector() []float64 {
	v := make([]float64, exitFeatureCount)
	v[exitPriceVel10s] = f.PriceVelocity10s
	v[exitPriceVel30s] = f.PriceVelocity30s
	v[exitPriceVel60s] = f.PriceVelocity60s
	v[exitMultiplier] = f.Multiplier
	v[exitDropFromPeak] = f.DropFromPeak
	v[exitReserveVel30s] = f.ReserveVelocity30s
	v[exitReserveVsEntry] = f.ReserveVsEntry
	v[exitReserveAccel] = f.ReserveAccel
	v[exitSellBurst30s] = float64(f.SellBurst30s)
	v[exitSellAccel] = float64(f.SellAccel)
	v[exitElapsedMinutes] = f.ElapsedMinutes
	v[exitTimeAboveEntry] = f.TimeAboveEntryPct
	v[exitVolatility30s] = f.Volatility30s
	v[exitSecurityScore] = float64(f.SecurityScore)
	v[exitLiquidityUSD] = f.LiquidityUSD
	return v
}

// ExitDecision is one advisory recommendation. The position manager's
// stop-loss, take-profit, and rug-detection exits always outrank it.
type ExitDecision struct {
	Prediction Label        `json:"prediction"`
	Confidence float64      `json:"confidence"`
	NodeID     string       `json:"node_id"`
	Version    string       `json:"version"`
	Reason     string       `json:"reason"`
	Overridden bool         `json:"overridden"`
	Features   ExitFeatures `json:"features"`
}

// ExitClassifier runs the frozen exit model with safety overrides.
type ExitClassifier struct {
	config ExitConfig
	tree   *Tree
}

// NewExitClassifier creates a classifier over the current frozen model.
func NewExitClassifier(config ExitConfig) *ExitClassifier {
	if config.MultiplierFloor <= 0 {
		config.MultiplierFloor = DefaultExitConfig().MultiplierFloor
	}
	if config.MinSellConfidence <= 0 {
		config.MinSellConfidence = DefaultExitConfig().MinSellConfidence
	}
	return &ExitClassifier{config: config, tree: exitTreeV1}
}

// Meta returns the frozen model's training provenance.
func (c *ExitClassifier) Meta() Metadata { return c.tree.Meta() }

// Predict evaluates the model over a position's sample series. Returns
// nil when fewer than MinExitSamples samples exist. SELL results are
// downgraded to HOLD when the multiplier is below the floor or the
// leaf confidence is below the threshold; the reason string reports
// the raw signals either way.
func (c *ExitClassifier) Predict(samples []Sample, entryPrice decimal.Decimal, securityScore int, liquidityUSD decimal.Decimal) *ExitDecision {
	if len(samples) < MinExitSamples {
		return nil
	}

	f := ComputeExitFeatures(samples, entryPrice, securityScore, liquidityUSD)
	leaf := c.tree.Evaluate(f.vector())

	d := &ExitDecision{
		Prediction: leaf.Label,
		Confidence: leaf.Confidence,
		NodeID:     leaf.NodeID,
		Version:    c.tree.Version(),
		Features:   f,
	}

	var overrides []string
	if d.Prediction == LabelSell && f.Multiplier < c.config.MultiplierFloor {
		d.Prediction = LabelHold
		d.Overridden = true
		overrides = append(overrides, fmt.Sprintf("multiplier %.3f below floor %.2f", f.Multiplier, c.config.MultiplierFloor))
	}
	if d.Prediction == LabelSell && d.Confidence < c.config.MinSellConfidence {
		d.Prediction = LabelHold
		d.Overridden = true
		overrides = append(overrides, fmt.Sprintf("confidence %.2f below %.2f", d.Confidence, c.config.MinSellConfidence))
	}
	d.Reason = exitReason(leaf, f, overrides)
	return d
}

// exitReason summarizes the raw signals that crossed notable
// thresholds, for audit logging. Written even when the final decision
// is HOLD due to an override.
func exitReason(leaf Leaf, f ExitFeatures, overrides []string) string {
	var signals []string
	if f.DropFromPeak > 0.12 {
		signals = append(signals, fmt.Sprintf("drop_from_peak=%.2f", f.DropFromPeak))
	}
	if f.ReserveVsEntry < 0.70 {
		signals = append(signals, fmt.Sprintf("reserve_vs_entry=%.2f", f.ReserveVsEntry))
	}
	if f.ReserveVelocity30s < -0.10 {
		signals = append(signals, fmt.Sprintf("reserve_velocity_30s=%.2f", f.ReserveVelocity30s))
	}
	if f.SellBurst30s > 6 {
		signals = append(signals, fmt.Sprintf("sell_burst_30s=%d", f.SellBurst30s))
	}
	if f.PriceVelocity30s < -0.05 {
		signals = append(signals, fmt.Sprintf("price_velocity_30s=%.2f", f.PriceVelocity30s))
	}
	if f.Volatility30s > 0.09 {
		signals = append(signals, fmt.Sprintf("volatility_30s=%.2f", f.Volatility30s))
	}
	if len(signals) == 0 {
		signals = append(signals, "no notable signals")
	}

	reason := fmt.Sprintf("raw %s/%.2f at %s: %s", leaf.Label, leaf.Confidence, leaf.NodeID, strings.Join(signals, " "))
	if len(overrides) > 0 {
		reason += " (held: " + strings.Join(overrides, "; ") + ")"
	}
	return reason
}

// ComputeExitFeatures derives the 15-feature vector fresh from a
// sample series. Samples must be time-ordered oldest first.
func ComputeExitFeatures(samples []Sample, entryPrice decimal.Decimal, securityScore int, liquidityUSD decimal.Decimal) ExitFeatures {
	last := samples[len(samples)-1]
	lastPrice, _ := last.Price.Float64()
	entry, _ := entryPrice.Float64()
	liq, _ := liquidityUSD.Float64()

	f := ExitFeatures{
		PriceVelocity10s:   priceVelocity(samples, 10),
		PriceVelocity30s:   priceVelocity(samples, 30),
		PriceVelocity60s:   priceVelocity(samples, 60),
		ReserveVelocity30s: reserveVelocity(samples, 30),
		ElapsedMinutes:     float64(last.At-samples[0].At) / 60,
		Volatility30s:      coefficientOfVariation(samples, 6),
		SecurityScore:      securityScore,
		LiquidityUSD:       liq,
	}

	if entry > 0 {
		f.Multiplier = lastPrice / entry
	}

	peak := 0.0
	above := 0
	for _, s := range samples {
		p, _ := s.Price.Float64()
		if p > peak {
			peak = p
		}
		if p > entry {
			above++
		}
	}
	if peak > 0 {
		f.DropFromPeak = (peak - lastPrice) / peak
	}
	f.TimeAboveEntryPct = float64(above) / float64(len(samples))

	entryReserve, _ := samples[0].Reserve.Float64()
	lastReserve, _ := last.Reserve.Float64()
	if entryReserve > 0 {
		f.ReserveVsEntry = lastReserve / entryReserve
	}
	f.ReserveAccel = f.ReserveVelocity30s - reserveVelocity(samples[:len(samples)-1], 30)

	f.SellBurst30s = sellsBetween(samples, last.At-30, last.At)
	f.SellAccel = f.SellBurst30s - sellsBetween(samples, last.At-60, last.At-30)

	return f
}

// priceAt returns the price of the latest sample at or before the
// cutoff, falling back to the oldest sample.
func priceAt(samples []Sample, cutoff int64) float64 {
	ref := samples[0]
	for _, s := range samples {
		if s.At > cutoff {
			break
		}
		ref = s
	}
	p, _ := ref.Price.Float64()
	return p
}

func reserveAt(samples []Sample, cutoff int64) float64 {
	ref := samples[0]
	for _, s := range samples {
		if s.At > cutoff {
			break
		}
		ref = s
	}
	r, _ := ref.Reserve.Float64()
	return r
}

// priceVelocity is the fractional price change over the trailing
// window, relative to the window's start.
func priceVelocity(samples []Sample, windowS int64) float64 {
	last := samples[len(samples)-1]
	ref := priceAt(samples, last.At-windowS)
	if ref == 0 {
		return 0
	}
	p, _ := last.Price.Float64()
	return (p - ref) / ref
}

func reserveVelocity(samples []Sample, windowS int64) float64 {
	if len(samples) == 0 {
		return 0
	}
	last := samples[len(samples)-1]
	ref := reserveAt(samples, last.At-windowS)
	if ref == 0 {
		return 0
	}
	r, _ := last.Reserve.Float64()
	return (r - ref) / ref
}

// sellsBetween sums sell counts for samples in (from, to].
func sellsBetween(samples []Sample, from, to int64) int {
	total := 0
	for _, s := range samples {
		if s.At > from && s.At <= to {
			total += s.SellCount
		}
	}
	return total
}

// coefficientOfVariation over the most recent n prices, as a cheap
// volatility proxy.
func coefficientOfVariation(samples []Sample, n int) float64 {
	if len(samples) < n {
		n = len(samples)
	}
	if n == 0 {
		return 0
	}
	window := samples[len(samples)-n:]
	mean := 0.0
	for _, s := range window {
		p, _ := s.Price.Float64()
		mean += p
	}
	mean /= float64(n)
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, s := range window {
		p, _ := s.Price.Float64()
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(n)
	return math.Sqrt(variance) / mean
}
