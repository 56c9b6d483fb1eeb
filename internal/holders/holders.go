// Package holders computes ownership-concentration metrics from a ranked
// token holder snapshot.
package holders

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

// MaxSnapshotSize caps how many ranked holders are considered.
const MaxSnapshotSize = 20

// Hidden-whale clustering bounds: a run of near-identical balances,
// each a meaningful share, looks like one buyer split across wallets.
const (
	minWhaleCluster   = 3
	whaleTolerancePct = 2.0
	minWhaleSharePct  = 1.0
)

// Metrics summarizes holder concentration for one mint.
type Metrics struct {
	TopHolderPct     float64 `json:"top_holder_pct"`
	Top5Pct          float64 `json:"top5_pct"`
	Top10Pct         float64 `json:"top10_pct"`
	HolderCount      int     `json:"holder_count"` // -1 = data unavailable
	HHI              float64 `json:"hhi"`          // over non-custody holders, 0..1
	HiddenWhaleCount int     `json:"hidden_whale_count"`
}

// Unavailable reports whether the metrics are the fail-closed default.
func (m Metrics) Unavailable() bool {
	return m.HolderCount < 0
}

// MaxRiskMetrics is the fail-closed default: missing holder data is
// scored as full concentration, never as safe.
func MaxRiskMetrics() Metrics {
	return Metrics{
		TopHolderPct: 100,
		Top5Pct:      100,
		Top10Pct:     100,
		HolderCount:  -1,
		HHI:          1,
	}
}

// Analyze computes concentration metrics from a ranked holder snapshot.
// The first entry is assumed to be the pool's own custody account and is
// excluded from the HHI. Empty input yields the maximal-risk default.
func Analyze(snapshot []solana.HolderInfo) Metrics {
	if len(snapshot) == 0 {
		log.Debug().Msg("holders: empty snapshot, using fail-closed metrics")
		return MaxRiskMetrics()
	}
	if len(snapshot) > MaxSnapshotSize {
		snapshot = snapshot[:MaxSnapshotSize]
	}

	m := Metrics{HolderCount: len(snapshot)}
	for i, h := range snapshot {
		if i == 0 {
			m.TopHolderPct = h.Percentage
		}
		if i < 5 {
			m.Top5Pct += h.Percentage
		}
		if i < 10 {
			m.Top10Pct += h.Percentage
		}
	}

	m.HHI = hhi(snapshot[1:])
	m.HiddenWhaleCount = hiddenWhales(snapshot[1:])
	if m.HiddenWhaleCount > 0 {
		log.Debug().Int("count", m.HiddenWhaleCount).Msg("holders: hidden whale cluster detected")
	}
	return m
}

// hiddenWhales counts non-custody wallets whose balances cluster. The
// snapshot arrives ranked by balance, so near-equal wallets are
// adjacent; a run of minWhaleCluster or more counts in full. Dust
// positions below minWhaleSharePct never form a cluster.
func hiddenWhales(noncustody []solana.HolderInfo) int {
	tolerance := decimal.NewFromFloat(1 - whaleTolerancePct/100)

	count := 0
	run := 1
	for i := 1; i < len(noncustody); i++ {
		prev, cur := noncustody[i-1], noncustody[i]
		near := prev.Percentage >= minWhaleSharePct &&
			cur.Percentage >= minWhaleSharePct &&
			prev.Balance.IsPositive() &&
			cur.Balance.GreaterThanOrEqual(prev.Balance.Mul(tolerance))
		if near {
			run++
			continue
		}
		if run >= minWhaleCluster {
			count += run
		}
		run = 1
	}
	if run >= minWhaleCluster {
		count += run
	}
	return count
}

// hhi is the Herfindahl-Hirschman index over non-custody holders:
// shares renormalized to sum to 1, squares summed. 0 when one or zero
// holders remain, approaching 1 as one holder absorbs the rest.
func hhi(noncustody []solana.HolderInfo) float64 {
	if len(noncustody) <= 1 {
		return 0
	}

	total := decimal.Zero
	for _, h := range noncustody {
		total = total.Add(h.Balance)
	}
	if !total.IsPositive() {
		return 0
	}

	sum := 0.0
	for _, h := range noncustody {
		share, _ := h.Balance.Div(total).Float64()
		sum += share * share
	}
	return sum
}
