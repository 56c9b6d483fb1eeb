package holders

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

func snapshot(balances ...int64) []solana.HolderInfo {
	total := int64(0)
	for _, b := range balances {
		total += b
	}
	out := make([]solana.HolderInfo, len(balances))
	for i, b := range balances {
		out[i] = solana.HolderInfo{
			Address:    solana.Pubkey(fmt.Sprintf("holder%d", i)),
			Balance:    decimal.NewFromInt(b),
			Percentage: float64(b) / float64(total) * 100,
		}
	}
	return out
}

func TestAnalyze_EmptyIsFailClosed(t *testing.T) {
	m := Analyze(nil)

	assert.True(t, m.Unavailable())
	assert.Equal(t, -1, m.HolderCount)
	assert.Equal(t, 100.0, m.TopHolderPct)
	assert.Equal(t, 100.0, m.Top5Pct)
	assert.Equal(t, 1.0, m.HHI)
}

func TestAnalyze_Basic(t *testing.T) {
	// Pool vault 50%, then 20/15/10/5.
	m := Analyze(snapshot(50, 20, 15, 10, 5))

	assert.Equal(t, 5, m.HolderCount)
	assert.InDelta(t, 50.0, m.TopHolderPct, 0.001)
	assert.InDelta(t, 100.0, m.Top5Pct, 0.001)
	assert.InDelta(t, 100.0, m.Top10Pct, 0.001)
	assert.False(t, m.Unavailable())

	// Non-custody shares: 20/50, 15/50, 10/50, 5/50.
	want := 0.4*0.4 + 0.3*0.3 + 0.2*0.2 + 0.1*0.1
	assert.InDelta(t, want, m.HHI, 0.0001)
}

func TestAnalyze_SnapshotCapped(t *testing.T) {
	balances := make([]int64, 30)
	for i := range balances {
		balances[i] = 10
	}
	m := Analyze(snapshot(balances...))
	assert.Equal(t, MaxSnapshotSize, m.HolderCount)
}

func TestAnalyze_HiddenWhaleCluster(t *testing.T) {
	// Four near-identical mid-size wallets behind the vault, then an
	// unrelated smaller holder.
	m := Analyze(snapshot(9000, 1000, 995, 990, 985, 500))
	assert.Equal(t, 4, m.HiddenWhaleCount)
}

func TestAnalyze_DistinctBalancesNoWhales(t *testing.T) {
	m := Analyze(snapshot(50, 20, 15, 10, 5))
	assert.Equal(t, 0, m.HiddenWhaleCount)
}

func TestAnalyze_WhalePairBelowClusterSize(t *testing.T) {
	m := Analyze(snapshot(60, 20, 20, 5))
	assert.Equal(t, 0, m.HiddenWhaleCount)
}

func TestAnalyze_DustRunsNeverCluster(t *testing.T) {
	// Identical dust wallets under one percent are airdrop noise, not a
	// split whale.
	balances := []int64{9700}
	for i := 0; i < 10; i++ {
		balances = append(balances, 30)
	}
	m := Analyze(snapshot(balances...))
	assert.Equal(t, 0, m.HiddenWhaleCount)
}

func TestHHI_SingleNonCustodyHolderIsZero(t *testing.T) {
	m := Analyze(snapshot(90, 10))
	assert.Equal(t, 0.0, m.HHI)

	m = Analyze(snapshot(100))
	assert.Equal(t, 0.0, m.HHI)
}

func TestHHI_IncreasesWithConcentration(t *testing.T) {
	// Same non-custody supply, progressively concentrated.
	even := Analyze(snapshot(50, 10, 10, 10, 10, 10))
	skewed := Analyze(snapshot(50, 30, 10, 5, 3, 2))
	single := Analyze(snapshot(50, 46, 1, 1, 1, 1))

	assert.Less(t, even.HHI, skewed.HHI)
	assert.Less(t, skewed.HHI, single.HHI)
}

func TestHHI_TwoEqualIntoOne(t *testing.T) {
	two := Analyze(snapshot(60, 20, 20))
	require.InDelta(t, 0.5, two.HHI, 0.0001)

	// Transfer nearly all of holder2's supply to holder1: concentration
	// strictly rises toward 1.
	almostOne := Analyze(snapshot(60, 39, 1))
	assert.Greater(t, almostOne.HHI, two.HHI)

	// Full merge leaves a single non-custody holder, defined as 0.
	one := Analyze(snapshot(60, 40))
	assert.Equal(t, 0.0, one.HHI)
}
