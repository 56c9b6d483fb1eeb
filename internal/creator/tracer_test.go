package creator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-trading/sentinel/internal/blacklist"
	"github.com/sentinel-trading/sentinel/internal/history"
	"github.com/sentinel-trading/sentinel/internal/solana"
)

func newTestTracer(t *testing.T) (*Tracer, *solana.StubRPCClient, *history.MemoryStore, *blacklist.List) {
	t.Helper()
	stub := solana.NewStubRPCClient()
	store := history.NewMemoryStore()
	bl, err := blacklist.New(context.Background(), blacklist.NewMemoryStore())
	require.NoError(t, err)
	return NewTracer(DefaultTracerConfig(), stub, store, bl), stub, store, bl
}

// seedWallet gives a wallet a signature history ending in a funding
// transaction from the given funder.
func seedWallet(stub *solana.StubRPCClient, wallet, funder solana.Pubkey, ageS int64, txCount int) {
	now := time.Now().Unix()
	sigs := make([]solana.SignatureInfo, txCount)
	for i := 0; i < txCount; i++ {
		sigs[i] = solana.SignatureInfo{
			Signature: solana.Signature(fmt.Sprintf("%s-sig%d", wallet, i)),
			BlockTime: now - ageS*int64(i+1)/int64(txCount),
		}
	}
	sigs[txCount-1].BlockTime = now - ageS
	stub.AddSignatures(wallet, sigs)
	stub.SetBalance(wallet, 2*solana.LamportsPerSOL)

	if funder != "" {
		stub.AddTransactionDeltas(sigs[txCount-1].Signature, []solana.BalanceDelta{
			{Account: funder, Delta: -1_000_000_000},
			{Account: wallet, Delta: 1_000_000_000},
			{Account: "fee-payer", Delta: -5_000},
		})
	}
}

func TestProfile_NewWallet(t *testing.T) {
	tracer, stub, _, _ := newTestTracer(t)
	stub.AddSignatures("fresh", nil)
	stub.SetBalance("fresh", 0)

	p := tracer.Profile(context.Background(), "fresh")

	assert.True(t, p.IsNewWallet)
	assert.Equal(t, -20, p.ReputationScore)
	assert.Contains(t, p.ReputationReason, "brand-new")
}

func TestProfile_TotalFetchFailureIsNeutral(t *testing.T) {
	tracer, stub, _, _ := newTestTracer(t)
	stub.SetFailNext()

	p := tracer.Profile(context.Background(), "wallet")

	assert.Equal(t, 0, p.ReputationScore)
	assert.Equal(t, int64(-1), p.WalletAgeSeconds)
	assert.True(t, p.FetchFailed)
	assert.Equal(t, "profile unavailable", p.ReputationReason)
}

func TestProfile_MissingBlockTimesIsNotAFailure(t *testing.T) {
	// Nodes sometimes return signatures without block times; the age
	// stays unknown but the fetch itself succeeded.
	tracer, stub, _, _ := newTestTracer(t)
	stub.AddSignatures("deployer", []solana.SignatureInfo{
		{Signature: "s1", BlockTime: 0},
		{Signature: "s2", BlockTime: 0},
	})
	stub.SetBalance("deployer", solana.LamportsPerSOL)

	p := tracer.Profile(context.Background(), "deployer")

	assert.False(t, p.FetchFailed)
	assert.False(t, p.IsNewWallet)
	assert.Equal(t, int64(-1), p.WalletAgeSeconds)
	assert.Equal(t, int32(2), p.TxCount)
}

func TestProfile_FundingTraceHop1(t *testing.T) {
	tracer, stub, _, _ := newTestTracer(t)
	seedWallet(stub, "deployer", "funder1", 30*24*3600, 50)

	p := tracer.Profile(context.Background(), "deployer")

	assert.Equal(t, solana.Pubkey("funder1"), p.FundingSource)
	assert.False(t, p.IsKnownScammerNetwork)
	assert.Equal(t, int32(50), p.TxCount)
	assert.InDelta(t, 30*24*3600, p.WalletAgeSeconds, 5)
	// Mature wallet with activity earns the small bonus.
	assert.Equal(t, 5, p.ReputationScore)
}

func TestProfile_FeeSizedDecreasesIgnored(t *testing.T) {
	tracer, stub, _, _ := newTestTracer(t)
	now := time.Now().Unix()
	stub.AddSignatures("deployer", []solana.SignatureInfo{
		{Signature: "s1", BlockTime: now - 1000},
	})
	stub.SetBalance("deployer", solana.LamportsPerSOL)
	stub.AddTransactionDeltas("s1", []solana.BalanceDelta{
		{Account: "fee-payer", Delta: -5_000},
		{Account: "deployer", Delta: 5_000},
	})

	p := tracer.Profile(context.Background(), "deployer")
	assert.Empty(t, p.FundingSource)
}

func TestProfile_BlacklistedFunderShortCircuits(t *testing.T) {
	tracer, stub, _, bl := newTestTracer(t)
	_, err := bl.Add(context.Background(), "badfunder", "manual seed", 0)
	require.NoError(t, err)

	seedWallet(stub, "deployer", "badfunder", 3600, 10)
	calls := stub.CallCount()

	p := tracer.Profile(context.Background(), "deployer")

	assert.True(t, p.IsKnownScammerNetwork)
	assert.Equal(t, -20, p.ReputationScore)
	// Short-circuit: no hop-2 signature fetch, no fan-out probe.
	assert.LessOrEqual(t, stub.CallCount()-calls, 3)
}

func TestProfile_SharedFunderAutoPromotion(t *testing.T) {
	tracer, stub, store, bl := newTestTracer(t)
	ctx := context.Background()

	// Two prior deployers share the funder.
	require.NoError(t, store.InsertIfAbsent(ctx, history.Record{Creator: "c1", TokenMint: "m1", FundingSource: "funder1"}))
	require.NoError(t, store.InsertIfAbsent(ctx, history.Record{Creator: "c2", TokenMint: "m2", FundingSource: "funder1"}))

	seedWallet(stub, "deployer", "funder1", 3600, 10)

	p := tracer.Profile(ctx, "deployer")

	assert.True(t, p.IsKnownScammerNetwork)
	assert.True(t, bl.Contains("funder1"))
	assert.Equal(t, uint32(2), p.FundingNetworkSize)
	assert.Equal(t, int64(1), tracer.Stats().Promotions)
}

func TestProfile_ConcurrentPromotionIsIdempotent(t *testing.T) {
	tracer, stub, store, bl := newTestTracer(t)
	ctx := context.Background()

	require.NoError(t, store.InsertIfAbsent(ctx, history.Record{Creator: "c1", TokenMint: "m1", FundingSource: "funder1"}))
	require.NoError(t, store.InsertIfAbsent(ctx, history.Record{Creator: "c2", TokenMint: "m2", FundingSource: "funder1"}))

	const wallets = 16
	var wg sync.WaitGroup
	for i := 0; i < wallets; i++ {
		w := solana.Pubkey(fmt.Sprintf("deployer%d", i))
		seedWallet(stub, w, "funder1", 3600, 10)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := tracer.Profile(ctx, w)
			assert.True(t, p.IsKnownScammerNetwork)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, bl.Len(), "funder promoted exactly once")
	assert.Equal(t, int64(1), tracer.Stats().Promotions)
}

func TestProfile_FanOutDetection(t *testing.T) {
	tracer, stub, _, _ := newTestTracer(t)
	seedWallet(stub, "deployer", "sprayer", 3600, 10)

	// Funder sprays 20 transfers of ~0.02 SOL within one minute.
	now := time.Now().Unix()
	sigs := make([]solana.SignatureInfo, 20)
	for i := range sigs {
		sig := solana.Signature(fmt.Sprintf("spray%d", i))
		sigs[i] = solana.SignatureInfo{Signature: sig, BlockTime: now - int64(i*3)}
		stub.AddTransactionDeltas(sig, []solana.BalanceDelta{
			{Account: "sprayer", Delta: -20_000_000},
			{Account: solana.Pubkey(fmt.Sprintf("target%d", i)), Delta: 20_000_000},
		})
	}
	stub.AddSignatures("sprayer", sigs)

	p := tracer.Profile(context.Background(), "deployer")

	require.NotNil(t, p.FanOut)
	assert.Equal(t, -25, p.ReputationScore)
	assert.Contains(t, p.ReputationReason, "fan-out")
	assert.Equal(t, int64(20_000_000), p.FanOut.UniformAmount)
	assert.Equal(t, int64(20_000_000), p.FanOut.SampleAmount1)
}

func TestProfile_FanOutRejectsMismatchedAmounts(t *testing.T) {
	tracer, stub, _, _ := newTestTracer(t)
	seedWallet(stub, "deployer", "sprayer", 3600, 10)

	now := time.Now().Unix()
	sigs := make([]solana.SignatureInfo, 20)
	for i := range sigs {
		sig := solana.Signature(fmt.Sprintf("spray%d", i))
		sigs[i] = solana.SignatureInfo{Signature: sig, BlockTime: now - int64(i*3)}
		amount := int64(20_000_000)
		if i >= 5 {
			amount = 200_000_000 // 10x difference between sampled txs
		}
		stub.AddTransactionDeltas(sig, []solana.BalanceDelta{
			{Account: "sprayer", Delta: -amount},
		})
	}
	stub.AddSignatures("sprayer", sigs)

	p := tracer.Profile(context.Background(), "deployer")
	assert.Nil(t, p.FanOut)
}

func TestProfile_YoungWalletPenalties(t *testing.T) {
	tracer, stub, _, _ := newTestTracer(t)

	cases := []struct {
		name  string
		ageS  int64
		score int
	}{
		{"under-10s", 5, -15},
		{"under-60s", 45, -10},
		{"under-5min", 200, -6},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := solana.Pubkey(fmt.Sprintf("young%d", i))
			seedWallet(stub, w, "", tc.ageS, 3)
			p := tracer.Profile(context.Background(), w)
			assert.Equal(t, tc.score, p.ReputationScore)
		})
	}
}

func TestProfile_CacheShortCircuitsRPC(t *testing.T) {
	tracer, stub, _, _ := newTestTracer(t)
	seedWallet(stub, "deployer", "funder1", 3600, 10)

	first := tracer.Profile(context.Background(), "deployer")
	calls := stub.CallCount()

	second := tracer.Profile(context.Background(), "deployer")

	assert.Equal(t, calls, stub.CallCount(), "cache hit must not touch RPC")
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), tracer.Stats().CacheHits)
}
