package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

func TestSampler_ReserveUpdates(t *testing.T) {
	s := NewSampler(10)
	base := time.Unix(1000, 0)

	s.IngestReserve(solana.AccountUpdate{
		Account:    "vault",
		Lamports:   3 * solana.LamportsPerSOL,
		ReceivedAt: base,
	})
	s.IngestReserve(solana.AccountUpdate{
		Account:    "vault",
		Lamports:   2 * solana.LamportsPerSOL,
		ReceivedAt: base.Add(5 * time.Second),
	})

	win := s.Samples("vault")
	require.Len(t, win, 2)
	assert.True(t, win[0].Reserve.Equal(decimal.NewFromInt(3)))
	assert.True(t, win[1].Reserve.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, base.Unix(), win[0].At)
}

func TestSampler_SameSecondCoalesces(t *testing.T) {
	s := NewSampler(10)
	at := time.Unix(1000, 0)

	s.IngestReserve(solana.AccountUpdate{Account: "vault", Lamports: 3 * solana.LamportsPerSOL, ReceivedAt: at})
	s.IngestReserve(solana.AccountUpdate{Account: "vault", Lamports: 1 * solana.LamportsPerSOL, ReceivedAt: at})

	win := s.Samples("vault")
	require.Len(t, win, 1)
	assert.True(t, win[0].Reserve.Equal(decimal.NewFromInt(1)))
}

func TestSampler_TradesCarryReserveForward(t *testing.T) {
	s := NewSampler(10)
	base := time.Unix(1000, 0)

	s.IngestReserve(solana.AccountUpdate{Account: "vault", Lamports: 5 * solana.LamportsPerSOL, ReceivedAt: base})
	s.IngestTrade("vault", decimal.NewFromFloat(1.5), true, base.Add(3*time.Second))
	s.IngestTrade("vault", decimal.NewFromFloat(1.4), true, base.Add(3*time.Second))
	s.IngestTrade("vault", decimal.NewFromFloat(1.6), false, base.Add(7*time.Second))

	win := s.Samples("vault")
	require.Len(t, win, 3)
	assert.True(t, win[1].Reserve.Equal(decimal.NewFromInt(5)), "trade points inherit the latest reserve")
	assert.Equal(t, 2, win[1].SellCount, "same-second sells coalesce")
	assert.True(t, win[1].Price.Equal(decimal.NewFromFloat(1.4)))
	assert.Equal(t, 0, win[2].SellCount)
}

func TestSampler_WindowBounded(t *testing.T) {
	s := NewSampler(4)
	base := time.Unix(1000, 0)

	for i := 0; i < 9; i++ {
		s.IngestTrade("vault", decimal.NewFromInt(int64(i)), false, base.Add(time.Duration(i)*time.Second))
	}

	win := s.Samples("vault")
	require.Len(t, win, 4)
	assert.True(t, win[0].Price.Equal(decimal.NewFromInt(5)), "oldest points evicted first")
	assert.True(t, win[3].Price.Equal(decimal.NewFromInt(8)))
}

func TestSampler_DropAndUnknown(t *testing.T) {
	s := NewSampler(10)
	assert.Nil(t, s.Samples("nothing"))

	s.IngestTrade("vault", decimal.NewFromInt(1), false, time.Unix(1000, 0))
	s.Drop("vault")
	assert.Nil(t, s.Samples("vault"))
}
