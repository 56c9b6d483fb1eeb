package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sentinel-trading/sentinel/internal/mltree"
	"github.com/sentinel-trading/sentinel/internal/solana"
)

// Sampler accumulates per-account observation windows for the exit
// advisor: reserve points from the ws monitor, price and sell points
// from trade ticks. Keyed by the watched account, one window each.
type Sampler struct {
	window int

	mu     sync.RWMutex
	series map[solana.Pubkey][]mltree.Sample
}

// DefaultSampleWindow bounds each observation window. Sixty points at
// a few seconds apiece comfortably covers the advisor's longest
// lookback.
const DefaultSampleWindow = 60

// NewSampler creates a sampler keeping at most window points per
// account.
func NewSampler(window int) *Sampler {
	if window <= 0 {
		window = DefaultSampleWindow
	}
	return &Sampler{
		window: window,
		series: make(map[solana.Pubkey][]mltree.Sample),
	}
}

// IngestReserve folds a monitor update into the account's window. The
// update's lamport balance becomes the reserve; price carries over
// from the latest point so reserve moves never fabricate price moves.
func (s *Sampler) IngestReserve(u solana.AccountUpdate) {
	reserve := decimal.NewFromInt(int64(u.Lamports)).
		Div(decimal.NewFromInt(solana.LamportsPerSOL))

	s.mu.Lock()
	defer s.mu.Unlock()

	win := s.series[u.Account]
	at := u.ReceivedAt.Unix()
	if n := len(win); n > 0 && win[n-1].At == at {
		win[n-1].Reserve = reserve
		return
	}

	sample := mltree.Sample{Reserve: reserve, At: at}
	if n := len(win); n > 0 {
		sample.Price = win[n-1].Price
	}
	s.series[u.Account] = s.push(win, sample)
}

// IngestTrade folds an observed trade into the account's window.
func (s *Sampler) IngestTrade(account solana.Pubkey, price decimal.Decimal, isSell bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	win := s.series[account]
	ts := at.Unix()
	if n := len(win); n > 0 && win[n-1].At == ts {
		win[n-1].Price = price
		if isSell {
			win[n-1].SellCount++
		}
		return
	}

	sample := mltree.Sample{Price: price, At: ts}
	if n := len(win); n > 0 {
		sample.Reserve = win[n-1].Reserve
	}
	if isSell {
		sample.SellCount = 1
	}
	s.series[account] = s.push(win, sample)
}

// Samples returns a copy of the account's window, oldest first.
func (s *Sampler) Samples(account solana.Pubkey) []mltree.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	win := s.series[account]
	if len(win) == 0 {
		return nil
	}
	out := make([]mltree.Sample, len(win))
	copy(out, win)
	return out
}

// Drop discards an account's window once its position closes.
func (s *Sampler) Drop(account solana.Pubkey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.series, account)
}

func (s *Sampler) push(win []mltree.Sample, sample mltree.Sample) []mltree.Sample {
	win = append(win, sample)
	if len(win) > s.window {
		win = win[len(win)-s.window:]
	}
	return win
}
