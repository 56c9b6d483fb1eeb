package solana

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Data Source Interfaces
// ---------------------------------------------------------------------------

// AccountSource provides raw account state and wallet history.
// Implementations: LiveRPCClient (real Solana), StubRPCClient (testing).
type AccountSource interface {
	// GetAccount fetches raw account bytes and the owning program id.
	GetAccount(ctx context.Context, address Pubkey) (*AccountData, error)

	// GetSignatures returns up to limit recent transaction signatures
	// for an address, newest first.
	GetSignatures(ctx context.Context, address Pubkey, limit int) ([]SignatureInfo, error)

	// GetBalance returns the lamport balance of an address.
	GetBalance(ctx context.Context, address Pubkey) (uint64, error)

	// GetTransactionDeltas returns per-account lamport changes for a
	// confirmed transaction.
	GetTransactionDeltas(ctx context.Context, sig Signature) ([]BalanceDelta, error)
}

// HolderSource provides ranked token holder snapshots.
type HolderSource interface {
	// GetTopHolders returns the top N holders of a mint, sorted
	// descending by balance. An empty slice means no data.
	GetTopHolders(ctx context.Context, mint Pubkey, limit int) ([]HolderInfo, error)
}

// RPCClient is the combined data source the engine wires in.
type RPCClient interface {
	AccountSource
	HolderSource

	// Health returns the RPC endpoint health.
	Health(ctx context.Context) error
}

// RPCConfig configures the Solana RPC client.
type RPCConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	WSEndpoint   string        `yaml:"ws_endpoint"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
}

// DefaultRPCConfig returns development defaults.
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Endpoint:     "https://api.mainnet-beta.solana.com",
		WSEndpoint:   "wss://api.mainnet-beta.solana.com",
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RateLimitRPS: 10,
	}
}

// ---------------------------------------------------------------------------
// Stub RPC Client (for testing and development)
// ---------------------------------------------------------------------------

// StubRPCClient is an in-memory RPC client for testing.
type StubRPCClient struct {
	mu         sync.RWMutex
	accounts   map[Pubkey]*AccountData
	signatures map[Pubkey][]SignatureInfo
	balances   map[Pubkey]uint64
	deltas     map[Signature][]BalanceDelta
	holders    map[Pubkey][]HolderInfo
	failNext   bool
	callCount  int
}

// NewStubRPCClient creates a stub RPC client for testing.
func NewStubRPCClient() *StubRPCClient {
	return &StubRPCClient{
		accounts:   make(map[Pubkey]*AccountData),
		signatures: make(map[Pubkey][]SignatureInfo),
		balances:   make(map[Pubkey]uint64),
		deltas:     make(map[Signature][]BalanceDelta),
		holders:    make(map[Pubkey][]HolderInfo),
	}
}

// AddAccount registers account state for the stub to return.
func (s *StubRPCClient) AddAccount(acc AccountData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.Address] = &acc
}

// AddSignatures registers signature history for an address.
func (s *StubRPCClient) AddSignatures(address Pubkey, sigs []SignatureInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signatures[address] = sigs
}

// SetBalance sets the lamport balance for an address.
func (s *StubRPCClient) SetBalance(address Pubkey, lamports uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] = lamports
}

// AddTransactionDeltas registers balance changes for a signature.
func (s *StubRPCClient) AddTransactionDeltas(sig Signature, deltas []BalanceDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas[sig] = deltas
}

// AddHolders registers holders for a token mint.
func (s *StubRPCClient) AddHolders(mint Pubkey, holders []HolderInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders[mint] = holders
}

// SetFailNext makes the next call fail.
func (s *StubRPCClient) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// CallCount returns how many data calls the stub has served.
func (s *StubRPCClient) CallCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.callCount
}

func (s *StubRPCClient) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCount++
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

// --- Interface implementation ---

func (s *StubRPCClient) GetAccount(_ context.Context, address Pubkey) (*AccountData, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.accounts[address]; ok {
		return acc, nil
	}
	return nil, fmt.Errorf("stub: account %s not found", address)
}

func (s *StubRPCClient) GetSignatures(_ context.Context, address Pubkey, limit int) ([]SignatureInfo, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sigs := s.signatures[address]
	if len(sigs) > limit {
		sigs = sigs[:limit]
	}
	return sigs, nil
}

func (s *StubRPCClient) GetBalance(_ context.Context, address Pubkey) (uint64, error) {
	if s.shouldFail() {
		return 0, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[address], nil
}

func (s *StubRPCClient) GetTransactionDeltas(_ context.Context, sig Signature) ([]BalanceDelta, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.deltas[sig]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("stub: transaction %s not found", sig)
}

func (s *StubRPCClient) GetTopHolders(_ context.Context, mint Pubkey, limit int) ([]HolderInfo, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	holders := s.holders[mint]
	if len(holders) > limit {
		holders = holders[:limit]
	}
	return holders, nil
}

func (s *StubRPCClient) Health(_ context.Context) error {
	if s.shouldFail() {
		return fmt.Errorf("stub: simulated RPC failure")
	}
	return nil
}
