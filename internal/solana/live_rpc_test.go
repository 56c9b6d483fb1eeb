package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRPCServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *LiveRPCClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	config := RPCConfig{
		Endpoint:     server.URL,
		WSEndpoint:   "ws://localhost:0", // not used in HTTP tests
		Timeout:      5 * time.Second,
		MaxRetries:   1,
		RateLimitRPS: 100,
	}
	client := NewLiveRPCClient(config)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return server, client
}

func TestLiveRPC_Health(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  "ok",
		})
	})

	err := client.Health(context.Background())
	assert.NoError(t, err)

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.RequestCount)
}

func TestLiveRPC_GetAccount(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04}
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result": map[string]any{
				"value": map[string]any{
					"data":     []string{base64.StdEncoding.EncodeToString(raw), "base64"},
					"owner":    string(TokenProgramID),
					"lamports": 2039280,
				},
			},
		})
	})

	acc, err := client.GetAccount(context.Background(), Pubkey("test-mint"))
	require.NoError(t, err)
	assert.Equal(t, TokenProgramID, acc.Owner)
	assert.Equal(t, raw, acc.Data)
	assert.Equal(t, uint64(2039280), acc.Lamports)
}

func TestLiveRPC_GetAccount_Missing(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]any{"value": nil},
		})
	})

	_, err := client.GetAccount(context.Background(), Pubkey("gone"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataUnavailable))
}

func TestLiveRPC_GetSignatures(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result": []map[string]any{
				{"signature": "sig1", "blockTime": 1700000100, "err": nil},
				{"signature": "sig2", "blockTime": 1700000000, "err": map[string]any{"InstructionError": []any{}}},
			},
		})
	})

	sigs, err := client.GetSignatures(context.Background(), Pubkey("wallet"), 10)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, Signature("sig1"), sigs[0].Signature)
	assert.False(t, sigs[0].Failed)
	assert.True(t, sigs[1].Failed)
}

func TestLiveRPC_GetBalance(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]any{"value": 5000000000}, // 5 SOL
		})
	})

	lamports, err := client.GetBalance(context.Background(), Pubkey("test-wallet"))
	require.NoError(t, err)
	assert.Equal(t, uint64(5*LamportsPerSOL), lamports)
}

func TestLiveRPC_GetTransactionDeltas(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result": map[string]any{
				"meta": map[string]any{
					"preBalances":  []uint64{10000000000, 500000},
					"postBalances": []uint64{8999995000, 1000500000},
				},
				"transaction": map[string]any{
					"message": map[string]any{
						"accountKeys": []map[string]any{
							{"pubkey": "funder"},
							{"pubkey": "recipient"},
						},
					},
				},
			},
		})
	})

	deltas, err := client.GetTransactionDeltas(context.Background(), Signature("test-sig"))
	require.NoError(t, err)
	require.Len(t, deltas, 2)
	assert.Equal(t, Pubkey("funder"), deltas[0].Account)
	assert.Negative(t, deltas[0].Delta)
	assert.Equal(t, int64(1000000000), deltas[1].Delta)
}

func TestLiveRPC_GetTopHolders(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method == "getTokenLargestAccounts" {
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"id":      1,
				"result": map[string]any{
					"value": []map[string]any{
						{"address": "holder1", "amount": "500000", "decimals": 9},
						{"address": "holder2", "amount": "300000", "decimals": 9},
					},
				},
			})
		} else {
			// getTokenSupply.
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"id":      1,
				"result": map[string]any{
					"value": map[string]any{"amount": "1000000"},
				},
			})
		}
	})

	holders, err := client.GetTopHolders(context.Background(), Pubkey("test-mint"), 5)
	require.NoError(t, err)
	assert.Len(t, holders, 2)
	assert.Equal(t, Pubkey("holder1"), holders[0].Address)
	assert.InDelta(t, 50.0, holders[0].Percentage, 0.001)
}

func TestLiveRPC_RetryOnError(t *testing.T) {
	callCount := 0
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			w.WriteHeader(500)
			w.Write([]byte("internal error"))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  "ok",
		})
	})

	err := client.Health(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, callCount, "Should retry once after failure")
}

func TestLiveRPC_RPCError(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error": map[string]any{
				"code":    -32600,
				"message": "Invalid request",
			},
		})
	})

	err := client.Health(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid request")
}

func TestLiveRPC_ContextCancellation(t *testing.T) {
	_, client := newTestRPCServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second) // simulate slow response
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := client.Health(ctx)
	assert.Error(t, err)
}

func TestStubRPCClient(t *testing.T) {
	stub := NewStubRPCClient()
	stub.AddAccount(AccountData{Address: "mint1", Owner: TokenProgramID, Data: []byte{1}})
	stub.SetBalance("wallet1", 42)
	stub.AddSignatures("wallet1", []SignatureInfo{{Signature: "s1"}, {Signature: "s2"}})

	acc, err := stub.GetAccount(context.Background(), "mint1")
	require.NoError(t, err)
	assert.Equal(t, TokenProgramID, acc.Owner)

	bal, err := stub.GetBalance(context.Background(), "wallet1")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bal)

	sigs, err := stub.GetSignatures(context.Background(), "wallet1", 1)
	require.NoError(t, err)
	assert.Len(t, sigs, 1)

	stub.SetFailNext()
	_, err = stub.GetAccount(context.Background(), "mint1")
	assert.Error(t, err)

	// failNext is one-shot.
	_, err = stub.GetAccount(context.Background(), "mint1")
	assert.NoError(t, err)
}

func TestPubkeyValidation(t *testing.T) {
	assert.True(t, TokenProgramID.IsValid())
	assert.True(t, SOLMint.IsValid())
	assert.False(t, Pubkey("not-base58-0OIl").IsValid())
	assert.False(t, Pubkey("abc").IsValid())
	assert.Equal(t, "Tokenkeg", TokenProgramID.Short())
}
