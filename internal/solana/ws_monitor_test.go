package solana

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSMonitor_NewWSMonitor(t *testing.T) {
	config := DefaultWSMonitorConfig()
	monitor := NewWSMonitor(config)

	assert.NotNil(t, monitor)
	assert.NotNil(t, monitor.updateChan)

	stats := monitor.Stats()
	assert.False(t, stats.Connected)
	assert.Equal(t, int64(0), stats.UpdatesSent)
}

func TestWSMonitorConfig_Defaults(t *testing.T) {
	config := DefaultWSMonitorConfig()

	assert.NotEmpty(t, config.WSEndpoint)
	assert.Equal(t, 1000, config.ReconnectDelayMs)
	assert.Equal(t, 30, config.PingIntervalS)
	assert.Equal(t, 0, config.MaxReconnects) // 0 = unlimited reconnects
}

func TestWSMonitor_HandleNotification(t *testing.T) {
	monitor := NewWSMonitor(DefaultWSMonitorConfig())
	monitor.Watch("pool-account")

	// Pending subscription as if subscribe() had sent request ID 1.
	monitor.subs[1] = Pubkey("pool-account")

	// Subscription confirmation maps request ID 1 to subscription ID 99.
	confirm, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  99,
	})
	monitor.handleMessage(confirm)
	assert.Equal(t, Pubkey("pool-account"), monitor.active[99])

	raw := []byte{0xAA, 0xBB}
	notification, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "accountNotification",
		"params": map[string]any{
			"result": map[string]any{
				"context": map[string]any{"slot": 12345},
				"value": map[string]any{
					"lamports": 777,
					"data":     []string{base64.StdEncoding.EncodeToString(raw), "base64"},
				},
			},
			"subscription": 99,
		},
	})
	monitor.handleMessage(notification)

	select {
	case update := <-monitor.updateChan:
		assert.Equal(t, Pubkey("pool-account"), update.Account)
		assert.Equal(t, uint64(777), update.Lamports)
		assert.Equal(t, uint64(12345), update.Slot)
		assert.Equal(t, raw, update.Data)
	default:
		t.Fatal("expected an account update on the channel")
	}
}

func TestWSMonitor_UnknownSubscriptionDropped(t *testing.T) {
	monitor := NewWSMonitor(DefaultWSMonitorConfig())

	notification, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "accountNotification",
		"params": map[string]any{
			"result": map[string]any{
				"context": map[string]any{"slot": 1},
				"value":   map[string]any{"lamports": 1},
			},
			"subscription": 404,
		},
	})
	monitor.handleMessage(notification)

	select {
	case <-monitor.updateChan:
		t.Fatal("update for unknown subscription should be dropped")
	default:
	}
}

func TestWSMonitor_MalformedMessageIgnored(t *testing.T) {
	monitor := NewWSMonitor(DefaultWSMonitorConfig())

	monitor.handleMessage([]byte("{not json"))
	monitor.handleMessage([]byte(`{"method":"somethingElse"}`))

	require.Equal(t, int64(0), monitor.Stats().UpdatesSent)
}

func TestWSMonitor_ConcurrentWritesSerialized(t *testing.T) {
	// Subscriptions and keepalive pings write on the same connection;
	// unserialized they panic inside gorilla/websocket.
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	monitor := NewWSMonitor(DefaultWSMonitorConfig())
	monitor.mu.Lock()
	monitor.conn = conn
	monitor.mu.Unlock()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if g%2 == 0 {
					assert.NoError(t, monitor.writeFrame(conn, websocket.PingMessage, nil))
				} else {
					assert.NoError(t, monitor.subscribe(Pubkey(fmt.Sprintf("acct-%d-%d", g, i))))
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestWSMonitor_WatchUnwatch(t *testing.T) {
	monitor := NewWSMonitor(DefaultWSMonitorConfig())

	monitor.Watch("a")
	monitor.Watch("b")
	assert.Len(t, monitor.watched, 2)

	monitor.Unwatch("a")
	assert.Len(t, monitor.watched, 1)
	assert.True(t, monitor.watched["b"])
}
