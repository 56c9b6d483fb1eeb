package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// WebSocket Account Monitor — real-time pool account updates via
// accountSubscribe. Feeds price/reserve samples to position evaluation.
// ---------------------------------------------------------------------------

// WSMonitorConfig configures the WebSocket account monitor.
type WSMonitorConfig struct {
	WSEndpoint       string `yaml:"ws_endpoint"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
	MaxReconnects    int    `yaml:"max_reconnects"`
}

// DefaultWSMonitorConfig returns defaults for mainnet monitoring.
func DefaultWSMonitorConfig() WSMonitorConfig {
	return WSMonitorConfig{
		WSEndpoint:       "wss://api.mainnet-beta.solana.com",
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
		MaxReconnects:    0, // 0 = unlimited reconnects
	}
}

// AccountUpdate is emitted when a watched account changes.
type AccountUpdate struct {
	Account    Pubkey    `json:"account"`
	Lamports   uint64    `json:"lamports"`
	Data       []byte    `json:"-"`
	Slot       uint64    `json:"slot"`
	ReceivedAt time.Time `json:"received_at"`
}

// WSMonitor streams account updates for watched pool accounts.
type WSMonitor struct {
	config WSMonitorConfig

	mu      sync.RWMutex
	conn    *websocket.Conn
	watched map[Pubkey]bool  // accounts to (re)subscribe on connect
	subs    map[int64]Pubkey // request ID -> account
	active  map[int64]Pubkey // confirmed subscription ID -> account

	// writeMu serializes frame writes; gorilla/websocket permits only
	// one concurrent writer per connection.
	writeMu sync.Mutex

	updateChan chan AccountUpdate
	closed     atomic.Bool

	nextReqID atomic.Int64

	// Stats.
	messagesRecv atomic.Int64
	updatesSent  atomic.Int64
	reconnects   atomic.Int64
	connected    atomic.Bool
}

// NewWSMonitor creates a new WebSocket account monitor.
func NewWSMonitor(config WSMonitorConfig) *WSMonitor {
	return &WSMonitor{
		config:     config,
		watched:    make(map[Pubkey]bool),
		subs:       make(map[int64]Pubkey),
		active:     make(map[int64]Pubkey),
		updateChan: make(chan AccountUpdate, 256),
	}
}

// Watch registers an account to monitor. Takes effect on the next
// (re)connect, or immediately if connected.
func (m *WSMonitor) Watch(account Pubkey) {
	m.mu.Lock()
	m.watched[account] = true
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		if err := m.subscribe(account); err != nil {
			log.Warn().Err(err).Str("account", account.Short()).Msg("ws: subscribe failed")
		}
	}
}

// Unwatch stops monitoring an account on the next reconnect.
func (m *WSMonitor) Unwatch(account Pubkey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watched, account)
}

// Start connects and starts streaming. Returns the update channel;
// runs until ctx is cancelled.
func (m *WSMonitor) Start(ctx context.Context) (<-chan AccountUpdate, error) {
	go m.runLoop(ctx)
	return m.updateChan, nil
}

func (m *WSMonitor) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("ws: runLoop panic recovered")
		}
		// Acquire write lock to synchronize with handleMessage's channel send.
		m.mu.Lock()
		if m.closed.CompareAndSwap(false, true) {
			close(m.updateChan)
		}
		m.mu.Unlock()
	}()

	reconnectDelay := time.Duration(m.config.ReconnectDelayMs) * time.Millisecond
	reconnectCount := 0

	for {
		select {
		case <-ctx.Done():
			m.disconnect()
			return
		default:
		}

		// Unlimited reconnects when MaxReconnects == 0.
		if m.config.MaxReconnects > 0 && reconnectCount >= m.config.MaxReconnects {
			log.Error().Int("max", m.config.MaxReconnects).Msg("ws: max reconnects reached, restarting counter after cooldown")
			select {
			case <-time.After(60 * time.Second):
				reconnectCount = 0
				continue
			case <-ctx.Done():
				m.disconnect()
				return
			}
		}

		if err := m.connect(ctx); err != nil {
			log.Warn().Err(err).Int("attempt", reconnectCount).Msg("ws: connection failed")
			reconnectCount++
			m.reconnects.Add(1)

			maxDelay := 30 * time.Second
			if reconnectDelay > maxDelay {
				reconnectDelay = maxDelay
			}
			select {
			case <-time.After(reconnectDelay):
				reconnectDelay = reconnectDelay * 2
				if reconnectDelay > maxDelay {
					reconnectDelay = maxDelay
				}
			case <-ctx.Done():
				return
			}
			continue
		}

		reconnectCount = 0
		reconnectDelay = time.Duration(m.config.ReconnectDelayMs) * time.Millisecond

		// Re-subscribe to all watched accounts.
		m.mu.RLock()
		accounts := make([]Pubkey, 0, len(m.watched))
		for acc := range m.watched {
			accounts = append(accounts, acc)
		}
		m.mu.RUnlock()
		for _, acc := range accounts {
			if err := m.subscribe(acc); err != nil {
				log.Warn().Err(err).Str("account", acc.Short()).Msg("ws: subscribe failed")
			}
		}

		// Read messages until disconnect.
		m.readLoop(ctx)
	}
}

func (m *WSMonitor) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := http.Header{}
	conn, _, err := dialer.DialContext(ctx, m.config.WSEndpoint, header)
	if err != nil {
		return fmt.Errorf("ws: dial: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.subs = make(map[int64]Pubkey)
	m.active = make(map[int64]Pubkey)
	m.mu.Unlock()
	m.connected.Store(true)

	log.Info().Str("endpoint", m.config.WSEndpoint).Msg("ws: connected")
	return nil
}

func (m *WSMonitor) disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connected.Store(false)
}

// subscribe sends an accountSubscribe RPC request.
func (m *WSMonitor) subscribe(account Pubkey) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("ws: not connected")
	}

	reqID := m.nextReqID.Add(1)

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      reqID,
		"method":  "accountSubscribe",
		"params": []any{
			string(account),
			map[string]any{
				"encoding":   "base64",
				"commitment": "confirmed",
			},
		},
	}

	m.mu.Lock()
	m.subs[reqID] = account
	m.mu.Unlock()

	if err := m.writeJSON(conn, req); err != nil {
		return fmt.Errorf("ws: write subscribe: %w", err)
	}

	log.Info().Str("account", account.Short()).Msg("ws: subscribed to account")
	return nil
}

func (m *WSMonitor) writeJSON(conn *websocket.Conn, v any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (m *WSMonitor) writeFrame(conn *websocket.Conn, messageType int, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}

func (m *WSMonitor) readLoop(ctx context.Context) {
	// Ping ticker.
	pingInterval := time.Duration(m.config.PingIntervalS) * time.Second
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()
			if conn != nil {
				if err := m.writeFrame(conn, websocket.PingMessage, nil); err != nil {
					log.Debug().Err(err).Msg("ws: ping failed")
					return
				}
			}
		default:
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("ws: connection closed normally")
			} else {
				log.Warn().Err(err).Msg("ws: read error, reconnecting")
			}
			m.connected.Store(false)
			return
		}

		m.messagesRecv.Add(1)
		m.handleMessage(message)
	}
}

func (m *WSMonitor) handleMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("ws: handleMessage panic recovered")
		}
	}()

	var notification struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Value struct {
					Lamports uint64   `json:"lamports"`
					Data     []string `json:"data"` // [base64_data, "base64"]
				} `json:"value"`
				Context struct {
					Slot uint64 `json:"slot"`
				} `json:"context"`
			} `json:"result"`
			Subscription int64 `json:"subscription"`
		} `json:"params"`
	}

	if err := json.Unmarshal(data, &notification); err != nil {
		return
	}

	if notification.Method != "accountNotification" {
		// Could be a subscription confirmation response.
		var subResp struct {
			ID     int64 `json:"id"`
			Result int64 `json:"result"`
		}
		if json.Unmarshal(data, &subResp) == nil && subResp.Result > 0 {
			m.mu.Lock()
			if acc, ok := m.subs[subResp.ID]; ok {
				m.active[subResp.Result] = acc
				delete(m.subs, subResp.ID)
			}
			m.mu.Unlock()
			log.Debug().Int64("sub_id", subResp.Result).Msg("ws: subscription confirmed")
		}
		return
	}

	m.mu.RLock()
	account, ok := m.active[notification.Params.Subscription]
	m.mu.RUnlock()
	if !ok {
		return
	}

	var raw []byte
	if len(notification.Params.Result.Value.Data) > 0 {
		raw, _ = base64.StdEncoding.DecodeString(notification.Params.Result.Value.Data[0])
	}

	update := AccountUpdate{
		Account:    account,
		Lamports:   notification.Params.Result.Value.Lamports,
		Data:       raw,
		Slot:       notification.Params.Result.Context.Slot,
		ReceivedAt: time.Now(),
	}

	// Synchronize channel send with close using mutex to prevent
	// send-on-closed-channel panic (atomic check alone is racy).
	m.mu.RLock()
	closed := m.closed.Load()
	if !closed {
		select {
		case m.updateChan <- update:
			m.updatesSent.Add(1)
		default:
			log.Warn().Msg("ws: update channel full, dropping event")
		}
	}
	m.mu.RUnlock()
}

// WSStats returns monitor statistics.
type WSStats struct {
	Connected    bool  `json:"connected"`
	MessagesRecv int64 `json:"messages_recv"`
	UpdatesSent  int64 `json:"updates_sent"`
	Reconnects   int64 `json:"reconnects"`
}

func (m *WSMonitor) Stats() WSStats {
	return WSStats{
		Connected:    m.connected.Load(),
		MessagesRecv: m.messagesRecv.Load(),
		UpdatesSent:  m.updatesSent.Load(),
		Reconnects:   m.reconnects.Load(),
	}
}
