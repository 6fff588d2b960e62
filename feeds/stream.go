package feeds

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"hftbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PUBLIC TRADE FEED - WebSocket trade-tick stream
// ═══════════════════════════════════════════════════════════════════════════════
//
// Connects to the venue's public WebSocket, subscribes to the trades
// channel for one instrument and fans ticks out to subscribers.
// Reconnects with a fixed delay on any read failure.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 25 * time.Second
)

// TradeFeed manages the public WebSocket connection and tick distribution.
type TradeFeed struct {
	mu sync.RWMutex

	wsURL     string
	symbol    string
	conn      *websocket.Conn
	connected bool
	running   bool
	stopCh    chan struct{}

	subscribers []chan types.Trade
}

// NewTradeFeed creates a feed for one instrument.
func NewTradeFeed(wsURL, symbol string) *TradeFeed {
	return &TradeFeed{
		wsURL:  wsURL,
		symbol: symbol,
		stopCh: make(chan struct{}),
	}
}

// Start connects and begins processing.
func (f *TradeFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.connectionLoop()
	log.Info().Str("symbol", f.symbol).Msg("📡 Trade feed started")
}

// Stop closes the connection.
func (f *TradeFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}

	f.running = false
	close(f.stopCh)

	if f.conn != nil {
		f.conn.Close()
	}

	log.Info().Msg("Trade feed stopped")
}

// Subscribe returns a channel that receives trade ticks.
func (f *TradeFeed) Subscribe() chan types.Trade {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan types.Trade, 1000)
	f.subscribers = append(f.subscribers, ch)
	return ch
}

// connectionLoop maintains the WebSocket connection.
func (f *TradeFeed) connectionLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.connect(); err != nil {
			log.Error().Err(err).Msg("Feed connection failed, retrying...")
			time.Sleep(reconnectDelay)
			continue
		}

		f.readLoop()
		time.Sleep(reconnectDelay)
	}
}

// connect dials the WebSocket and subscribes to the trades channel.
func (f *TradeFeed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		return err
	}

	sub := map[string]interface{}{
		"op": "subscribe",
		"args": []map[string]string{
			{"channel": "trades", "instId": f.symbol},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()

	log.Info().Str("symbol", f.symbol).Msg("🔌 Trade stream connected")

	go f.pingLoop()
	return nil
}

// pingLoop keeps the connection alive.
func (f *TradeFeed) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.mu.RLock()
			conn := f.conn
			connected := f.connected
			f.mu.RUnlock()

			if connected && conn != nil {
				conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
		}
	}
}

// readLoop reads messages until the connection drops.
func (f *TradeFeed) readLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Trade stream read error")
			f.mu.Lock()
			f.connected = false
			f.mu.Unlock()
			return
		}

		f.processMessage(message)
	}
}

// tradeMessage is a public trades-channel push.
type tradeMessage struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		Price string `json:"px"`
		Size  string `json:"sz"`
		Side  string `json:"side"`
		TS    string `json:"ts"`
	} `json:"data"`
}

// processMessage parses a trades push and broadcasts each tick.
func (f *TradeFeed) processMessage(data []byte) {
	if string(data) == "pong" {
		return
	}

	var msg tradeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Arg.Channel != "trades" {
		return
	}

	for _, d := range msg.Data {
		price, err := strconv.ParseFloat(d.Price, 64)
		if err != nil {
			continue
		}
		size, _ := strconv.ParseFloat(d.Size, 64)
		ts, _ := strconv.ParseInt(d.TS, 10, 64)

		side := types.SideSell
		if d.Side == "buy" {
			side = types.SideBuy
		}

		f.broadcast(types.Trade{
			Price:     price,
			Size:      size,
			Side:      side,
			Timestamp: ts,
		})
	}
}

// broadcast sends a tick to all subscribers, dropping on full channels.
func (f *TradeFeed) broadcast(t types.Trade) {
	f.mu.RLock()
	subs := f.subscribers
	f.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- t:
		default:
		}
	}
}
