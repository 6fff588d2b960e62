package feeds

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"hftbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRIVATE USER STREAM - Push-based position updates
// ═══════════════════════════════════════════════════════════════════════════════
//
// Authenticated WebSocket that subscribes to the positions channel and
// delivers every push to a single callback, in arrival order. This is
// the authoritative, immediate source of position truth; the periodic
// REST calibration only corrects drift.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PositionsCallback receives every positions push, in call order.
type PositionsCallback func(records []types.PositionRecord)

// UserStream manages the private WebSocket connection.
type UserStream struct {
	mu sync.RWMutex

	wsURL      string
	apiKey     string
	apiSecret  string
	passphrase string

	conn      *websocket.Conn
	connected bool
	running   bool
	stopCh    chan struct{}

	onPositions PositionsCallback
}

// NewUserStream creates a private stream client.
func NewUserStream(wsURL, apiKey, apiSecret, passphrase string) *UserStream {
	return &UserStream{
		wsURL:      wsURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		passphrase: passphrase,
		stopCh:     make(chan struct{}),
	}
}

// SetPositionsCallback registers the positions handler. Must be called
// before Start.
func (u *UserStream) SetPositionsCallback(cb PositionsCallback) {
	u.onPositions = cb
}

// Start connects, authenticates and begins processing.
func (u *UserStream) Start() {
	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return
	}
	u.running = true
	u.mu.Unlock()

	go u.connectionLoop()
	log.Info().Msg("📡 User stream started")
}

// Stop closes the connection.
func (u *UserStream) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.running {
		return
	}

	u.running = false
	close(u.stopCh)

	if u.conn != nil {
		u.conn.Close()
	}

	log.Info().Msg("User stream stopped")
}

func (u *UserStream) connectionLoop() {
	for {
		select {
		case <-u.stopCh:
			return
		default:
		}

		if err := u.connect(); err != nil {
			log.Error().Err(err).Msg("User stream connection failed, retrying...")
			time.Sleep(reconnectDelay)
			continue
		}

		u.readLoop()
		time.Sleep(reconnectDelay)
	}
}

// connect dials, logs in with an HMAC signature and subscribes to the
// positions channel.
func (u *UserStream) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(u.wsURL, nil)
	if err != nil {
		return err
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	login := map[string]interface{}{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     u.apiKey,
			"passphrase": u.passphrase,
			"timestamp":  ts,
			"sign":       u.sign(ts + "GET" + "/users/self/verify"),
		}},
	}
	if err := conn.WriteJSON(login); err != nil {
		conn.Close()
		return err
	}

	sub := map[string]interface{}{
		"op": "subscribe",
		"args": []map[string]string{
			{"channel": "positions", "instType": "SWAP"},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe positions: %w", err)
	}

	u.mu.Lock()
	u.conn = conn
	u.connected = true
	u.mu.Unlock()

	log.Info().Msg("🔐 User stream connected")

	go u.pingLoopPrivate()
	return nil
}

func (u *UserStream) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(u.apiSecret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (u *UserStream) pingLoopPrivate() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-u.stopCh:
			return
		case <-ticker.C:
			u.mu.RLock()
			conn := u.conn
			connected := u.connected
			u.mu.RUnlock()

			if connected && conn != nil {
				conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
		}
	}
}

func (u *UserStream) readLoop() {
	for {
		select {
		case <-u.stopCh:
			return
		default:
		}

		u.mu.RLock()
		conn := u.conn
		u.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("User stream read error")
			u.mu.Lock()
			u.connected = false
			u.mu.Unlock()
			return
		}

		u.processMessage(message)
	}
}

// positionsMessage is a positions-channel push.
type positionsMessage struct {
	Arg struct {
		Channel string `json:"channel"`
	} `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		Pos    string `json:"pos"`
		AvgPx  string `json:"avgPx"`
		CTime  string `json:"cTime"`
	} `json:"data"`
}

func (u *UserStream) processMessage(data []byte) {
	if string(data) == "pong" {
		return
	}

	var msg positionsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Arg.Channel != "positions" {
		return
	}

	records := make([]types.PositionRecord, 0, len(msg.Data))
	for _, d := range msg.Data {
		size, _ := strconv.ParseFloat(d.Pos, 64)
		avg, _ := strconv.ParseFloat(d.AvgPx, 64)
		opened, _ := strconv.ParseInt(d.CTime, 10, 64)
		records = append(records, types.PositionRecord{
			Symbol:     d.InstID,
			Size:       size,
			AvgPrice:   avg,
			OpenTimeMs: opened,
		})
	}

	if u.onPositions != nil {
		u.onPositions(records)
	}
}
