package feeds

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"hftbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET STATE BUFFER - Rolling microstructure view of one instrument
// ═══════════════════════════════════════════════════════════════════════════════
//
// Fixed-capacity FIFO of recent trades plus a separate whale window.
// Derives latest price, windowed order-flow pressure and whale activity.
// All reads are O(window size); RecordTrade is the only mutation.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	tradeWindowCap = 1000 // most recent trades kept
	whaleWindowCap = 50   // most recent whale trades kept
)

// tradeRing is a fixed-capacity FIFO of trades. When full, the oldest
// entry is overwritten. Not safe for concurrent use on its own.
type tradeRing struct {
	buf  []types.Trade
	head int // index of oldest entry
	n    int
}

func newTradeRing(capacity int) *tradeRing {
	return &tradeRing{buf: make([]types.Trade, capacity)}
}

func (r *tradeRing) push(t types.Trade) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = t
		r.n++
		return
	}
	r.buf[r.head] = t
	r.head = (r.head + 1) % len(r.buf)
}

func (r *tradeRing) len() int { return r.n }

// items returns the buffered trades oldest-first.
func (r *tradeRing) items() []types.Trade {
	out := make([]types.Trade, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// MarketState holds the rolling trade and whale windows for one instrument.
type MarketState struct {
	mu sync.RWMutex

	whaleThreshold float64

	trades *tradeRing
	whales *tradeRing

	lastPrice     float64
	lastTimestamp int64
	hasTrades     bool

	totalTrades      int64
	totalWhaleTrades int64
}

// NewMarketState creates a market state buffer. whaleThreshold is the
// minimum notional (USDT) for a trade to count as a whale trade.
func NewMarketState(whaleThreshold float64) *MarketState {
	return &MarketState{
		whaleThreshold: whaleThreshold,
		trades:         newTradeRing(tradeWindowCap),
		whales:         newTradeRing(whaleWindowCap),
	}
}

// RecordTrade appends a trade to the rolling window, evicting the oldest
// entry on overflow, and mirrors it into the whale window when its
// notional clears the threshold.
func (m *MarketState) RecordTrade(t types.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trades.push(t)
	m.lastPrice = t.Price
	m.lastTimestamp = t.Timestamp
	m.hasTrades = true
	m.totalTrades++

	if t.Notional() >= m.whaleThreshold {
		m.whales.push(t)
		m.totalWhaleTrades++
		log.Debug().
			Float64("price", t.Price).
			Float64("size", t.Size).
			Str("side", string(t.Side)).
			Float64("notional", t.Notional()).
			Msg("🐋 Whale trade")
	}
}

// LatestPrice returns the most recent trade price. ok is false before the
// first trade arrives.
func (m *MarketState) LatestPrice() (price float64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPrice, m.hasTrades
}

// LatestTimestamp returns the millisecond timestamp of the most recent trade.
func (m *MarketState) LatestTimestamp() (ts int64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastTimestamp, m.hasTrades
}

// FlowPressure scans the trade window for entries within window of the
// latest trade timestamp and returns the net signed notional
// (buys - sells), the trade count, and the intensity (total notional per
// second of window).
func (m *MarketState) FlowPressure(window time.Duration) (netNotional float64, tradeCount int, intensity float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasTrades || window <= 0 {
		return 0, 0, 0
	}

	threshold := m.lastTimestamp - window.Milliseconds()

	var buyNotional, sellNotional, totalNotional float64
	for _, t := range m.trades.items() {
		if t.Timestamp < threshold {
			continue
		}
		tradeCount++
		notional := t.Notional()
		totalNotional += notional
		if t.Side == types.SideBuy {
			buyNotional += notional
		} else {
			sellNotional += notional
		}
	}

	netNotional = buyNotional - sellNotional
	intensity = totalNotional / window.Seconds()
	return netNotional, tradeCount, intensity
}

// RecentTrades returns up to limit most recent trades, oldest-first.
// limit <= 0 returns the full window.
func (m *MarketState) RecentTrades(limit int) []types.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.trades.items()
	if limit <= 0 || limit >= len(all) {
		return all
	}
	return all[len(all)-limit:]
}

// WhaleTrades returns the whale window, oldest-first.
func (m *MarketState) WhaleTrades() []types.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.whales.items()
}

// WhaleCount returns the number of whale trades within window of the
// latest trade timestamp.
func (m *MarketState) WhaleCount(window time.Duration) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasTrades {
		return 0
	}

	threshold := m.lastTimestamp - window.Milliseconds()
	count := 0
	for _, t := range m.whales.items() {
		if t.Timestamp >= threshold {
			count++
		}
	}
	return count
}

// TradeCount returns the current number of buffered trades.
func (m *MarketState) TradeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trades.len()
}

// Totals returns lifetime counters for processed and whale trades.
func (m *MarketState) Totals() (trades, whales int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalTrades, m.totalWhaleTrades
}
