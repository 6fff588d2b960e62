package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"hftbot/feeds"
	"hftbot/internal/metrics"
	"hftbot/risk"
	"hftbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADING ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow per tick:
//   Feed → OnTick → exit rules → EMA/resistance update → calibration kick
//        → cliff-catch check → breakout check → risk gate → order → optimistic update
//
// The engine owns all mutable session state. Ticks are processed
// sequentially on one goroutine; the position tuple (position, entry
// price, entry time, highest price) is additionally written by the
// position-push callback and the background calibration task, so every
// read-modify-write of that tuple is one critical section under mu.
// Nothing else blocks between the tick path and the calibration task.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Exit rule parameters. First matching rule wins, evaluation stops.
const (
	hardStopRatio     = 0.99  // close when price < entry × 0.99
	trailingStopRatio = 0.995 // close when price < highest × 0.995 while in profit
	timeStopAfter     = 15 * time.Second
	timeStopMinGain   = 0.001 // 0.1%: below this after the time limit, close
)

// Strategy trigger factors, strict vs relaxed operating mode.
const (
	cliffDropStrict  = 0.99  // 1% drop below fast EMA
	cliffDropRelaxed = 0.997 // 0.3% drop, triples the trigger rate
	breakoutStrict   = 1.0
	breakoutRelaxed  = 0.9995 // allows entry 0.05% below resistance
)

// positionTolerance is the float tolerance when comparing local and venue
// contract counts during calibration.
const positionTolerance = 0.001

const resistanceWindow = 50

// Executor is the venue order/query interface the engine depends on.
// Implementations may fail with transient network errors; the engine
// treats every failure as "this tick's action did not happen".
type Executor interface {
	PlaceImmediateOrder(symbol, side string, limitPrice, size float64) (*types.OrderResult, error)
	ClosePosition(symbol string, size float64, direction string) (*types.OrderResult, error)
	GetAvailableBalance() (float64, error)
	GetVenuePosition(symbol string) (*types.VenuePosition, error)
}

// TradeNotifier receives trade notifications (Telegram).
type TradeNotifier interface {
	NotifyTrade(action, symbol, side string, price, size float64)
}

// Config holds the engine's numeric parameters.
type Config struct {
	Symbol  string
	Relaxed bool // relaxed mode loosens both entry triggers

	EMAFastPeriod int
	EMASlowPeriod int
	Slippage      float64 // IOC limit offset, e.g. 0.002 = 0.2%

	FlowWindow     time.Duration
	MinTrades      int
	MinNetNotional float64

	CalibrationInterval time.Duration
}

// DefaultConfig returns the production parameters for one instrument.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:              symbol,
		EMAFastPeriod:       9,
		EMASlowPeriod:       21,
		Slippage:            0.002,
		FlowWindow:          3 * time.Second,
		MinTrades:           20,
		MinNetNotional:      10000,
		CalibrationInterval: 60 * time.Second,
	}
}

// Engine is the single entry point for the external feeds. OnTick is
// invoked once per trade tick, always from the same goroutine;
// OnPositionPush arrives asynchronously from the private stream.
type Engine struct {
	cfg      Config
	market   *feeds.MarketState
	guard    *risk.Guard
	sizer    *risk.Sizer
	executor Executor
	notifier TradeNotifier

	cliffDropFactor float64
	breakoutFactor  float64

	mu sync.Mutex

	// Recursive EMA state, nil-until-first-tick semantics via emaReady.
	emaFast  float64
	emaSlow  float64
	emaReady bool

	resistance  float64
	priceWindow []float64

	// Position tuple. Zero values mean flat: position == 0 iff
	// entryPrice == 0, entryTime is zero and highestPrice == 0.
	position     float64
	entryPrice   float64
	entryTime    time.Time
	highestPrice float64

	lastCalibration time.Time

	tickCount        int64
	cliffTriggers    int64
	breakoutTriggers int64
	executions       int64
	exitCounts       map[string]int64

	now func() time.Time
}

// NewEngine wires the engine to its collaborators. The risk guard is the
// shared instance constructed at startup; every engine gates orders
// through the same one.
func NewEngine(cfg Config, market *feeds.MarketState, guard *risk.Guard, sizer *risk.Sizer, executor Executor) *Engine {
	e := &Engine{
		cfg:             cfg,
		market:          market,
		guard:           guard,
		sizer:           sizer,
		executor:        executor,
		cliffDropFactor: cliffDropStrict,
		breakoutFactor:  breakoutStrict,
		priceWindow:     make([]float64, 0, resistanceWindow),
		exitCounts:      make(map[string]int64),
		now:             time.Now,
	}
	if cfg.Relaxed {
		e.cliffDropFactor = cliffDropRelaxed
		e.breakoutFactor = breakoutRelaxed
	}

	log.Info().
		Str("symbol", cfg.Symbol).
		Bool("relaxed", cfg.Relaxed).
		Int("ema_fast", cfg.EMAFastPeriod).
		Int("ema_slow", cfg.EMASlowPeriod).
		Msg("⚡ Trading engine initialized")

	return e
}

// SetNotifier registers an optional trade notifier.
func (e *Engine) SetNotifier(n TradeNotifier) {
	e.notifier = n
}

// SetClock overrides the time source. Used by tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// OnTick processes one trade tick. Exit rules run first, then the
// indicator updates, then both entry strategies.
func (e *Engine) OnTick(t types.Trade) {
	now := e.now()
	price := t.Price

	e.market.RecordTrade(t)
	metrics.IncTick()

	e.mu.Lock()
	e.tickCount++
	tick := e.tickCount
	e.mu.Unlock()

	e.checkExits(price, now)
	e.updateIndicators(price)
	e.maybeCalibrate(now)
	e.cliffCatch(price, now)
	e.breakout(price, now)

	if tick%1000 == 0 {
		e.mu.Lock()
		log.Info().
			Int64("tick", tick).
			Float64("price", price).
			Float64("ema_fast", e.emaFast).
			Float64("ema_slow", e.emaSlow).
			Float64("resistance", e.resistance).
			Float64("position", e.position).
			Msg("Tick checkpoint")
		e.mu.Unlock()
	}
}

// ema applies the recursive EMA step: ema = (price − prev)·α + prev with
// α = 2/(period+1).
func ema(price, prev float64, period int) float64 {
	alpha := 2.0 / float64(period+1)
	return (price-prev)*alpha + prev
}

// updateIndicators advances both EMAs and the resistance window.
func (e *Engine) updateIndicators(price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.emaReady {
		e.emaFast = price
		e.emaSlow = price
		e.emaReady = true
	} else {
		e.emaFast = ema(price, e.emaFast, e.cfg.EMAFastPeriod)
		e.emaSlow = ema(price, e.emaSlow, e.cfg.EMASlowPeriod)
	}

	e.priceWindow = append(e.priceWindow, price)
	if len(e.priceWindow) > resistanceWindow {
		e.priceWindow = e.priceWindow[1:]
	}
	max := e.priceWindow[0]
	for _, p := range e.priceWindow[1:] {
		if p > max {
			max = p
		}
	}
	e.resistance = max
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXIT ENGINE
// ═══════════════════════════════════════════════════════════════════════════════

// checkExits evaluates the three exit rules in strict priority order.
// No-op while flat. The highest price since entry is advanced before the
// trailing check, every tick.
func (e *Engine) checkExits(price float64, now time.Time) {
	e.mu.Lock()
	if e.position == 0 {
		e.mu.Unlock()
		return
	}
	if price > e.highestPrice {
		e.highestPrice = price
	}
	size := e.position
	entry := e.entryPrice
	entryTime := e.entryTime
	highest := e.highestPrice
	e.mu.Unlock()

	var reason string
	switch {
	case price < entry*hardStopRatio:
		reason = "hard_stop"
	case price < highest*trailingStopRatio && price > entry:
		reason = "trailing_stop"
	case now.Sub(entryTime) > timeStopAfter && (price-entry)/entry < timeStopMinGain:
		reason = "time_stop"
	default:
		return
	}

	e.closePosition(price, size, entry, reason)
}

// closePosition submits the close and, on success, resets the position
// tuple in one step. On failure the state is left unchanged; the next
// tick re-evaluates the same exit rule.
func (e *Engine) closePosition(price, size, entry float64, reason string) {
	log.Info().
		Str("reason", reason).
		Float64("entry", entry).
		Float64("price", price).
		Float64("size", size).
		Msg("📤 Closing position")

	if _, err := e.executor.ClosePosition(e.cfg.Symbol, size, "long"); err != nil {
		log.Error().Err(err).Str("reason", reason).Msg("Close order failed")
		return
	}

	pnl := (price - entry) * size

	e.mu.Lock()
	e.position = 0
	e.entryPrice = 0
	e.entryTime = time.Time{}
	e.highestPrice = 0
	e.exitCounts[reason]++
	e.mu.Unlock()

	e.guard.RecordTrade(pnl)
	metrics.IncExit(reason)
	metrics.IncOrder("sell")
	metrics.SetPosition(0)

	log.Info().
		Str("reason", reason).
		Float64("pnl", pnl).
		Msg("📊 Position closed")

	if e.notifier != nil {
		e.notifier.NotifyTrade(reason, e.cfg.Symbol, "sell", price, size)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// ENTRY STRATEGIES
// ═══════════════════════════════════════════════════════════════════════════════

// cliffCatch is the mean-reversion trigger: fires when the price drops to
// or below the fast EMA scaled by the drop factor.
func (e *Engine) cliffCatch(price float64, now time.Time) {
	e.mu.Lock()
	ready := e.emaReady
	threshold := e.emaFast * e.cliffDropFactor
	e.mu.Unlock()

	if !ready || price > threshold {
		return
	}

	e.mu.Lock()
	e.cliffTriggers++
	count := e.cliffTriggers
	e.mu.Unlock()

	metrics.IncTrigger("cliff_catch")
	log.Info().
		Float64("price", price).
		Float64("threshold", threshold).
		Int64("trigger_count", count).
		Msg("🪂 Cliff-catch triggered")

	e.enterLong("cliff_catch", price, now)
}

// breakout is the momentum trigger: fires on sufficient flow pressure
// while the price clears the resistance level scaled by the breakout
// factor.
func (e *Engine) breakout(price float64, now time.Time) {
	net, count, intensity := e.market.FlowPressure(e.cfg.FlowWindow)

	e.mu.Lock()
	limit := e.resistance * e.breakoutFactor
	e.mu.Unlock()

	if count < e.cfg.MinTrades || net < e.cfg.MinNetNotional || price <= limit {
		return
	}

	e.mu.Lock()
	e.breakoutTriggers++
	triggers := e.breakoutTriggers
	e.mu.Unlock()

	metrics.IncTrigger("breakout")
	log.Info().
		Int("trade_count", count).
		Float64("net_notional", net).
		Float64("intensity", intensity).
		Float64("price", price).
		Float64("resistance_limit", limit).
		Int64("trigger_count", triggers).
		Msg("🎯 Breakout triggered")

	e.enterLong("breakout", price, now)
}

// enterLong gates on the risk guard, sizes the order and submits an IOC
// buy. On successful submission the position tuple is updated
// optimistically, before the venue confirms the fill, so subsequent
// ticks do not re-trigger while confirmation is in flight.
func (e *Engine) enterLong(strategy string, price float64, now time.Time) {
	if !e.guard.CanTrade() {
		log.Warn().Str("strategy", strategy).Msg("🚫 Entry blocked by risk guard")
		return
	}

	size := e.orderSize(price)
	if size <= 0 {
		log.Warn().Str("strategy", strategy).Msg("Zero order size, skipping entry")
		return
	}

	limitPrice := price * (1 + e.cfg.Slippage)

	res, err := e.executor.PlaceImmediateOrder(e.cfg.Symbol, "buy", limitPrice, size)
	if err != nil {
		log.Error().Err(err).Str("strategy", strategy).Msg("Entry order failed")
		return
	}

	e.mu.Lock()
	e.position = size
	e.entryPrice = price
	e.entryTime = now
	e.highestPrice = price
	e.executions++
	e.mu.Unlock()

	e.guard.RecordTrade(0)
	metrics.IncOrder("buy")
	metrics.SetPosition(size)

	log.Info().
		Str("strategy", strategy).
		Str("order_id", res.OrderID).
		Float64("entry", price).
		Float64("limit", limitPrice).
		Float64("size", size).
		Msg("✅ Entry submitted")

	if e.notifier != nil {
		e.notifier.NotifyTrade("OPEN", e.cfg.Symbol, "buy", price, size)
	}
}

// orderSize fetches the balance and computes the dynamic size. A failed
// balance query falls back to the fixed configured size; a non-positive
// balance yields zero and the caller skips the order.
func (e *Engine) orderSize(price float64) float64 {
	balance, err := e.executor.GetAvailableBalance()
	if err != nil {
		log.Warn().
			Err(err).
			Float64("fallback", e.sizer.Fallback()).
			Msg("⚠️ Balance query failed, using fixed order size")
		return e.sizer.Fallback()
	}

	metrics.SetEquity(balance)
	return e.sizer.OrderSize(balance, price)
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATS
// ═══════════════════════════════════════════════════════════════════════════════

// Stats is a point-in-time snapshot of the session state.
type Stats struct {
	Symbol           string
	TickCount        int64
	CliffTriggers    int64
	BreakoutTriggers int64
	Executions       int64
	ExitCounts       map[string]int64
	EMAFast          float64
	EMASlow          float64
	Resistance       float64
	Position         float64
	EntryPrice       float64
	HighestPrice     float64
}

// Stats returns a consistent snapshot of counters and session state.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	exits := make(map[string]int64, len(e.exitCounts))
	for k, v := range e.exitCounts {
		exits[k] = v
	}

	return Stats{
		Symbol:           e.cfg.Symbol,
		TickCount:        e.tickCount,
		CliffTriggers:    e.cliffTriggers,
		BreakoutTriggers: e.breakoutTriggers,
		Executions:       e.executions,
		ExitCounts:       exits,
		EMAFast:          e.emaFast,
		EMASlow:          e.emaSlow,
		Resistance:       e.resistance,
		Position:         e.position,
		EntryPrice:       e.entryPrice,
		HighestPrice:     e.highestPrice,
	}
}
