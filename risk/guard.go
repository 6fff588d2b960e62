package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK GUARD - Process-wide trading circuit breaker
// ═══════════════════════════════════════════════════════════════════════════════
//
// One shared instance gates every order:
//   1. Cooldown: at least cooldown between two permitted trades
//   2. Kill switch: trading halts while the balance drawdown exceeds
//      maxLossPct of the initial balance. The kill switch does not heal
//      with time, only through SetBalances reflecting recovered equity.
//
// CanTrade is an advisory gate: it never errors, callers skip the order
// (and log) on false.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Guard is the shared risk circuit breaker. Construct one at startup and
// hand the same instance to every engine that places orders.
type Guard struct {
	mu sync.Mutex

	cooldown   time.Duration
	maxLossPct decimal.Decimal

	cumulativeLoss decimal.Decimal
	lastTradeTime  time.Time

	initialBalance decimal.Decimal
	currentBalance decimal.Decimal
	balancesSet    bool

	now func() time.Time
}

// NewGuard creates a circuit breaker with the given cooldown between
// trades and maximum drawdown fraction of the initial balance.
func NewGuard(cooldown time.Duration, maxLossPct float64) *Guard {
	return &Guard{
		cooldown:   cooldown,
		maxLossPct: decimal.NewFromFloat(maxLossPct),
		now:        time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (g *Guard) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// SetBalances records the initial and current account balances. Called at
// startup and on every balance refresh.
func (g *Guard) SetBalances(initial, current float64) error {
	if initial <= 0 {
		return fmt.Errorf("invalid initial balance: %v", initial)
	}
	if current < 0 {
		return fmt.Errorf("invalid current balance: %v", current)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.initialBalance = decimal.NewFromFloat(initial)
	g.currentBalance = decimal.NewFromFloat(current)
	g.balancesSet = true

	log.Info().
		Float64("initial", initial).
		Float64("current", current).
		Str("loss_pct", g.lossPercentLocked().Mul(decimal.NewFromInt(100)).StringFixed(2)).
		Msg("💰 Balances updated")

	return nil
}

// UpdateCurrentBalance refreshes only the current balance.
func (g *Guard) UpdateCurrentBalance(current float64) error {
	if current < 0 {
		return fmt.Errorf("invalid current balance: %v", current)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentBalance = decimal.NewFromFloat(current)
	return nil
}

// lossPercentLocked computes the balance drawdown fraction. Caller holds mu.
func (g *Guard) lossPercentLocked() decimal.Decimal {
	if !g.balancesSet || g.initialBalance.IsZero() {
		return decimal.Zero
	}
	loss := g.initialBalance.Sub(g.currentBalance).Div(g.initialBalance)
	if loss.IsNegative() {
		return decimal.Zero
	}
	return loss
}

// LossPercent returns the current drawdown fraction of the initial balance.
func (g *Guard) LossPercent() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, _ := g.lossPercentLocked().Float64()
	return f
}

// CanTrade reports whether a new order is permitted right now. It checks
// the cooldown first, then the loss kill switch.
func (g *Guard) CanTrade() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if !g.lastTradeTime.IsZero() {
		elapsed := now.Sub(g.lastTradeTime)
		if elapsed < g.cooldown {
			log.Warn().
				Dur("elapsed", elapsed).
				Dur("cooldown", g.cooldown).
				Msg("🚫 Risk guard: in cooldown")
			return false
		}
	}

	lossPct := g.lossPercentLocked()
	if lossPct.GreaterThan(g.maxLossPct) {
		log.Warn().
			Str("loss_pct", lossPct.Mul(decimal.NewFromInt(100)).StringFixed(2)).
			Str("max_pct", g.maxLossPct.Mul(decimal.NewFromInt(100)).StringFixed(2)).
			Msg("🚨 Risk guard: loss limit exceeded, trading halted")
		return false
	}

	return true
}

// RecordTrade registers a completed trade. Losses accumulate into the
// cumulative loss counter; every trade restarts the cooldown.
func (g *Guard) RecordTrade(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if pnl < 0 {
		loss := decimal.NewFromFloat(-pnl)
		g.cumulativeLoss = g.cumulativeLoss.Add(loss)
		log.Warn().
			Float64("pnl", pnl).
			Str("cumulative_loss", g.cumulativeLoss.StringFixed(2)).
			Msg("📉 Loss recorded")
	} else if pnl > 0 {
		log.Info().Float64("pnl", pnl).Msg("📈 Profit recorded")
	}

	g.lastTradeTime = g.now()
}

// RemainingCooldown returns how long until the cooldown expires.
func (g *Guard) RemainingCooldown() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastTradeTime.IsZero() {
		return 0
	}
	remaining := g.cooldown - g.now().Sub(g.lastTradeTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CumulativeLoss returns the total realized loss recorded this session.
func (g *Guard) CumulativeLoss() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, _ := g.cumulativeLoss.Float64()
	return f
}

// ResetDailyLoss clears the cumulative loss counter. Intended for an
// explicit new-trading-day call by the operator.
func (g *Guard) ResetDailyLoss() {
	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.cumulativeLoss
	g.cumulativeLoss = decimal.Zero
	log.Info().Str("previous", old.StringFixed(2)).Msg("Cumulative loss reset")
}
