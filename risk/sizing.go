package risk

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DYNAMIC SIZING - Balance-proportional contract sizing
// ═══════════════════════════════════════════════════════════════════════════════
//
// Formula: size = floor(balance × riskRatio × leverage / price)
//
// Two distinct "can't size" outcomes, kept deliberately separate:
//   - balance <= 0        → size 0, caller skips the order
//   - balance query error → caller uses Fallback(), the fixed configured size
//
// ═══════════════════════════════════════════════════════════════════════════════

// Sizer computes order sizes in whole contracts.
type Sizer struct {
	riskRatio decimal.Decimal
	leverage  decimal.Decimal
	fixedSize float64
}

// NewSizer creates a sizer. riskRatio is the fraction of balance committed
// per trade, leverage the contract leverage, fixedSize the fallback order
// size used when the balance cannot be fetched.
func NewSizer(riskRatio, leverage, fixedSize float64) *Sizer {
	return &Sizer{
		riskRatio: decimal.NewFromFloat(riskRatio),
		leverage:  decimal.NewFromFloat(leverage),
		fixedSize: fixedSize,
	}
}

// OrderSize returns the number of contracts for the given balance and
// price. Returns 0 when balance is non-positive; a raw size below one
// contract is clamped to the minimum viable order of 1.
func (s *Sizer) OrderSize(balance, price float64) float64 {
	if balance <= 0 {
		log.Warn().Float64("balance", balance).Msg("🚫 Non-positive balance, size 0")
		return 0
	}
	if price <= 0 {
		return 0
	}

	raw := decimal.NewFromFloat(balance).
		Mul(s.riskRatio).
		Mul(s.leverage).
		Div(decimal.NewFromFloat(price))

	size := raw.Floor()
	if size.LessThan(decimal.NewFromInt(1)) {
		// Minimum viable order.
		size = decimal.NewFromInt(1)
	}

	f, _ := size.Float64()
	log.Debug().
		Float64("balance", balance).
		Float64("price", price).
		Float64("size", f).
		Msg("Dynamic size computed")
	return f
}

// Fallback returns the fixed configured order size, used when the balance
// query fails.
func (s *Sizer) Fallback() float64 {
	return s.fixedSize
}
