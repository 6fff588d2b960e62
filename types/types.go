package types

import "time"

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Trade ticks, orders, venue position records
// ═══════════════════════════════════════════════════════════════════════════════

// Side is the aggressor side of a trade tick.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is a single immutable trade tick from the public feed.
// Timestamp is venue time in milliseconds.
type Trade struct {
	Price     float64
	Size      float64
	Side      Side
	Timestamp int64
}

// Notional returns the trade value in quote currency (USDT).
func (t Trade) Notional() float64 {
	return t.Price * t.Size
}

// OrderResult is the venue's acknowledgement of an order request.
type OrderResult struct {
	OrderID string
	Status  string
}

// PositionRecord is one entry of a push-based position update from the
// private stream. OpenTimeMs is venue time in milliseconds.
type PositionRecord struct {
	Symbol     string
	Size       float64
	AvgPrice   float64
	OpenTimeMs int64
}

// VenuePosition is the venue's answer to a pull-based position query.
// A nil *VenuePosition means the venue reports no open position.
type VenuePosition struct {
	Size       float64
	AvgPrice   float64
	OpenTimeMs int64
}

// OpenTime converts the venue millisecond timestamp to a time.Time.
func (p *VenuePosition) OpenTime() time.Time {
	return time.UnixMilli(p.OpenTimeMs)
}
