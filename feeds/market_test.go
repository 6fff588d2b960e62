package feeds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hftbot/types"
)

func mkTrade(price, size float64, side types.Side, ts int64) types.Trade {
	return types.Trade{Price: price, Size: size, Side: side, Timestamp: ts}
}

func TestMarketStateEmpty(t *testing.T) {
	m := NewMarketState(5000)

	_, ok := m.LatestPrice()
	assert.False(t, ok)

	net, count, intensity := m.FlowPressure(3 * time.Second)
	assert.Zero(t, net)
	assert.Zero(t, count)
	assert.Zero(t, intensity)
	assert.Empty(t, m.RecentTrades(0))
	assert.Empty(t, m.WhaleTrades())
}

func TestMarketStateEviction(t *testing.T) {
	m := NewMarketState(1e12) // no whales in this test

	// Push 1500 trades with distinguishable prices; only the most
	// recent 1000 must survive, oldest-first.
	for i := 0; i < 1500; i++ {
		m.RecordTrade(mkTrade(float64(i), 1, types.SideBuy, int64(i)))
	}

	assert.Equal(t, 1000, m.TradeCount())

	all := m.RecentTrades(0)
	require.Len(t, all, 1000)
	assert.Equal(t, float64(500), all[0].Price)
	assert.Equal(t, float64(1499), all[999].Price)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Price, all[i].Price)
	}

	price, ok := m.LatestPrice()
	require.True(t, ok)
	assert.Equal(t, float64(1499), price)

	total, whales := m.Totals()
	assert.Equal(t, int64(1500), total)
	assert.Zero(t, whales)
}

func TestMarketStateRecentTradesLimit(t *testing.T) {
	m := NewMarketState(1e12)
	for i := 0; i < 10; i++ {
		m.RecordTrade(mkTrade(float64(i), 1, types.SideBuy, int64(i)))
	}

	last3 := m.RecentTrades(3)
	require.Len(t, last3, 3)
	assert.Equal(t, float64(7), last3[0].Price)
	assert.Equal(t, float64(9), last3[2].Price)
}

func TestFlowPressureWindow(t *testing.T) {
	m := NewMarketState(1e12)

	base := int64(1_000_000)
	// Outside the 3s window relative to the last trade.
	m.RecordTrade(mkTrade(100, 50, types.SideBuy, base-5000))
	// Inside: 2 buys of 100×2=200 notional, 1 sell of 100×1=100.
	m.RecordTrade(mkTrade(100, 2, types.SideBuy, base-2000))
	m.RecordTrade(mkTrade(100, 2, types.SideBuy, base-1000))
	m.RecordTrade(mkTrade(100, 1, types.SideSell, base))

	net, count, intensity := m.FlowPressure(3 * time.Second)
	assert.InDelta(t, 300.0, net, 1e-9) // 200+200-100
	assert.Equal(t, 3, count)
	assert.InDelta(t, 500.0/3.0, intensity, 1e-9) // 500 notional over 3s
}

func TestFlowPressureSellDominated(t *testing.T) {
	m := NewMarketState(1e12)

	base := int64(1_000_000)
	m.RecordTrade(mkTrade(100, 1, types.SideBuy, base-100))
	m.RecordTrade(mkTrade(100, 5, types.SideSell, base))

	net, count, _ := m.FlowPressure(3 * time.Second)
	assert.InDelta(t, -400.0, net, 1e-9)
	assert.Equal(t, 2, count)
}

func TestWhaleWindow(t *testing.T) {
	m := NewMarketState(5000)

	// Below threshold: 100×10 = 1000 notional.
	m.RecordTrade(mkTrade(100, 10, types.SideBuy, 1))
	assert.Empty(t, m.WhaleTrades())

	// At threshold: 100×50 = 5000.
	m.RecordTrade(mkTrade(100, 50, types.SideSell, 2))
	require.Len(t, m.WhaleTrades(), 1)

	// Whale window evicts independently of the trade window.
	for i := 0; i < 60; i++ {
		m.RecordTrade(mkTrade(100, 100, types.SideBuy, int64(10+i)))
	}
	whales := m.WhaleTrades()
	require.Len(t, whales, 50)
	// The original sell whale has been evicted.
	for _, w := range whales {
		assert.Equal(t, types.SideBuy, w.Side)
	}

	_, totalWhales := m.Totals()
	assert.Equal(t, int64(61), totalWhales)
}

func TestWhaleCountWindowed(t *testing.T) {
	m := NewMarketState(5000)

	base := int64(1_000_000)
	m.RecordTrade(mkTrade(100, 100, types.SideBuy, base-10_000))
	m.RecordTrade(mkTrade(100, 100, types.SideBuy, base-1000))
	m.RecordTrade(mkTrade(100, 100, types.SideBuy, base))

	assert.Equal(t, 2, m.WhaleCount(3*time.Second))
	assert.Equal(t, 3, m.WhaleCount(time.Minute))
}
