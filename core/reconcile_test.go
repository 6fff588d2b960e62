package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hftbot/types"
)

// ─── Push path ───

func TestPositionPushOverwritesLocalState(t *testing.T) {
	e, _, clock := newTestEngine(testConfig())
	setPosition(e, 10, 100, 100, clock.Now())

	openMs := clock.Now().Add(-30 * time.Second).UnixMilli()
	e.OnPositionPush([]types.PositionRecord{
		{Symbol: "BTC-USDT-SWAP", Size: 5, AvgPrice: 99.5, OpenTimeMs: openMs},
	})

	s := e.Stats()
	assert.Equal(t, float64(5), s.Position)
	assert.InDelta(t, 99.5, s.EntryPrice, 1e-9)

	e.mu.Lock()
	assert.Equal(t, time.UnixMilli(openMs), e.entryTime)
	e.mu.Unlock()
}

func TestPositionPushKeepsHigherWatermark(t *testing.T) {
	e, _, clock := newTestEngine(testConfig())
	setPosition(e, 10, 100, 105, clock.Now())

	e.OnPositionPush([]types.PositionRecord{
		{Symbol: "BTC-USDT-SWAP", Size: 10, AvgPrice: 100, OpenTimeMs: clock.Now().UnixMilli()},
	})

	// A repeated push for the same position must not erase the trailing
	// watermark already earned.
	assert.InDelta(t, 105, e.Stats().HighestPrice, 1e-9)
}

func TestPositionPushSeedsWatermarkWhenFlat(t *testing.T) {
	e, _, clock := newTestEngine(testConfig())

	e.OnPositionPush([]types.PositionRecord{
		{Symbol: "BTC-USDT-SWAP", Size: 3, AvgPrice: 101, OpenTimeMs: clock.Now().UnixMilli()},
	})

	s := e.Stats()
	assert.Equal(t, float64(3), s.Position)
	assert.InDelta(t, 101, s.HighestPrice, 1e-9)
}

func TestPositionPushFlatClearsState(t *testing.T) {
	e, _, clock := newTestEngine(testConfig())
	setPosition(e, 10, 100, 105, clock.Now())

	e.OnPositionPush([]types.PositionRecord{
		{Symbol: "BTC-USDT-SWAP", Size: 0, AvgPrice: 100, OpenTimeMs: 0},
	})

	s := e.Stats()
	assert.Zero(t, s.Position)
	assert.Zero(t, s.EntryPrice)
	assert.Zero(t, s.HighestPrice)
}

func TestPositionPushAbsentRecordMeansFlat(t *testing.T) {
	e, _, clock := newTestEngine(testConfig())
	setPosition(e, 10, 100, 105, clock.Now())

	// Push for a different instrument only.
	e.OnPositionPush([]types.PositionRecord{
		{Symbol: "ETH-USDT-SWAP", Size: 2, AvgPrice: 3000, OpenTimeMs: 0},
	})

	assert.Zero(t, e.Stats().Position)
}

// ─── Pull path ───

func TestCalibrationCorrectsDrift(t *testing.T) {
	e, fake, clock := newTestEngine(testConfig())
	setPosition(e, 10, 100, 105, clock.Now())

	openMs := clock.Now().Add(-time.Minute).UnixMilli()
	fake.venuePos = &types.VenuePosition{Size: 5, AvgPrice: 99.5, OpenTimeMs: openMs}

	e.calibrate()

	// The venue tuple wins wholesale, including the watermark reseed.
	s := e.Stats()
	assert.Equal(t, float64(5), s.Position)
	assert.InDelta(t, 99.5, s.EntryPrice, 1e-9)
	assert.InDelta(t, 99.5, s.HighestPrice, 1e-9)

	e.mu.Lock()
	assert.Equal(t, time.UnixMilli(openMs), e.entryTime)
	e.mu.Unlock()
}

func TestCalibrationWithinToleranceKeepsLocalState(t *testing.T) {
	e, fake, clock := newTestEngine(testConfig())
	setPosition(e, 5.0005, 100, 105, clock.Now())

	fake.venuePos = &types.VenuePosition{Size: 5, AvgPrice: 99.5, OpenTimeMs: 0}

	e.calibrate()

	s := e.Stats()
	assert.Equal(t, 5.0005, s.Position)
	assert.InDelta(t, 100, s.EntryPrice, 1e-9)
	assert.InDelta(t, 105, s.HighestPrice, 1e-9)
}

func TestCalibrationVenueFlatResetsLocalState(t *testing.T) {
	e, fake, clock := newTestEngine(testConfig())
	setPosition(e, 10, 100, 105, clock.Now())

	fake.venuePos = nil

	e.calibrate()

	s := e.Stats()
	assert.Zero(t, s.Position)
	assert.Zero(t, s.EntryPrice)
	assert.Zero(t, s.HighestPrice)
}

func TestCalibrationQueryErrorFailsOpen(t *testing.T) {
	e, fake, clock := newTestEngine(testConfig())
	setPosition(e, 10, 100, 105, clock.Now())

	fake.venueErr = fmt.Errorf("venue timeout")

	e.calibrate()

	// Error path keeps trading on local state untouched.
	s := e.Stats()
	assert.Equal(t, float64(10), s.Position)
	assert.InDelta(t, 100, s.EntryPrice, 1e-9)
}

func TestCalibrationIntervalAdvancesBeforeQuery(t *testing.T) {
	e, fake, clock := newTestEngine(testConfig())

	gate := make(chan struct{})
	fake.mu.Lock()
	fake.venueGate = gate
	fake.mu.Unlock()

	clock.Advance(2 * time.Hour)
	start := clock.Now()
	e.maybeCalibrate(start)

	// The timestamp moved forward immediately, while the query is
	// still hanging on the gate.
	e.mu.Lock()
	assert.Equal(t, start, e.lastCalibration)
	e.mu.Unlock()

	// A second check inside the interval must not fire another query.
	e.maybeCalibrate(start.Add(time.Second))

	close(gate)
	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return fake.venueCalls == 1
	}, time.Second, 10*time.Millisecond)

	fake.mu.Lock()
	assert.Equal(t, 1, fake.venueCalls)
	fake.mu.Unlock()
}

func TestCalibrationKickedFromTickLoop(t *testing.T) {
	cfg := testConfig()
	cfg.CalibrationInterval = 30 * time.Second

	e, fake, clock := newTestEngine(cfg)

	tick(e, 100, 0)
	assert.Zero(t, venueCalls(fake))

	clock.Advance(31 * time.Second)
	tick(e, 100, 100)

	require.Eventually(t, func() bool {
		return venueCalls(fake) == 1
	}, time.Second, 10*time.Millisecond)
}

func venueCalls(f *fakeExecutor) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.venueCalls
}
