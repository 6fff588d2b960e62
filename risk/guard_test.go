package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardAllowsFirstTrade(t *testing.T) {
	g := NewGuard(60*time.Second, 0.03)
	assert.True(t, g.CanTrade())
	assert.Zero(t, g.RemainingCooldown())
}

func TestGuardCooldownBoundary(t *testing.T) {
	g := NewGuard(60*time.Second, 0.03)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	g.SetClock(func() time.Time { return now })

	g.RecordTrade(0)

	now = base.Add(59900 * time.Millisecond)
	assert.False(t, g.CanTrade(), "still inside cooldown at 59.9s")

	now = base.Add(60100 * time.Millisecond)
	assert.True(t, g.CanTrade(), "cooldown elapsed at 60.1s")
}

func TestGuardCooldownRestartsOnEveryTrade(t *testing.T) {
	g := NewGuard(60*time.Second, 0.03)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	g.SetClock(func() time.Time { return now })

	g.RecordTrade(0)
	now = base.Add(45 * time.Second)
	g.RecordTrade(-10) // restarts the clock

	now = base.Add(90 * time.Second)
	assert.False(t, g.CanTrade(), "45s since last trade")

	now = base.Add(110 * time.Second)
	assert.True(t, g.CanTrade())
}

func TestGuardKillSwitch(t *testing.T) {
	g := NewGuard(0, 0.03)
	require.NoError(t, g.SetBalances(10000, 10000))

	assert.True(t, g.CanTrade())

	// 4% drawdown exceeds the 3% limit.
	require.NoError(t, g.UpdateCurrentBalance(9600))
	assert.False(t, g.CanTrade())
	assert.InDelta(t, 0.04, g.LossPercent(), 1e-9)

	// Drawdown recovers to 2%, trading resumes.
	require.NoError(t, g.UpdateCurrentBalance(9800))
	assert.True(t, g.CanTrade())
	assert.InDelta(t, 0.02, g.LossPercent(), 1e-9)
}

func TestGuardKillSwitchExactBoundary(t *testing.T) {
	g := NewGuard(0, 0.03)
	require.NoError(t, g.SetBalances(10000, 9700))

	// Exactly at the limit is still permitted, only beyond it halts.
	assert.True(t, g.CanTrade())
}

func TestGuardUnsetBalancesDisarmKillSwitch(t *testing.T) {
	g := NewGuard(0, 0.03)
	assert.True(t, g.CanTrade())
	assert.Zero(t, g.LossPercent())
}

func TestGuardBalanceValidation(t *testing.T) {
	g := NewGuard(0, 0.03)
	assert.Error(t, g.SetBalances(0, 100))
	assert.Error(t, g.SetBalances(-1, 100))
	assert.Error(t, g.SetBalances(100, -1))
	assert.Error(t, g.UpdateCurrentBalance(-5))
	require.NoError(t, g.SetBalances(100, 0))
}

func TestGuardCumulativeLoss(t *testing.T) {
	g := NewGuard(0, 0.03)

	g.RecordTrade(-25.5)
	g.RecordTrade(100) // profits do not reduce the counter
	g.RecordTrade(-10)

	assert.InDelta(t, 35.5, g.CumulativeLoss(), 1e-9)

	g.ResetDailyLoss()
	assert.Zero(t, g.CumulativeLoss())
}
