package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

func TestSizePositionS4(t *testing.T) {
	tracker := NewPortfolioTracker(0.15, 0)
	tracker.UpdatePortfolioValue(10_000) // establishes peak, drawdown 0

	result := tracker.SizePosition(SizingInputs{
		Symbol:         "BTCUSDT",
		Side:           model.SideLong,
		Entry:          100,
		Volatility:     0.02,
		Confidence:     0.7,
		DefaultTPPct:   0.04,
		DefaultSLPct:   0.02,
		BaseMaxPct:     0.10,
		MaxPositionPct: 0.10,
	}, 10_000, 1.0)

	assert.False(t, result.Rejected)
	assert.InDelta(t, 0.0208, result.SizePct, 0.001)
	assert.InDelta(t, 208, result.Notional, 1.0)
}

func TestDrawdownHaltS7(t *testing.T) {
	tracker := NewPortfolioTracker(0.15, 0)
	tracker.UpdatePortfolioValue(10_000)
	drawdown, halted := tracker.UpdatePortfolioValue(8_400)

	assert.InDelta(t, 0.16, drawdown, 0.0001)
	assert.True(t, halted)

	result := tracker.SizePosition(SizingInputs{
		Side: model.SideLong, Entry: 100, DefaultTPPct: 0.04, DefaultSLPct: 0.02,
		BaseMaxPct: 0.10, MaxPositionPct: 0.10,
	}, 8_400, 1.0)
	assert.True(t, result.Rejected)
	assert.Contains(t, result.Reason, "halted")
}

func TestHaltLatchesUntilReset(t *testing.T) {
	tracker := NewPortfolioTracker(0.15, 0)
	tracker.UpdatePortfolioValue(10_000)
	tracker.UpdatePortfolioValue(8_000)
	assert.True(t, tracker.IsHalted())

	// Recovering value does not clear the latch.
	tracker.UpdatePortfolioValue(10_500)
	assert.True(t, tracker.IsHalted())

	tracker.ResetHalt()
	assert.False(t, tracker.IsHalted())
}

func TestSizingMonotonicity(t *testing.T) {
	base := func(confidence, volatility, drawdownValue float64) SizingResult {
		tracker := NewPortfolioTracker(0.20, 0)
		tracker.UpdatePortfolioValue(10_000)
		if drawdownValue > 0 {
			tracker.UpdatePortfolioValue(10_000 * (1 - drawdownValue))
		}
		return tracker.SizePosition(SizingInputs{
			Side: model.SideLong, Entry: 100, Volatility: volatility, Confidence: confidence,
			DefaultTPPct: 0.04, DefaultSLPct: 0.02, BaseMaxPct: 0.10, MaxPositionPct: 0.10,
		}, 10_000, 1.0)
	}

	lowConf := base(0.3, 0.02, 0)
	highConf := base(0.9, 0.02, 0)
	assert.GreaterOrEqual(t, highConf.SizePct, lowConf.SizePct)

	lowVol := base(0.7, 0.01, 0)
	highVol := base(0.7, 0.08, 0)
	assert.GreaterOrEqual(t, lowVol.SizePct, highVol.SizePct)

	shallowDD := base(0.7, 0.02, 0.02)
	deepDD := base(0.7, 0.02, 0.10)
	assert.GreaterOrEqual(t, shallowDD.SizePct, deepDD.SizePct)
}

func TestDeriveStopsLong(t *testing.T) {
	sl, tp := deriveStops(SizingInputs{Side: model.SideLong, Entry: 100, DefaultSLPct: 0.01, ATRPct: 0.02})
	assert.InDelta(t, 97, sl, 0.001) // 1.5*0.02=0.03 > default 0.01 => sl_pct=0.03
	assert.InDelta(t, 106, tp, 0.001)
}

func TestDeriveStopsCapAtFivePercent(t *testing.T) {
	sl, _ := deriveStops(SizingInputs{Side: model.SideLong, Entry: 100, DefaultSLPct: 0.01, ATRPct: 0.10})
	assert.InDelta(t, 95, sl, 0.001) // 1.5*0.10=0.15 capped to 0.05
}

func TestLiquidationGuard(t *testing.T) {
	assert.True(t, LiquidationGuard(850, 1000))
	assert.False(t, LiquidationGuard(750, 1000))
}

func TestLargestPositionsByNotional(t *testing.T) {
	positions := map[string]model.Position{
		"BTCUSDT": {Quantity: 1, CurrentPrice: 50_000},
		"ETHUSDT": {Quantity: 10, CurrentPrice: 3_000},
		"SOLUSDT": {Quantity: 100, CurrentPrice: 100},
	}
	top := LargestPositionsByNotional(positions, 2)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, top)
}

func TestRecordAgentPnLDailyBreaker(t *testing.T) {
	tracker := NewPortfolioTracker(0.15, 0.05)
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	assert.False(t, tracker.RecordAgentPnL("agent-1", -30, 1000, now))
	assert.True(t, tracker.RecordAgentPnL("agent-1", -30, 1000, now))
	assert.True(t, tracker.AgentBreached("agent-1"))

	nextDay := now.Add(24 * time.Hour)
	assert.False(t, tracker.RecordAgentPnL("agent-1", 0, 1000, nextDay))
	assert.False(t, tracker.AgentBreached("agent-1"))
}
