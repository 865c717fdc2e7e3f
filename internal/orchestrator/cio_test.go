package orchestrator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

type fakeTunable struct {
	state        model.AgentState
	lastLabel    string
	lastLeverage float64
	lastRisk     float64
	lastThresh   float64
	lastActive   bool
}

func (f *fakeTunable) State() model.AgentState { return f.state }
func (f *fakeTunable) ApplyIntervention(label string, maxLeverage, riskTolerance, confidenceThreshold float64, active bool) {
	f.lastLabel = label
	f.lastLeverage = maxLeverage
	f.lastRisk = riskTolerance
	f.lastThresh = confidenceThreshold
	f.lastActive = active
	f.state.MaxLeverageLimit = maxLeverage
	f.state.AdaptiveParams.ConfidenceThreshold = confidenceThreshold
	f.state.Active = active
}

type fakeRegimeSource struct {
	snap model.MarketSnapshot
	err  error
}

func (f *fakeRegimeSource) GetMarketAnalysis(ctx context.Context, symbol string) (model.MarketSnapshot, error) {
	return f.snap, f.err
}

func TestCIOReviewBoostsHighWinRateAgent(t *testing.T) {
	agent := &fakeTunable{state: model.AgentState{
		Active: true, TotalTrades: 20, Wins: 15, MaxLeverageLimit: 3,
		AdaptiveParams: model.AdaptiveParams{ConfidenceThreshold: 0.65},
	}}
	cio := NewCIO(CIOConfig{BenchmarkSymbol: "BTC-USDT"}, zerolog.Nop(), map[string]Tunable{"a": agent}, nil)

	cio.Review(context.Background())

	assert.Contains(t, agent.lastLabel, "BOOST")
	assert.Equal(t, 5.0, agent.lastLeverage)
	assert.InDelta(t, 0.63, agent.lastThresh, 0.001)
}

func TestCIOReviewCoolsDownLowWinRateAgent(t *testing.T) {
	agent := &fakeTunable{state: model.AgentState{
		Active: true, TotalTrades: 20, Wins: 4, MaxLeverageLimit: 3,
		AdaptiveParams: model.AdaptiveParams{ConfidenceThreshold: 0.65},
	}}
	cio := NewCIO(CIOConfig{BenchmarkSymbol: "BTC-USDT"}, zerolog.Nop(), map[string]Tunable{"a": agent}, nil)

	cio.Review(context.Background())

	assert.Contains(t, agent.lastLabel, "COOLDOWN")
	assert.Equal(t, 1.0, agent.lastLeverage)
	assert.InDelta(t, 0.67, agent.lastThresh, 0.001)
}

func TestCIOReviewRevertsDailyLossBreachedAgent(t *testing.T) {
	agent := &fakeTunable{state: model.AgentState{Active: true, DailyLossBreached: true, MaxLeverageLimit: 10}}
	cio := NewCIO(CIOConfig{BenchmarkSymbol: "BTC-USDT"}, zerolog.Nop(), map[string]Tunable{"a": agent}, nil)

	cio.Review(context.Background())

	assert.Contains(t, agent.lastLabel, "REVERT")
	assert.Equal(t, cioBaselineLeverage, agent.lastLeverage)
	assert.False(t, agent.lastActive)
}

func TestCIOReviewLeverageClampsAtCeiling(t *testing.T) {
	agent := &fakeTunable{state: model.AgentState{
		Active: true, TotalTrades: 50, Wins: 45, MaxLeverageLimit: 49,
		AdaptiveParams: model.AdaptiveParams{ConfidenceThreshold: 0.65},
	}}
	cio := NewCIO(CIOConfig{BenchmarkSymbol: "BTC-USDT"}, zerolog.Nop(), map[string]Tunable{"a": agent}, nil)

	cio.Review(context.Background())

	assert.Equal(t, cioLeverageCeiling, agent.lastLeverage)
}

func TestCIOReviewLeverageClampsAtFloor(t *testing.T) {
	agent := &fakeTunable{state: model.AgentState{
		Active: true, TotalTrades: 50, Wins: 5, MaxLeverageLimit: 1,
		AdaptiveParams: model.AdaptiveParams{ConfidenceThreshold: 0.65},
	}}
	cio := NewCIO(CIOConfig{BenchmarkSymbol: "BTC-USDT"}, zerolog.Nop(), map[string]Tunable{"a": agent}, nil)

	cio.Review(context.Background())

	assert.Equal(t, cioLeverageFloor, agent.lastLeverage)
}

func TestCIOReviewRegimeMatchLoosensThreshold(t *testing.T) {
	agent := &fakeTunable{state: model.AgentState{
		Active: true, MaxLeverageLimit: 3,
		PreferredRegimes:  []model.WyckoffPhase{model.WyckoffAccumulation},
		AdaptiveParams:    model.AdaptiveParams{ConfidenceThreshold: 0.70},
	}}
	regime := &fakeRegimeSource{snap: model.MarketSnapshot{WyckoffPhase: model.WyckoffAccumulation}}
	cio := NewCIO(CIOConfig{BenchmarkSymbol: "BTC-USDT"}, zerolog.Nop(), map[string]Tunable{"a": agent}, regime)

	cio.Review(context.Background())

	assert.Contains(t, agent.lastLabel, "TUNE")
	assert.InDelta(t, 0.63, agent.lastThresh, 0.001)
}

func TestCIOReviewRegimeMismatchTightensThreshold(t *testing.T) {
	agent := &fakeTunable{state: model.AgentState{
		Active: true, MaxLeverageLimit: 3,
		PreferredRegimes: []model.WyckoffPhase{model.WyckoffMarkup},
		AdaptiveParams:   model.AdaptiveParams{ConfidenceThreshold: 0.70},
	}}
	regime := &fakeRegimeSource{snap: model.MarketSnapshot{WyckoffPhase: model.WyckoffDistribution}}
	cio := NewCIO(CIOConfig{BenchmarkSymbol: "BTC-USDT"}, zerolog.Nop(), map[string]Tunable{"a": agent}, regime)

	cio.Review(context.Background())

	assert.Contains(t, agent.lastLabel, "TUNE")
	assert.InDelta(t, 0.77, agent.lastThresh, 0.001)
}
