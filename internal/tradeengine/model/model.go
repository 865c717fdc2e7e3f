// Package model holds the shared domain value types that flow between the
// trading engine's components: market data, agent theses, consensus results,
// positions, episodes, and orders.
package model

import "time"

// Signal is a trading direction recommendation.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Side is a position or order side.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Trend classifies the short-term price trend.
type Trend string

const (
	TrendBullish Trend = "BULLISH"
	TrendBearish Trend = "BEARISH"
	TrendNeutral Trend = "NEUTRAL"
)

// VolatilityState classifies realized volatility relative to its recent history.
type VolatilityState string

const (
	VolatilityLow  VolatilityState = "LOW"
	VolatilityHigh VolatilityState = "HIGH"
)

// WyckoffPhase is the inferred market-structure phase.
type WyckoffPhase string

const (
	WyckoffAccumulation WyckoffPhase = "ACCUMULATION"
	WyckoffMarkup       WyckoffPhase = "MARKUP"
	WyckoffDistribution WyckoffPhase = "DISTRIBUTION"
	WyckoffMarkdown     WyckoffPhase = "MARKDOWN"
	WyckoffNeutral       WyckoffPhase = "NEUTRAL"
)

// Specialization is an agent's domain focus.
type Specialization string

const (
	SpecializationTechnical      Specialization = "technical"
	SpecializationSentiment      Specialization = "sentiment"
	SpecializationHybrid         Specialization = "hybrid"
	SpecializationPredictive     Specialization = "predictive"
	SpecializationMicrostructure Specialization = "microstructure"
	SpecializationMarketMaking   Specialization = "market_making"
	SpecializationSwing          Specialization = "swing"
	SpecializationMomentum       Specialization = "momentum"
)

// Personality is an agent's risk posture.
type Personality string

const (
	PersonalityAnalytical  Personality = "analytical"
	PersonalityAggressive  Personality = "aggressive"
	PersonalityConservative Personality = "conservative"
	PersonalityContrarian  Personality = "contrarian"
)

// Urgency describes how quickly an execution order must complete.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Algo names an execution algorithm.
type Algo string

const (
	AlgoMarket    Algo = "MARKET"
	AlgoTWAP      Algo = "TWAP"
	AlgoVWAP      Algo = "VWAP"
	AlgoIceberg   Algo = "ICEBERG"
	AlgoSniper    Algo = "SNIPER"
	AlgoAdaptive  Algo = "ADAPTIVE"
	AlgoArbitrage Algo = "ARBITRAGE"
)

// ExitReason names why a position was closed.
type ExitReason string

const (
	ExitTakeProfit     ExitReason = "take_profit"
	ExitStopLoss       ExitReason = "stop_loss"
	ExitReversal       ExitReason = "reversal"
	ExitStagnation     ExitReason = "stagnation"
	ExitManual         ExitReason = "manual"
	ExitLiquidationGuard ExitReason = "liquidation_guard"
	ExitTimeout        ExitReason = "timeout"
	ExitBadInheritance ExitReason = "bad_inheritance"
)

// MarketStructureEntry describes a symbol's exchange-imposed precision rules.
type MarketStructureEntry struct {
	Symbol            string
	QuantityPrecision int
	PricePrecision    int
	MinQty            float64
	StepSize          float64
	MinNotional       float64
}

// Valid reports whether qty/price respect the structure's invariants once qty
// has already been rounded down to StepSize by the caller.
func (m MarketStructureEntry) Valid(qty, price float64) bool {
	if qty < m.MinQty {
		return false
	}
	return qty*price >= m.MinNotional
}

// MACD holds the moving-average-convergence-divergence triple.
type MACD struct {
	Value  float64
	Signal float64
	Hist   float64
}

// BollingerBands holds the three Bollinger band levels.
type BollingerBands struct {
	Upper float64
	Mid   float64
	Lower float64
}

// Stochastic holds the %K/%D oscillator pair.
type Stochastic struct {
	K float64
	D float64
}

// MarketSnapshot is the per-symbol, per-tick feature vector produced by C1.
type MarketSnapshot struct {
	Symbol          string
	Timestamp       time.Time
	Price           float64
	Volume24h       float64
	ChangePct24h    float64
	High24h         float64
	Low24h          float64
	ATRPct          float64
	RSI             float64
	MACD            MACD
	BB              BollingerBands
	Stoch           Stochastic
	CCI             float64
	ADX             float64
	OBV             float64
	FibLevels       map[string]float64
	WyckoffPhase    WyckoffPhase
	VSOP            float64
	BidPressure     float64
	SpreadPct       float64
	Trend           Trend
	VolatilityState VolatilityState
}

// Opportunity is a scanner-produced candidate for agent attention.
type Opportunity struct {
	Symbol     string
	Signal     Signal
	Confidence float64
	Reason     string
	Score      float64
	Price      float64
	VenueHint  string
}

// Thesis is a single agent's per-symbol proposal.
type Thesis struct {
	AgentID    string
	Symbol     string
	Signal     Signal
	Confidence float64
	Reasoning  string
	DataUsed   []string
	ModelUsed  string
	Timestamp  time.Time
}

// AgentVote is one thesis as consumed by the consensus engine, carrying the
// agent's live win rate for experience-boosted weighting.
type AgentVote struct {
	Thesis  Thesis
	WinRate float64
}

// ConsensusResult is the fused output of C5.
type ConsensusResult struct {
	Symbol         string
	Signal         Signal
	Confidence     float64
	AgreementLevel float64
	Votes          []AgentVote
	Reasoning      string
}

// AdaptiveParams are the agent parameters that drift with learning.
type AdaptiveParams struct {
	ConfidenceThreshold float64
	Leverage            float64
	PositionSizePct     float64
}

// AgentState is the full learned/configured state of one agent.
type AgentState struct {
	ID                  string
	Specialization      Specialization
	Personality         Personality
	PreferredIndicators []string
	IndicatorScores     map[string]float64
	ConfidenceThreshold float64
	ExplorationRate     float64
	TotalTrades         int
	Wins                int
	TotalPnL            float64
	DailyPnL            float64
	DailyLossBreached   bool
	AdaptiveParams      AdaptiveParams
	MaxLeverageLimit    float64
	RiskTolerance       float64
	PreferredRegimes    []WyckoffPhase
	Active              bool
	LastIntervention    *string
	DayBoundary         time.Time
}

// WinRate returns Wins/TotalTrades, or 0.5 with no trade history.
func (a AgentState) WinRate() float64 {
	if a.TotalTrades == 0 {
		return 0.5
	}
	return float64(a.Wins) / float64(a.TotalTrades)
}

// Position is an open or recently-closed holding.
type Position struct {
	Symbol           string
	Side             Side
	Quantity         float64
	EntryPrice       float64
	CurrentPrice     float64
	StopLoss         float64
	TakeProfit       float64
	TrailingStopPct  float64
	OpenTime         time.Time
	OwningAgentID    string
	Thesis           Thesis
	TPNativeOrderID  string
	SLNativeOrderID  string
}

// PnLPct returns the unrealized P&L as a fraction of entry price.
func (p Position) PnLPct() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == SideLong {
		return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice
	}
	return (p.EntryPrice - p.CurrentPrice) / p.EntryPrice
}

// TradeOutcome is the realized result of a closed position.
type TradeOutcome struct {
	Success      bool
	PnL          float64
	PnLPct       float64
	MaxDrawdown  float64
	MaxProfit    float64
	HoldDuration time.Duration
	ExitReason   ExitReason
}

// Episode is the unit of learning: decision context, outcome, and reflection.
type Episode struct {
	EpisodeID               string
	Timestamp                time.Time
	MarketStateText          string
	MarketStateEmbeddingText string
	Symbol                   string
	Venue                    string
	Signal                   Signal
	EntryPrice               float64
	Quantity                 float64
	StopLoss                 *float64
	TakeProfit               *float64
	AgentID                  string
	Reasoning                string
	Confidence               float64
	Outcome                  *TradeOutcome
	WhatWorked               string
	WhatFailed               string
	Lesson                   string
	Tags                     []string
}

// HasReflection reports whether all three reflection fields are populated,
// per the testable-properties invariant that a reflection is all-or-nothing.
func (e Episode) HasReflection() bool {
	return e.WhatWorked != "" && e.WhatFailed != "" && e.Lesson != ""
}

// ExecutionOrder is a request to C7.
type ExecutionOrder struct {
	Symbol         string
	Side           Side
	TotalQuantity  float64
	MaxSlippagePct float64
	Urgency        Urgency
	Algo           Algo
	Metadata       map[string]interface{}
}

// ExecutionSlice is one fill chunk of a sliced execution.
type ExecutionSlice struct {
	Quantity  float64
	Price     float64
	Timestamp time.Time
}

// ExecutionResult is the outcome of C7's execute().
type ExecutionResult struct {
	Success          bool
	TotalQuantity    float64
	AvgPrice         float64
	TotalSlippagePct float64
	Slices           []ExecutionSlice
	AlgoUsed         Algo
	ExecutionTimeMs  int64
	Error            string
}

// PortfolioState is C10's authoritative view of account health.
type PortfolioState struct {
	Balance         float64
	Equity          float64
	TotalExposure   float64
	PeakValue       float64
	CurrentDrawdown float64
	IsHalted        bool
	Positions       map[string]Position
}
