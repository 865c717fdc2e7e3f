// Package strategy provides strategy configuration import/export functionality.
// It allows users to export their trading strategy configurations and import
// strategies from other users or backup files.
package strategy

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/metrics"
	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

// SchemaVersion is the current strategy schema version
const SchemaVersion = "1.0"

// StrategyConfig represents an exportable trading strategy configuration
type StrategyConfig struct {
	// Metadata
	Metadata StrategyMetadata `yaml:"metadata" json:"metadata"`

	// Agent configuration
	Agents AgentConfig `yaml:"agents" json:"agents"`

	// Risk management settings
	Risk RiskSettings `yaml:"risk" json:"risk"`

	// Orchestration settings
	Orchestration OrchestrationSettings `yaml:"orchestration" json:"orchestration"`

	// Indicator settings
	Indicators IndicatorSettings `yaml:"indicators" json:"indicators"`
}

// StrategyMetadata contains strategy identification and description
type StrategyMetadata struct {
	// Schema version for compatibility
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`

	// Unique identifier (generated on export)
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// User-defined name
	Name string `yaml:"name" json:"name"`

	// Description of the strategy
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Author information
	Author string `yaml:"author,omitempty" json:"author,omitempty"`

	// Version of this specific strategy (user-defined)
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Tags for categorization
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Creation/modification timestamps
	CreatedAt time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`

	// Source (e.g., "user", "marketplace", "backup")
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

// AgentConfig contains configuration for trading agents
type AgentConfig struct {
	// Agent weights for consensus voting
	Weights AgentWeights `yaml:"weights" json:"weights"`

	// Which agents are enabled
	Enabled EnabledAgents `yaml:"enabled" json:"enabled"`

	// Agent-specific settings
	Technical *TechnicalAgentConfig `yaml:"technical,omitempty" json:"technical,omitempty"`
	Sentiment *SentimentAgentConfig `yaml:"sentiment,omitempty" json:"sentiment,omitempty"`
	OrderBook *OrderBookAgentConfig `yaml:"orderbook,omitempty" json:"orderbook,omitempty"`
	Trend     *TrendAgentConfig     `yaml:"trend,omitempty" json:"trend,omitempty"`
	Reversion *ReversionAgentConfig `yaml:"reversion,omitempty" json:"reversion,omitempty"`
	Arbitrage *ArbitrageAgentConfig `yaml:"arbitrage,omitempty" json:"arbitrage,omitempty"`

	// Learned carries each live agent's drifted learning state, keyed by
	// agent ID, so a strategy export is a snapshot of what the population
	// has actually learned rather than only its starting weights.
	Learned map[string]AgentLearnedState `yaml:"learned,omitempty" json:"learned,omitempty"`
}

// AgentLearnedState is the portable subset of model.AgentState worth
// carrying across an export/import round trip: the parameters §4.4's
// learning rule drifts, not the trade-count bookkeeping behind them.
type AgentLearnedState struct {
	PreferredIndicators []string           `yaml:"preferred_indicators,omitempty" json:"preferred_indicators,omitempty"`
	IndicatorScores     map[string]float64 `yaml:"indicator_scores,omitempty" json:"indicator_scores,omitempty"`
	ConfidenceThreshold float64            `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty"`
	ExplorationRate     float64            `yaml:"exploration_rate,omitempty" json:"exploration_rate,omitempty"`
	MaxLeverageLimit    float64            `yaml:"max_leverage_limit,omitempty" json:"max_leverage_limit,omitempty"`
	RiskTolerance       float64            `yaml:"risk_tolerance,omitempty" json:"risk_tolerance,omitempty"`
}

// CaptureAgentState snapshots an agent's current learned state into the
// strategy document, keyed by its ID. Intended for a periodic export of the
// live population, not a one-time default-strategy template.
func (a *AgentConfig) CaptureAgentState(state model.AgentState) {
	if a.Learned == nil {
		a.Learned = make(map[string]AgentLearnedState)
	}
	scores := make(map[string]float64, len(state.IndicatorScores))
	for k, v := range state.IndicatorScores {
		scores[k] = v
	}
	a.Learned[state.ID] = AgentLearnedState{
		PreferredIndicators: append([]string(nil), state.PreferredIndicators...),
		IndicatorScores:     scores,
		ConfidenceThreshold: state.AdaptiveParams.ConfidenceThreshold,
		ExplorationRate:     state.ExplorationRate,
		MaxLeverageLimit:    state.MaxLeverageLimit,
		RiskTolerance:       state.RiskTolerance,
	}
}

// RestoreInto applies a previously captured learned state onto an
// agent.ApplyIntervention-shaped target, identified by agentID. ok is false
// if the strategy document carries no learned state for that agent.
func (a AgentConfig) RestoreInto(agentID string) (AgentLearnedState, bool) {
	learned, ok := a.Learned[agentID]
	return learned, ok
}

// AgentWeights defines voting weights for each agent
type AgentWeights struct {
	Technical float64 `yaml:"technical" json:"technical"`
	OrderBook float64 `yaml:"orderbook" json:"orderbook"`
	Sentiment float64 `yaml:"sentiment" json:"sentiment"`
	Trend     float64 `yaml:"trend" json:"trend"`
	Reversion float64 `yaml:"reversion" json:"reversion"`
	Arbitrage float64 `yaml:"arbitrage" json:"arbitrage"`
}

// EnabledAgents specifies which agents are active
type EnabledAgents struct {
	Technical bool `yaml:"technical" json:"technical"`
	OrderBook bool `yaml:"orderbook" json:"orderbook"`
	Sentiment bool `yaml:"sentiment" json:"sentiment"`
	Trend     bool `yaml:"trend" json:"trend"`
	Reversion bool `yaml:"reversion" json:"reversion"`
	Arbitrage bool `yaml:"arbitrage" json:"arbitrage"`
	Risk      bool `yaml:"risk" json:"risk"` // Risk agent should always be enabled
}

// TechnicalAgentConfig contains technical analysis agent settings
type TechnicalAgentConfig struct {
	StepInterval        string           `yaml:"step_interval,omitempty" json:"step_interval,omitempty"`
	LookbackPeriods     LookbackPeriods  `yaml:"lookback_periods,omitempty" json:"lookback_periods,omitempty"`
	ConfidenceWeights   TechnicalWeights `yaml:"confidence_weights,omitempty" json:"confidence_weights,omitempty"`
	ConfidenceThreshold float64          `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty"`
}

// LookbackPeriods defines time periods for analysis
type LookbackPeriods struct {
	Short  string `yaml:"short,omitempty" json:"short,omitempty"`
	Medium string `yaml:"medium,omitempty" json:"medium,omitempty"`
	Long   string `yaml:"long,omitempty" json:"long,omitempty"`
}

// TechnicalWeights defines how much weight each indicator has
type TechnicalWeights struct {
	RSI       float64 `yaml:"rsi" json:"rsi"`
	MACD      float64 `yaml:"macd" json:"macd"`
	Bollinger float64 `yaml:"bollinger" json:"bollinger"`
	Trend     float64 `yaml:"trend" json:"trend"`
	Volume    float64 `yaml:"volume" json:"volume"`
}

// SentimentAgentConfig contains sentiment analysis settings
type SentimentAgentConfig struct {
	StepInterval       string  `yaml:"step_interval,omitempty" json:"step_interval,omitempty"`
	SentimentThreshold float64 `yaml:"sentiment_threshold,omitempty" json:"sentiment_threshold,omitempty"`
	NewsWeight         float64 `yaml:"news_weight,omitempty" json:"news_weight,omitempty"`
	FearGreedWeight    float64 `yaml:"fear_greed_weight,omitempty" json:"fear_greed_weight,omitempty"`
	MinArticles        int     `yaml:"min_articles,omitempty" json:"min_articles,omitempty"`
	IncludeFearGreed   bool    `yaml:"include_fear_greed,omitempty" json:"include_fear_greed,omitempty"`
}

// OrderBookAgentConfig contains order book analysis settings
type OrderBookAgentConfig struct {
	StepInterval        string  `yaml:"step_interval,omitempty" json:"step_interval,omitempty"`
	DepthLevels         int     `yaml:"depth_levels,omitempty" json:"depth_levels,omitempty"`
	ImbalanceThreshold  float64 `yaml:"imbalance_threshold,omitempty" json:"imbalance_threshold,omitempty"`
	LargeOrderThreshold float64 `yaml:"large_order_threshold,omitempty" json:"large_order_threshold,omitempty"`
	MinConfidence       float64 `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty"`
}

// TrendAgentConfig contains trend following strategy settings
type TrendAgentConfig struct {
	StepInterval        string         `yaml:"step_interval,omitempty" json:"step_interval,omitempty"`
	FastEMAPeriod       int            `yaml:"fast_ema_period,omitempty" json:"fast_ema_period,omitempty"`
	SlowEMAPeriod       int            `yaml:"slow_ema_period,omitempty" json:"slow_ema_period,omitempty"`
	ADXPeriod           int            `yaml:"adx_period,omitempty" json:"adx_period,omitempty"`
	ADXThreshold        float64        `yaml:"adx_threshold,omitempty" json:"adx_threshold,omitempty"`
	LookbackCandles     int            `yaml:"lookback_candles,omitempty" json:"lookback_candles,omitempty"`
	ConfidenceThreshold float64        `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty"`
	VoteWeight          float64        `yaml:"vote_weight,omitempty" json:"vote_weight,omitempty"`
	RiskManagement      RiskManagement `yaml:"risk_management,omitempty" json:"risk_management,omitempty"`
}

// ReversionAgentConfig contains mean reversion strategy settings
type ReversionAgentConfig struct {
	StepInterval        string         `yaml:"step_interval,omitempty" json:"step_interval,omitempty"`
	EntryConditions     ReversionEntry `yaml:"entry_conditions,omitempty" json:"entry_conditions,omitempty"`
	ExitConditions      ReversionExit  `yaml:"exit_conditions,omitempty" json:"exit_conditions,omitempty"`
	ConfidenceThreshold float64        `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty"`
	VoteWeight          float64        `yaml:"vote_weight,omitempty" json:"vote_weight,omitempty"`
}

// ReversionEntry defines entry conditions for mean reversion
type ReversionEntry struct {
	RSIOversold    int     `yaml:"rsi_oversold,omitempty" json:"rsi_oversold,omitempty"`
	BollingerTouch bool    `yaml:"bollinger_touch,omitempty" json:"bollinger_touch,omitempty"`
	VolumeSpike    float64 `yaml:"volume_spike,omitempty" json:"volume_spike,omitempty"`
}

// ReversionExit defines exit conditions for mean reversion
type ReversionExit struct {
	RSINeutral      int     `yaml:"rsi_neutral,omitempty" json:"rsi_neutral,omitempty"`
	BollingerMiddle bool    `yaml:"bollinger_middle,omitempty" json:"bollinger_middle,omitempty"`
	TakeProfitPct   float64 `yaml:"take_profit_pct,omitempty" json:"take_profit_pct,omitempty"`
	StopLossPct     float64 `yaml:"stop_loss_pct,omitempty" json:"stop_loss_pct,omitempty"`
}

// ArbitrageAgentConfig contains arbitrage strategy settings
type ArbitrageAgentConfig struct {
	StepInterval        string   `yaml:"step_interval,omitempty" json:"step_interval,omitempty"`
	MinSpread           float64  `yaml:"min_spread,omitempty" json:"min_spread,omitempty"`
	Exchanges           []string `yaml:"exchanges,omitempty" json:"exchanges,omitempty"`
	MaxLatencyMs        int      `yaml:"max_latency_ms,omitempty" json:"max_latency_ms,omitempty"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty"`
	VoteWeight          float64  `yaml:"vote_weight,omitempty" json:"vote_weight,omitempty"`
}

// RiskManagement contains per-strategy risk settings
type RiskManagement struct {
	StopLossPct     float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct   float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
	TrailingStopPct float64 `yaml:"trailing_stop_pct,omitempty" json:"trailing_stop_pct,omitempty"`
	UseTrailingStop bool    `yaml:"use_trailing_stop,omitempty" json:"use_trailing_stop,omitempty"`
	MinRiskReward   float64 `yaml:"min_risk_reward,omitempty" json:"min_risk_reward,omitempty"`
}

// RiskSettings contains global risk management settings
type RiskSettings struct {
	// Portfolio limits
	MaxPortfolioExposure float64 `yaml:"max_portfolio_exposure" json:"max_portfolio_exposure"`
	MaxPositionSize      float64 `yaml:"max_position_size" json:"max_position_size"`
	MaxPositions         int     `yaml:"max_positions" json:"max_positions"`
	MaxCorrelation       float64 `yaml:"max_correlation,omitempty" json:"max_correlation,omitempty"`

	// Risk metrics
	MaxDailyLoss   float64 `yaml:"max_daily_loss" json:"max_daily_loss"`
	MaxDrawdown    float64 `yaml:"max_drawdown" json:"max_drawdown"`
	MinSharpeRatio float64 `yaml:"min_sharpe_ratio,omitempty" json:"min_sharpe_ratio,omitempty"`
	MaxVaR95       float64 `yaml:"max_var_95,omitempty" json:"max_var_95,omitempty"`

	// Trade approval
	MinStrategyConfidence float64 `yaml:"min_strategy_confidence" json:"min_strategy_confidence"`
	MinConsensusVotes     int     `yaml:"min_consensus_votes" json:"min_consensus_votes"`
	MaxLeverage           float64 `yaml:"max_leverage,omitempty" json:"max_leverage,omitempty"`

	// Circuit breakers
	CircuitBreakers CircuitBreakerSettings `yaml:"circuit_breakers,omitempty" json:"circuit_breakers,omitempty"`

	// Position sizing
	KellyFraction  float64 `yaml:"kelly_fraction,omitempty" json:"kelly_fraction,omitempty"`
	MinPositionUSD float64 `yaml:"min_position_usd,omitempty" json:"min_position_usd,omitempty"`
	MaxPositionUSD float64 `yaml:"max_position_usd,omitempty" json:"max_position_usd,omitempty"`

	// Default stop loss / take profit
	DefaultStopLoss   float64 `yaml:"default_stop_loss" json:"default_stop_loss"`
	DefaultTakeProfit float64 `yaml:"default_take_profit" json:"default_take_profit"`
}

// CircuitBreakerSettings defines emergency halt conditions
type CircuitBreakerSettings struct {
	Enabled             bool    `yaml:"enabled" json:"enabled"`
	MaxTradesPerHour    int     `yaml:"max_trades_per_hour,omitempty" json:"max_trades_per_hour,omitempty"`
	MaxLossesPerDay     int     `yaml:"max_losses_per_day,omitempty" json:"max_losses_per_day,omitempty"`
	VolatilityThreshold float64 `yaml:"volatility_threshold,omitempty" json:"volatility_threshold,omitempty"`
	DrawdownHalt        float64 `yaml:"drawdown_halt,omitempty" json:"drawdown_halt,omitempty"`
}

// OrchestrationSettings contains decision-making settings
type OrchestrationSettings struct {
	// Voting
	VotingEnabled bool    `yaml:"voting_enabled" json:"voting_enabled"`
	VotingMethod  string  `yaml:"voting_method" json:"voting_method"` // "weighted_consensus" or "majority"
	MinVotes      int     `yaml:"min_votes" json:"min_votes"`
	Quorum        float64 `yaml:"quorum" json:"quorum"`

	// Decision timing
	StepInterval  string  `yaml:"step_interval" json:"step_interval"`
	MaxSignalAge  string  `yaml:"max_signal_age" json:"max_signal_age"`
	MinConsensus  float64 `yaml:"min_consensus" json:"min_consensus"`
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`

	// LLM reasoning
	LLMReasoningEnabled bool    `yaml:"llm_reasoning_enabled,omitempty" json:"llm_reasoning_enabled,omitempty"`
	LLMTemperature      float64 `yaml:"llm_temperature,omitempty" json:"llm_temperature,omitempty"`
}

// IndicatorSettings contains technical indicator configurations
type IndicatorSettings struct {
	RSI       RSISettings       `yaml:"rsi,omitempty" json:"rsi,omitempty"`
	MACD      MACDSettings      `yaml:"macd,omitempty" json:"macd,omitempty"`
	Bollinger BollingerSettings `yaml:"bollinger,omitempty" json:"bollinger,omitempty"`
	EMA       EMASettings       `yaml:"ema,omitempty" json:"ema,omitempty"`
	ADX       ADXSettings       `yaml:"adx,omitempty" json:"adx,omitempty"`
}

// RSISettings contains RSI indicator configuration
type RSISettings struct {
	Period     int `yaml:"period" json:"period"`
	Overbought int `yaml:"overbought" json:"overbought"`
	Oversold   int `yaml:"oversold" json:"oversold"`
}

// MACDSettings contains MACD indicator configuration
type MACDSettings struct {
	FastPeriod   int `yaml:"fast_period" json:"fast_period"`
	SlowPeriod   int `yaml:"slow_period" json:"slow_period"`
	SignalPeriod int `yaml:"signal_period" json:"signal_period"`
}

// BollingerSettings contains Bollinger Bands configuration
type BollingerSettings struct {
	Period int     `yaml:"period" json:"period"`
	StdDev float64 `yaml:"std_dev" json:"std_dev"`
}

// EMASettings contains EMA configuration
type EMASettings struct {
	Periods []int `yaml:"periods" json:"periods"`
}

// ADXSettings contains ADX indicator configuration
type ADXSettings struct {
	Period         int     `yaml:"period" json:"period"`
	TrendThreshold float64 `yaml:"trend_threshold" json:"trend_threshold"`
}

// NewDefaultStrategy creates a new strategy with default settings
func NewDefaultStrategy(name string) *StrategyConfig {
	return &StrategyConfig{
		Metadata: StrategyMetadata{
			SchemaVersion: SchemaVersion,
			ID:            uuid.New().String(),
			Name:          name,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
			Source:        "user",
		},
		Agents: AgentConfig{
			Weights: AgentWeights{
				Technical: 0.25,
				OrderBook: 0.20,
				Sentiment: 0.15,
				Trend:     0.30,
				Reversion: 0.25,
				Arbitrage: 0.20,
			},
			Enabled: EnabledAgents{
				Technical: true,
				Sentiment: true,
				Trend:     true,
				Risk:      true,
			},
		},
		Risk: RiskSettings{
			MaxPortfolioExposure:  0.8,
			MaxPositionSize:       0.1,
			MaxPositions:          3,
			MaxDailyLoss:          0.02,
			MaxDrawdown:           0.1,
			MinStrategyConfidence: 0.7,
			MinConsensusVotes:     2,
			DefaultStopLoss:       0.02,
			DefaultTakeProfit:     0.05,
			CircuitBreakers: CircuitBreakerSettings{
				Enabled:          true,
				MaxTradesPerHour: 10,
				MaxLossesPerDay:  3,
				DrawdownHalt:     0.08,
			},
			KellyFraction:  0.25,
			MinPositionUSD: 10.0,
			MaxPositionUSD: 1000.0,
		},
		Orchestration: OrchestrationSettings{
			VotingEnabled: true,
			VotingMethod:  "weighted_consensus",
			MinVotes:      2,
			Quorum:        0.6,
			StepInterval:  "30s",
			MaxSignalAge:  "5m",
			MinConsensus:  0.6,
			MinConfidence: 0.5,
		},
		Indicators: IndicatorSettings{
			RSI: RSISettings{
				Period:     14,
				Overbought: 70,
				Oversold:   30,
			},
			MACD: MACDSettings{
				FastPeriod:   12,
				SlowPeriod:   26,
				SignalPeriod: 9,
			},
			Bollinger: BollingerSettings{
				Period: 20,
				StdDev: 2,
			},
			EMA: EMASettings{
				Periods: []int{9, 21, 50, 200},
			},
			ADX: ADXSettings{
				Period:         14,
				TrendThreshold: 25,
			},
		},
	}
}

// DeepCopy creates a complete independent copy of the strategy configuration.
// Uses JSON marshal/unmarshal for robust deep copying of all nested structures.
// This approach automatically handles all nested pointers, slices, and maps
// without requiring manual field-by-field copying.
//
// Consistency Guarantees:
// - The returned copy shares no memory references with the original
// - Modifications to the copy will not affect the original
// - Modifications to the original will not affect the copy
// - All nested pointers (Agent configs) are fully cloned
// - All slices (Tags, Exchanges, EMA.Periods) are fully cloned
// - Time values are preserved exactly
//
// Performance Characteristics (Production):
// - Typical latency: 10-20µs for standard strategy configs (~2-3KB JSON)
// - Memory allocation: ~2x strategy size (for JSON bytes + new struct)
// - Throughput: Can handle 50,000-100,000 copies/second on modern hardware
// - Manual field copying would be ~10x faster but is error-prone and hard to maintain
//
// Production Usage Guidelines:
// - SAFE for: Strategy updates (user-initiated, infrequent)
// - SAFE for: Clone operations (user-initiated)
// - SAFE for: Import/export operations
// - AVOID for: Hot paths with >1000 ops/second (consider caching instead)
// - The ~15µs overhead is negligible compared to DB writes (~1-10ms) and network I/O
//
// Benchmark: Run `go test -bench=BenchmarkDeepCopy ./internal/strategy/...`
func (s *StrategyConfig) DeepCopy() *StrategyConfig {
	if s == nil {
		return nil
	}

	// Use JSON marshal/unmarshal for robust deep copy
	// This handles all nested structures automatically
	data, err := json.Marshal(s)
	if err != nil {
		// Log error and record metrics for debugging - should never happen with valid StrategyConfig
		log.Error().Err(err).Str("strategy_name", s.Metadata.Name).Msg("DeepCopy: failed to marshal strategy")
		metrics.RecordStrategyValidationFailure("deepcopy_marshal_error")
		return nil
	}

	var copied StrategyConfig
	if err := json.Unmarshal(data, &copied); err != nil {
		// Log error and record metrics for debugging - should never happen if marshal succeeded
		log.Error().Err(err).Str("strategy_name", s.Metadata.Name).Msg("DeepCopy: failed to unmarshal strategy")
		metrics.RecordStrategyValidationFailure("deepcopy_unmarshal_error")
		return nil
	}

	return &copied
}
