package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/strategy"
	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const (
	cioMinTrades        = 10
	cioBoostWinRate     = 0.65
	cioCooldownWinRate  = 0.35
	cioLeverageStep     = 2.0
	cioLeverageFloor    = 1.0
	cioLeverageCeiling  = 50.0
	cioConfidenceFloor  = 0.60
	cioConfidenceCeil   = 0.90
	cioRegimeNudgePct   = 0.10
	cioBaselineLeverage = 3.0
	cioSharpeLookbackDays = 30
	cioPoorSharpe         = -0.5
)

// InterventionKind names the four outer-loop actions the CIO can take on a
// single agent per review cycle.
type InterventionKind string

const (
	InterventionTune     InterventionKind = "TUNE"
	InterventionBoost    InterventionKind = "BOOST"
	InterventionCooldown InterventionKind = "COOLDOWN"
	InterventionRevert   InterventionKind = "REVERT"
)

// Tunable is the narrow seam the CIO depends on: read an agent's learned
// state and apply a bounded correction to it. agents.ThesisAgent satisfies
// this by structural typing.
type Tunable interface {
	State() model.AgentState
	ApplyIntervention(label string, maxLeverage, riskTolerance, confidenceThreshold float64, active bool)
}

// RegimeSource reports the dominant market structure phase for a symbol,
// used to compare against an agent's PreferredRegimes. *market.FeaturePipeline
// satisfies this without cio.go importing that package's concrete type.
type RegimeSource interface {
	GetMarketAnalysis(ctx context.Context, symbol string) (model.MarketSnapshot, error)
}

// PerformanceSource reports the portfolio's risk-adjusted return, used to
// gate BOOST interventions on more than one agent's raw win rate.
// *risk.Calculator satisfies this against the live trades table.
type PerformanceSource interface {
	CalculateSharpeFromEquity(ctx context.Context, sessionID *string, days int, riskFreeRate float64) (float64, error)
}

// CIOConfig controls the outer review loop's cadence and the symbol whose
// regime stands in for the overall market when nudging confidence thresholds.
type CIOConfig struct {
	Period          time.Duration
	BenchmarkSymbol string
}

func defaultCIOConfig() CIOConfig {
	return CIOConfig{Period: 5 * time.Minute, BenchmarkSymbol: "BTC-USDT"}
}

// CIO is the slow outer loop that reviews each agent's live performance and
// nudges its adaptive parameters, separately from the per-tick trading loop.
type CIO struct {
	cfg         CIOConfig
	log         zerolog.Logger
	agents      map[string]Tunable
	regime      RegimeSource
	performance PerformanceSource

	strategyMu sync.Mutex
	doc        *strategy.StrategyConfig
}

// SetPerformanceSource attaches the portfolio-wide Sharpe-ratio feed a
// review pass consults before honoring a BOOST. Nil skips the gate.
func (c *CIO) SetPerformanceSource(src PerformanceSource) {
	c.performance = src
}

// SetStrategyDoc attaches a strategy document the CIO snapshots every
// agent's learned state into on each review pass, so an operator can export
// the live population's drifted parameters rather than only its starting
// config. Passing nil disables snapshotting.
func (c *CIO) SetStrategyDoc(doc *strategy.StrategyConfig) {
	c.strategyMu.Lock()
	defer c.strategyMu.Unlock()
	c.doc = doc
}

// StrategyDoc returns the attached strategy document, or nil if none is set.
func (c *CIO) StrategyDoc() *strategy.StrategyConfig {
	c.strategyMu.Lock()
	defer c.strategyMu.Unlock()
	return c.doc
}

// NewCIO constructs a review loop over agents, keyed by agent ID. regime may
// be nil, in which case the regime-match nudge is skipped.
func NewCIO(cfg CIOConfig, log zerolog.Logger, agents map[string]Tunable, regime RegimeSource) *CIO {
	if cfg.Period == 0 {
		cfg.Period = defaultCIOConfig().Period
	}
	if cfg.BenchmarkSymbol == "" {
		cfg.BenchmarkSymbol = defaultCIOConfig().BenchmarkSymbol
	}
	return &CIO{cfg: cfg, log: log, agents: agents, regime: regime}
}

// Run reviews every agent once per Period until ctx is cancelled.
func (c *CIO) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Review(ctx)
		}
	}
}

// Review runs one pass over all agents in deterministic ID order.
func (c *CIO) Review(ctx context.Context) {
	var regime model.WyckoffPhase
	haveRegime := false
	if c.regime != nil {
		snap, err := c.regime.GetMarketAnalysis(ctx, c.cfg.BenchmarkSymbol)
		if err != nil {
			c.log.Warn().Err(err).Msg("cio: regime lookup failed, skipping regime nudge this cycle")
		} else {
			regime = snap.WyckoffPhase
			haveRegime = true
		}
	}

	var sharpe float64
	haveSharpe := false
	if c.performance != nil {
		s, err := c.performance.CalculateSharpeFromEquity(ctx, nil, cioSharpeLookbackDays, 0)
		if err != nil {
			c.log.Warn().Err(err).Msg("cio: sharpe lookup failed, skipping performance gate this cycle")
		} else {
			sharpe = s
			haveSharpe = true
		}
	}

	ids := make([]string, 0, len(c.agents))
	for id := range c.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		c.reviewOne(id, c.agents[id], regime, haveRegime, sharpe, haveSharpe)
	}
}

func (c *CIO) reviewOne(id string, agent Tunable, regime model.WyckoffPhase, haveRegime bool, sharpe float64, haveSharpe bool) {
	state := agent.State()
	kind, leverage, threshold := c.decide(state, regime, haveRegime, sharpe, haveSharpe)

	active := state.Active
	if state.DailyLossBreached {
		active = false
	} else if kind == InterventionRevert {
		active = true
	}

	label := fmt.Sprintf("%s at %s (win_rate=%.2f, total_pnl=%.2f)", kind, time.Now().UTC().Format(time.RFC3339), state.WinRate(), state.TotalPnL)
	agent.ApplyIntervention(label, leverage, state.RiskTolerance, threshold, active)

	c.log.Info().Str("agent", id).Str("intervention", string(kind)).
		Float64("leverage", leverage).Float64("confidence_threshold", threshold).
		Float64("win_rate", state.WinRate()).Msg("cio: applied intervention")

	if doc := c.StrategyDoc(); doc != nil {
		doc.Agents.CaptureAgentState(agent.State())
	}
}

// decide picks one intervention per review cycle. REVERT takes priority on a
// breached daily loss or a deep total drawdown; BOOST/COOLDOWN follow sample-
// size-gated win rate, with a BOOST additionally vetoed when the portfolio's
// trailing Sharpe ratio shows the live edge isn't worth leaning into; otherwise
// TUNE nudges the confidence threshold by the agent's preferred-regime match
// against the current market structure.
func (c *CIO) decide(state model.AgentState, regime model.WyckoffPhase, haveRegime bool, sharpe float64, haveSharpe bool) (InterventionKind, float64, float64) {
	leverage := clampf(state.MaxLeverageLimit, cioLeverageFloor, cioLeverageCeiling)
	threshold := state.AdaptiveParams.ConfidenceThreshold
	if threshold == 0 {
		threshold = 0.65
	}

	if state.DailyLossBreached {
		return InterventionRevert, cioBaselineLeverage, 0.65
	}

	if state.TotalTrades >= cioMinTrades {
		winRate := state.WinRate()
		if winRate >= cioBoostWinRate && !(haveSharpe && sharpe < cioPoorSharpe) {
			return InterventionBoost, clampf(leverage+cioLeverageStep, cioLeverageFloor, cioLeverageCeiling),
				clampf(threshold-0.02, cioConfidenceFloor, cioConfidenceCeil)
		}
		if winRate <= cioCooldownWinRate || (haveSharpe && sharpe < cioPoorSharpe) {
			return InterventionCooldown, clampf(leverage-cioLeverageStep, cioLeverageFloor, cioLeverageCeiling),
				clampf(threshold+0.02, cioConfidenceFloor, cioConfidenceCeil)
		}
	}

	if haveRegime && regimeMatches(state.PreferredRegimes, regime) {
		return InterventionTune, leverage, clampf(threshold*(1-cioRegimeNudgePct), cioConfidenceFloor, cioConfidenceCeil)
	}
	return InterventionTune, leverage, clampf(threshold*(1+cioRegimeNudgePct), cioConfidenceFloor, cioConfidenceCeil)
}

func regimeMatches(preferred []model.WyckoffPhase, current model.WyckoffPhase) bool {
	for _, p := range preferred {
		if p == current {
			return true
		}
	}
	return false
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
