package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const (
	cashCushionPct        = 0.10
	defaultMaxDrawdownPct = 0.15
	liquidationGuardRatio = 0.8
)

// SizingInputs is everything §4.6's pre-trade sizing formula needs besides
// portfolio state.
type SizingInputs struct {
	Symbol          string
	Side            model.Side
	Entry           float64
	ATRPct          float64
	Volatility      float64
	Confidence      float64
	DefaultTPPct    float64 // canonical 2:1, i.e. DefaultTPPct = 2*DefaultSLPct
	DefaultSLPct    float64
	BaseMaxPct      float64
	MaxPositionPct  float64
}

// SizingResult is the outcome of a sizing calculation: either a rejected
// trade (SizePct == 0) with a reason, or a sized position with derived stops.
type SizingResult struct {
	SizePct  float64
	Notional float64
	StopLoss float64
	TakeProfit float64
	Rejected bool
	Reason   string
}

// PortfolioTracker owns the running peak/drawdown/halt state (§4.6 drawdown
// halt) and per-agent daily-loss breaker state, guarded by a single mutex
// since every tick's portfolio update and every sizing call contend on it.
type PortfolioTracker struct {
	mu sync.Mutex

	peak            float64
	drawdown        float64
	isHalted        bool
	maxDrawdownPct  float64
	maxDailyLossPct float64

	dailyPnL    map[string]float64
	dayBoundary map[string]time.Time
	breached    map[string]bool
}

// NewPortfolioTracker constructs a tracker with the given drawdown-halt and
// daily-loss thresholds (defaults applied when zero).
func NewPortfolioTracker(maxDrawdownPct, maxDailyLossPct float64) *PortfolioTracker {
	if maxDrawdownPct <= 0 {
		maxDrawdownPct = defaultMaxDrawdownPct
	}
	return &PortfolioTracker{
		maxDrawdownPct:  maxDrawdownPct,
		maxDailyLossPct: maxDailyLossPct,
		dailyPnL:        make(map[string]float64),
		dayBoundary:     make(map[string]time.Time),
		breached:        make(map[string]bool),
	}
}

// UpdatePortfolioValue applies the peak/drawdown tracking and halt latch. The
// halt is one-way: once set, only an explicit ResetHalt call clears it.
func (t *PortfolioTracker) UpdatePortfolioValue(value float64) (drawdown float64, halted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if value > t.peak {
		t.peak = value
	}
	if t.peak > 0 {
		t.drawdown = (t.peak - value) / t.peak
	}
	if t.drawdown >= t.maxDrawdownPct {
		if !t.isHalted {
			log.Warn().Float64("drawdown", t.drawdown).Float64("limit", t.maxDrawdownPct).
				Msg("risk: drawdown halt triggered, new entries rejected")
		}
		t.isHalted = true
	}
	return t.drawdown, t.isHalted
}

// IsHalted reports the latched drawdown-halt state.
func (t *PortfolioTracker) IsHalted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isHalted
}

// ResetHalt clears the drawdown halt, e.g. at the start of a new trading
// session after operator review.
func (t *PortfolioTracker) ResetHalt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isHalted = false
}

// RecordAgentPnL accumulates an agent's daily PnL, resetting at the local-day
// boundary, and trips the per-agent daily-loss breaker when it crosses
// -maxDailyLossPct*marginAllocation.
func (t *PortfolioTracker) RecordAgentPnL(agentID string, pnl, marginAllocation float64, now time.Time) (breached bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	boundary, ok := t.dayBoundary[agentID]
	if !ok || !sameLocalDay(boundary, now) {
		t.dailyPnL[agentID] = 0
		t.breached[agentID] = false
		t.dayBoundary[agentID] = now
	}
	t.dailyPnL[agentID] += pnl

	if t.maxDailyLossPct > 0 && t.dailyPnL[agentID] < -t.maxDailyLossPct*marginAllocation {
		t.breached[agentID] = true
	}
	return t.breached[agentID]
}

// AgentBreached reports whether an agent's daily-loss breaker has tripped
// for the current local day.
func (t *PortfolioTracker) AgentBreached(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.breached[agentID]
}

func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// SizePosition implements the §4.6 pre-trade sizing formula. cashAvailablePct
// is the fraction of balance currently uncommitted; below 10% the trade is
// rejected regardless of the computed size.
func (t *PortfolioTracker) SizePosition(in SizingInputs, balance, cashAvailablePct float64) SizingResult {
	if t.IsHalted() {
		return SizingResult{Rejected: true, Reason: "risk manager halted: drawdown threshold breached"}
	}
	if cashAvailablePct < cashCushionPct {
		return SizingResult{Rejected: true, Reason: "insufficient cash cushion"}
	}

	pWin := clampf(0.5+0.2*in.Confidence, 0.5, 0.7)
	rr := in.DefaultTPPct / in.DefaultSLPct
	kelly := clampf((rr*pWin-(1-pWin))/rr, 0, 0.25)
	volScale := clampf(1/(1+10*in.Volatility), 0.25, 1)

	t.mu.Lock()
	drawdown := t.drawdown
	maxDD := t.maxDrawdownPct
	t.mu.Unlock()
	ddScale := clampf(1-drawdown/maxDD, 0.1, 1)

	sizePct := clampf(in.BaseMaxPct*kelly*volScale*ddScale, 0.01, in.MaxPositionPct)
	notional := balance * sizePct

	sl, tp := deriveStops(in)

	return SizingResult{SizePct: sizePct, Notional: notional, StopLoss: sl, TakeProfit: tp}
}

// deriveStops implements §4.6's stop-loss/take-profit derivation:
// sl_pct = max(default_sl_pct, 1.5*ATR_pct) capped at 5%, tp at 2:1 R/R.
func deriveStops(in SizingInputs) (sl, tp float64) {
	slPct := in.DefaultSLPct
	if atrStop := 1.5 * in.ATRPct; atrStop > slPct {
		slPct = atrStop
	}
	if slPct > 0.05 {
		slPct = 0.05
	}

	if in.Side == model.SideShort {
		sl = in.Entry * (1 + slPct)
		tp = in.Entry - 2*(sl-in.Entry)
		return sl, tp
	}
	sl = in.Entry * (1 - slPct)
	tp = in.Entry + 2*(in.Entry-sl)
	return sl, tp
}

// LiquidationGuard reports whether the maintenance-margin ratio has breached
// the §4.6 threshold, past which the two largest positions by notional must
// be closed via reduce-only market orders.
func LiquidationGuard(maintenanceMargin, marginBalance float64) bool {
	if marginBalance <= 0 {
		return maintenanceMargin > 0
	}
	return maintenanceMargin/marginBalance > liquidationGuardRatio
}

// LargestPositionsByNotional returns up to n position symbols ranked by
// quantity*currentPrice descending, for the liquidation guard's reduce-only
// close targets.
func LargestPositionsByNotional(positions map[string]model.Position, n int) []string {
	type kv struct {
		symbol   string
		notional float64
	}
	kvs := make([]kv, 0, len(positions))
	for symbol, p := range positions {
		kvs = append(kvs, kv{symbol, p.Quantity * p.CurrentPrice})
	}
	for i := 0; i < len(kvs); i++ {
		for j := i + 1; j < len(kvs); j++ {
			if kvs[j].notional > kvs[i].notional {
				kvs[i], kvs[j] = kvs[j], kvs[i]
			}
		}
	}
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, e := range kvs {
		out[i] = e.symbol
	}
	return out
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
