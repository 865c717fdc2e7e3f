package agents

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/llm"
	"github.com/ajitpratap0/cryptofunk/internal/market"
	"github.com/ajitpratap0/cryptofunk/internal/strategy"
	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const (
	explorationBackoffBase = 2
	explorationMaxBackoff  = 10 * time.Second
	llmQueryRetries        = 3
	llmQueryTimeout        = 20 * time.Second
)

// MemoryExcerpt is a compact reference to a past episode fed into the LLM
// prompt, sized down from memory.Episode to the handful of fields worth
// spending prompt tokens on.
type MemoryExcerpt struct {
	Signal    model.Signal
	PnLPct    float64
	Reasoning string
	Lesson    string
}

// CommunitySignal is another agent's most recent thesis on the same symbol,
// surfaced to an agent forming its own thesis so the LLM prompt reflects
// where the rest of the active population currently stands rather than only
// this agent's private indicator read and trade memory.
type CommunitySignal struct {
	AgentID        string
	Specialization model.Specialization
	Signal         model.Signal
	Confidence     float64
}

// ThesisAgent forms a Thesis for a symbol using either a deterministic
// rule-based tally or an LLM query, and updates its own AdaptiveParams from
// trade outcomes. It holds no position or order state; that belongs to the
// orchestrator and position manager.
type ThesisAgent struct {
	name           string
	specialization model.Specialization
	personality    model.Personality
	llmClient      llm.LLMClient // nil disables the LLM variant entirely
	store          *market.Store
	rng            func() float64

	mu    sync.RWMutex
	state model.AgentState

	log zerolog.Logger

	decisionTracker *llm.DecisionTracker
}

// SetDecisionTracker attaches database persistence for every LLM call this
// agent makes, independent of the thesis outcome the caller sees. Nil (the
// default) skips tracking, e.g. in tests.
func (a *ThesisAgent) SetDecisionTracker(tracker *llm.DecisionTracker) {
	a.decisionTracker = tracker
}

// NewThesisAgent constructs a thesis-forming agent. llmClient may be nil, in
// which case the agent always uses the rule-based variant.
func NewThesisAgent(name string, spec model.Specialization, personality model.Personality, store *market.Store, llmClient llm.LLMClient, log zerolog.Logger) *ThesisAgent {
	return &ThesisAgent{
		name:           name,
		specialization: spec,
		personality:    personality,
		llmClient:      llmClient,
		store:          store,
		state: model.AgentState{
			ID:                  name,
			Specialization:      spec,
			Personality:         personality,
			PreferredIndicators: []string{"rsi", "macd_hist", "bid_pressure"},
			ExplorationRate:     0.1,
			AdaptiveParams:      model.AdaptiveParams{ConfidenceThreshold: 0.65},
			IndicatorScores:     make(map[string]float64),
			Active:              true,
		},
		rng: deterministicUnitRand(name),
		log: log.With().Str("agent", name).Logger(),
	}
}

// State returns a snapshot of the agent's adaptive parameters and learning
// state, e.g. for persistence or reporting.
func (a *ThesisAgent) State() model.AgentState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// RestoreLearnedState seeds an agent's adaptive parameters from a
// previously exported strategy.AgentLearnedState, e.g. on startup after a
// process restart. Zero-valued fields in learned are left as the agent's
// own defaults rather than overwritten with zero.
func (a *ThesisAgent) RestoreLearnedState(learned strategy.AgentLearnedState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(learned.PreferredIndicators) > 0 {
		a.state.PreferredIndicators = append([]string(nil), learned.PreferredIndicators...)
	}
	if len(learned.IndicatorScores) > 0 {
		scores := make(map[string]float64, len(learned.IndicatorScores))
		for k, v := range learned.IndicatorScores {
			scores[k] = v
		}
		a.state.IndicatorScores = scores
	}
	if learned.ConfidenceThreshold > 0 {
		a.state.AdaptiveParams.ConfidenceThreshold = learned.ConfidenceThreshold
	}
	if learned.ExplorationRate > 0 {
		a.state.ExplorationRate = learned.ExplorationRate
	}
	if learned.MaxLeverageLimit > 0 {
		a.state.MaxLeverageLimit = learned.MaxLeverageLimit
	}
	if learned.RiskTolerance > 0 {
		a.state.RiskTolerance = learned.RiskTolerance
	}
}

// ApplyIntervention overwrites the agent's leverage limit, risk tolerance,
// confidence threshold, and active flag from a CIO decision, and records the
// label as LastIntervention for the next review cycle to read back. Callers
// own clamping; this just applies whatever the decision already computed.
func (a *ThesisAgent) ApplyIntervention(label string, maxLeverage, riskTolerance, confidenceThreshold float64, active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.MaxLeverageLimit = maxLeverage
	a.state.RiskTolerance = riskTolerance
	a.state.AdaptiveParams.ConfidenceThreshold = confidenceThreshold
	a.state.Active = active
	a.state.LastIntervention = &label
}

// Analyze selects indicators per the data-selection rule, then forms a
// thesis via the LLM variant (if available) falling back to the rule-based
// tally on total LLM failure.
func (a *ThesisAgent) Analyze(ctx context.Context, symbol string, recent []MemoryExcerpt, community []CommunitySignal) (model.Thesis, error) {
	indicators, usedNames, err := a.collectIndicators(ctx, symbol)
	if err != nil {
		return model.Thesis{}, fmt.Errorf("collect indicators for %s: %w", symbol, err)
	}

	if a.llmClient != nil {
		thesis, ok := a.analyzeWithLLM(ctx, symbol, indicators, recent, community)
		if ok {
			thesis.DataUsed = usedNames
			return thesis, nil
		}
		a.log.Warn().Str("symbol", symbol).Msg("llm thesis formation exhausted retries, falling back to rule-based")
	}

	thesis := a.analyzeRuleBased(symbol, indicators)
	thesis.DataUsed = usedNames
	return thesis, nil
}

// collectIndicators implements the data-selection rule: price and volume
// always, the agent's preferred indicators, and with probability
// exploration_rate one uniformly random unused indicator.
func (a *ThesisAgent) collectIndicators(ctx context.Context, symbol string) (map[string]market.Indicator, []string, error) {
	a.mu.RLock()
	preferred := append([]string(nil), a.state.PreferredIndicators...)
	explorationRate := a.state.ExplorationRate
	a.mu.RUnlock()

	want := map[string]bool{"price": true, "volume": true}
	for _, name := range preferred {
		want[name] = true
	}

	if a.rng() < explorationRate {
		available := a.store.Available()
		var unused []string
		for _, name := range available {
			if !want[name] {
				unused = append(unused, name)
			}
		}
		if len(unused) > 0 {
			pick := unused[int(a.rng()*float64(len(unused)))%len(unused)]
			want[pick] = true
		}
	}

	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]market.Indicator, len(names))
	for _, name := range names {
		ind, ok := a.store.Get(ctx, name, symbol)
		if ok {
			out[name] = ind
		}
	}
	if len(out) == 0 {
		return nil, nil, fmt.Errorf("no indicators resolved for %s", symbol)
	}
	return out, names, nil
}

// analyzeRuleBased implements the §4.4 bull/bear tally exactly.
func (a *ThesisAgent) analyzeRuleBased(symbol string, indicators map[string]market.Indicator) model.Thesis {
	var bull, bear float64
	var bullReasons, bearReasons []string

	if rsi, ok := indicators["rsi"]; ok {
		switch {
		case rsi.Scalar < 30:
			bull += 2
			bullReasons = append(bullReasons, "RSI oversold (<30)")
		case rsi.Scalar < 40:
			bull += 1
			bullReasons = append(bullReasons, "RSI approaching oversold (<40)")
		case rsi.Scalar > 70:
			bear += 2
			bearReasons = append(bearReasons, "RSI overbought (>70)")
		case rsi.Scalar > 60:
			bear += 1
			bearReasons = append(bearReasons, "RSI approaching overbought (>60)")
		}
	}

	if macdHist, ok := indicators["macd_hist"]; ok {
		switch {
		case macdHist.Scalar > 0:
			bull += 1
			bullReasons = append(bullReasons, "MACD histogram positive")
		case macdHist.Scalar < 0:
			bear += 1
			bearReasons = append(bearReasons, "MACD histogram negative")
		}
	} else if macd, ok := indicators["macd"]; ok {
		switch {
		case macd.MACD.Hist > 0:
			bull += 1
			bullReasons = append(bullReasons, "MACD histogram positive")
		case macd.MACD.Hist < 0:
			bear += 1
			bearReasons = append(bearReasons, "MACD histogram negative")
		}
	}

	if bp, ok := indicators["bid_pressure"]; ok {
		switch {
		case bp.Scalar > 0.6:
			bull += 1
			bullReasons = append(bullReasons, "bid pressure > 0.6")
		case bp.Scalar < 0.4:
			bear += 1
			bearReasons = append(bearReasons, "bid pressure < 0.4")
		}
	}

	if sentiment, ok := indicators["sentiment"]; ok {
		switch {
		case sentiment.Scalar > 0.7:
			bull += 1
			bullReasons = append(bullReasons, "sentiment > 0.7")
		case sentiment.Scalar < 0.3:
			bear += 1
			bearReasons = append(bearReasons, "sentiment < 0.3")
		}
	}

	if bull+bear == 0 {
		return model.Thesis{
			AgentID: a.name, Symbol: symbol, Signal: model.SignalHold,
			Confidence: 0, Reasoning: "no indicators crossed bull/bear thresholds", Timestamp: now(),
		}
	}

	signal := model.SignalBuy
	winning, reasons := bull, bullReasons
	if bear > bull {
		signal = model.SignalSell
		winning, reasons = bear, bearReasons
	}

	return model.Thesis{
		AgentID:    a.name,
		Symbol:     symbol,
		Signal:     signal,
		Confidence: winning / (bull + bear),
		Reasoning:  strings.Join(reasons, "; "),
		Timestamp:  now(),
	}
}

// analyzeWithLLM queries the LLM for an OBSERVE/REASON/CONCLUDE/SIGNAL/
// CONFIDENCE envelope, retrying up to llmQueryRetries times with exponential
// backoff (base 2, capped at 10s). ok is false only when every attempt
// failed or produced an unparseable envelope.
func (a *ThesisAgent) analyzeWithLLM(ctx context.Context, symbol string, indicators map[string]market.Indicator, recent []MemoryExcerpt, community []CommunitySignal) (model.Thesis, bool) {
	systemPrompt := a.personalityDirective()
	userPrompt := a.buildLLMPrompt(symbol, indicators, recent, community)

	var lastErr error
	for attempt := 0; attempt < llmQueryRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(explorationBackoffBase, float64(attempt))) * time.Second
			if backoff > explorationMaxBackoff {
				backoff = explorationMaxBackoff
			}
			select {
			case <-ctx.Done():
				return model.Thesis{}, false
			case <-time.After(backoff):
			}
		}

		queryCtx, cancel := context.WithTimeout(ctx, llmQueryTimeout)
		callStart := time.Now()
		content, err := a.llmClient.CompleteWithSystem(queryCtx, systemPrompt, userPrompt)
		latency := time.Since(callStart)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		thesis, ok := parseEnvelope(content)
		if !ok {
			lastErr = fmt.Errorf("unparseable envelope")
			continue
		}
		thesis.AgentID = a.name
		thesis.Symbol = symbol
		thesis.Timestamp = now()

		if a.decisionTracker != nil {
			if _, err := a.decisionTracker.TrackDecision(ctx, a.name, "THESIS", symbol, userPrompt, content,
				"llm", 0, int(latency.Milliseconds()), thesis.Confidence, nil, nil); err != nil {
				a.log.Warn().Err(err).Str("symbol", symbol).Msg("decision tracker: track failed")
			}
		}

		return thesis, true
	}

	a.log.Debug().Err(lastErr).Str("symbol", symbol).Msg("llm thesis query failed after retries")
	return model.Thesis{}, false
}

func (a *ThesisAgent) personalityDirective() string {
	base := "You are a disciplined cryptocurrency trading agent. Respond using exactly five labeled lines: OBSERVE, REASON, CONCLUDE, SIGNAL, CONFIDENCE. SIGNAL must be BUY, SELL, or HOLD. CONFIDENCE must be a decimal between 0 and 1."
	switch a.personality {
	case model.PersonalityAggressive:
		return base + " You favor decisive action over caution and accept higher variance for higher expected return."
	case model.PersonalityConservative:
		return base + " You favor capital preservation; default to HOLD unless the evidence is unambiguous."
	case model.PersonalityContrarian:
		return base + " You are skeptical of crowd consensus and look for overextension to fade."
	default:
		return base + " You weigh evidence analytically and avoid overconfidence."
	}
}

func (a *ThesisAgent) buildLLMPrompt(symbol string, indicators map[string]market.Indicator, recent []MemoryExcerpt, community []CommunitySignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nLive win rate: %.2f\n\nIndicators:\n", symbol, a.State().WinRate())
	names := make([]string, 0, len(indicators))
	for name := range indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ind := indicators[name]
		switch ind.Kind {
		case "scalar":
			fmt.Fprintf(&b, "  %s: %.4f\n", name, ind.Scalar)
		case "phase":
			fmt.Fprintf(&b, "  %s: %s\n", name, ind.Phase)
		}
	}

	if len(community) > 0 {
		b.WriteString("\nCommunity signals (other active agents on this symbol):\n")
		for _, c := range community {
			fmt.Fprintf(&b, "  - %s (%s): %s at %.2f confidence\n", c.AgentID, c.Specialization, c.Signal, c.Confidence)
		}
		b.WriteString("  Treat this as one more input, not a vote to follow; your own read can disagree with it.\n")
	}

	if len(recent) > 0 {
		b.WriteString("\nRecent relevant memory:\n")
		limit := len(recent)
		if limit > 5 {
			limit = 5
		}
		for i := 0; i < limit; i++ {
			m := recent[i]
			fmt.Fprintf(&b, "  - %s %s, pnl %.2f%%, lesson: %s\n", m.Signal, m.Reasoning, m.PnLPct, m.Lesson)
		}
	}

	b.WriteString("\nRespond with OBSERVE, REASON, CONCLUDE, SIGNAL, CONFIDENCE as five labeled lines.")
	return b.String()
}

// parseEnvelope is the lenient line-oriented scanner for the
// OBSERVE/REASON/CONCLUDE/SIGNAL/CONFIDENCE response shape. It tolerates
// extra whitespace, case variation in labels, and lines in any order;
// anything it cannot extract a SIGNAL and CONFIDENCE from is unparseable.
func parseEnvelope(content string) (model.Thesis, bool) {
	var observe, reason, conclude string
	var signal model.Signal
	var confidence float64
	haveSignal, haveConfidence := false, false

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, value, ok := splitLabel(line)
		if !ok {
			continue
		}
		switch strings.ToUpper(label) {
		case "OBSERVE":
			observe = value
		case "REASON":
			reason = value
		case "CONCLUDE":
			conclude = value
		case "SIGNAL":
			switch strings.ToUpper(strings.TrimSpace(value)) {
			case "BUY":
				signal = model.SignalBuy
				haveSignal = true
			case "SELL":
				signal = model.SignalSell
				haveSignal = true
			case "HOLD":
				signal = model.SignalHold
				haveSignal = true
			}
		case "CONFIDENCE":
			if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				confidence = clamp(v, 0, 1)
				haveConfidence = true
			}
		}
	}

	if !haveSignal {
		return model.Thesis{Signal: model.SignalHold, Confidence: 0, Reasoning: "unparseable llm response"}, false
	}
	if !haveConfidence {
		confidence = 0
	}

	reasoning := strings.TrimSpace(strings.Join([]string{observe, reason, conclude}, " "))
	return model.Thesis{Signal: signal, Confidence: confidence, Reasoning: reasoning}, true
}

func splitLabel(line string) (label, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

// LearnFromTrade applies the §4.4 learning rule given the realized outcome
// of a trade this agent's thesis led to, and returns the compact memory item
// to persist.
func (a *ThesisAgent) LearnFromTrade(thesis model.Thesis, pnlPct float64) model.Episode {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state.TotalTrades++
	won := pnlPct > 0
	if won {
		a.state.Wins++
	}

	for _, name := range thesis.DataUsed {
		score := a.state.IndicatorScores[name]
		if won {
			score = clamp(score+0.1, 0, 1)
		} else {
			score = clamp(score-0.05, 0, 1)
		}
		a.state.IndicatorScores[name] = score
	}
	a.state.PreferredIndicators = topIndicators(a.state.IndicatorScores, 5)

	if won {
		a.state.AdaptiveParams.ConfidenceThreshold = clamp(a.state.AdaptiveParams.ConfidenceThreshold-0.01, 0.60, 0.90)
	} else {
		a.state.AdaptiveParams.ConfidenceThreshold = clamp(a.state.AdaptiveParams.ConfidenceThreshold+0.02, 0.60, 0.90)
	}

	lesson := "Review entry criteria"
	if won {
		lesson = "Successful strategy"
	}

	return model.Episode{
		AgentID:    a.name,
		Symbol:     thesis.Symbol,
		Signal:     thesis.Signal,
		Reasoning:  thesis.Reasoning,
		Confidence: thesis.Confidence,
		Outcome:    &model.TradeOutcome{Success: won, PnLPct: pnlPct},
		Lesson:     lesson,
		Timestamp:  now(),
	}
}

func topIndicators(scores map[string]float64, n int) []string {
	type kv struct {
		name  string
		score float64
	}
	kvs := make([]kv, 0, len(scores))
	for name, score := range scores {
		kvs = append(kvs, kv{name, score})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].score != kvs[j].score {
			return kvs[i].score > kvs[j].score
		}
		return kvs[i].name < kvs[j].name
	})
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, e := range kvs {
		out[i] = e.name
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// now is indirected so tests can observe deterministic timestamps without a
// real clock dependency leaking into assertions.
var now = time.Now

// deterministicUnitRand returns a seeded xorshift64-backed generator in
// [0,1), matching the approach internal/market/features.go uses for
// synthetic candle generation rather than pulling in math/rand's global
// state.
func deterministicUnitRand(seedKey string) func() float64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(seedKey); i++ {
		h ^= uint64(seedKey[i])
		h *= 1099511628211
	}
	state := h
	return func() float64 {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return float64(state%1_000_000) / 1_000_000
	}
}
