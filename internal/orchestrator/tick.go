package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/agents"
	"github.com/ajitpratap0/cryptofunk/internal/db"
	"github.com/ajitpratap0/cryptofunk/internal/exchange"
	"github.com/ajitpratap0/cryptofunk/internal/memory"
	"github.com/ajitpratap0/cryptofunk/internal/risk"
	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const (
	dynamicAllocationFactor = 0.9
	doubleDownConfidence    = 0.85

	// Canonical §4.6 sizing defaults; agent-level ATR-multiplier overrides
	// are layered in by ThesisAgent before a sizing call in a fuller build.
	defaultSLPct    = 0.02
	defaultTPPct    = 0.04
	baseMaxPct      = 0.10
	maxPositionPct  = 0.10
)

// OpportunityScanner is C3's contract as the tick loop consumes it.
type OpportunityScanner interface {
	Scan(ctx context.Context, maxResults int) []model.Opportunity
}

// Thinker is one agent's thesis-formation contract (C4), satisfied by
// *agents.ThesisAgent without this package needing its concrete fields.
type Thinker interface {
	State() model.AgentState
	Analyze(ctx context.Context, symbol string, recent []agents.MemoryExcerpt, community []agents.CommunitySignal) (model.Thesis, error)
}

// OrderExecutor is C7's contract as the tick loop consumes it.
type OrderExecutor interface {
	Execute(ctx context.Context, order model.ExecutionOrder) (model.ExecutionResult, error)
}

// EpisodeStore is C9's contract as the tick loop consumes it.
type EpisodeStore interface {
	Store(ctx context.Context, ep *model.Episode) error
	UpdateOutcome(ctx context.Context, episodeID string, outcome model.TradeOutcome) error
	RecallSimilar(ctx context.Context, query model.Episode, opts memory.RecallOptions) ([]memory.RankedEpisode, error)
}

// TickConfig is everything the tick loop needs besides its collaborators.
type TickConfig struct {
	Period            time.Duration
	CashAvailablePct  float64
	MaxResultsPerTick int
	MaxRecallEpisodes int
	DefaultReviewerID string
	InitialCapital    float64
}

func defaultTickConfig() TickConfig {
	return TickConfig{
		Period:            5 * time.Second,
		CashAvailablePct:  0.90,
		MaxResultsPerTick: 10,
		MaxRecallEpisodes: 5,
		DefaultReviewerID: "orchestrator",
		InitialCapital:    10000.0,
	}
}

// Tick is C10: it owns PortfolioState and the open-positions map as the
// sole mutator (§5's ordering guarantee), and drives the scan → decide →
// size → execute → monitor → record → learn loop every Period.
type Tick struct {
	cfg TickConfig
	log zerolog.Logger

	scanner    OpportunityScanner
	agentsByID map[string]Thinker
	router     *exchange.Router
	newExec    func(exchange.VenueAdapter) OrderExecutor
	tracker    *risk.PortfolioTracker
	episodes   EpisodeStore
	reconciler *exchange.Reconciler

	mu        sync.Mutex
	positions map[string]model.Position
	portfolio model.PortfolioState

	boardMu sync.Mutex
	board   map[string][]agents.CommunitySignal

	venuePositionsFn func(ctx context.Context) ([]exchange.VenuePosition, error)
	externalSignals  ExternalSignalSource
	pauseSource      PauseSource
	journal          PositionJournal
}

// NewTick wires C10's collaborators. newExec builds a per-venue execution
// algorithm runner (kept as a factory rather than a single instance since
// each venue a Router resolves to needs its own bound PriceSource/adapter).
func NewTick(cfg TickConfig, log zerolog.Logger, scanner OpportunityScanner, agentsByID map[string]Thinker,
	router *exchange.Router, newExec func(exchange.VenueAdapter) OrderExecutor, tracker *risk.PortfolioTracker,
	episodes EpisodeStore, reconciler *exchange.Reconciler) *Tick {
	if cfg.Period == 0 {
		cfg = defaultTickConfig()
	}
	capital := cfg.InitialCapital
	if capital == 0 {
		capital = defaultTickConfig().InitialCapital
	}
	return &Tick{
		cfg:        cfg,
		log:        log.With().Str("component", "tick").Logger(),
		scanner:    scanner,
		agentsByID: agentsByID,
		router:     router,
		newExec:    newExec,
		tracker:    tracker,
		episodes:   episodes,
		reconciler: reconciler,
		positions:  make(map[string]model.Position),
		board:      make(map[string][]agents.CommunitySignal),
		portfolio:  model.PortfolioState{Balance: capital, Equity: capital, PeakValue: capital},
	}
}

// postSignal records an agent's thesis on the shared community board, keyed
// by symbol, so later ticks' prompt construction for other agents can see
// what the rest of the population currently reads into that symbol. Per
// symbol the board keeps at most one entry per agent, holding the latest.
func (t *Tick) postSignal(symbol, agentID string, thesis model.Thesis, spec model.Specialization) {
	t.boardMu.Lock()
	defer t.boardMu.Unlock()

	entries := t.board[symbol]
	sig := agents.CommunitySignal{AgentID: agentID, Specialization: spec, Signal: thesis.Signal, Confidence: thesis.Confidence}
	for i, e := range entries {
		if e.AgentID == agentID {
			entries[i] = sig
			t.board[symbol] = entries
			return
		}
	}
	t.board[symbol] = append(entries, sig)
}

// communitySignals returns the other agents' most recent postings for a
// symbol, excluding the requesting agent's own.
func (t *Tick) communitySignals(symbol, excludeAgentID string) []agents.CommunitySignal {
	t.boardMu.Lock()
	defer t.boardMu.Unlock()

	entries := t.board[symbol]
	if len(entries) == 0 {
		return nil
	}
	out := make([]agents.CommunitySignal, 0, len(entries))
	for _, e := range entries {
		if e.AgentID != excludeAgentID {
			out = append(out, e)
		}
	}
	return out
}

// ExternalSignalSource is the NATS signal-aggregation hub's contract as the
// tick loop consumes it: the independent cmd/agents/* microservices publish
// into it over NATS, and Step folds their recent votes onto the same
// community board in-process agents read from. Nil disables this source.
type ExternalSignalSource interface {
	RecentSignalsBySymbol() map[string][]*AgentSignal
}

// SetExternalSignals wires the NATS signal hub in as an additional
// community-signal feed.
func (t *Tick) SetExternalSignals(src ExternalSignalSource) {
	t.externalSignals = src
}

// PauseSource reports whether trading is currently paused, e.g. by an
// operator hitting the signal hub's /pause endpoint. *Orchestrator satisfies
// this; nil leaves the tick loop always unpaused.
type PauseSource interface {
	IsPaused() bool
}

// SetPauseSource wires in the operator pause switch. New entries are skipped
// while paused; existing positions still get monitored and can still close.
func (t *Tick) SetPauseSource(src PauseSource) {
	t.pauseSource = src
}

// PositionJournal persists position opens and closes the tick loop executes
// directly against a venue adapter, so the trades/positions tables the
// metrics updater and the dashboard read from reflect the live population
// instead of only what venue reconciliation adopts. *exchange.PositionManager
// satisfies this.
type PositionJournal interface {
	RecordOpen(ctx context.Context, symbol string, side db.PositionSide, entryPrice, quantity float64, reason string) error
	RecordClose(ctx context.Context, symbol string, exitPrice float64, reason string) error
	RecordScaleIn(ctx context.Context, symbol string, fillPrice, fillQuantity float64) error
}

// SetPositionJournal wires in database persistence for position lifecycle
// events. Nil (the default) leaves the tick loop running on in-memory state
// only, e.g. in tests.
func (t *Tick) SetPositionJournal(j PositionJournal) {
	t.journal = j
}

// ingestExternalSignals posts each NATS-fed agent's latest vote onto the
// community board under its own agent name, the same board postSignal
// writes to for in-process theses, so scanAndDecide's community-signals
// lookup sees both fleets without a separate code path.
func (t *Tick) ingestExternalSignals() {
	if t.externalSignals == nil {
		return
	}
	bySymbol := t.externalSignals.RecentSignalsBySymbol()
	for symbol, signals := range bySymbol {
		for _, s := range signals {
			thesis := model.Thesis{Signal: externalSignalToModelSignal(s.Signal), Confidence: s.Confidence}
			t.postSignal(symbol, s.AgentName, thesis, model.Specialization(s.AgentType))
		}
	}
}

func externalSignalToModelSignal(raw string) model.Signal {
	switch raw {
	case "BUY":
		return model.SignalBuy
	case "SELL":
		return model.SignalSell
	default:
		return model.SignalHold
	}
}

// Run drives the period loop until ctx is cancelled, then runs a graceful
// shutdown sweep closing every open position with a reduce-only market exit.
func (t *Tick) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Info().Msg("tick: stop signal received, closing open positions")
			t.gracefulShutdown(context.Background())
			return ctx.Err()
		case <-ticker.C:
			if err := t.Step(ctx); err != nil {
				t.log.Error().Err(err).Msg("tick: step failed")
			}
		}
	}
}

// Step runs one full tick — the ten steps of §4.10 — and never returns an
// error for a single symbol's failure; only setup failures (scan, reconcile)
// abort the tick early.
func (t *Tick) Step(ctx context.Context) error {
	t.preRoll()
	t.ingestExternalSignals()

	if t.reconciler != nil {
		venuePositions, err := t.fetchVenuePositions(ctx)
		if err != nil {
			return fmt.Errorf("tick: fetch venue positions: %w", err)
		}
		t.reconciler.SetPositions(t.snapshotPositions())
		result := t.reconciler.Reconcile(ctx, venuePositions)
		t.mu.Lock()
		t.positions = t.reconciler.Positions()
		t.mu.Unlock()
		if len(result.Deleted)+len(result.Adopted)+len(result.QtyCorrected) > 0 {
			t.log.Info().Strs("deleted", result.Deleted).Strs("adopted", result.Adopted).
				Strs("qty_corrected", result.QtyCorrected).Msg("tick: reconciliation swept positions")
		}
	}

	t.monitorPositions(ctx)
	t.updatePortfolioValue()

	if t.tracker != nil && t.tracker.IsHalted() {
		t.log.Warn().Msg("tick: portfolio halted on drawdown, skipping new entries")
		return nil
	}

	if t.pauseSource != nil && t.pauseSource.IsPaused() {
		t.log.Debug().Msg("tick: trading paused, skipping new entries")
		return nil
	}

	agentID, opp, thesis, ok := t.scanAndDecide(ctx)
	if !ok {
		return nil
	}

	t.mu.Lock()
	existing, hasPosition := t.positions[opp.Symbol]
	t.mu.Unlock()
	if hasPosition {
		t.handleScaleIn(ctx, agentID, existing, thesis)
		return nil
	}
	t.handleDecision(ctx, agentID, opp, thesis)
	return nil
}

// preRoll recomputes per-agent dynamic allocation and resets daily-PnL state
// across a day boundary.
func (t *Tick) preRoll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	active := 0
	for _, a := range t.agentsByID {
		if a.State().Active {
			active++
		}
	}
	if active == 0 {
		return
	}
	allocation := dynamicAllocationFactor * t.portfolio.Equity / float64(active)
	t.log.Debug().Float64("dynamic_allocation", allocation).Int("active_agents", active).Msg("tick: pre-roll")
}

// updatePortfolioValue marks equity and exposure to market from the
// in-memory book, then feeds the result into the tracker's drawdown/halt
// state machine. Cash balance moves only on open/close/scale-in; this just
// reprices what's currently held.
func (t *Tick) updatePortfolioValue() {
	t.mu.Lock()
	exposure, unrealized := 0.0, 0.0
	for _, pos := range t.positions {
		notional := pos.EntryPrice * pos.Quantity
		exposure += notional
		unrealized += pos.PnLPct() * notional
	}
	equity := t.portfolio.Balance + exposure + unrealized
	t.portfolio.Equity = equity
	t.portfolio.TotalExposure = exposure
	if equity > t.portfolio.PeakValue {
		t.portfolio.PeakValue = equity
	}
	t.mu.Unlock()

	if t.tracker == nil {
		return
	}
	drawdown, halted := t.tracker.UpdatePortfolioValue(equity)
	t.mu.Lock()
	t.portfolio.CurrentDrawdown = drawdown
	t.portfolio.IsHalted = halted
	t.mu.Unlock()
}

// monitorPositions runs §4.8's exit ladder over every open position using
// the already-refreshed in-memory book (the single batched ticker fetch
// happens upstream in the venue-position reconciliation step).
func (t *Tick) monitorPositions(ctx context.Context) {
	t.mu.Lock()
	snapshot := make(map[string]model.Position, len(t.positions))
	for k, v := range t.positions {
		snapshot[k] = v
	}
	t.mu.Unlock()

	now := time.Now()
	for symbol, pos := range snapshot {
		thinker, ok := t.agentsByID[pos.OwningAgentID]
		var spec model.Specialization
		if ok {
			spec = thinker.State().Specialization
		}
		decision := exchange.CheckExit(pos, spec, model.SignalHold, 0, now)
		if decision.UpdatedSL != 0 {
			t.mu.Lock()
			p := t.positions[symbol]
			p.StopLoss = decision.UpdatedSL
			t.positions[symbol] = p
			t.mu.Unlock()
			continue
		}
		if decision.Close {
			t.closePosition(ctx, symbol, pos, decision.Reason)
		}
	}
}

func (t *Tick) closePosition(ctx context.Context, symbol string, pos model.Position, reason model.ExitReason) {
	venue, ok := t.router.Resolve(symbol, "")
	if !ok {
		t.log.Error().Str("symbol", symbol).Msg("tick: no venue to close position")
		return
	}
	if err := exchange.LiquidateReduceOnly(ctx, venue, pos); err != nil {
		t.log.Error().Err(err).Str("symbol", symbol).Msg("tick: close failed")
		return
	}
	t.mu.Lock()
	delete(t.positions, symbol)
	t.portfolio.Balance += pos.CurrentPrice * pos.Quantity
	t.mu.Unlock()

	if t.journal != nil {
		if err := t.journal.RecordClose(ctx, symbol, pos.CurrentPrice, string(reason)); err != nil {
			t.log.Warn().Err(err).Str("symbol", symbol).Msg("tick: position journal close failed")
		}
	}

	outcome := model.TradeOutcome{
		Success:    pos.PnLPct() > 0,
		PnLPct:     pos.PnLPct(),
		ExitReason: reason,
	}
	if t.episodes != nil {
		if err := t.episodes.UpdateOutcome(ctx, symbol, outcome); err != nil {
			t.log.Warn().Err(err).Str("symbol", symbol).Msg("tick: episode outcome update failed")
		}
	}
	t.log.Info().Str("symbol", symbol).Str("reason", string(reason)).Float64("pnl_pct", outcome.PnLPct).
		Msg("tick: position closed")
}

// scanAndDecide runs §4.10 step 5: scan for an opportunity, pick an
// eligible agent, and form its thesis. The existing-position check (scalp,
// doubling, reversal vs. fresh entry) is left to the caller.
func (t *Tick) scanAndDecide(ctx context.Context) (string, model.Opportunity, model.Thesis, bool) {
	opportunities := t.scanner.Scan(ctx, t.cfg.MaxResultsPerTick)
	if len(opportunities) == 0 {
		return "", model.Opportunity{}, model.Thesis{}, false
	}
	opp := opportunities[0]

	agentID, thinker, ok := t.pickEligibleAgent(opp.Symbol)
	if !ok {
		return "", model.Opportunity{}, model.Thesis{}, false
	}

	community := t.communitySignals(opp.Symbol, agentID)
	thesis, err := thinker.Analyze(ctx, opp.Symbol, nil, community)
	if err != nil {
		t.log.Warn().Err(err).Str("agent", agentID).Str("symbol", opp.Symbol).Msg("tick: thesis analyze failed")
		return "", model.Opportunity{}, model.Thesis{}, false
	}
	t.postSignal(opp.Symbol, agentID, thesis, thinker.State().Specialization)
	return agentID, opp, thesis, true
}

func (t *Tick) pickEligibleAgent(symbol string) (string, Thinker, bool) {
	ids := make([]string, 0, len(t.agentsByID))
	for id := range t.agentsByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		thinker := t.agentsByID[id]
		state := thinker.State()
		if !state.Active || state.DailyLossBreached {
			continue
		}
		return id, thinker, true
	}
	return "", nil, false
}

// handleDecision runs §4.10 steps 6-8 for a fresh entry: context injection,
// sizing, and execution — plus step 9, recording the episode.
func (t *Tick) handleDecision(ctx context.Context, agentID string, opp model.Opportunity, thesis model.Thesis) {
	thinker := t.agentsByID[agentID]
	state := thinker.State()
	if thesis.Confidence < state.AdaptiveParams.ConfidenceThreshold {
		return
	}

	reasoning := thesis.Reasoning
	if t.episodes != nil {
		query := model.Episode{Symbol: opp.Symbol, Signal: thesis.Signal, Reasoning: thesis.Reasoning, AgentID: agentID}
		recalled, err := t.episodes.RecallSimilar(ctx, query, memory.RecallOptions{Limit: t.cfg.MaxRecallEpisodes, PreferProfitable: true})
		if err == nil && len(recalled) > 0 {
			reasoning = fmt.Sprintf("%s | recalled %d similar episode(s), top lesson: %q", reasoning, len(recalled), recalled[0].Episode.Lesson)
		}
	}

	sizing := t.tracker.SizePosition(risk.SizingInputs{
		Symbol:         opp.Symbol,
		Side:           sideFromSignal(thesis.Signal),
		Entry:          opp.Price,
		Confidence:     thesis.Confidence,
		DefaultSLPct:   defaultSLPct,
		DefaultTPPct:   defaultTPPct,
		BaseMaxPct:     baseMaxPct,
		MaxPositionPct: maxPositionPct,
	}, t.portfolio.Balance, t.cfg.CashAvailablePct)
	if sizing.Rejected {
		t.log.Debug().Str("symbol", opp.Symbol).Str("reason", sizing.Reason).Msg("tick: sizing rejected")
		return
	}

	venue, ok := t.router.Resolve(opp.Symbol, opp.VenueHint)
	if !ok {
		t.log.Error().Str("symbol", opp.Symbol).Msg("tick: no venue resolved")
		return
	}
	exec := t.newExec(venue)
	order := model.ExecutionOrder{
		Symbol:        opp.Symbol,
		Side:          sideFromSignal(thesis.Signal),
		TotalQuantity: sizing.Notional / opp.Price,
		Urgency:       model.UrgencyNormal,
		Algo:          model.AlgoAdaptive,
	}
	result, err := exec.Execute(ctx, order)
	if err != nil || !result.Success {
		t.log.Error().Err(err).Str("symbol", opp.Symbol).Msg("tick: execution failed")
		return
	}

	pos := model.Position{
		Symbol:        opp.Symbol,
		Side:          order.Side,
		Quantity:      result.TotalQuantity,
		EntryPrice:    result.AvgPrice,
		CurrentPrice:  result.AvgPrice,
		StopLoss:      sizing.StopLoss,
		TakeProfit:    sizing.TakeProfit,
		OpenTime:      time.Now(),
		OwningAgentID: agentID,
		Thesis:        thesis,
	}
	t.mu.Lock()
	t.positions[opp.Symbol] = pos
	t.portfolio.Balance -= result.AvgPrice * result.TotalQuantity
	t.mu.Unlock()

	if t.journal != nil {
		if err := t.journal.RecordOpen(ctx, opp.Symbol, db.PositionSide(order.Side), result.AvgPrice, result.TotalQuantity, string(thesis.Signal)); err != nil {
			t.log.Warn().Err(err).Str("symbol", opp.Symbol).Msg("tick: position journal open failed")
		}
	}

	if t.episodes != nil {
		ep := &model.Episode{
			Symbol: opp.Symbol, Signal: thesis.Signal, EntryPrice: result.AvgPrice, Quantity: result.TotalQuantity,
			AgentID: agentID, Reasoning: reasoning, Confidence: thesis.Confidence,
		}
		if err := t.episodes.Store(ctx, ep); err != nil {
			t.log.Warn().Err(err).Str("symbol", opp.Symbol).Msg("tick: episode store failed")
		}
	}

	t.log.Info().Str("symbol", opp.Symbol).Str("agent", agentID).Str("side", string(order.Side)).
		Float64("qty", result.TotalQuantity).Float64("avg_price", result.AvgPrice).Msg("tick: position opened")
}

// handleScaleIn runs §4.10 step 10: when the fresh thesis matches the
// existing position's direction at confidence >= 0.85, add a unit-size
// slice and fold it into the position with a weighted-average entry,
// resetting SL/TP around the new average.
func (t *Tick) handleScaleIn(ctx context.Context, agentID string, pos model.Position, thesis model.Thesis) {
	if thesis.Confidence < doubleDownConfidence || sideFromSignal(thesis.Signal) != pos.Side {
		return
	}

	venue, ok := t.router.Resolve(pos.Symbol, "")
	if !ok {
		t.log.Error().Str("symbol", pos.Symbol).Msg("tick: no venue resolved for scale-in")
		return
	}
	exec := t.newExec(venue)
	order := model.ExecutionOrder{
		Symbol:        pos.Symbol,
		Side:          pos.Side,
		TotalQuantity: pos.Quantity,
		Urgency:       model.UrgencyNormal,
		Algo:          model.AlgoMarket,
	}
	result, err := exec.Execute(ctx, order)
	if err != nil || !result.Success {
		t.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("tick: scale-in execution failed")
		return
	}

	totalQty := pos.Quantity + result.TotalQuantity
	avgEntry := (pos.EntryPrice*pos.Quantity + result.AvgPrice*result.TotalQuantity) / totalQty
	sl, tp := scaleInStops(pos.Side, avgEntry)

	if t.journal != nil {
		if err := t.journal.RecordScaleIn(ctx, pos.Symbol, result.AvgPrice, result.TotalQuantity); err != nil {
			t.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("tick: position journal scale-in failed")
		}
	}

	t.mu.Lock()
	t.positions[pos.Symbol] = model.Position{
		Symbol: pos.Symbol, Side: pos.Side, Quantity: totalQty, EntryPrice: avgEntry, CurrentPrice: result.AvgPrice,
		StopLoss: sl, TakeProfit: tp, OpenTime: pos.OpenTime, OwningAgentID: agentID, Thesis: thesis,
	}
	t.portfolio.Balance -= result.AvgPrice * result.TotalQuantity
	t.mu.Unlock()

	t.log.Info().Str("symbol", pos.Symbol).Float64("new_qty", totalQty).Float64("avg_entry", avgEntry).
		Msg("tick: scaled into position")
}

func scaleInStops(side model.Side, entry float64) (sl, tp float64) {
	if side == model.SideShort {
		sl = entry * (1 + defaultSLPct)
		return sl, entry - 2*(sl-entry)
	}
	sl = entry * (1 - defaultSLPct)
	return sl, entry + 2*(entry-sl)
}

func sideFromSignal(s model.Signal) model.Side {
	if s == model.SignalSell {
		return model.SideShort
	}
	return model.SideLong
}

// PortfolioBalance reports the tick loop's current cash balance, for
// callers recording a session's final capital at shutdown.
func (t *Tick) PortfolioBalance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.portfolio.Balance
}

// SetVenuePositionsFunc wires the seam over whatever account-wide position
// feed the router's adapters expose, since VenueAdapter itself has no "list
// positions" call (only execute_trade/get_balance). cmd/orchestrator supplies
// this from the concrete exchange client at construction time; leaving it
// unset makes fetchVenuePositions a no-op reconciliation pass, which is the
// correct behavior for a pure paper-trading run with no venue to reconcile
// against.
func (t *Tick) SetVenuePositionsFunc(fn func(ctx context.Context) ([]exchange.VenuePosition, error)) {
	t.venuePositionsFn = fn
}

func (t *Tick) fetchVenuePositions(ctx context.Context) ([]exchange.VenuePosition, error) {
	if t.venuePositionsFn == nil {
		return nil, nil
	}
	return t.venuePositionsFn(ctx)
}

func (t *Tick) snapshotPositions() map[string]model.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]model.Position, len(t.positions))
	for k, v := range t.positions {
		out[k] = v
	}
	return out
}

// gracefulShutdown submits reduce-only market exits for every open position,
// bounding each close to a short exit window per §5's shutdown timeout.
func (t *Tick) gracefulShutdown(ctx context.Context) {
	snapshot := t.snapshotPositions()
	for symbol, pos := range snapshot {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		t.closePosition(shutdownCtx, symbol, pos, model.ExitStagnation)
		cancel()
	}
}
