package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const (
	scalpExitPnLPct       = 0.008
	trailingArmPnLPct     = 0.015
	trailingArmLockPct    = 1.002
	trailingStepPnLPct    = 0.03
	trailingStepLockPct   = 1.015
	reversalConfidenceMin = 0.5
	stalenessAge          = 4 * time.Hour
	stalenessPnLBand      = 0.005
	reconcileInterval     = 60 * time.Second
	reconcileDriftPct     = 0.02
	reconcileQtyTolerance = 0.01
	badInheritanceConf    = 0.6
)

// scalpSpecializations hold positions open only briefly; they take profit
// earlier than the book's default TP/SL thresholds.
var scalpSpecializations = map[model.Specialization]bool{
	model.SpecializationMomentum:     true,
	model.SpecializationMarketMaking: true,
}

// ExitDecision is the verdict CheckExit renders for one open position on a
// single tick.
type ExitDecision struct {
	Close     bool
	Reason    model.ExitReason
	UpdatedSL float64 // non-zero when the position's stop was trailed up/down without closing
}

// CheckExit runs the full C8 exit ladder for one position against the
// latest tick: TP/SL, scalp exit, trailing stop, reversal close, then
// staleness. Order matters — TP/SL takes priority over the softer exits.
func CheckExit(pos model.Position, spec model.Specialization, reversalSignal model.Signal, reversalConfidence float64, now time.Time) ExitDecision {
	if tpSLHit(pos) {
		if hitTakeProfit(pos) {
			return ExitDecision{Close: true, Reason: model.ExitTakeProfit}
		}
		return ExitDecision{Close: true, Reason: model.ExitStopLoss}
	}

	pnlPct := pos.PnLPct()

	if scalpSpecializations[spec] && pnlPct > scalpExitPnLPct {
		return ExitDecision{Close: true, Reason: model.ExitTakeProfit}
	}

	if newSL, trailed := trailStop(pos, pnlPct); trailed {
		return ExitDecision{UpdatedSL: newSL}
	}

	if reversalCloses(pos, reversalSignal, reversalConfidence) {
		return ExitDecision{Close: true, Reason: model.ExitReversal}
	}

	if isStale(pos, pnlPct, now) {
		return ExitDecision{Close: true, Reason: model.ExitStagnation}
	}

	return ExitDecision{}
}

func tpSLHit(pos model.Position) bool {
	return hitTakeProfit(pos) || hitStopLoss(pos)
}

func hitTakeProfit(pos model.Position) bool {
	if pos.TakeProfit == 0 {
		return false
	}
	if pos.Side == model.SideLong {
		return pos.CurrentPrice >= pos.TakeProfit
	}
	return pos.CurrentPrice <= pos.TakeProfit
}

func hitStopLoss(pos model.Position) bool {
	if pos.StopLoss == 0 {
		return false
	}
	if pos.Side == model.SideLong {
		return pos.CurrentPrice <= pos.StopLoss
	}
	return pos.CurrentPrice >= pos.StopLoss
}

// trailStop raises (LONG) or lowers (SHORT) the stop loss once the position
// has moved far enough in its favor, in two fixed steps.
func trailStop(pos model.Position, pnlPct float64) (float64, bool) {
	if pos.Side == model.SideLong {
		if pnlPct > trailingStepPnLPct && pos.StopLoss < pos.EntryPrice*trailingStepLockPct {
			return pos.EntryPrice * trailingStepLockPct, true
		}
		if pnlPct > trailingArmPnLPct && pos.StopLoss < pos.EntryPrice*trailingArmLockPct {
			return pos.EntryPrice * trailingArmLockPct, true
		}
		return 0, false
	}

	// SHORT: stop trails downward, mirrored thresholds.
	shortStepLock := pos.EntryPrice * (2 - trailingStepLockPct)
	shortArmLock := pos.EntryPrice * (2 - trailingArmLockPct)
	if pnlPct > trailingStepPnLPct && (pos.StopLoss == 0 || pos.StopLoss > shortStepLock) {
		return shortStepLock, true
	}
	if pnlPct > trailingArmPnLPct && (pos.StopLoss == 0 || pos.StopLoss > shortArmLock) {
		return shortArmLock, true
	}
	return 0, false
}

func reversalCloses(pos model.Position, signal model.Signal, confidence float64) bool {
	if confidence <= reversalConfidenceMin {
		return false
	}
	if pos.Side == model.SideLong {
		return signal == model.SignalSell
	}
	return signal == model.SignalBuy
}

func isStale(pos model.Position, pnlPct float64, now time.Time) bool {
	age := now.Sub(pos.OpenTime)
	abs := pnlPct
	if abs < 0 {
		abs = -abs
	}
	return age > stalenessAge && abs < stalenessPnLBand
}

// Reconciler periodically diffs the in-memory book against venue-reported
// positions and repairs drift.
type Reconciler struct {
	venue          VenueAdapter
	defaultAgentID string

	mu        sync.Mutex
	positions map[string]model.Position
}

// NewReconciler wires a venue adapter used as the source of truth for
// reconciliation sweeps.
func NewReconciler(venue VenueAdapter, defaultAgentID string) *Reconciler {
	return &Reconciler{venue: venue, defaultAgentID: defaultAgentID, positions: make(map[string]model.Position)}
}

// SetPositions replaces the book the reconciler compares against the venue.
func (r *Reconciler) SetPositions(positions map[string]model.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = positions
}

// Positions returns a snapshot of the book after reconciliation.
func (r *Reconciler) Positions() map[string]model.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.Position, len(r.positions))
	for k, v := range r.positions {
		out[k] = v
	}
	return out
}

// VenuePosition is the venue's own view of an open position, used only by
// Reconcile.
type VenuePosition struct {
	Symbol   string
	Side     model.Side
	Quantity float64
	Price    float64
}

// ReconcileResult reports what the sweep changed.
type ReconcileResult struct {
	Deleted      []string
	Adopted      []string
	QtyCorrected []string
}

// Reconcile runs one sweep: positions flat on the venue are deleted,
// positions unknown to the book are adopted with a defensive ±2% SL/TP, and
// quantity drift beyond 1% is corrected to the venue's reported quantity.
func (r *Reconciler) Reconcile(ctx context.Context, venuePositions []VenuePosition) ReconcileResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result ReconcileResult
	venueBySymbol := make(map[string]VenuePosition, len(venuePositions))
	for _, vp := range venuePositions {
		venueBySymbol[vp.Symbol] = vp
	}

	for symbol := range r.positions {
		if _, stillOpen := venueBySymbol[symbol]; !stillOpen {
			delete(r.positions, symbol)
			result.Deleted = append(result.Deleted, symbol)
			log.Info().Str("symbol", symbol).Msg("lifecycle: flat on venue, dropping stale book entry")
		}
	}

	for symbol, vp := range venueBySymbol {
		pos, known := r.positions[symbol]
		if !known {
			adopted := adoptPosition(vp, r.defaultAgentID)
			r.positions[symbol] = adopted
			result.Adopted = append(result.Adopted, symbol)
			log.Warn().Str("symbol", symbol).Msg("lifecycle: adopting unknown venue position with defensive SL/TP")
			continue
		}
		if qtyDrift(pos.Quantity, vp.Quantity) > reconcileQtyTolerance {
			pos.Quantity = vp.Quantity
			r.positions[symbol] = pos
			result.QtyCorrected = append(result.QtyCorrected, symbol)
			log.Warn().Str("symbol", symbol).Float64("venue_qty", vp.Quantity).Msg("lifecycle: quantity drift beyond tolerance, adopting venue quantity")
		}
	}

	return result
}

func adoptPosition(vp VenuePosition, defaultAgentID string) model.Position {
	sl, tp := defensiveStops(vp)
	return model.Position{
		Symbol:        vp.Symbol,
		Side:          vp.Side,
		Quantity:      vp.Quantity,
		EntryPrice:    vp.Price,
		CurrentPrice:  vp.Price,
		StopLoss:      sl,
		TakeProfit:    tp,
		OpenTime:      time.Now(),
		OwningAgentID: defaultAgentID,
	}
}

func defensiveStops(vp VenuePosition) (sl, tp float64) {
	if vp.Side == model.SideLong {
		return vp.Price * (1 - reconcileDriftPct), vp.Price * (1 + reconcileDriftPct)
	}
	return vp.Price * (1 + reconcileDriftPct), vp.Price * (1 - reconcileDriftPct)
}

func qtyDrift(bookQty, venueQty float64) float64 {
	if venueQty == 0 {
		if bookQty == 0 {
			return 0
		}
		return 1
	}
	drift := (bookQty - venueQty) / venueQty
	if drift < 0 {
		drift = -drift
	}
	return drift
}

// ReviewInheritedPositions runs the startup review pass: an adopted position
// is flagged bad_inheritance if the latest thesis opposes it with confidence
// above badInheritanceConf.
func ReviewInheritedPositions(positions map[string]model.Position, signals map[string]model.Thesis) []string {
	var flagged []string
	for symbol, pos := range positions {
		thesis, ok := signals[symbol]
		if !ok || thesis.Confidence <= badInheritanceConf {
			continue
		}
		opposes := (pos.Side == model.SideLong && thesis.Signal == model.SignalSell) ||
			(pos.Side == model.SideShort && thesis.Signal == model.SignalBuy)
		if opposes {
			flagged = append(flagged, symbol)
		}
	}
	sort.Strings(flagged)
	return flagged
}

// LiquidateReduceOnly closes a position via a reduce-only market order on
// the given venue, used by the liquidation guard and bad-inheritance review.
func LiquidateReduceOnly(ctx context.Context, venue VenueAdapter, pos model.Position) error {
	closingSide := model.SideShort
	if pos.Side == model.SideShort {
		closingSide = model.SideLong
	}
	result, err := venue.ExecuteTrade(ctx, pos.Symbol, closingSide, pos.Quantity, TradeOptions{ReduceOnly: true})
	if err != nil {
		return fmt.Errorf("reduce-only close on %s: %w", pos.Symbol, err)
	}
	if !result.Success {
		return fmt.Errorf("reduce-only close on %s did not fill", pos.Symbol)
	}
	return nil
}
