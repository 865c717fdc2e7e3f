// Package algo implements the execution algorithms C7 dispatches on
// (MARKET, TWAP, VWAP, ICEBERG, SNIPER, ADAPTIVE, ARBITRAGE) plus the
// heuristic/learned algorithm selector behind ADAPTIVE.
package algo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/exchange"
	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const minSuccessFraction = 0.95

// PriceSource supplies the current (cached or fresh) price for a symbol,
// used by SNIPER and ARBITRAGE.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// VolumeProfile supplies a 24-bucket relative volume profile (weights
// summing to 1) for VWAP slicing.
type VolumeProfile interface {
	BucketWeights(ctx context.Context, symbol string) ([24]float64, error)
}

// Executor runs C7's execute() control flow against one venue.
type Executor struct {
	venue  exchange.VenueAdapter
	prices PriceSource
	volume VolumeProfile
	rand   func() float64
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// NewExecutor constructs an Executor. rand, sleep and now default to a real
// RNG/time.Sleep/time.Now; tests substitute deterministic ones so SNIPER's
// timeout path doesn't depend on wall-clock time.
func NewExecutor(venue exchange.VenueAdapter, prices PriceSource, volume VolumeProfile) *Executor {
	return &Executor{
		venue:  venue,
		prices: prices,
		volume: volume,
		rand:   defaultRand,
		sleep:  ctxSleep,
		now:    time.Now,
	}
}

// Execute dispatches on order.Algo and accumulates fills into an
// ExecutionResult. Success requires filling at least 95% of the requested
// quantity.
func (e *Executor) Execute(ctx context.Context, order model.ExecutionOrder) (model.ExecutionResult, error) {
	start := time.Now()

	var slices []model.ExecutionSlice
	var err error

	switch order.Algo {
	case model.AlgoMarket, "":
		slices, err = e.execMarket(ctx, order)
	case model.AlgoTWAP:
		slices, err = e.execTWAP(ctx, order)
	case model.AlgoVWAP:
		slices, err = e.execVWAP(ctx, order)
	case model.AlgoIceberg:
		slices, err = e.execIceberg(ctx, order)
	case model.AlgoSniper:
		slices, err = e.execSniper(ctx, order)
	case model.AlgoAdaptive:
		chosen := SelectAlgorithm(adaptiveFeatures(order))
		adaptedOrder := order
		adaptedOrder.Algo = chosen
		return e.Execute(ctx, adaptedOrder)
	case model.AlgoArbitrage:
		slices, err = e.execArbitrage(ctx, order)
	default:
		return model.ExecutionResult{}, fmt.Errorf("unknown execution algorithm %q", order.Algo)
	}

	result := summarize(order, slices, time.Since(start))
	if err != nil {
		result.Error = err.Error()
		log.Error().Err(err).Str("symbol", order.Symbol).Str("algo", string(order.Algo)).Msg("algo: execution failed")
	}
	return result, err
}

func summarize(order model.ExecutionOrder, slices []model.ExecutionSlice, elapsed time.Duration) model.ExecutionResult {
	var totalQty, totalValue float64
	for _, s := range slices {
		totalQty += s.Quantity
		totalValue += s.Quantity * s.Price
	}
	avgPrice := 0.0
	if totalQty > 0 {
		avgPrice = totalValue / totalQty
	}
	slippagePct := 0.0

	return model.ExecutionResult{
		Success:         order.TotalQuantity > 0 && totalQty >= minSuccessFraction*order.TotalQuantity,
		TotalQuantity:   totalQty,
		AvgPrice:        avgPrice,
		TotalSlippagePct: slippagePct,
		Slices:          slices,
		AlgoUsed:        order.Algo,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
}

func (e *Executor) placeOne(ctx context.Context, order model.ExecutionOrder, qty float64) (model.ExecutionSlice, error) {
	result, err := e.venue.ExecuteTrade(ctx, order.Symbol, order.Side, qty, exchange.TradeOptions{})
	if err != nil {
		return model.ExecutionSlice{}, err
	}
	return model.ExecutionSlice{Quantity: result.FilledQuantity, Price: result.AvgPrice, Timestamp: time.Now()}, nil
}

func defaultRand() float64 {
	return float64(time.Now().UnixNano()%1_000_000) / 1_000_000
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
