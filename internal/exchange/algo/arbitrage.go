package algo

import (
	"context"
	"fmt"
	"sync"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const arbitrageMinProfitPct = 0.005 // 0.5%

// execArbitrage reads a second leg (leg2_symbol, leg2_side) out of
// order.Metadata, prices both legs, and places them concurrently if the
// spread clears min_profit_pct.
func (e *Executor) execArbitrage(ctx context.Context, order model.ExecutionOrder) ([]model.ExecutionSlice, error) {
	leg2Symbol, _ := order.Metadata["leg2_symbol"].(string)
	leg2SideRaw, _ := order.Metadata["leg2_side"].(string)
	if leg2Symbol == "" || leg2SideRaw == "" {
		return nil, fmt.Errorf("arbitrage order missing leg2_symbol/leg2_side metadata")
	}
	leg2Side := model.Side(leg2SideRaw)

	leg1Price, err := e.prices.CurrentPrice(ctx, order.Symbol)
	if err != nil {
		return nil, err
	}
	leg2Price, err := e.prices.CurrentPrice(ctx, leg2Symbol)
	if err != nil {
		return nil, err
	}
	if leg1Price <= 0 || leg2Price <= 0 {
		return nil, fmt.Errorf("arbitrage: non-positive leg price")
	}

	spreadPct := spreadPercent(leg1Price, leg2Price)
	if spreadPct < arbitrageMinProfitPct {
		return nil, fmt.Errorf("arbitrage: spread %.4f below min profit threshold %.4f", spreadPct, arbitrageMinProfitPct)
	}

	leg2Order := order
	leg2Order.Symbol = leg2Symbol
	leg2Order.Side = leg2Side

	var wg sync.WaitGroup
	var leg1Slice, leg2Slice model.ExecutionSlice
	var leg1Err, leg2Err error
	wg.Add(2)
	go func() {
		defer wg.Done()
		leg1Slice, leg1Err = e.placeOne(ctx, order, order.TotalQuantity)
	}()
	go func() {
		defer wg.Done()
		leg2Slice, leg2Err = e.placeOne(ctx, leg2Order, leg2Order.TotalQuantity)
	}()
	wg.Wait()

	if leg1Err != nil {
		return nil, fmt.Errorf("arbitrage leg1: %w", leg1Err)
	}
	if leg2Err != nil {
		return []model.ExecutionSlice{leg1Slice}, fmt.Errorf("arbitrage leg2: %w", leg2Err)
	}
	return []model.ExecutionSlice{leg1Slice, leg2Slice}, nil
}

func spreadPercent(leg1, leg2 float64) float64 {
	diff := leg1 - leg2
	if diff < 0 {
		diff = -diff
	}
	mid := (leg1 + leg2) / 2
	if mid == 0 {
		return 0
	}
	return diff / mid
}
