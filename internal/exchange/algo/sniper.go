package algo

import (
	"context"
	"time"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const (
	sniperPollInterval       = 2 * time.Second
	sniperMaxWaitSeconds     = 30 * time.Second
	sniperImprovementTarget  = 0.002 // 0.2%
)

// execSniper polls the current price at a fixed interval and fires as soon
// as price has improved by improvementTarget relative to the reference
// price observed at order entry, otherwise executes at the best observed
// price once maxWaitSeconds elapses.
func (e *Executor) execSniper(ctx context.Context, order model.ExecutionOrder) ([]model.ExecutionSlice, error) {
	reference, err := e.prices.CurrentPrice(ctx, order.Symbol)
	if err != nil {
		return nil, err
	}

	deadline := e.now().Add(sniperMaxWaitSeconds)
	best := reference
	bestIsBetter := func(p float64) bool {
		if order.Side == model.SideShort {
			return p > best
		}
		return p < best
	}
	improved := func(p float64) bool {
		if order.Side == model.SideShort {
			return p >= reference*(1+sniperImprovementTarget)
		}
		return p <= reference*(1-sniperImprovementTarget)
	}

	for {
		price, err := e.prices.CurrentPrice(ctx, order.Symbol)
		if err != nil {
			return nil, err
		}
		if bestIsBetter(price) {
			best = price
		}
		if improved(price) || !e.now().Before(deadline) {
			s, err := e.placeOne(ctx, order, order.TotalQuantity)
			if err != nil {
				return nil, err
			}
			return []model.ExecutionSlice{s}, nil
		}
		if err := e.sleep(ctx, sniperPollInterval); err != nil {
			return nil, err
		}
	}
}
