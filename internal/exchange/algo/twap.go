package algo

import (
	"context"
	"time"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const (
	twapDefaultSlices  = 5
	twapDefaultWindow  = 2 * time.Minute
	twapJitterFraction = 0.20
)

// execTWAP splits the order into N equal slices (default 5) executed at
// fixed interval T/N with ±20% jitter on the interval.
func (e *Executor) execTWAP(ctx context.Context, order model.ExecutionOrder) ([]model.ExecutionSlice, error) {
	n := twapDefaultSlices
	window := twapDefaultWindow
	sliceQty := order.TotalQuantity / float64(n)
	interval := window / time.Duration(n)

	var slices []model.ExecutionSlice
	for i := 0; i < n; i++ {
		if i > 0 {
			jittered := jitter(interval, twapJitterFraction, e.rand())
			if err := e.sleep(ctx, jittered); err != nil {
				return slices, err
			}
		}
		qty := sliceQty
		if i == n-1 {
			qty = order.TotalQuantity - sliceQty*float64(n-1) // absorb rounding remainder
		}
		s, err := e.placeOne(ctx, order, qty)
		if err != nil {
			return slices, err
		}
		slices = append(slices, s)
	}
	return slices, nil
}

// jitter returns base scaled by a uniform factor in [1-frac, 1+frac], where
// rnd is a caller-supplied uniform draw in [0,1).
func jitter(base time.Duration, frac, rnd float64) time.Duration {
	factor := 1 - frac + 2*frac*rnd
	return time.Duration(float64(base) * factor)
}
