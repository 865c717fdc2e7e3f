package algo

import (
	"context"
	"time"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const (
	icebergDefaultVisiblePct = 0.10
	icebergMinDelay          = 5 * time.Second
	icebergMaxDelay          = 30 * time.Second
	icebergRemainderStop     = 0.10 // stop once remaining < 10% of one slice
)

// execIceberg repeats a visible slice of visiblePct*total with a random
// 5-30s delay between slices, until the remaining quantity drops below 10%
// of one slice.
func (e *Executor) execIceberg(ctx context.Context, order model.ExecutionOrder) ([]model.ExecutionSlice, error) {
	sliceQty := order.TotalQuantity * icebergDefaultVisiblePct
	if sliceQty <= 0 {
		return nil, nil
	}
	stopThreshold := sliceQty * icebergRemainderStop

	var slices []model.ExecutionSlice
	remaining := order.TotalQuantity
	first := true
	for remaining >= stopThreshold {
		if !first {
			delay := icebergMinDelay + time.Duration(e.rand()*float64(icebergMaxDelay-icebergMinDelay))
			if err := e.sleep(ctx, delay); err != nil {
				return slices, err
			}
		}
		first = false

		qty := sliceQty
		if qty > remaining {
			qty = remaining
		}
		s, err := e.placeOne(ctx, order, qty)
		if err != nil {
			return slices, err
		}
		slices = append(slices, s)
		remaining -= qty
	}
	return slices, nil
}
