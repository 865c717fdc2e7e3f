package algo

import (
	"context"
	"time"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const vwapDefaultWindow = 4 * time.Hour

// execVWAP slices the order proportionally to a 24-bucket relative volume
// profile rather than equal slices.
func (e *Executor) execVWAP(ctx context.Context, order model.ExecutionOrder) ([]model.ExecutionSlice, error) {
	weights, err := e.volume.BucketWeights(ctx, order.Symbol)
	if err != nil {
		return nil, err
	}

	interval := vwapDefaultWindow / time.Duration(len(weights))
	var slices []model.ExecutionSlice
	var filled float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if i > 0 {
			if err := e.sleep(ctx, interval); err != nil {
				return slices, err
			}
		}
		qty := order.TotalQuantity * w
		s, placeErr := e.placeOne(ctx, order, qty)
		if placeErr != nil {
			return slices, placeErr
		}
		slices = append(slices, s)
		filled += qty
	}
	return slices, nil
}
