package algo

import (
	"context"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

// execMarket is a single call to the venue adapter for the full quantity.
func (e *Executor) execMarket(ctx context.Context, order model.ExecutionOrder) ([]model.ExecutionSlice, error) {
	slice, err := e.placeOne(ctx, order, order.TotalQuantity)
	if err != nil {
		return nil, err
	}
	return []model.ExecutionSlice{slice}, nil
}
