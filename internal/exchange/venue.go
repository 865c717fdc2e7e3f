package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

// TradeResult is the venue-agnostic outcome of a single fill request,
// matching the execute_trade contract every VenueAdapter must satisfy.
type TradeResult struct {
	Success        bool
	OrderID        string
	FilledQuantity float64
	AvgPrice       float64
	Venue          string
	Metadata       map[string]interface{}
}

// TradeOptions carries per-call execution hints a venue may or may not honor.
type TradeOptions struct {
	Leverage   float64
	ReduceOnly bool
}

// VenueAdapter is the narrow interface every supported venue (centralized
// perp, on-chain swap/perp, Solana perp) implements. Routing to the right
// adapter is the Router's job, not the adapter's.
type VenueAdapter interface {
	ExecuteTrade(ctx context.Context, symbol string, side model.Side, quantity float64, opts TradeOptions) (TradeResult, error)
	GetBalance(ctx context.Context) (map[string]float64, error)
	Name() string
}

// exchangeAdapter adapts the existing order-book-aware Exchange interface
// (DB-backed order/fill tracking) to the simpler VenueAdapter shape C7 wants.
type exchangeAdapter struct {
	ex   Exchange
	name string
}

// NewExchangeAdapter wraps an Exchange (BinanceExchange or MockExchange) as
// a VenueAdapter for the execution layer.
func NewExchangeAdapter(name string, ex Exchange) VenueAdapter {
	return &exchangeAdapter{ex: ex, name: name}
}

func (a *exchangeAdapter) Name() string { return a.name }

func (a *exchangeAdapter) ExecuteTrade(ctx context.Context, symbol string, side model.Side, quantity float64, opts TradeOptions) (TradeResult, error) {
	orderSide := OrderSideBuy
	if side == model.SideShort {
		orderSide = OrderSideSell
	}

	resp, err := a.ex.PlaceOrder(ctx, PlaceOrderRequest{
		Symbol:   symbol,
		Side:     orderSide,
		Type:     OrderTypeMarket,
		Quantity: quantity,
	})
	if err != nil {
		if isLeverageRejection(err) && opts.Leverage > 1 {
			log.Warn().Str("symbol", symbol).Float64("leverage", opts.Leverage).
				Msg("venue: leverage rejected, retrying at 1x")
			return a.ExecuteTrade(ctx, symbol, side, quantity, TradeOptions{Leverage: 1, ReduceOnly: opts.ReduceOnly})
		}
		return TradeResult{}, fmt.Errorf("execute trade on %s: %w", a.name, err)
	}

	order, err := a.ex.GetOrder(ctx, resp.OrderID)
	if err != nil {
		return TradeResult{}, fmt.Errorf("fetch order after place on %s: %w", a.name, err)
	}

	return TradeResult{
		Success:        order.Status == OrderStatusFilled,
		OrderID:        order.ID,
		FilledQuantity: order.FilledQty,
		AvgPrice:       order.AvgFillPrice,
		Venue:          a.name,
	}, nil
}

func (a *exchangeAdapter) GetBalance(ctx context.Context) (map[string]float64, error) {
	// Existing Exchange implementations don't expose a generic balance call;
	// callers needing balances use the account endpoints directly. This
	// satisfies the VenueAdapter contract for symmetry with on-chain adapters.
	return nil, fmt.Errorf("balance lookup not supported by %s adapter", a.name)
}

func isLeverageRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "leverage")
}
