package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ajitpratap0/cryptofunk/internal/market"
)

const orderBookDepth = 20

// MarketDataSource adapts a *BinanceExchange's REST client into C1's
// market.CandleSource and market.OrderBookSource, so FeaturePipeline can
// compute indicators from the same venue connection orders are placed
// through rather than a second, independently-configured client.
type MarketDataSource struct {
	ex *BinanceExchange
}

// NewMarketDataSource wraps an existing exchange client for feature
// computation. ex must already be constructed via NewBinanceExchange.
func NewMarketDataSource(ex *BinanceExchange) *MarketDataSource {
	return &MarketDataSource{ex: ex}
}

// GetCandles satisfies market.CandleSource via the venue's kline endpoint.
func (m *MarketDataSource) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candlestick, error) {
	klines, err := m.ex.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get candles for %s: %w", symbol, err)
	}

	out := make([]market.Candlestick, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		out = append(out, market.Candlestick{
			Timestamp: time.UnixMilli(k.OpenTime),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}
	return out, nil
}

// BidPressure satisfies market.OrderBookSource as the bid side's share of
// total depth within the top orderBookDepth levels, per spec's
// bid_pressure ∈ [0,1] definition.
func (m *MarketDataSource) BidPressure(ctx context.Context, symbol string) (float64, error) {
	book, err := m.ex.client.NewDepthService().Symbol(symbol).Limit(orderBookDepth).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("get order book for %s: %w", symbol, err)
	}

	var bidVol, askVol float64
	for _, b := range book.Bids {
		qty, _ := strconv.ParseFloat(b.Quantity, 64)
		bidVol += qty
	}
	for _, a := range book.Asks {
		qty, _ := strconv.ParseFloat(a.Quantity, 64)
		askVol += qty
	}
	total := bidVol + askVol
	if total == 0 {
		return 0.5, nil
	}
	return bidVol / total, nil
}

// SpreadPct satisfies market.OrderBookSource as the best bid/ask spread as
// a fraction of the mid price.
func (m *MarketDataSource) SpreadPct(ctx context.Context, symbol string) (float64, error) {
	book, err := m.ex.client.NewDepthService().Symbol(symbol).Limit(5).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("get order book for %s: %w", symbol, err)
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0, nil
	}
	bestBid, _ := strconv.ParseFloat(book.Bids[0].Price, 64)
	bestAsk, _ := strconv.ParseFloat(book.Asks[0].Price, 64)
	mid := (bestBid + bestAsk) / 2
	if mid == 0 {
		return 0, nil
	}
	return (bestAsk - bestBid) / mid, nil
}
