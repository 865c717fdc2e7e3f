package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/alerts"
)

// PriceCache keeps an in-memory last-trade price per symbol fed by a
// WebSocket trade stream, and a rolling 24-bucket (hourly) volume profile
// used by VWAP slicing. It implements algo.PriceSource and
// algo.VolumeProfile without importing that package, so algo stays free of
// an exchange dependency.
type PriceCache struct {
	mu      sync.RWMutex
	prices  map[string]float64
	volume  map[string]*[24]float64
	stopped map[string]chan struct{}
}

// NewPriceCache constructs an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		prices:  make(map[string]float64),
		volume:  make(map[string]*[24]float64),
		stopped: make(map[string]chan struct{}),
	}
}

// CurrentPrice satisfies algo.PriceSource.
func (c *PriceCache) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no cached price for %s", symbol)
	}
	return price, nil
}

// BucketWeights satisfies algo.VolumeProfile, normalizing the rolling
// hourly volume buckets to weights summing to 1.
func (c *PriceCache) BucketWeights(ctx context.Context, symbol string) ([24]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	buckets, ok := c.volume[symbol]
	if !ok {
		return [24]float64{}, fmt.Errorf("no volume profile for %s", symbol)
	}

	var total float64
	for _, v := range buckets {
		total += v
	}
	if total == 0 {
		return [24]float64{}, fmt.Errorf("empty volume profile for %s", symbol)
	}

	var weights [24]float64
	for i, v := range buckets {
		weights[i] = v / total
	}
	return weights, nil
}

// Subscribe opens a trade WebSocket for symbol and feeds both the last
// price and the hourly volume buckets until the context is cancelled.
// Grounded on binance.go's runUserDataStream connect/reconnect shape.
func (c *PriceCache) Subscribe(ctx context.Context, symbol string) error {
	c.mu.Lock()
	if _, already := c.stopped[symbol]; already {
		c.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	c.stopped[symbol] = stop
	c.volume[symbol] = &[24]float64{}
	c.mu.Unlock()

	wsHandler := func(event *binance.WsTradeEvent) {
		price, err := parseFloatOrZero(event.Price)
		if err != nil {
			return
		}
		qty, err := parseFloatOrZero(event.Quantity)
		if err != nil {
			return
		}
		c.record(symbol, price, qty)
	}
	errHandler := func(err error) {
		log.Error().Err(err).Str("symbol", symbol).Msg("price stream: websocket error")
		alerts.AlertConnectionError(context.Background(), "Binance trade stream", err)
	}

	doneC, stopC, err := binance.WsTradeServe(symbol, wsHandler, errHandler)
	if err != nil {
		return fmt.Errorf("subscribe trade stream for %s: %w", symbol, err)
	}

	go func() {
		select {
		case <-stop:
			stopC <- struct{}{}
		case <-ctx.Done():
			stopC <- struct{}{}
		case <-doneC:
		}
	}()
	return nil
}

// Unsubscribe stops a symbol's trade stream.
func (c *PriceCache) Unsubscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stop, ok := c.stopped[symbol]; ok {
		close(stop)
		delete(c.stopped, symbol)
	}
}

func (c *PriceCache) record(symbol string, price, qty float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
	buckets, ok := c.volume[symbol]
	if !ok {
		buckets = &[24]float64{}
		c.volume[symbol] = buckets
	}
	buckets[time.Now().UTC().Hour()] += qty
}

func parseFloatOrZero(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
