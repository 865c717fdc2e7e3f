package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCacheRecordAndCurrentPrice(t *testing.T) {
	c := NewPriceCache()
	c.record("BTC-USDT", 65000, 0.5)
	price, err := c.CurrentPrice(context.Background(), "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, 65000.0, price)
}

func TestPriceCacheCurrentPriceMissingSymbol(t *testing.T) {
	c := NewPriceCache()
	_, err := c.CurrentPrice(context.Background(), "BTC-USDT")
	assert.Error(t, err)
}

func TestPriceCacheBucketWeightsNormalizes(t *testing.T) {
	c := NewPriceCache()
	hour := time.Now().UTC().Hour()
	c.volume["BTC-USDT"] = &[24]float64{}
	c.volume["BTC-USDT"][hour] = 3
	weights, err := c.BucketWeights(context.Background(), "BTC-USDT")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, weights[hour], 0.0001)
}

func TestPriceCacheBucketWeightsMissingSymbol(t *testing.T) {
	c := NewPriceCache()
	_, err := c.BucketWeights(context.Background(), "BTC-USDT")
	assert.Error(t, err)
}

func TestParseFloatOrZero(t *testing.T) {
	v, err := parseFloatOrZero("123.45")
	require.NoError(t, err)
	assert.InDelta(t, 123.45, v, 0.0001)

	_, err = parseFloatOrZero("not-a-number")
	assert.Error(t, err)
}
