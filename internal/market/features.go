package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const snapshotTTL = 60 * time.Second

// CandleSource fetches raw OHLCV candles for a symbol; implemented by the
// venue adapter in production and by a synthetic generator for symbols in
// the designated synthetic universe.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, interval string, limit int) ([]Candlestick, error)
}

// OrderBookSource reports depth-limited order-book pressure for a symbol.
type OrderBookSource interface {
	BidPressure(ctx context.Context, symbol string) (float64, error)
	SpreadPct(ctx context.Context, symbol string) (float64, error)
}

type cacheEntry struct {
	snapshot model.MarketSnapshot
	expires  time.Time
}

// FeaturePipeline implements C1: fetch OHLCV + order book per symbol,
// compute the indicator set, and cache per-symbol results with a 60s TTL.
type FeaturePipeline struct {
	candles    CandleSource
	orderBook  OrderBookSource
	syntheticUniverse map[string]bool

	mu    sync.RWMutex
	cache map[string]cacheEntry

	group singleflight.Group
}

// NewFeaturePipeline constructs C1. syntheticSymbols names the symbols for
// which a deterministic synthetic candle series is generated on venue error
// or empty data, instead of failing the tick.
func NewFeaturePipeline(candles CandleSource, orderBook OrderBookSource, syntheticSymbols []string) *FeaturePipeline {
	universe := make(map[string]bool, len(syntheticSymbols))
	for _, s := range syntheticSymbols {
		universe[s] = true
	}
	return &FeaturePipeline{
		candles:           candles,
		orderBook:         orderBook,
		syntheticUniverse: universe,
		cache:             make(map[string]cacheEntry),
	}
}

// GetMarketAnalysis returns a Market Snapshot for symbol, using the 60s-TTL
// per-symbol cache. A cache hit returns the stored snapshot without I/O.
// Concurrent requests for the same symbol within a TTL window collapse into
// a single fetch via singleflight, per the §5 ordering guarantee.
func (f *FeaturePipeline) GetMarketAnalysis(ctx context.Context, symbol string) (model.MarketSnapshot, error) {
	f.mu.RLock()
	entry, ok := f.cache[symbol]
	f.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.snapshot, nil
	}

	v, err, _ := f.group.Do(symbol, func() (interface{}, error) {
		snap, err := f.computeSnapshot(ctx, symbol)
		if err != nil {
			return model.MarketSnapshot{}, err
		}
		f.mu.Lock()
		f.cache[symbol] = cacheEntry{snapshot: snap, expires: time.Now().Add(snapshotTTL)}
		f.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return model.MarketSnapshot{}, err
	}
	return v.(model.MarketSnapshot), nil
}

func (f *FeaturePipeline) computeSnapshot(ctx context.Context, symbol string) (model.MarketSnapshot, error) {
	candles, err := f.candles.GetCandles(ctx, symbol, "1h", 100)
	if err != nil || len(candles) == 0 {
		if f.syntheticUniverse[symbol] {
			log.Warn().Str("symbol", symbol).Err(err).Msg("venue data unavailable, generating synthetic candles")
			candles = syntheticCandles(symbol, 100)
		} else {
			return model.MarketSnapshot{}, fmt.Errorf("fetch candles for %s: %w", symbol, err)
		}
	}

	closes := closesOf(candles)
	highs := highsOf(candles)
	lows := lowsOf(candles)

	last := candles[len(candles)-1]
	snap := model.MarketSnapshot{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Price:     last.Close,
		Volume24h: sumVolume(candles),
		High24h:   maxOf(highs),
		Low24h:    minOf(lows),
	}
	if first := candles[0].Close; first != 0 {
		snap.ChangePct24h = (last.Close - first) / first * 100
	}

	snap.RSI = rsi(closes, 14)
	snap.MACD = macd(closes, 12, 26, 9)
	snap.BB = bollinger(closes, 20)
	snap.Stoch = stochastic(highs, lows, closes, 14, 3)
	snap.CCI = cci(highs, lows, closes, 20)
	snap.OBV = obv(closes, volumesOf(candles))
	snap.ADX = adx(highs, lows, closes, 14)
	snap.ATRPct = atrPct(highs, lows, closes, 14, last.Close)
	snap.FibLevels = fibLevels(highs, lows)

	ema20 := emaLast(closes, 20)
	ema50 := emaLast(closes, 50)

	if snap.Price > ema20 {
		snap.Trend = model.TrendBullish
	} else if snap.Price < ema20 {
		snap.Trend = model.TrendBearish
	} else {
		snap.Trend = model.TrendNeutral
	}

	snap.VolatilityState = volatilityState(closes, snap.ATRPct)
	snap.WyckoffPhase = wyckoffPhase(snap.Price, ema50, snap.RSI, snap.VolatilityState)
	snap.VSOP = vsop(candles, snap.RSI)

	if f.orderBook != nil {
		if bp, err := f.orderBook.BidPressure(ctx, symbol); err == nil {
			snap.BidPressure = bp
		}
		if sp, err := f.orderBook.SpreadPct(ctx, symbol); err == nil {
			snap.SpreadPct = sp
		}
	}

	return snap, nil
}

// syntheticCandles deterministically generates a plausible candle series
// seeded by (floor(now/60), hash(symbol)) so repeated calls within the same
// 60s window for the same symbol are identical.
func syntheticCandles(symbol string, n int) []Candlestick {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	seed := int64(time.Now().Unix()/60) ^ int64(h.Sum64())
	r := newDeterministicRand(seed)

	price := 100.0 + float64(seed%5000)/100.0
	candles := make([]Candlestick, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		drift := (r.next() - 0.5) * price * 0.01
		open := price
		close := price + drift
		high := math.Max(open, close) + math.Abs(drift)*0.3
		low := math.Min(open, close) - math.Abs(drift)*0.3
		vol := 1000 + r.next()*5000
		candles = append(candles, Candlestick{
			Timestamp: now.Add(time.Duration(i-n) * time.Hour),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    vol,
		})
		price = close
	}
	return candles
}

// deterministicRand is a tiny xorshift64 PRNG so synthetic candle generation
// needs no external randomness source and is reproducible from a seed.
type deterministicRand struct{ state uint64 }

func newDeterministicRand(seed int64) *deterministicRand {
	s := uint64(seed)
	if s == 0 {
		s = 0x9e3779b97f4a7c15
	}
	return &deterministicRand{state: s}
}

func (d *deterministicRand) next() float64 {
	d.state ^= d.state << 13
	d.state ^= d.state >> 7
	d.state ^= d.state << 17
	return float64(d.state%1_000_000) / 1_000_000.0
}

func closesOf(c []Candlestick) []float64 {
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = v.Close
	}
	return out
}

func highsOf(c []Candlestick) []float64 {
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = v.High
	}
	return out
}

func lowsOf(c []Candlestick) []float64 {
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = v.Low
	}
	return out
}

func volumesOf(c []Candlestick) []float64 {
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = v.Volume
	}
	return out
}

func sumVolume(c []Candlestick) float64 {
	var total float64
	for _, v := range c {
		total += v.Volume
	}
	return total
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v {
		if x < m {
			m = x
		}
	}
	return m
}

func toChan(v []float64) chan float64 {
	ch := make(chan float64, len(v))
	for _, x := range v {
		ch <- x
	}
	close(ch)
	return ch
}

func drain(ch chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

// rsi computes RSI(period) via cinar/indicator's Wilder-smoothed momentum.Rsi.
func rsi(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}
	ind := momentum.NewRsiWithPeriod[float64](period)
	vals := drain(ind.Compute(toChan(closes)))
	if len(vals) == 0 {
		return 50
	}
	return vals[len(vals)-1]
}

// emaLast returns the most recent EMA(period) value.
func emaLast(closes []float64, period int) float64 {
	if len(closes) < period {
		period = len(closes)
	}
	if period == 0 {
		return 0
	}
	ind := trend.NewEmaWithPeriod[float64](period)
	vals := drain(ind.Compute(toChan(closes)))
	if len(vals) == 0 {
		return closes[len(closes)-1]
	}
	return vals[len(vals)-1]
}

// macd computes MACD(fast,slow,signal).
func macd(closes []float64, fast, slow, signal int) model.MACD {
	if len(closes) < slow+signal {
		return model.MACD{}
	}
	ind := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdCh, sigCh := ind.Compute(toChan(closes))
	var macdVals, sigVals []float64
	for {
		m, mok := <-macdCh
		s, sok := <-sigCh
		if !mok || !sok {
			break
		}
		macdVals = append(macdVals, m)
		sigVals = append(sigVals, s)
	}
	if len(macdVals) == 0 {
		return model.MACD{}
	}
	m := macdVals[len(macdVals)-1]
	s := sigVals[len(sigVals)-1]
	return model.MACD{Value: m, Signal: s, Hist: m - s}
}

// bollinger computes Bollinger(period, 2).
func bollinger(closes []float64, period int) model.BollingerBands {
	if len(closes) < period {
		return model.BollingerBands{}
	}
	ind := volatility.NewBollingerBandsWithPeriod[float64](period)
	lowerCh, midCh, upperCh := ind.Compute(toChan(closes))
	var lower, mid, upper []float64
	for {
		l, lok := <-lowerCh
		m, mok := <-midCh
		u, uok := <-upperCh
		if !lok || !mok || !uok {
			break
		}
		lower = append(lower, l)
		mid = append(mid, m)
		upper = append(upper, u)
	}
	if len(mid) == 0 {
		return model.BollingerBands{}
	}
	return model.BollingerBands{
		Upper: upper[len(upper)-1],
		Mid:   mid[len(mid)-1],
		Lower: lower[len(lower)-1],
	}
}

// stochastic computes %K(period)/%D(smooth) by hand: cinar/indicator v2 does
// not expose a bare stochastic oscillator with a configurable %D smoothing.
func stochastic(highs, lows, closes []float64, period, smooth int) model.Stochastic {
	n := len(closes)
	if n < period {
		return model.Stochastic{K: 50, D: 50}
	}
	kValues := make([]float64, 0, n-period+1)
	for i := period - 1; i < n; i++ {
		hh := maxOf(highs[i-period+1 : i+1])
		ll := minOf(lows[i-period+1 : i+1])
		k := 50.0
		if hh != ll {
			k = (closes[i] - ll) / (hh - ll) * 100
		}
		kValues = append(kValues, k)
	}
	k := kValues[len(kValues)-1]
	d := k
	if len(kValues) >= smooth {
		d = average(kValues[len(kValues)-smooth:])
	}
	return model.Stochastic{K: k, D: d}
}

// cci computes CCI(period) = (TP - SMA(TP)) / (0.015 * MeanDeviation).
func cci(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if n < period {
		return 0
	}
	tp := make([]float64, n)
	for i := range closes {
		tp[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	window := tp[n-period:]
	sma := average(window)
	var meanDev float64
	for _, v := range window {
		meanDev += math.Abs(v - sma)
	}
	meanDev /= float64(period)
	if meanDev == 0 {
		return 0
	}
	return (tp[n-1] - sma) / (0.015 * meanDev)
}

// obv computes the cumulative sum of signed volume by close-over-prev-close.
func obv(closes, volumes []float64) float64 {
	var o float64
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			o += volumes[i]
		case closes[i] < closes[i-1]:
			o -= volumes[i]
		}
	}
	return o
}

// adx computes ADX(period) via Wilder-smoothed +DI/-DI/DX, matching the
// hand-rolled approach cinar/indicator v2 lacks natively.
func adx(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if n < period*2 {
		return 0
	}
	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	smoothTR := wilderSmooth(tr, period)
	smoothPlus := wilderSmooth(plusDM, period)
	smoothMinus := wilderSmooth(minusDM, period)

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlus[i] / smoothTR[i]
		minusDI := 100 * smoothMinus[i] / smoothTR[i]
		sum := plusDI + minusDI
		if sum != 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
		}
	}
	adxValues := wilderSmooth(dx, period)
	return adxValues[n-1]
}

func wilderSmooth(data []float64, period int) []float64 {
	n := len(data)
	result := make([]float64, n)
	if n < period {
		return result
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)
	for i := period; i < n; i++ {
		result[i] = (result[i-1]*float64(period-1) + data[i]) / float64(period)
	}
	return result
}

// atrPct computes ATR(period) as a percentage of the latest close.
func atrPct(highs, lows, closes []float64, period int, lastClose float64) float64 {
	n := len(closes)
	if n < 2 || lastClose == 0 {
		return 0
	}
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
	}
	window := period
	if window > n-1 {
		window = n - 1
	}
	if window <= 0 {
		return 0
	}
	atr := average(tr[n-window:])
	return atr / lastClose * 100
}

// fibLevels returns the standard retracement levels between the window's
// high and low over up to the last 100 candles.
func fibLevels(highs, lows []float64) map[string]float64 {
	hi := maxOf(highs)
	lo := minOf(lows)
	diff := hi - lo
	return map[string]float64{
		"0.0":   hi,
		"0.236": hi - 0.236*diff,
		"0.382": hi - 0.382*diff,
		"0.5":   hi - 0.5*diff,
		"0.618": hi - 0.618*diff,
		"0.786": hi - 0.786*diff,
		"1.0":   lo,
	}
}

// volatilityState classifies realized volatility against its own 50-period
// average, feeding wyckoffPhase's "volatility vs 50-period avg" rule.
func volatilityState(closes []float64, atrPct float64) model.VolatilityState {
	n := len(closes)
	window := 50
	if window > n {
		window = n
	}
	if window < 2 {
		return model.VolatilityLow
	}
	var returns []float64
	for i := n - window + 1; i < n; i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	avgVol := stddev(returns) * 100
	if atrPct > avgVol*1.5 {
		return model.VolatilityHigh
	}
	return model.VolatilityLow
}

// wyckoffPhase applies the rule set on (close vs EMA50, RSI, volatility vs
// 50-period avg).
func wyckoffPhase(price, ema50, rsiVal float64, vol model.VolatilityState) model.WyckoffPhase {
	above := price > ema50
	switch {
	case above && rsiVal < 55 && vol == model.VolatilityLow:
		return model.WyckoffAccumulation
	case above && rsiVal >= 55:
		return model.WyckoffMarkup
	case !above && rsiVal > 45 && vol == model.VolatilityLow:
		return model.WyckoffDistribution
	case !above && rsiVal <= 45:
		return model.WyckoffMarkdown
	default:
		return model.WyckoffNeutral
	}
}

// vsop is the Volume-Sentiment-Order-Pressure composite: mean of a
// volume-trend z-score mapped to [0,100], a trend score, and RSI, divided by
// three.
func vsop(candles []Candlestick, rsiVal float64) float64 {
	volumes := volumesOf(candles)
	n := len(volumes)
	if n < 2 {
		return rsiVal / 3
	}
	z := zScore(volumes[len(volumes)-1], volumes)
	volScore := clampFloat(50+z*15, 0, 100)

	closes := closesOf(candles)
	var trendScore float64
	if closes[0] != 0 {
		pctChange := (closes[n-1] - closes[0]) / closes[0]
		trendScore = clampFloat(50+pctChange*500, 0, 100)
	}
	return (volScore + trendScore + rsiVal) / 3
}

func zScore(x float64, population []float64) float64 {
	mean := average(population)
	sd := stddev(population)
	if sd == 0 {
		return 0
	}
	return (x - mean) / sd
}

func average(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func stddev(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	mean := average(v)
	var sumSq float64
	for _, x := range v {
		sumSq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sumSq / float64(len(v)-1))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
