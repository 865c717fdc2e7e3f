package market

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const defaultScanConcurrency = 8
const perSymbolScanTimeout = 60 * time.Second
const opportunityThreshold = 0.10

// Scanner implements C3: periodic parallel scan of the symbol universe,
// producing a ranked list of opportunities from a composite score.
type Scanner struct {
	store       *Store
	universe    []string
	concurrency int64
}

// NewScanner constructs C3 over C2 and a fixed symbol universe.
func NewScanner(store *Store, universe []string, concurrency int) *Scanner {
	if concurrency <= 0 {
		concurrency = defaultScanConcurrency
	}
	return &Scanner{store: store, universe: universe, concurrency: int64(concurrency)}
}

// Scan runs analysis on the full symbol universe bounded by a concurrency
// semaphore and a 60s per-symbol timeout, returning the top-N opportunities
// by score descending. A single symbol's failure is swallowed; the scanner
// never propagates it.
func (s *Scanner) Scan(ctx context.Context, maxResults int) []model.Opportunity {
	sem := semaphore.NewWeighted(s.concurrency)
	var mu sync.Mutex
	var opportunities []model.Opportunity
	var wg sync.WaitGroup

	for _, symbol := range s.universe {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			defer sem.Release(1)

			symCtx, cancel := context.WithTimeout(ctx, perSymbolScanTimeout)
			defer cancel()

			opp, ok := s.analyzeSymbol(symCtx, sym)
			if !ok {
				return
			}
			mu.Lock()
			opportunities = append(opportunities, opp)
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	sort.Slice(opportunities, func(i, j int) bool { return opportunities[i].Score > opportunities[j].Score })
	if maxResults > 0 && len(opportunities) > maxResults {
		opportunities = opportunities[:maxResults]
	}
	return opportunities
}

func (s *Scanner) analyzeSymbol(ctx context.Context, symbol string) (model.Opportunity, bool) {
	snap, err := s.store.Snapshot(ctx, symbol)
	if err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("scanner: analysis failed, skipping symbol")
		return model.Opportunity{}, false
	}
	return CompositeOpportunity(snap), !isZeroOpportunity(snap)
}

func isZeroOpportunity(snap model.MarketSnapshot) bool {
	return math.Abs(compositeScore(snap)) < opportunityThreshold
}

// CompositeOpportunity applies the §4.3 composite scoring formula to a
// snapshot and returns the resulting Opportunity (valid only if the caller
// also checks the composite magnitude meets the 0.10 threshold — callers
// within this package use isZeroOpportunity for that; external callers
// should use Scanner.Scan which already filters).
func CompositeOpportunity(snap model.MarketSnapshot) model.Opportunity {
	composite := compositeScore(snap)
	signal := model.SignalSell
	if composite > 0 {
		signal = model.SignalBuy
	}
	confidence := math.Min(0.5+math.Abs(composite), 0.95)
	return model.Opportunity{
		Symbol:     snap.Symbol,
		Signal:     signal,
		Confidence: confidence,
		Score:      math.Abs(composite),
		Price:      snap.Price,
		Reason:     "composite_score",
	}
}

// compositeScore implements:
//
//	score = 0.25*s_rsi + 0.25*s_macd + 0.20*s_trend + 0.15*s_stoch + 0.15*s_ob
func compositeScore(snap model.MarketSnapshot) float64 {
	return 0.25*sRSI(snap.RSI) +
		0.25*sMACD(snap.MACD.Hist) +
		0.20*sTrend(snap.Trend) +
		0.15*sStoch(snap.Stoch.K) +
		0.15*sOrderBook(snap.BidPressure)
}

func sRSI(rsi float64) float64 {
	switch {
	case rsi < 30:
		return 0.8 + (30-rsi)/30*0.2
	case rsi < 40:
		return 0.4
	case rsi > 70:
		return -0.8 - (rsi-70)/30*0.2
	case rsi > 60:
		return -0.4
	default:
		return 0
	}
}

func sMACD(hist float64) float64 {
	sign := 1.0
	if hist < 0 {
		sign = -1.0
	} else if hist == 0 {
		return 0
	}
	return sign * math.Min(math.Abs(hist)/10, 1)
}

func sTrend(trend model.Trend) float64 {
	switch trend {
	case model.TrendBullish:
		return 0.6
	case model.TrendBearish:
		return -0.6
	default:
		return 0
	}
}

func sStoch(k float64) float64 {
	switch {
	case k < 20:
		return 0.7
	case k < 30:
		return 0.3
	case k > 80:
		return -0.7
	case k > 70:
		return -0.3
	default:
		return 0
	}
}

func sOrderBook(bidPressure float64) float64 {
	switch {
	case bidPressure > 0.6:
		return 0.5
	case bidPressure < 0.4 && bidPressure > 0:
		return -0.5
	default:
		return 0
	}
}
