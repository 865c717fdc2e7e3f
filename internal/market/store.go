package market

import (
	"context"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

// Indicator is a tagged variant over the different shapes an indicator value
// can take, replacing the dynamically-typed indicator dictionaries the
// source system used.
type Indicator struct {
	Kind  string // "scalar", "band", "stochastic", "macd", "phase"
	Scalar float64
	Band   model.BollingerBands
	Stoch  model.Stochastic
	MACD   model.MACD
	Phase  model.WyckoffPhase
}

// Provider supplies one or more named indicators not derived from C1, such
// as sentiment scores or order-book pressure.
type Provider interface {
	Names() []string
	Get(ctx context.Context, name, symbol string) (Indicator, bool)
}

// Store is C2: a single narrow interface dispatching to C1 for derived
// indicators or to pluggable providers keyed by name. Unknown names yield
// (Indicator{}, false), never an error.
type Store struct {
	pipeline  *FeaturePipeline
	providers map[string]Provider
	names     []string
}

// NewStore constructs C2 over a feature pipeline and an optional set of
// pluggable providers (sentiment, order-book pressure, ...).
func NewStore(pipeline *FeaturePipeline, providers ...Provider) *Store {
	s := &Store{
		pipeline:  pipeline,
		providers: make(map[string]Provider),
		names: []string{
			"price", "volume", "rsi", "macd", "macd_signal", "macd_hist",
			"bb_upper", "bb_mid", "bb_lower", "stoch_k", "stoch_d", "cci",
			"obv", "adx", "atr_pct", "trend", "wyckoff_phase", "vsop",
			"bid_pressure", "spread_pct",
		},
	}
	for _, p := range providers {
		for _, n := range p.Names() {
			s.providers[n] = p
			s.names = append(s.names, n)
		}
	}
	return s
}

// Available returns every indicator name this store can resolve.
func (s *Store) Available() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Get resolves a named indicator for a symbol. Unknown names return
// (Indicator{}, false) rather than an error, per §4.2.
func (s *Store) Get(ctx context.Context, name, symbol string) (Indicator, bool) {
	if p, ok := s.providers[name]; ok {
		return p.Get(ctx, name, symbol)
	}

	snap, err := s.pipeline.GetMarketAnalysis(ctx, symbol)
	if err != nil {
		return Indicator{}, false
	}

	switch name {
	case "price":
		return Indicator{Kind: "scalar", Scalar: snap.Price}, true
	case "volume":
		return Indicator{Kind: "scalar", Scalar: snap.Volume24h}, true
	case "rsi":
		return Indicator{Kind: "scalar", Scalar: snap.RSI}, true
	case "macd":
		return Indicator{Kind: "macd", MACD: snap.MACD}, true
	case "macd_signal":
		return Indicator{Kind: "scalar", Scalar: snap.MACD.Signal}, true
	case "macd_hist":
		return Indicator{Kind: "scalar", Scalar: snap.MACD.Hist}, true
	case "bb_upper":
		return Indicator{Kind: "scalar", Scalar: snap.BB.Upper}, true
	case "bb_mid":
		return Indicator{Kind: "scalar", Scalar: snap.BB.Mid}, true
	case "bb_lower":
		return Indicator{Kind: "scalar", Scalar: snap.BB.Lower}, true
	case "stoch_k":
		return Indicator{Kind: "scalar", Scalar: snap.Stoch.K}, true
	case "stoch_d":
		return Indicator{Kind: "scalar", Scalar: snap.Stoch.D}, true
	case "cci":
		return Indicator{Kind: "scalar", Scalar: snap.CCI}, true
	case "obv":
		return Indicator{Kind: "scalar", Scalar: snap.OBV}, true
	case "adx":
		return Indicator{Kind: "scalar", Scalar: snap.ADX}, true
	case "atr_pct":
		return Indicator{Kind: "scalar", Scalar: snap.ATRPct}, true
	case "wyckoff_phase":
		return Indicator{Kind: "phase", Phase: snap.WyckoffPhase}, true
	case "vsop":
		return Indicator{Kind: "scalar", Scalar: snap.VSOP}, true
	case "bid_pressure":
		return Indicator{Kind: "scalar", Scalar: snap.BidPressure}, true
	case "spread_pct":
		return Indicator{Kind: "scalar", Scalar: snap.SpreadPct}, true
	default:
		return Indicator{}, false
	}
}

// Snapshot is a convenience passthrough to the underlying pipeline for
// callers (the scanner, position manager) that want the full vector rather
// than one named value at a time.
func (s *Store) Snapshot(ctx context.Context, symbol string) (model.MarketSnapshot, error) {
	return s.pipeline.GetMarketAnalysis(ctx, symbol)
}
