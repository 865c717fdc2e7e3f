package algo

import "github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"

// MarketFeatures is the feature vector the ADAPTIVE algorithm builds before
// picking a concrete execution strategy.
type MarketFeatures struct {
	Urgency       float64
	SizeFraction  float64 // order size as a fraction of average daily volume
	Volatility    float64
}

// SelectAlgorithm implements the heuristic selector behind ADAPTIVE. A
// trained model can be swapped in later behind the same signature.
func SelectAlgorithm(f MarketFeatures) model.Algo {
	switch {
	case f.Urgency > 0.8:
		return model.AlgoTWAP
	case f.SizeFraction > 0.05 && f.Volatility < 0.02:
		return model.AlgoIceberg
	case f.Volatility > 0.05:
		return model.AlgoSniper
	default:
		return model.AlgoVWAP
	}
}

// adaptiveFeatures derives a MarketFeatures vector from an ExecutionOrder's
// own fields and metadata, so ADAPTIVE can be driven without a separate
// market-data round trip when the caller already has the numbers.
func adaptiveFeatures(order model.ExecutionOrder) MarketFeatures {
	f := MarketFeatures{
		Urgency: urgencyScore(order.Urgency),
	}
	if v, ok := order.Metadata["size_fraction"].(float64); ok {
		f.SizeFraction = v
	}
	if v, ok := order.Metadata["volatility"].(float64); ok {
		f.Volatility = v
	}
	return f
}

func urgencyScore(u model.Urgency) float64 {
	switch u {
	case model.UrgencyCritical:
		return 1.0
	case model.UrgencyHigh:
		return 0.85
	case model.UrgencyNormal:
		return 0.5
	case model.UrgencyLow:
		return 0.2
	default:
		return 0.5
	}
}
