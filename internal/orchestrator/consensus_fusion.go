package orchestrator

import (
	"math"
	"sort"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

// FusionConfig selects between the two equivalent experience-boosted
// weighting schemes for thesis fusion.
type FusionConfig struct {
	// Sigmoid switches to the stricter sigmoid-weighted variant used for
	// LLM agents: weight = sigmoid(5*(confidence*win_rate - 0.5)).
	Sigmoid bool
}

// FuseTheses implements C5's weighted fusion over a set of agent votes,
// independent of the NATS signal-aggregation path in orchestrator.go.
// HOLD wins ties; an empty vote set returns {HOLD, 0, 0}.
func FuseTheses(symbol string, votes []model.AgentVote, cfg FusionConfig) model.ConsensusResult {
	if len(votes) == 0 {
		return model.ConsensusResult{Symbol: symbol, Signal: model.SignalHold}
	}

	scores := map[model.Signal]float64{
		model.SignalHold: 0,
		model.SignalBuy:  0,
		model.SignalSell: 0,
	}
	for _, v := range votes {
		w := fusionWeight(v.Thesis.Confidence, v.WinRate, cfg)
		scores[v.Thesis.Signal] += w
	}

	winning, best := argmaxWithHoldTieBreak(scores)

	var total float64
	for _, s := range scores {
		total += s
	}

	var agreement float64
	if total > 0 {
		agreement = best / total
	}
	confidence := best / float64(len(votes))

	return model.ConsensusResult{
		Symbol:         symbol,
		Signal:         winning,
		Confidence:     confidence,
		AgreementLevel: agreement,
		Votes:          votes,
		Reasoning:      fusionReasoning(winning, votes),
	}
}

// argmaxWithHoldTieBreak picks the signal with the highest score. A tie for
// the maximum among two or more signals resolves to HOLD, per §4.5's
// tie-break rule; iterating signals in a fixed order keeps the result
// independent of Go's randomized map iteration.
func argmaxWithHoldTieBreak(scores map[model.Signal]float64) (model.Signal, float64) {
	order := []model.Signal{model.SignalHold, model.SignalBuy, model.SignalSell}
	best := scores[order[0]]
	winner := order[0]
	tied := 1
	for _, sig := range order[1:] {
		switch {
		case scores[sig] > best:
			best = scores[sig]
			winner = sig
			tied = 1
		case scores[sig] == best:
			tied++
		}
	}
	if tied > 1 {
		return model.SignalHold, scores[model.SignalHold]
	}
	return winner, best
}

func fusionWeight(confidence, winRate float64, cfg FusionConfig) float64 {
	if cfg.Sigmoid {
		return sigmoid(5 * (confidence*winRate - 0.5))
	}
	return confidence * (0.5 + 0.5*winRate)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func fusionReasoning(winning model.Signal, votes []model.AgentVote) string {
	var supporting []string
	for _, v := range votes {
		if v.Thesis.Signal == winning && v.Thesis.Reasoning != "" {
			supporting = append(supporting, v.Thesis.AgentID+": "+v.Thesis.Reasoning)
		}
	}
	sort.Strings(supporting)
	if len(supporting) == 0 {
		return "no supporting reasoning"
	}
	if len(supporting) > 3 {
		supporting = supporting[:3]
	}
	out := supporting[0]
	for _, s := range supporting[1:] {
		out += "; " + s
	}
	return out
}
