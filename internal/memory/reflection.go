package memory

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/cryptofunk/internal/llm"
	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const givebackRatio = 2.0 // max_profit more than double the final pnl counts as "gave back too much"

type reflectionEnvelope struct {
	WhatWorked string `json:"what_worked"`
	WhatFailed string `json:"what_failed"`
	Lesson     string `json:"lesson"`
}

// GenerateReflection fills an episode's WhatWorked/WhatFailed/Lesson fields,
// preferring an LLM-authored reflection and falling back to a rule-based
// template when the client is nil or the call fails.
func GenerateReflection(ctx context.Context, client llm.LLMClient, ep model.Episode) model.Episode {
	if client != nil {
		if filled, ok := reflectViaLLM(ctx, client, ep); ok {
			return filled
		}
	}
	return reflectRuleBased(ep)
}

func reflectViaLLM(ctx context.Context, client llm.LLMClient, ep model.Episode) (model.Episode, bool) {
	prompt := fmt.Sprintf(
		"Trade reflection. Symbol=%s signal=%s entry=%.4f reasoning=%q outcome_success=%v pnl_pct=%.4f max_profit=%.4f.\n"+
			"Respond ONLY with JSON: {\"what_worked\": \"...\", \"what_failed\": \"...\", \"lesson\": \"...\"}",
		ep.Symbol, ep.Signal, ep.EntryPrice, ep.Reasoning, outcomeSuccess(ep), outcomePnLPct(ep), outcomeMaxProfit(ep),
	)
	content, err := client.CompleteWithSystem(ctx, "You write terse, concrete trading post-mortems.", prompt)
	if err != nil {
		return ep, false
	}

	var env reflectionEnvelope
	if parseErr := client.ParseJSONResponse(content, &env); parseErr != nil {
		return ep, false
	}
	if env.WhatWorked == "" || env.WhatFailed == "" || env.Lesson == "" {
		return ep, false
	}

	ep.WhatWorked = env.WhatWorked
	ep.WhatFailed = env.WhatFailed
	ep.Lesson = env.Lesson
	return ep, true
}

// reflectRuleBased fills in the three exact fallback sentence templates
// when the LLM path is unavailable.
func reflectRuleBased(ep model.Episode) model.Episode {
	verb := "Buying"
	if ep.Signal == model.SignalSell {
		verb = "Shorting"
	}

	if ep.Outcome == nil {
		ep.WhatWorked = fmt.Sprintf("%s %s at this level can work in this regime.", verb, ep.Symbol)
		ep.WhatFailed = "Outcome not yet recorded."
		ep.Lesson = "Review once the position closes."
		return ep
	}

	if ep.Outcome.Success {
		ep.WhatWorked = fmt.Sprintf("%s %s at this level can work in this regime.", verb, ep.Symbol)
		if ep.Outcome.MaxProfit > 0 && ep.Outcome.MaxProfit > givebackRatio*ep.Outcome.PnL && ep.Outcome.PnL > 0 {
			ep.WhatFailed = "Gave back too much profit before exiting."
			ep.Lesson = "Tighten the trailing stop once a position is well in profit."
		} else {
			ep.WhatFailed = "No significant issues with this exit."
			ep.Lesson = "Repeat this entry pattern when the same setup recurs."
		}
		return ep
	}

	ep.WhatWorked = "Entry thesis was directionally reasonable."
	ep.WhatFailed = fmt.Sprintf("Be cautious with %s — consider wider stops or smaller size.", ep.Symbol)
	ep.Lesson = "Revisit stop placement and position sizing for this setup."
	return ep
}

func outcomeSuccess(ep model.Episode) bool {
	if ep.Outcome == nil {
		return false
	}
	return ep.Outcome.Success
}

func outcomePnLPct(ep model.Episode) float64 {
	if ep.Outcome == nil {
		return 0
	}
	return ep.Outcome.PnLPct
}

func outcomeMaxProfit(ep model.Episode) float64 {
	if ep.Outcome == nil {
		return 0
	}
	return ep.Outcome.MaxProfit
}
