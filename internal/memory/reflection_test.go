package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

func TestGenerateReflectionNilClientUsesRuleBased(t *testing.T) {
	ep := model.Episode{
		Symbol: "BTC-USDT", Signal: model.SignalBuy,
		Outcome: &model.TradeOutcome{Success: true, PnL: 50, MaxProfit: 60},
	}
	out := GenerateReflection(context.Background(), nil, ep)
	require.True(t, out.HasReflection())
	assert.Contains(t, out.WhatWorked, "Buying")
	assert.Contains(t, out.WhatWorked, "BTC-USDT")
}

func TestReflectRuleBasedSuccessTemplate(t *testing.T) {
	ep := model.Episode{
		Symbol: "ETH-USDT", Signal: model.SignalSell,
		Outcome: &model.TradeOutcome{Success: true, PnL: 100, MaxProfit: 110},
	}
	out := reflectRuleBased(ep)
	assert.Contains(t, out.WhatWorked, "Shorting")
	assert.Contains(t, out.WhatWorked, "ETH-USDT")
	assert.NotContains(t, out.WhatFailed, "too much")
}

func TestReflectRuleBasedGaveBackProfitTemplate(t *testing.T) {
	ep := model.Episode{
		Symbol: "BTC-USDT", Signal: model.SignalBuy,
		Outcome: &model.TradeOutcome{Success: true, PnL: 20, MaxProfit: 100},
	}
	out := reflectRuleBased(ep)
	assert.Contains(t, out.WhatFailed, "too much profit")
}

func TestReflectRuleBasedLossTemplate(t *testing.T) {
	ep := model.Episode{
		Symbol: "SOL-USDT", Signal: model.SignalBuy,
		Outcome: &model.TradeOutcome{Success: false, PnL: -30},
	}
	out := reflectRuleBased(ep)
	assert.Contains(t, out.WhatFailed, "wider stops or smaller size")
	assert.Contains(t, out.WhatFailed, "SOL-USDT")
}

func TestReflectRuleBasedAllOrNothing(t *testing.T) {
	ep := model.Episode{Symbol: "BTC-USDT", Signal: model.SignalBuy, Outcome: &model.TradeOutcome{Success: false}}
	out := reflectRuleBased(ep)
	assert.True(t, out.HasReflection())
}
