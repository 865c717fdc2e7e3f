package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

func TestRecallSimilarRanksByJaccard(t *testing.T) {
	now := time.Now()
	query := model.Episode{EpisodeID: "q", Symbol: "BTC-USDT", Signal: model.SignalBuy, Reasoning: "rsi oversold bounce", Timestamp: now}
	candidates := []model.Episode{
		{EpisodeID: "a", Symbol: "BTC-USDT", Signal: model.SignalBuy, Reasoning: "rsi oversold bounce setup", Timestamp: now},
		{EpisodeID: "b", Symbol: "ETH-USDT", Signal: model.SignalSell, Reasoning: "breakdown on high volume", Timestamp: now},
	}
	ranked := RecallSimilar(query, candidates, RecallOptions{Now: now})
	assert.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Episode.EpisodeID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRecallSimilarExcludesSelf(t *testing.T) {
	now := time.Now()
	query := model.Episode{EpisodeID: "q", Symbol: "BTC-USDT", Reasoning: "breakout"}
	candidates := []model.Episode{query}
	ranked := RecallSimilar(query, candidates, RecallOptions{Now: now})
	assert.Empty(t, ranked)
}

func TestRecallSimilarProfitableBoost(t *testing.T) {
	now := time.Now()
	query := model.Episode{EpisodeID: "q", Symbol: "BTC-USDT", Signal: model.SignalBuy, Reasoning: "rsi oversold bounce", Timestamp: now}
	winner := model.Episode{EpisodeID: "w", Symbol: "BTC-USDT", Signal: model.SignalBuy, Reasoning: "rsi oversold bounce", Timestamp: now, Outcome: &model.TradeOutcome{Success: true}}
	loser := model.Episode{EpisodeID: "l", Symbol: "BTC-USDT", Signal: model.SignalBuy, Reasoning: "rsi oversold bounce", Timestamp: now, Outcome: &model.TradeOutcome{Success: false}}

	withoutPref := RecallSimilar(query, []model.Episode{winner, loser}, RecallOptions{Now: now, PreferProfitable: false})
	assert.InDelta(t, withoutPref[0].Score, withoutPref[1].Score, 0.0001)

	withPref := RecallSimilar(query, []model.Episode{winner, loser}, RecallOptions{Now: now, PreferProfitable: true})
	assert.Equal(t, "w", withPref[0].Episode.EpisodeID)
	assert.Greater(t, withPref[0].Score, withPref[1].Score)
}

func TestRecallSimilarRecencyBonusDecaysWithAge(t *testing.T) {
	now := time.Now()
	query := model.Episode{EpisodeID: "q", Symbol: "BTC-USDT", Reasoning: "rsi oversold bounce"}
	fresh := model.Episode{EpisodeID: "f", Symbol: "BTC-USDT", Reasoning: "rsi oversold bounce", Timestamp: now}
	stale := model.Episode{EpisodeID: "s", Symbol: "BTC-USDT", Reasoning: "rsi oversold bounce", Timestamp: now.Add(-60 * 24 * time.Hour)}

	ranked := RecallSimilar(query, []model.Episode{fresh, stale}, RecallOptions{Now: now})
	assert.Equal(t, "f", ranked[0].Episode.EpisodeID)
}

func TestRecallSimilarRespectsLimit(t *testing.T) {
	now := time.Now()
	query := model.Episode{EpisodeID: "q", Symbol: "BTC-USDT", Reasoning: "rsi oversold bounce"}
	candidates := []model.Episode{
		{EpisodeID: "a", Symbol: "BTC-USDT", Reasoning: "rsi oversold bounce", Timestamp: now},
		{EpisodeID: "b", Symbol: "BTC-USDT", Reasoning: "rsi oversold bounce", Timestamp: now},
		{EpisodeID: "c", Symbol: "BTC-USDT", Reasoning: "rsi oversold bounce", Timestamp: now},
	}
	ranked := RecallSimilar(query, candidates, RecallOptions{Now: now, Limit: 2})
	assert.Len(t, ranked, 2)
}

func TestRecallSimilarNoOverlapReturnsEmpty(t *testing.T) {
	now := time.Now()
	query := model.Episode{EpisodeID: "q", Symbol: "BTC-USDT", Reasoning: "rsi oversold bounce"}
	candidates := []model.Episode{{EpisodeID: "a", Symbol: "ETH-USDT", Reasoning: "macd cross breakdown"}}
	ranked := RecallSimilar(query, candidates, RecallOptions{Now: now})
	assert.Empty(t, ranked)
}

func TestJaccardEmptySets(t *testing.T) {
	assert.Equal(t, 0.0, jaccard(map[string]bool{}, map[string]bool{"a": true}))
	assert.Equal(t, 0.0, jaccard(map[string]bool{"a": true}, map[string]bool{}))
}
