package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const (
	profitableBoostFactor = 1.3
	recencyHalfLifeDays   = 30.0
	recencyWeight         = 0.1
)

// RankedEpisode pairs an episode with the similarity score recall_similar
// computed for it.
type RankedEpisode struct {
	Episode model.Episode
	Score   float64
}

// RecallOptions tunes recall_similar's ranking.
type RecallOptions struct {
	Limit             int
	PreferProfitable  bool
	Now               time.Time
}

// RecallSimilar ranks candidates against a query episode by Jaccard
// similarity over a bag-of-words tag set, boosted 1.3x for profitable
// episodes when PreferProfitable is set, plus a recency bonus of
// max(0, 1-age_days/30)*0.1.
func RecallSimilar(query model.Episode, candidates []model.Episode, opts RecallOptions) []RankedEpisode {
	queryTokens := episodeTokens(query)
	if len(queryTokens) == 0 {
		return nil
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	ranked := make([]RankedEpisode, 0, len(candidates))
	for _, c := range candidates {
		if c.EpisodeID == query.EpisodeID {
			continue
		}
		sim := jaccard(queryTokens, episodeTokens(c))
		if sim == 0 {
			continue
		}
		if opts.PreferProfitable && c.Outcome != nil && c.Outcome.Success {
			sim *= profitableBoostFactor
		}
		ageDays := now.Sub(c.Timestamp).Hours() / 24
		recencyBonus := 1 - ageDays/recencyHalfLifeDays
		if recencyBonus < 0 {
			recencyBonus = 0
		}
		sim += recencyBonus * recencyWeight
		ranked = append(ranked, RankedEpisode{Episode: c, Score: sim})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	limit := opts.Limit
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	return ranked[:limit]
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// episodeTokens builds the bag of words recall_similar compares: symbol,
// venue, signal, explicit tags, and the lower-cased words of the reasoning
// text.
func episodeTokens(e model.Episode) map[string]bool {
	tokens := make(map[string]bool)
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			tokens[s] = true
		}
	}
	add(e.Symbol)
	add(e.Venue)
	add(string(e.Signal))
	for _, tag := range e.Tags {
		add(tag)
	}
	for _, word := range strings.Fields(e.Reasoning) {
		add(strings.Trim(word, ".,;:!?\"'()"))
	}
	return tokens
}
