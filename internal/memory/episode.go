package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/db"
	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

const defaultRecallCandidatePool = 500

// EpisodicMemory is the write-through store backing C9: one row per closed
// (or still-open) trade episode, with similarity recall and a reflection
// pass layered on top.
type EpisodicMemory struct {
	pool        *pgxpool.Pool
	maxEpisodes int
}

// NewEpisodicMemory constructs a store capped at maxEpisodes rows; 0 means
// unbounded.
func NewEpisodicMemory(pool *pgxpool.Pool, maxEpisodes int) *EpisodicMemory {
	return &EpisodicMemory{pool: pool, maxEpisodes: maxEpisodes}
}

// NewEpisodicMemoryFromDB mirrors the rest of the package's *_FromDB
// constructors.
func NewEpisodicMemoryFromDB(database *db.DB, maxEpisodes int) *EpisodicMemory {
	return &EpisodicMemory{pool: database.Pool(), maxEpisodes: maxEpisodes}
}

// Store inserts a new episode, or upserts in place if EpisodeID is already
// set and collides — satisfies the store operation's idempotence property.
func (em *EpisodicMemory) Store(ctx context.Context, ep *model.Episode) error {
	if ep.EpisodeID == "" {
		ep.EpisodeID = uuid.New().String()
	}
	if ep.Timestamp.IsZero() {
		ep.Timestamp = time.Now()
	}

	outcomeJSON, err := marshalOutcome(ep.Outcome)
	if err != nil {
		return fmt.Errorf("marshal episode outcome: %w", err)
	}
	tagsJSON, err := json.Marshal(ep.Tags)
	if err != nil {
		return fmt.Errorf("marshal episode tags: %w", err)
	}

	query := `
		INSERT INTO episodic_memory (
			episode_id, timestamp, market_state_text, market_state_embedding_text,
			symbol, venue, signal, entry_price, quantity, stop_loss, take_profit,
			agent_id, reasoning, confidence, outcome, what_worked, what_failed, lesson, tags
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19
		)
		ON CONFLICT (episode_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			what_worked = EXCLUDED.what_worked,
			what_failed = EXCLUDED.what_failed,
			lesson = EXCLUDED.lesson
	`
	_, err = em.pool.Exec(ctx, query,
		ep.EpisodeID, ep.Timestamp, ep.MarketStateText, ep.MarketStateEmbeddingText,
		ep.Symbol, ep.Venue, ep.Signal, ep.EntryPrice, ep.Quantity, ep.StopLoss, ep.TakeProfit,
		ep.AgentID, ep.Reasoning, ep.Confidence, outcomeJSON, ep.WhatWorked, ep.WhatFailed, ep.Lesson, tagsJSON,
	)
	if err != nil {
		return fmt.Errorf("store episode: %w", err)
	}

	log.Debug().Str("episode_id", ep.EpisodeID).Str("symbol", ep.Symbol).Msg("episodic memory: stored episode")

	if em.maxEpisodes > 0 {
		if _, pruneErr := em.Prune(ctx); pruneErr != nil {
			log.Warn().Err(pruneErr).Msg("episodic memory: prune after store failed")
		}
	}
	return nil
}

// UpdateOutcome sets (or overwrites) an episode's outcome. Last write wins,
// so calling it twice with the same outcome is a no-op in effect.
func (em *EpisodicMemory) UpdateOutcome(ctx context.Context, episodeID string, outcome model.TradeOutcome) error {
	outcomeJSON, err := marshalOutcome(&outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	tag, err := em.pool.Exec(ctx, `UPDATE episodic_memory SET outcome = $1 WHERE episode_id = $2`, outcomeJSON, episodeID)
	if err != nil {
		return fmt.Errorf("update outcome for %s: %w", episodeID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update outcome: episode %s not found", episodeID)
	}
	return nil
}

// AddReflection sets the three reflection fields as a unit — an episode has
// either all three or none, per HasReflection's invariant.
func (em *EpisodicMemory) AddReflection(ctx context.Context, episodeID, whatWorked, whatFailed, lesson string) error {
	tag, err := em.pool.Exec(ctx,
		`UPDATE episodic_memory SET what_worked = $1, what_failed = $2, lesson = $3 WHERE episode_id = $4`,
		whatWorked, whatFailed, lesson, episodeID,
	)
	if err != nil {
		return fmt.Errorf("add reflection for %s: %w", episodeID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("add reflection: episode %s not found", episodeID)
	}
	return nil
}

// GetByID fetches a single episode.
func (em *EpisodicMemory) GetByID(ctx context.Context, episodeID string) (*model.Episode, error) {
	row := em.pool.QueryRow(ctx, episodeSelectColumns+` FROM episodic_memory WHERE episode_id = $1`, episodeID)
	ep, err := scanEpisode(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("episode %s not found", episodeID)
		}
		return nil, fmt.Errorf("get episode %s: %w", episodeID, err)
	}
	return ep, nil
}

// GetRecent returns the most recent episodes, newest first.
func (em *EpisodicMemory) GetRecent(ctx context.Context, limit int) ([]model.Episode, error) {
	rows, err := em.pool.Query(ctx, episodeSelectColumns+` FROM episodic_memory ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent episodes: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

// RecallSimilar loads a candidate pool of recent episodes and ranks them
// against the query with Jaccard similarity (see ranking.go).
func (em *EpisodicMemory) RecallSimilar(ctx context.Context, query model.Episode, opts RecallOptions) ([]RankedEpisode, error) {
	candidates, err := em.GetRecent(ctx, defaultRecallCandidatePool)
	if err != nil {
		return nil, err
	}
	return RecallSimilar(query, candidates, opts), nil
}

// GetStats summarizes the store: total count, win rate, average pnl.
func (em *EpisodicMemory) GetStats(ctx context.Context) (map[string]interface{}, error) {
	var total, wins int
	var avgPnLPct float64
	err := em.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE (outcome->>'Success')::boolean = true),
			COALESCE(AVG((outcome->>'PnLPct')::float8), 0)
		FROM episodic_memory
		WHERE outcome IS NOT NULL
	`).Scan(&total, &wins, &avgPnLPct)
	if err != nil {
		return nil, fmt.Errorf("episode stats: %w", err)
	}

	winRate := 0.0
	if total > 0 {
		winRate = float64(wins) / float64(total)
	}
	return map[string]interface{}{
		"total_closed": total,
		"wins":         wins,
		"win_rate":     winRate,
		"avg_pnl_pct":  avgPnLPct,
	}, nil
}

// Prune evicts the oldest rows once the store exceeds maxEpisodes.
func (em *EpisodicMemory) Prune(ctx context.Context) (int, error) {
	if em.maxEpisodes <= 0 {
		return 0, nil
	}
	tag, err := em.pool.Exec(ctx, `
		DELETE FROM episodic_memory
		WHERE episode_id IN (
			SELECT episode_id FROM episodic_memory
			ORDER BY timestamp DESC
			OFFSET $1
		)
	`, em.maxEpisodes)
	if err != nil {
		return 0, fmt.Errorf("prune episodic memory: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const episodeSelectColumns = `
	SELECT episode_id, timestamp, market_state_text, market_state_embedding_text,
		symbol, venue, signal, entry_price, quantity, stop_loss, take_profit,
		agent_id, reasoning, confidence, outcome, what_worked, what_failed, lesson, tags
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEpisode(row rowScanner) (*model.Episode, error) {
	var ep model.Episode
	var outcomeJSON, tagsJSON []byte
	var signal string
	err := row.Scan(
		&ep.EpisodeID, &ep.Timestamp, &ep.MarketStateText, &ep.MarketStateEmbeddingText,
		&ep.Symbol, &ep.Venue, &signal, &ep.EntryPrice, &ep.Quantity, &ep.StopLoss, &ep.TakeProfit,
		&ep.AgentID, &ep.Reasoning, &ep.Confidence, &outcomeJSON, &ep.WhatWorked, &ep.WhatFailed, &ep.Lesson, &tagsJSON,
	)
	if err != nil {
		return nil, err
	}
	ep.Signal = model.Signal(signal)
	if len(outcomeJSON) > 0 {
		var outcome model.TradeOutcome
		if jsonErr := json.Unmarshal(outcomeJSON, &outcome); jsonErr == nil {
			ep.Outcome = &outcome
		}
	}
	if len(tagsJSON) > 0 {
		_ = json.Unmarshal(tagsJSON, &ep.Tags)
	}
	return &ep, nil
}

func scanEpisodes(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]model.Episode, error) {
	var out []model.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode row: %w", err)
		}
		out = append(out, *ep)
	}
	return out, rows.Err()
}

func marshalOutcome(outcome *model.TradeOutcome) ([]byte, error) {
	if outcome == nil {
		return nil, nil
	}
	return json.Marshal(outcome)
}
