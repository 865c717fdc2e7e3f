package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/db"
)

// StatusStore is the persistence seam AgentStatusReporter writes through.
// *db.DB satisfies this.
type StatusStore interface {
	UpsertAgentStatus(ctx context.Context, agent *db.AgentStatus) error
}

// AgentStatusReporter periodically snapshots every in-process agent's
// Tunable.State() into the agent_status table, the same table the health
// endpoint and the metrics updater read agent population health from. The
// in-process population never writes there on its own since it never ran as
// a separate OS process the way the NATS-based agent microservices do.
type AgentStatusReporter struct {
	store    StatusStore
	agents   map[string]Thinker
	interval time.Duration
	log      zerolog.Logger
}

// NewAgentStatusReporter builds a reporter over agentsByID, the same map the
// tick loop holds. interval <= 0 defaults to 30s.
func NewAgentStatusReporter(store StatusStore, agentsByID map[string]Thinker, interval time.Duration, log zerolog.Logger) *AgentStatusReporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &AgentStatusReporter{
		store:    store,
		agents:   agentsByID,
		interval: interval,
		log:      log.With().Str("component", "agent_status_reporter").Logger(),
	}
}

// Run reports once immediately, then on every interval until ctx is cancelled.
func (r *AgentStatusReporter) Run(ctx context.Context) {
	r.reportAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reportAll(ctx)
		}
	}
}

func (r *AgentStatusReporter) reportAll(ctx context.Context) {
	for id, agent := range r.agents {
		state := agent.State()

		status := "HEALTHY"
		if !state.Active {
			status = "DISABLED"
		}
		if state.DailyLossBreached {
			status = "HALTED"
		}

		now := time.Now()
		confidence := state.AdaptiveParams.ConfidenceThreshold
		record := &db.AgentStatus{
			Name:          id,
			Type:          string(state.Specialization),
			Status:        status,
			LastHeartbeat: &now,
			TotalSignals:  state.TotalTrades,
			AvgConfidence: &confidence,
		}

		if err := r.store.UpsertAgentStatus(ctx, record); err != nil {
			r.log.Warn().Err(err).Str("agent", id).Msg("agent status reporter: upsert failed")
		}
	}
}
