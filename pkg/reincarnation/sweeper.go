package reincarnation

import (
	"context"
	"log/slog"
	"time"

	"github.com/neurotech-brt/agentium/pkg/agent"
)

// Sweeper drives the §4.9 trigger condition itself: it polls every
// non-terminated agent's running token count against its budget and
// reincarnates whoever has crossed tokenBudgetTriggerRatio, mirroring the
// amendment window timer and preference optimizer's poll-and-act ticker
// shape.
type Sweeper struct {
	agents   *agent.Store
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper constructs a Sweeper polling at interval. interval <= 0 falls
// back to one minute.
func NewSweeper(agents *agent.Store, engine *Engine, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{agents: agents, engine: engine, interval: interval, logger: logger}
}

// Run blocks, sweeping once per tick, until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sw.tick(ctx)
		}
	}
}

// tick is a single poll cycle, a method in its own right so a caller driving
// its own test clock can invoke it directly.
func (sw *Sweeper) tick(ctx context.Context) {
	candidates, err := sw.agents.ListNearingTokenBudget(ctx, tokenBudgetTriggerRatio)
	if err != nil {
		sw.logger.Error("reincarnation sweeper: listing agents nearing token budget", "error", err)
		return
	}

	for _, a := range candidates {
		sw.logger.Info("reincarnation sweeper: triggering automatic reincarnation",
			"agent_id", a.ID, "tier_id", a.TierID, "token_count", a.TokenCount, "token_budget", a.TokenBudget)
		if _, err := sw.engine.Reincarnate(ctx, a.ID, ""); err != nil {
			sw.logger.Error("reincarnation sweeper: reincarnation failed", "agent_id", a.ID, "error", err)
		}
	}
}
