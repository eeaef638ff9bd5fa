package lifecycle

import (
	"context"
	"time"

	"github.com/neurotech-brt/agentium/pkg/agent"
	"github.com/neurotech-brt/agentium/pkg/identity"
	"github.com/neurotech-brt/agentium/pkg/provider"
)

// allProviderKinds is the full §4.4 provider kind list, iterated since
// pkg/provider.Store only exposes ActiveByKind, not a cross-kind listing.
var allProviderKinds = []provider.Kind{
	provider.KindOpenAI, provider.KindAnthropic, provider.KindAzureOpenAI,
	provider.KindOpenRouter, provider.KindOllama, provider.KindLMStudio,
	provider.KindTogether, provider.KindGroq, provider.KindCustom,
}

// Optimizer is the preference-optimizer idle loop (SPEC_FULL.md Agent Store
// supplement): a best-effort, non-authoritative heuristic that nudges the
// preferred_provider_ref of every non-terminated LEAD and TASK agent toward
// the provider kind whose best active key has the best recorded
// failure/latency profile. It never learns model weights
// and never blocks task execution — a failure here is logged and skipped.
type Optimizer struct {
	agents    *agent.Store
	providers *provider.Store
	interval  time.Duration
	logger    logger
}

// logger is the minimal surface Optimizer needs, satisfied by *slog.Logger.
type logger interface {
	Error(msg string, args ...any)
}

// NewOptimizer constructs an Optimizer. interval <= 0 falls back to
// idlePreferenceInterval.
func NewOptimizer(agents *agent.Store, providers *provider.Store, interval time.Duration, log logger) *Optimizer {
	if interval <= 0 {
		interval = idlePreferenceInterval
	}
	return &Optimizer{agents: agents, providers: providers, interval: interval, logger: log}
}

// Run blocks, nudging preferences once per tick, until ctx is cancelled.
func (o *Optimizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *Optimizer) tick(ctx context.Context) {
	bestKind, ok := o.bestKind(ctx)
	if !ok {
		return
	}
	bestRef := string(bestKind)

	for _, tier := range []identity.Tier{identity.TierLead, identity.TierTask} {
		agents, err := o.agents.ListByTier(ctx, tier, false)
		if err != nil {
			o.logger.Error("preference optimizer: listing agents", "tier", tier, "error", err)
			continue
		}
		for _, a := range agents {
			if a.PreferredProviderRef != nil && *a.PreferredProviderRef == bestRef {
				continue
			}
			if err := o.agents.SetPreferredProvider(ctx, a.ID, bestRef); err != nil {
				o.logger.Error("preference optimizer: nudging preferred provider", "agent_id", a.ID, "error", err)
			}
		}
	}
}

// bestKind scores every active key across every provider kind by recorded
// failure count and p50 latency and returns the kind whose best key is
// lowest-scoring. On equal scores the kind listed first in allProviderKinds
// wins. Returns ok=false when no active
// keys exist at all. PreferredProviderRef stores a provider.Kind, the same
// convention the task pipeline reads it under.
func (o *Optimizer) bestKind(ctx context.Context) (provider.Kind, bool) {
	var bestKind provider.Kind
	var bestScore float64
	found := false

	for _, kind := range allProviderKinds {
		keys, err := o.providers.ActiveByKind(ctx, kind)
		if err != nil {
			o.logger.Error("preference optimizer: listing provider keys", "kind", kind, "error", err)
			continue
		}
		for _, k := range keys {
			s := scoreKey(k)
			if !found || s < bestScore {
				bestKind, bestScore = kind, s
				found = true
			}
		}
	}
	return bestKind, found
}

// scoreKey is a lower-is-better heuristic combining failure count (weighted
// heavily, since a single recent failure is a stronger negative signal than
// a few extra milliseconds of latency) with p50 latency.
func scoreKey(k provider.Key) float64 {
	return float64(k.FailureCount)*1000 + k.LatencyP50Ms
}
