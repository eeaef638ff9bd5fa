package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across all handlers.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "agentium",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// --- Task Pipeline (§4.7) ---

var TasksCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "task", Name: "created_total",
	Help: "Total number of tasks created.",
})

var TasksCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "task", Name: "completed_total",
	Help: "Total number of tasks that reached COMPLETED.",
})

var TaskRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "task", Name: "retries_total",
	Help: "Total number of task retries, labeled by critic specialty.",
}, []string{"specialty"})

var TaskEscalationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "task", Name: "escalations_total",
	Help: "Total number of tasks that escalated to DELIBERATING.",
})

// --- Critic Engine (§4.5) ---

var CriticReviewDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "agentium", Subsystem: "critic", Name: "review_duration_seconds",
	Help:    "Critic review duration in seconds, by specialty and verdict.",
	Buckets: prometheus.DefBuckets,
}, []string{"specialty", "verdict"})

var CriticDedupHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "critic", Name: "dedup_hits_total",
	Help: "Total number of reviews served from the dedup cache.",
})

var CriticConsensusFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "critic", Name: "consensus_failures_total",
	Help: "Total number of consensus disagreements between primary and secondary critics.",
})

// --- Provider/Key Manager (§4.3) ---

var ProviderFailoversTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "provider", Name: "failovers_total",
	Help: "Total number of times selection skipped to the next key or provider.",
}, []string{"provider_kind"})

var ProviderCooldownsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "provider", Name: "cooldowns_total",
	Help: "Total number of times a key entered cooldown.",
}, []string{"provider_kind"})

var ProviderExhaustionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "provider", Name: "exhaustions_total",
	Help: "Total number of times every provider ran out of healthy keys.",
})

// --- Amendment state machine (§4.6) ---

var AmendmentsRatifiedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "amendment", Name: "ratified_total",
	Help: "Total number of ratified amendments.",
})

var AmendmentsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "amendment", Name: "rejected_total",
	Help: "Total number of rejected amendments.",
})

// --- Lifecycle Manager (§4.8) ---

var AgentsSpawnedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "lifecycle", Name: "spawned_total",
	Help: "Total number of agents spawned, by tier.",
}, []string{"tier"})

var AgentsLiquidatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "lifecycle", Name: "liquidated_total",
	Help: "Total number of agents liquidated, by tier.",
}, []string{"tier"})

// --- Reincarnation Controller (§4.9) ---

var ReincarnationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "reincarnation", Name: "cycles_total",
	Help: "Total number of reincarnation cycles completed.",
})

var ReincarnationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "agentium", Subsystem: "reincarnation", Name: "failures_total",
	Help: "Total number of reincarnation cycles that aborted before spawning a successor.",
})

// All returns every domain metric collector declared by this package, for
// registration alongside the Go/process collectors.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		TasksCreatedTotal, TasksCompletedTotal, TaskRetriesTotal, TaskEscalationsTotal,
		CriticReviewDuration, CriticDedupHitsTotal, CriticConsensusFailuresTotal,
		ProviderFailoversTotal, ProviderCooldownsTotal, ProviderExhaustionsTotal,
		AmendmentsRatifiedTotal, AmendmentsRejectedTotal,
		AgentsSpawnedTotal, AgentsLiquidatedTotal,
		ReincarnationsTotal, ReincarnationFailuresTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors
// and every Agentium domain collector.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
