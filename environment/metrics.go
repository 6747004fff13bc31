package environment

import "github.com/prometheus/client_golang/prometheus"

// metricsSet holds the environment's prometheus collectors. Each
// Environment registers into its own registry rather than the global
// default one, so multiple environments (as in a test suite) never
// collide on metric names.
type metricsSet struct {
	registry      *prometheus.Registry
	ptbSucceeded  prometheus.Counter
	ptbFailed     prometheus.Counter
	lockConflicts prometheus.Counter
	gasUsed       prometheus.Histogram
	replayMisses  prometheus.Counter
}

func newMetricsSet() *metricsSet {
	reg := prometheus.NewRegistry()
	m := &metricsSet{
		registry: reg,
		ptbSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suisim_ptb_succeeded_total",
			Help: "Number of PTBs that executed successfully.",
		}),
		ptbFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suisim_ptb_failed_total",
			Help: "Number of PTBs that aborted or failed to acquire locks.",
		}),
		lockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suisim_lock_conflicts_total",
			Help: "Number of PTBs rejected by a shared-object lock conflict.",
		}),
		gasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "suisim_gas_used",
			Help:    "Gas used per successful PTB, per the embedder-supplied GasModel.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		replayMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suisim_replay_fetch_misses_total",
			Help: "Number of replay on-demand child fetches that found nothing.",
		}),
	}
	reg.MustRegister(m.ptbSucceeded, m.ptbFailed, m.lockConflicts, m.gasUsed, m.replayMisses)
	return m
}

// Registry exposes the environment's private prometheus registry, for
// an embedder that wants to serve /metrics itself.
func (e *Environment) Registry() *prometheus.Registry {
	return e.metrics.registry
}

// RecordReplayMiss increments the replay miss counter; called by
// package replay's on-demand fetchers when a fetch finds nothing.
func (e *Environment) RecordReplayMiss() {
	e.metrics.replayMisses.Inc()
}
