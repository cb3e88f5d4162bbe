// Package metrics implements the Prometheus metrics surface
// (SPEC_FULL.md §4.14), grounded on the teacher's
// pkg/cri/resource-manager/metrics: a Collector that registers
// gauges/counters/histograms for load, queue depth, dispatch phase
// hits, migration/steal outcomes, team quota usage, and IRQ placement
// scores.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DispatchPhase identifies which §4.2 phase produced a dispatch
// decision, for the per-phase hit counter.
type DispatchPhase string

const (
	PhaseRTBypass      DispatchPhase = "rt_bypass"
	PhaseActiveInQuota DispatchPhase = "active_in_quota"
	PhaseGeneral       DispatchPhase = "general"
	PhaseIdle          DispatchPhase = "idle"
)

// Collector owns every metric this module exports. It is created once
// per process and passed down to the packages that need to record
// against it, the same way the teacher's metrics.Collector is threaded
// through its policy backends.
type Collector struct {
	Registry *prometheus.Registry

	CPUInstantLoad    *prometheus.GaugeVec
	CPULongWindowLoad *prometheus.GaugeVec
	CoreLoad          *prometheus.GaugeVec
	CoreHighLoad      *prometheus.GaugeVec
	RunQueueDepth     *prometheus.GaugeVec

	DispatchPhaseHits *prometheus.CounterVec

	MigrationsTotal  prometheus.Counter
	StealsAttempted  prometheus.Counter
	StealsSucceeded  prometheus.Counter
	StealsFailed     prometheus.Counter

	TeamQuotaUsageRatio *prometheus.GaugeVec

	IRQPlacementScore *prometheus.HistogramVec
}

// New creates a Collector with every metric registered against a
// fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		Registry: reg,
		CPUInstantLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eevdf", Subsystem: "cpu", Name: "instantaneous_load",
			Help: "EWMA fraction of wall time this CPU ran a non-idle thread.",
		}, []string{"cpu"}),
		CPULongWindowLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eevdf", Subsystem: "cpu", Name: "long_window_load",
			Help: "Cumulative capacity-normalized active/elapsed ratio (not decayed), [0, MAX_LOAD].",
		}, []string{"cpu"}),
		CoreLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eevdf", Subsystem: "core", Name: "load",
			Help: "Mean of enabled CPUs' long-window loads on this core.",
		}, []string{"core"}),
		CoreHighLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eevdf", Subsystem: "core", Name: "high_load",
			Help: "1 if this core is currently above the high-load threshold.",
		}, []string{"core"}),
		RunQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eevdf", Subsystem: "runqueue", Name: "depth",
			Help: "Current number of ready threads queued on this CPU.",
		}, []string{"cpu"}),
		DispatchPhaseHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eevdf", Subsystem: "dispatch", Name: "phase_hits_total",
			Help: "Count of choose_next_thread decisions by phase (A/B/C/idle).",
		}, []string{"phase"}),
		MigrationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eevdf", Subsystem: "balance", Name: "migrations_total",
			Help: "Threads moved by the periodic load balancer.",
		}),
		StealsAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eevdf", Subsystem: "balance", Name: "steals_attempted_total",
			Help: "Opportunistic work-steal attempts.",
		}),
		StealsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eevdf", Subsystem: "balance", Name: "steals_succeeded_total",
			Help: "Opportunistic work-steal attempts that found a candidate.",
		}),
		StealsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eevdf", Subsystem: "balance", Name: "steals_failed_total",
			Help: "Opportunistic work-steal attempts that found nothing stealable.",
		}),
		TeamQuotaUsageRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eevdf", Subsystem: "team", Name: "quota_usage_ratio",
			Help: "quota_period_usage / current_quota_allowance for each team.",
		}, []string{"team"}),
		IRQPlacementScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eevdf", Subsystem: "irq", Name: "placement_score",
			Help:    "Winning candidate score from select_target_cpu_for_irq.",
			Buckets: prometheus.DefBuckets,
		}, []string{"irq"}),
	}

	reg.MustRegister(
		c.CPUInstantLoad, c.CPULongWindowLoad, c.CoreLoad, c.CoreHighLoad,
		c.RunQueueDepth, c.DispatchPhaseHits, c.MigrationsTotal,
		c.StealsAttempted, c.StealsSucceeded, c.StealsFailed,
		c.TeamQuotaUsageRatio, c.IRQPlacementScore,
	)
	return c
}

// RecordDispatchPhase increments the hit counter for a dispatch phase.
func (c *Collector) RecordDispatchPhase(phase DispatchPhase) {
	c.DispatchPhaseHits.WithLabelValues(string(phase)).Inc()
}

// RecordSteal records the outcome of one work-steal attempt.
func (c *Collector) RecordSteal(succeeded bool) {
	c.StealsAttempted.Inc()
	if succeeded {
		c.StealsSucceeded.Inc()
	} else {
		c.StealsFailed.Inc()
	}
}
