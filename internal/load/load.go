// Package load implements the load-accounting and core-load-ranking
// side of the scheduler (spec.md §4.5, §3.6): per-CPU/per-core EWMA
// load tracking, the sharded min/max heaps of cores by load the
// balancer samples from, and the SMT-aware CPU priority heap per core
// (§4.8). It owns these heaps externally, keyed by topology ID, rather
// than embedding heap pointers inside internal/sched's records — the
// same "heaps live beside the arena, not inside it" split the teacher
// uses between pkg/sysfs (static topology) and pkg/cpuallocator
// (the ranking/selection logic built on top of it).
package load

import "github.com/tonestone57/eevdf-scheduler/internal/topology"

// MaxLoad is the ceiling of the load scale, matching the conventional
// kernel SCHED_CAPACITY_SCALE so capacity-normalized load and
// performance_capacity share units (spec.md §3.1, §3.3, §3.4).
const MaxLoad = 1024

// InstantLoadEWMAAlpha is the smoothing factor for instantaneous load
// (spec.md §4.5 "kInstantLoadEWMAAlpha"), expressed as a fraction in
// (0,1]: higher reacts faster, lower smooths more.
const InstantLoadEWMAAlpha = 0.25

// HighLoadThreshold is the long_window_load value above which a core
// is considered high-load for balancer bucketing purposes (spec.md
// §4.5, §4.7).
const HighLoadThreshold = MaxLoad * 70 / 100

// RebucketDelta is the minimum change in a core's long_window_load
// that forces a re-insertion into the sharded heaps (spec.md §4.5:
// "a change larger than MAX_LOAD / 20").
const RebucketDelta = MaxLoad / 20

// EWMA blends a new sample into a running value at the given alpha
// (0,1]. Used for both instantaneous load and needed_load.
func EWMA(previous, sample, alpha float64) float64 {
	return previous + alpha*(sample-previous)
}

// InstantaneousLoad updates a CPU's EWMA of "fraction of wall time
// running a non-idle thread" given the wall-clock time since the last
// update and how much of it was spent non-idle (spec.md §4.5).
func InstantaneousLoad(previous float64, nonIdleMicros, elapsedMicros int64) float64 {
	if elapsedMicros <= 0 {
		return previous
	}
	sample := float64(nonIdleMicros) / float64(elapsedMicros)
	if sample < 0 {
		sample = 0
	}
	if sample > 1 {
		sample = 1
	}
	return EWMA(previous, sample, InstantLoadEWMAAlpha)
}

// LongWindowLoad returns the ratio of capacity-normalized active time
// to wall-clock elapsed time, capped at 1 and scaled to MaxLoad
// (spec.md §4.5): measure_active_time accumulates active_wall *
// capacity / NOMINAL_CAPACITY, measure_time accumulates wall-clock
// elapsed. It is a cumulative ratio over everything accumulated so
// far; older intervals are not decayed.
func LongWindowLoad(activeMicros, elapsedMicros, capacity int64) float64 {
	if elapsedMicros <= 0 {
		return 0
	}
	normalizedActive := float64(activeMicros) * float64(capacity) / float64(topology.NominalCapacity)
	ratio := normalizedActive / float64(elapsedMicros)
	if ratio > 1 {
		ratio = 1
	}
	return ratio * MaxLoad
}

// NeededLoad is a thread's long-window EWMA of demand, in MaxLoad
// units (spec.md §3.1: "EWMA of active / period * MAX_LOAD").
func NeededLoad(previous float64, activeMicros, periodMicros int64, alpha float64) float64 {
	if periodMicros <= 0 {
		return previous
	}
	sample := float64(activeMicros) / float64(periodMicros) * MaxLoad
	return EWMA(previous, sample, alpha)
}

// CorePerCPUAggregate computes a core's Load as the mean of its
// enabled CPUs' long_window_load values (spec.md §4.5 "Per-core load
// is the mean of enabled CPUs' long-window loads").
func CorePerCPUAggregate(cpuLoads []float64) float64 {
	if len(cpuLoads) == 0 {
		return 0
	}
	var sum float64
	for _, l := range cpuLoads {
		sum += l
	}
	return sum / float64(len(cpuLoads))
}

// ShouldRebucket reports whether a core's load change is large enough,
// or crosses the high-load threshold, to require re-insertion into the
// sharded load heaps (spec.md §4.5).
func ShouldRebucket(oldLoad, newLoad float64) bool {
	delta := newLoad - oldLoad
	if delta < 0 {
		delta = -delta
	}
	if delta > RebucketDelta {
		return true
	}
	wasHigh := oldLoad >= HighLoadThreshold
	isHigh := newLoad >= HighLoadThreshold
	return wasHigh != isHigh
}
