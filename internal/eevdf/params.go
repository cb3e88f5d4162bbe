package eevdf

import (
	"time"

	"github.com/tonestone57/eevdf-scheduler/internal/config"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
)

// NominalCapacity mirrors internal/topology.NominalCapacity; duplicated
// as a typed constant here so the parameter machine's arithmetic reads
// self-contained (spec.md §4.3: "NOM = NOMINAL_CAPACITY").
const NominalCapacity = 1024

// Params bundles the tunables the parameter machine is computed
// against (spec.md §4.3, and the config-surfaced defaults from
// SPEC_FULL.md §4.13). Callers normally obtain one from
// internal/config rather than constructing it by hand.
type Params struct {
	MinGranularityMicros  int64
	MaxSliceDurationMicros int64
	TargetLatencyMicros   int64
	MinTransitions        int
	HighContentionFactor  int64
	HighContentionQueueDepth int
}

// DefaultParams returns the out-of-the-box tunables, chosen to sit in
// the same range as the well-known Linux CFS/EEVDF sysctls
// (sched_min_granularity_ns ≈ 0.75ms, sched_latency_ns ≈ 6ms) since no
// original_source/ was retrievable to confirm exact spec defaults
// against.
func DefaultParams() Params {
	return Params{
		MinGranularityMicros:     750,
		MaxSliceDurationMicros:   22000,
		TargetLatencyMicros:      6000,
		MinTransitions:           3,
		HighContentionFactor:     3,
		HighContentionQueueDepth: 8,
	}
}

// RegisterFlags attaches the parameter machine's tunables to a config
// module named "eevdf", mirroring the teacher's per-subsystem
// pkg/config registration. The returned accessor reads back the live
// flag values, so config.Config.Parse/LoadYAML overrides take effect
// on the next call rather than being frozen at registration time.
func RegisterFlags(cfg *config.Config) func() Params {
	m := cfg.RegisterModule("eevdf", "EEVDF parameter machine tunables")
	def := DefaultParams()
	minGranularity := m.Int64("min-granularity-micros", def.MinGranularityMicros, "floor on slice_duration, microseconds")
	maxSlice := m.Int64("max-slice-duration-micros", def.MaxSliceDurationMicros, "ceiling on slice_duration, microseconds")
	targetLatency := m.Int64("target-latency-micros", def.TargetLatencyMicros, "nominal scheduling period, microseconds")
	minTransitions := m.Int("min-transitions", def.MinTransitions, "voluntary sleeps observed before the I/O-bound slice floor applies")
	contentionFactor := m.Int64("high-contention-factor", def.HighContentionFactor, "slice floor multiplier once queue depth crosses the contention threshold")
	contentionDepth := m.Int("high-contention-queue-depth", def.HighContentionQueueDepth, "run-queue depth that triggers the contention floor")

	return func() Params {
		return Params{
			MinGranularityMicros:     *minGranularity,
			MaxSliceDurationMicros:   *maxSlice,
			TargetLatencyMicros:      *targetLatency,
			MinTransitions:           *minTransitions,
			HighContentionFactor:     *contentionFactor,
			HighContentionQueueDepth: *contentionDepth,
		}
	}
}

func clampMicros(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Context carries the information the parameter machine needs about
// the CPU the thread will run on or was last running on (spec.md §4.3
// "optional context CPU").
type Context struct {
	Capacity          int64 // context core's performance_capacity; NominalCapacity if unknown
	MinVRuntimeMicros int64 // context CPU's min_vruntime
	Known             bool  // false ⇒ use only the global min vruntime
	QueueDepth        int   // context CPU's current run-queue depth, for contention flooring

	// LowestActiveBasePriority and HasLowestActiveBasePriority carry the
	// destination run queue's current floor for DeriveEffectivePriority
	// (spec.md §3.1): the lowest base_priority among the non-RT threads
	// already enqueued there, or HasLowestActiveBasePriority == false if
	// the queue is empty of non-RT threads.
	LowestActiveBasePriority    int
	HasLowestActiveBasePriority bool
}

// DeriveEffectivePriority computes effective_priority from base_priority
// (spec.md §3.1: "clamps non-RT to below the RT band, floors active
// non-RT to the lowest active priority"). Real-time priorities pass
// through unchanged. A non-RT base_priority that has drifted into or
// past the RT band (e.g. from a priority-change bug) is clamped back
// below it; a non-RT base_priority better than every other non-RT
// thread already active on the destination queue is floored to match
// them, so one outlier thread can't pick up an isolated advantage over
// its queue-mates purely from arrival order.
func DeriveEffectivePriority(basePriority int, queueFloor int, haveFloor bool) int {
	if sched.IsRealTime(basePriority) {
		return basePriority
	}
	p := basePriority
	if p >= sched.RTPriorityMin {
		p = sched.RTPriorityMin - 1
	}
	if haveFloor && p < queueFloor {
		p = queueFloor
	}
	return p
}

// SliceDurationMicros computes slice_duration for a thread (spec.md
// §4.3 steps 1-5). Real-time and idle-band threads aren't weight-
// competed but still get a slice length for quantum-timer programming.
func SliceDurationMicros(p Params, t *sched.Thread, ctx Context) int64 {
	slice := BaseQuantaMicros(t.EffectivePriority())

	factor := LatencyNiceFactor(t.LatencyNice())
	slice = (slice * factor) >> latencyNiceShift

	if t.VoluntarySleepTransitions() >= p.MinTransitions {
		ewma := t.AverageRunBurstEWMA()
		if ewma > 0 && ewma < slice {
			floor := ewma / 4
			if floor < p.MinGranularityMicros/2 {
				floor = p.MinGranularityMicros / 2
			}
			slice = ewma + floor
		}
	}

	if ctx.QueueDepth > p.HighContentionQueueDepth {
		contentionFloor := p.MinGranularityMicros * p.HighContentionFactor
		if slice < contentionFloor {
			slice = contentionFloor
		}
	}

	return clampMicros(slice, p.MinGranularityMicros, p.MaxSliceDurationMicros)
}

// Weight returns the EEVDF weight for a thread's effective priority
// (spec.md §3.1: "weight ≥ 1 ... RT threads get the maximum weight").
func Weight(priority int) int64 {
	if sched.IsRealTime(priority) {
		return niceToWeight[0] // heaviest entry: the nice -20 weight
	}
	return NiceToWeight(PriorityToNice(priority))
}

// ReferenceMinVRuntime computes R = max(context_cpu.min_vruntime,
// global_min_vruntime), or just the global value if the context CPU
// is unknown (spec.md §4.3 "Reference min vruntime").
func ReferenceMinVRuntime(ctx Context, globalMinVRuntimeMicros int64) int64 {
	if !ctx.Known {
		return globalMinVRuntimeMicros
	}
	if ctx.MinVRuntimeMicros > globalMinVRuntimeMicros {
		return ctx.MinVRuntimeMicros
	}
	return globalMinVRuntimeMicros
}

// Recompute applies the full EEVDF parameter machine to a thread in
// place: slice_duration, virtual_runtime snap, lag, eligible_time, and
// virtual_deadline (spec.md §4.3). isNewOrRelocated and isRequeue are
// mutually exclusive callers' contexts (enqueue-from-creation-or-
// migration vs. re-insertion of a still-READY thread from
// choose_next_thread step 1).
func Recompute(p Params, t *sched.Thread, ctx Context, globalMinVRuntimeMicros int64, now time.Time, isNewOrRelocated, isRequeue bool) {
	priority := DeriveEffectivePriority(t.BasePriority(), ctx.LowestActiveBasePriority, ctx.HasLowestActiveBasePriority)
	t.SetEffectivePriority(priority)
	isRT := sched.IsRealTime(priority)

	w := Weight(priority)
	t.SetWeight(w)

	slice := SliceDurationMicros(p, t, ctx)
	t.SetSliceDurationMicros(slice)

	capacity := ctx.Capacity
	if capacity <= 0 {
		capacity = NominalCapacity
	}

	r := ReferenceMinVRuntime(ctx, globalMinVRuntimeMicros)

	vr := t.VirtualRuntime()
	if isNewOrRelocated || vr < r {
		if vr < r {
			vr = r
		}
		t.SetVirtualRuntime(vr)
	}

	normalizedSlice := slice * capacity / NominalCapacity
	entitlement := normalizedSlice * WeightScale / w

	if isRequeue {
		t.AddLag(entitlement)
	} else {
		t.SetLag(entitlement - (vr - r))
	}

	lag := t.Lag()

	var eligible time.Time
	switch {
	case isRT, lag >= 0:
		eligible = now
	default:
		delay := (-lag * w * NominalCapacity) / (WeightScale * capacity)
		delay = clampMicros(delay, p.MinGranularityMicros, 2*p.TargetLatencyMicros)
		eligible = now.Add(time.Duration(delay) * time.Microsecond)
	}
	t.SetEligibleTime(eligible)

	// The run queue's ordering key advances by the weighted entitlement,
	// not the raw wall-clock slice: a heavier thread's entitlement is
	// smaller (same derivation as the lag above), so its deadline falls
	// due sooner and it is picked more often, which is what makes
	// weight actually translate into a CPU-time share. Using the raw
	// slice here instead would make every thread's deadline advance at
	// the same rate regardless of weight, collapsing the two-thread
	// case to plain round-robin.
	t.SetVirtualDeadline(eligible.Add(time.Duration(entitlement) * time.Microsecond))
}
