// Package eevdf implements the EEVDF parameter machine (spec.md §4.3):
// the pure arithmetic that converts a thread's priority, latency-nice
// hint, and run-queue context into the weight, slice duration, lag,
// eligible time, and virtual deadline EEVDF dispatch (internal/dispatch)
// schedules on. Nothing here touches a lock or a run queue; every
// function takes its inputs as arguments and returns a value, the same
// "pure decision function" shape the teacher uses for its placement
// hints (policy/builtin/topology-aware/hint.go).
package eevdf

import "github.com/tonestone57/eevdf-scheduler/internal/sched"

// WeightScale is nice-0's weight, matching the well-known Linux CFS
// value so the nice-to-weight table below reproduces familiar
// scheduling ratios (spec.md §4.3 step 4: "weighted entitlement").
const WeightScale = 1024

// niceToWeight is the standard nice(-20..19)-to-weight table (Linux
// kernel kernel/sched/core.c sched_prio_to_weight, reproduced here
// since no original_source/ was retrievable for this spec to confirm
// against). Index 0 is nice -20, index 39 is nice 19; nice 0 sits at
// index 20 and equals WeightScale exactly.
var niceToWeight = [40]int64{
	88761, 71755, 56483, 46273, 36291,
	29154, 23254, 18705, 14949, 11916,
	9548, 7620, 6100, 4904, 3906,
	3121, 2501, 1991, 1586, 1277,
	1024, 820, 655, 526, 423,
	335, 272, 215, 172, 137,
	110, 87, 70, 56, 45,
	36, 29, 23, 18, 15,
}

// NiceToWeight converts a nice value in [-20, 19] to an EEVDF weight.
// Out-of-range input clamps to the nearest valid nice value.
func NiceToWeight(nice int) int64 {
	if nice < -20 {
		nice = -20
	}
	if nice > 19 {
		nice = 19
	}
	return niceToWeight[nice+20]
}

// PriorityToNice maps a thread's effective_priority (spec.md §3.1,
// normal band 100-139, nice-0 at 120) onto the nice scale, so normal
// threads reuse the same weight table real CFS does. Real-time and
// idle-band priorities are handled by the caller before weight lookup
// (spec.md §4.3 step 1: RT threads bypass weight-based competition).
func PriorityToNice(priority int) int {
	return priority - sched.NormalPriorityNice0
}

// latencyNiceFactor scales the base slice by latency-nice (spec.md
// §4.3 step 2: "latency_nice more negative => shorter preferred
// slice, tighter deadline; more positive => longer, looser"). Values
// are a fixed-point ratio with latencyNiceShift fractional bits,
// symmetric and monotone around latency-nice 0 (factor == 1<<shift).
const latencyNiceShift = 8 // fixed-point scale: factor / (1<<8) is the real ratio

var latencyNiceFactor = buildLatencyNiceFactorTable()

func buildLatencyNiceFactorTable() [40]int64 {
	var t [40]int64
	one := int64(1) << latencyNiceShift
	for nice := -20; nice <= 19; nice++ {
		// Linear ramp from 0.5x at nice -20 to about 1.47x at nice 19,
		// 1.0x at nice 0, matching the monotone/symmetric requirement
		// without needing a second reproduced kernel table.
		factor := one + (one/2)*int64(nice)/20
		t[nice+20] = factor
	}
	return t
}

// LatencyNiceFactor returns the fixed-point slice-scaling factor for a
// latency-nice value in [-20, 19]; divide the result by 1<<latencyNiceShift
// to get the real ratio.
func LatencyNiceFactor(latencyNice int) int64 {
	if latencyNice < -20 {
		latencyNice = -20
	}
	if latencyNice > 19 {
		latencyNice = 19
	}
	return latencyNiceFactor[latencyNice+20]
}

// priorityBand classifies an effective priority for base-quanta lookup.
type priorityBand int

const (
	bandIdle priorityBand = iota
	bandNormal
	bandRealTime
)

func mapPriorityToBand(priority int) priorityBand {
	switch {
	case sched.IsIdlePriority(priority):
		return bandIdle
	case sched.IsRealTime(priority):
		return bandRealTime
	default:
		return bandNormal
	}
}

// kBaseQuanta is the base slice duration in microseconds per priority
// band, before latency-nice scaling and granularity clamping (spec.md
// §4.3 step 1). Real-time threads get the longest base slice since
// they are not competing on weight; idle-band threads get the
// shortest since they only ever run when nothing else is eligible.
var kBaseQuanta = map[priorityBand]int64{
	bandRealTime: 6000,
	bandNormal:   4000,
	bandIdle:     1000,
}

// BaseQuantaMicros returns the unscaled base slice for a priority.
func BaseQuantaMicros(priority int) int64 {
	return kBaseQuanta[mapPriorityToBand(priority)]
}
