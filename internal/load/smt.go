package load

import "github.com/tonestone57/eevdf-scheduler/internal/topology"

// SMTConflictFactor weights sibling CPUs' instantaneous load when
// scoring a CPU for dispatch placement (spec.md §4.8
// "effective_smt_load"). A sibling running something contends for the
// shared core's execution resources even though it isn't this CPU's
// own load.
const SMTConflictFactor = 0.5

// EffectiveSMTLoad computes a CPU's contention-aware load: its own
// instantaneous load plus each SMT sibling's instantaneous load
// scaled by SMTConflictFactor (spec.md §4.8).
func EffectiveSMTLoad(ownInstantLoad float64, siblingInstantLoads []float64) float64 {
	total := ownInstantLoad
	for _, s := range siblingInstantLoads {
		total += s * SMTConflictFactor
	}
	return total
}

// SMTHeapKey converts an effective SMT load into a max-heap key: lower
// load sorts to the top of the core's CPU priority heap (spec.md §4.8:
// "key = MAX_LOAD − clamp(effective_smt_load, 0, 1) * MAX_LOAD").
func SMTHeapKey(effectiveSMTLoad float64) int {
	clamped := effectiveSMTLoad
	if clamped < 0 {
		clamped = 0
	}
	if clamped > 1 {
		clamped = 1
	}
	return MaxLoad - int(clamped*MaxLoad)
}

// CPUCandidate is one CPU's current selection-relevant state, sampled
// by the caller before calling ChooseCPU (spec.md §4.8 choose_cpu).
type CPUCandidate struct {
	CPU               topology.CPUID
	EffectiveSMTLoad  float64
	RunQueueDepth     int
	Enabled           bool
}

// ChooseCPU implements §4.8's choose_cpu(core): prefer the thread's
// previous_cpu for cache affinity if it is a candidate on this core
// and its effective SMT load is below 0.75, otherwise pick the
// candidate with the lowest effective SMT load, breaking ties by
// shallower run-queue depth.
func ChooseCPU(candidates []CPUCandidate, previousCPU topology.CPUID, hasPrevious bool) (topology.CPUID, bool) {
	if hasPrevious {
		for _, c := range candidates {
			if c.Enabled && c.CPU == previousCPU && c.EffectiveSMTLoad < 0.75 {
				return c.CPU, true
			}
		}
	}

	best := -1
	for i, c := range candidates {
		if !c.Enabled {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		bc := candidates[best]
		if c.EffectiveSMTLoad < bc.EffectiveSMTLoad ||
			(c.EffectiveSMTLoad == bc.EffectiveSMTLoad && c.RunQueueDepth < bc.RunQueueDepth) {
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	return candidates[best].CPU, true
}
