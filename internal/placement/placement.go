// Package placement implements initial and wake-time core/CPU
// selection (spec.md §4.6, §4.18): a pluggable Mode decides which core
// a thread should start on, then internal/load's SMT-aware choose_cpu
// picks the logical CPU within it. The mode-pluggable shape mirrors
// the teacher's topology-aware policy's pluggable placement tree.
package placement

import (
	"time"

	"github.com/tonestone57/eevdf-scheduler/internal/load"
	"github.com/tonestone57/eevdf-scheduler/internal/logging"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

var log = logging.Get("placement")

// CoreCandidate is one core's placement-relevant state, sampled by the
// caller before calling a Mode (spec.md §4.6: "free to consider
// aggregate load, package idleness, energy efficiency, and core
// type").
type CoreCandidate struct {
	Core              topology.CoreID
	Package           topology.PackageID
	Load              float64
	PackageFullyIdle  bool
	CoreType          topology.CoreType
	EnergyEfficiency  int
	Defunct           bool
}

// Mode chooses a core for a thread out of a set of candidates
// (spec.md §4.6 "choose_core(thread) -> core"). At least Performance
// and PowerSave are provided (spec.md §4.18).
type Mode interface {
	Name() string
	ChooseCore(candidates []CoreCandidate) (topology.CoreID, bool)
}

// Result reports the outcome of a placement decision (spec.md §4.6:
// "return a flag indicating whether the target CPU needs an immediate
// reschedule").
type Result struct {
	Core              topology.CoreID
	CPU               topology.CPUID
	NeedsReschedule   bool
	Migrated          bool
}

// ChooseCoreAndCPU implements spec.md §4.6. hintCore is a
// caller-supplied target core hint (e.g. from an explicit pin request);
// hasHintCore reports whether it was supplied at all. There is no CPU
// hint: the CPU within the chosen core always comes from load.ChooseCPU.
// candidates must already be filtered to cores feasible under the
// thread's affinity mask (internal/topology.ValidateAffinity is
// expected to have run first).
func ChooseCoreAndCPU(
	t *sched.Thread,
	mode Mode,
	candidates []CoreCandidate,
	hintCore topology.CoreID,
	hasHintCore bool,
	cpuCandidatesForCore func(topology.CoreID) []load.CPUCandidate,
	now time.Time,
) (Result, bool) {
	var chosenCore topology.CoreID
	var ok bool

	if hasHintCore {
		for _, c := range candidates {
			if c.Core == hintCore && !c.Defunct {
				chosenCore, ok = hintCore, true
				break
			}
		}
	}
	if !ok {
		chosenCore, ok = mode.ChooseCore(candidates)
	}
	if !ok {
		log.Debug("thread %d: no feasible core among %d candidates (mode %q)", t.ID(), len(candidates), mode.Name())
		return Result{}, false
	}

	previousCPU, hasPrevious := t.PreviousCPU()
	cpuCandidates := cpuCandidatesForCore(chosenCore)
	chosenCPU, cpuOK := load.ChooseCPU(cpuCandidates, previousCPU, hasPrevious)
	if !cpuOK {
		log.Debug("thread %d: core %d chosen but no feasible cpu among %d siblings", t.ID(), chosenCore, len(cpuCandidates))
		return Result{}, false
	}

	migrated := false
	homeCore, hasHome := t.HomeCore()
	if !hasHome || homeCore != chosenCore {
		t.SetHomeCore(chosenCore)
		t.SetLastMigrationTime(now)
		migrated = true
	}

	needsReschedule := migrated || cpuIsIdleCandidate(cpuCandidates, chosenCPU)

	log.Debug("thread %d: placed on core %d cpu %d (mode %q, migrated=%v, reschedule=%v)", t.ID(), chosenCore, chosenCPU, mode.Name(), migrated, needsReschedule)

	return Result{Core: chosenCore, CPU: chosenCPU, NeedsReschedule: needsReschedule, Migrated: migrated}, true
}

func cpuIsIdleCandidate(candidates []load.CPUCandidate, cpu topology.CPUID) bool {
	for _, c := range candidates {
		if c.CPU == cpu {
			return c.RunQueueDepth == 0
		}
	}
	return false
}
