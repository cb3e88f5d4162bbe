package dispatch

import (
	"time"

	"github.com/tonestone57/eevdf-scheduler/internal/eevdf"
	"github.com/tonestone57/eevdf-scheduler/internal/load"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
	"github.com/tonestone57/eevdf-scheduler/internal/team"
)

// TrackActivity folds a completed quantum (or partial quantum, on
// preemption) into per-CPU and per-core load accounting (spec.md
// §4.5), and into the outgoing thread's team's quota usage (§4.4).
// activeMicros is wall-clock time old actually ran; capacity is the
// CPU's core's performance_capacity.
func TrackActivity(cpu *sched.CPU, core *sched.Core, teams *team.Registry, old *sched.Thread, activeMicros, elapsedMicros, capacity int64) {
	cpu.InstantaneousLoad = load.InstantaneousLoad(cpu.InstantaneousLoad, activeMicros, elapsedMicros)
	cpu.MeasureActiveTime += activeMicros * capacity / eevdf.NominalCapacity
	cpu.MeasureTime += elapsedMicros
	cpu.LongWindowLoad = load.LongWindowLoad(cpu.MeasureActiveTime, cpu.MeasureTime, eevdf.NominalCapacity)

	if old == nil || old == cpu.IdleThread {
		return
	}

	normalizedActive := activeMicros * capacity / eevdf.NominalCapacity
	weightedNormalizedActive := normalizedActive * eevdf.WeightScale / old.Weight()
	old.AddVirtualRuntime(weightedNormalizedActive)
	old.AddLag(-weightedNormalizedActive)
	old.SetTimeUsedInQuantum(old.TimeUsedInQuantum() + activeMicros)

	if tid, ok := old.Team(); ok {
		if tm := teams.Get(tid); tm != nil {
			tm.AccountActiveTime(activeMicros)
		}
	}

	_ = core // the per-core record is not updated here; its Load is
	// maintained by the caller.
}

// OnPreempted implements the RUNNING -> READY transition (spec.md
// §4.10): virtual_runtime/lag have already been advanced by
// TrackActivity; this recomputes EEVDF parameters with is_requeue so
// the thread's deadline reflects the new accounting before reinsertion
// (performed by the caller, normally inside ChooseNextThread step 1).
func OnPreempted(params eevdf.Params, t *sched.Thread, ctx eevdf.Context, globalMinVRuntimeMicros int64, now time.Time) {
	t.SetReady(true)
	t.SetEnqueued(true)
	t.SetState(sched.Ready)
	eevdf.Recompute(params, t, ctx, globalMinVRuntimeMicros, now, false, true)
}

// OnBlocked implements the RUNNING -> BLOCKED transition (spec.md
// §4.10): voluntary sleeps update the I/O-bound heuristic state;
// virtual_runtime is retained but slice-accounting scratch resets.
func OnBlocked(t *sched.Thread, voluntary bool, burstMicros int64, ewmaAlphaShift uint) {
	t.SetState(sched.Blocked)
	t.SetReady(false)
	if voluntary {
		prevEWMA := t.AverageRunBurstEWMA()
		// Exponential blend in integer microseconds: new = prev + (burst -
		// prev) >> shift, the fixed-point EWMA idiom used throughout this
		// port instead of floating point for scratch-state thread fields.
		t.SetAverageRunBurstEWMA(prevEWMA + ((burstMicros - prevEWMA) >> ewmaAlphaShift))
		t.IncVoluntarySleepTransitions()
	}
	t.SetTimeUsedInQuantum(0)
}

// OnWoken implements the BLOCKED -> READY transition (spec.md §4.10):
// placement may relocate the thread to a different core; the caller
// passes whether home_core actually changed so EEVDF recompute knows
// whether to treat this as is_new_or_relocated.
func OnWoken(params eevdf.Params, t *sched.Thread, ctx eevdf.Context, globalMinVRuntimeMicros int64, now time.Time, homeCoreChanged bool) {
	t.SetState(sched.Ready)
	t.SetReady(true)
	eevdf.Recompute(params, t, ctx, globalMinVRuntimeMicros, now, homeCoreChanged, false)
}

// OnExit implements Any -> EXITING (spec.md §4.10): unassign from
// core and zero needed_load so load accounting stops counting this
// thread's demand.
func OnExit(t *sched.Thread) {
	t.SetState(sched.Exiting)
	t.SetReady(false)
	t.SetEnqueued(false)
	t.ClearHomeCore()
	t.SetNeededLoad(0)
}
