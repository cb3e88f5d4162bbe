// Package dispatch implements the tier-1/tier-2 dispatch engine
// (spec.md §4.2 choose_next_thread): team-quota-gated phases A-D over
// a per-CPU run queue, plus the activity/state-transition bookkeeping
// that keeps load and quota accounting current (§4.5, §4.10). The
// phase structure mirrors the teacher's policy.Backend decision-
// function shape: given the current state, return the next action,
// with no side effects beyond what the caller explicitly commits.
package dispatch

import (
	"time"

	"github.com/tonestone57/eevdf-scheduler/internal/eevdf"
	"github.com/tonestone57/eevdf-scheduler/internal/logging"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
	"github.com/tonestone57/eevdf-scheduler/internal/team"
)

var log = logging.Get("dispatch")

// TimerService is the collaborator that programs per-CPU quantum and
// idle-measurement timers (spec.md §4.2: "programs a one-shot quantum
// timer ... idle thread uses a longer load-measurement timer
// instead"). A simulation harness implements this over a virtual
// clock; a real kernel port would implement it over hardware timers.
type TimerService interface {
	ArmQuantum(cpu *sched.CPU, d time.Duration)
	ArmIdleMeasurement(cpu *sched.CPU, d time.Duration)
}

// IdleMeasurementInterval is how often an idle CPU re-arms its load
// measurement timer in lieu of a quantum (spec.md §4.2).
const IdleMeasurementInterval = 4 * time.Millisecond

// ChooseNextThread implements spec.md §4.2 steps 1-5. cpu must already
// have its run-queue lock held by the caller (the interrupts-disabled
// precondition in the spec maps to that lock in this port). oldThread
// may be nil (first dispatch on this CPU).
func ChooseNextThread(
	cpu *sched.CPU,
	teams *team.Registry,
	params eevdf.Params,
	ctx eevdf.Context,
	globalMinVRuntimeMicros int64,
	now time.Time,
	oldThread *sched.Thread,
	timers TimerService,
) *sched.Thread {
	// Step 1: requeue old_thread if it's still READY and not the idle
	// thread.
	if oldThread != nil && oldThread != cpu.IdleThread && oldThread.Ready() && oldThread.Enqueued() {
		eevdf.Recompute(params, oldThread, ctx, globalMinVRuntimeMicros, now, false, true)
		cpu.RunQueue.Add(oldThread)
		syncQueueCount(cpu)
	}

	if activeTeam, ok := cpu.CurrentActiveTeam(); ok {
		// Phase A: active-team RT bypass.
		if next := scanFor(cpu, func(t *sched.Thread) bool {
			tid, has := t.Team()
			return has && tid == activeTeam && sched.IsRealTime(t.EffectivePriority()) && !now.Before(t.EligibleTime())
		}); next != nil {
			log.Debug("cpu %d: phase A rt-bypass dispatch thread %d (team %d)", cpu.ID, next.ID(), activeTeam)
			return finalizeDispatch(cpu, next, now, timers)
		}

		// Phase B: active-team in-quota.
		tm := teams.Get(activeTeam)
		if tm != nil && !tm.QuotaExhausted() {
			if next := scanFor(cpu, func(t *sched.Thread) bool {
				tid, has := t.Team()
				return has && tid == activeTeam && !now.Before(t.EligibleTime())
			}); next != nil {
				log.Debug("cpu %d: phase B in-quota dispatch thread %d (team %d)", cpu.ID, next.ID(), activeTeam)
				return finalizeDispatch(cpu, next, now, timers)
			}
		} else if tm != nil {
			log.Debug("cpu %d: team %d quota exhausted, falling through to phase C", cpu.ID, activeTeam)
		}
	}

	// Phase C: general eligible, any team.
	if next := scanFor(cpu, func(t *sched.Thread) bool {
		return !now.Before(t.EligibleTime())
	}); next != nil {
		log.Debug("cpu %d: phase C general dispatch thread %d", cpu.ID, next.ID())
		return finalizeDispatch(cpu, next, now, timers)
	}

	// Phase D: idle.
	log.Debug("cpu %d: phase D, no eligible thread, dispatching idle", cpu.ID)
	return finalizeIdle(cpu, timers)
}

// scanFor pops at most Count() threads from the queue looking for the
// first one matching pred in deadline order, holding non-matching
// candidates aside and reinserting them once the scan ends (spec.md
// §4.2: "non-matching candidates are held in a temporary list and
// reinserted after the scan ... must not exceed the queue size").
func scanFor(cpu *sched.CPU, pred func(*sched.Thread) bool) *sched.Thread {
	bound := cpu.RunQueue.Count()
	held := make([]*sched.Thread, 0, bound)
	var found *sched.Thread

	for i := 0; i < bound; i++ {
		t := cpu.RunQueue.PopMin()
		if t == nil {
			break
		}
		if pred(t) {
			found = t
			break
		}
		held = append(held, t)
	}
	if len(held) > 0 {
		cpu.RunQueue.AddBatch(held)
	}
	syncQueueCount(cpu)
	return found
}

func syncQueueCount(cpu *sched.CPU) {
	cpu.RunQueueTaskCount.Store(int64(cpu.RunQueue.Count()))
}

func finalizeDispatch(cpu *sched.CPU, next *sched.Thread, now time.Time, timers TimerService) *sched.Thread {
	next.SetEnqueued(false)
	next.SetState(sched.Running)
	next.SetQuantumStartWall(now)
	cpu.MinVirtualRuntimeMicros.Store(next.VirtualRuntime())
	syncQueueCount(cpu)
	if timers != nil {
		timers.ArmQuantum(cpu, time.Duration(next.SliceDurationMicros())*time.Microsecond)
	}
	return next
}

func finalizeIdle(cpu *sched.CPU, timers TimerService) *sched.Thread {
	syncQueueCount(cpu)
	if timers != nil {
		timers.ArmIdleMeasurement(cpu, IdleMeasurementInterval)
	}
	return cpu.IdleThread
}
