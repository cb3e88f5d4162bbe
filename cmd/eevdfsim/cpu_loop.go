package main

import (
	"context"
	"time"

	"github.com/tonestone57/eevdf-scheduler/internal/dispatch"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
	"github.com/tonestone57/eevdf-scheduler/internal/simharness"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

// quantumBudgetMicros bounds each simulated quantum request passed to
// Harness.RunQuantum; the dispatcher itself further caps the actual run
// to the dispatched thread's computed slice_duration (spec.md §4.2).
const quantumBudgetMicros = 4000

// burstEWMAShift is the I/O-bound heuristic's fixed-point smoothing
// shift, the same value internal/simharness's own scenario tests drive
// dispatch.OnBlocked with.
const burstEWMAShift = 2

// runCPU is the real-time counterpart to internal/simharness's
// virtual-clock-driven test helpers: it repeatedly dispatches, paces
// wall-clock sleep to the time actually consumed, and feeds
// workload-generator burst/sleep decisions back into the dispatch
// engine's voluntary-block and wake transitions.
func runCPU(ctx context.Context, h *simharness.Harness, cpuID topology.CPUID, reg *workloadRegistry) error {
	cpuRec := h.CPUs[cpuID]
	var current *sched.Thread

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		now := time.Now()
		cpuRec.Lock()
		next, ran := h.RunQuantum(cpuID, now, current, quantumBudgetMicros)
		cpuRec.Unlock()

		current = next
		if next != cpuRec.IdleThread {
			if blocked, sleep := reg.consume(next.ID(), ran); blocked {
				dispatch.OnBlocked(next, true, ran, burstEWMAShift)
				wakeAfter(ctx, h, cpuID, next, sleep)
				current = nil
			}
		}

		if ran <= 0 {
			ran = 1
		}
		time.Sleep(time.Duration(ran) * time.Microsecond)
	}
}

// wakeAfter schedules t's wake onto cpuID after sleep elapses, or
// abandons the wake if ctx is cancelled first because the simulation
// is shutting down.
func wakeAfter(ctx context.Context, h *simharness.Harness, cpuID topology.CPUID, t *sched.Thread, sleep time.Duration) {
	go func() {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
			cpuRec := h.CPUs[cpuID]
			cpuRec.Lock()
			h.Wake(cpuID, t, time.Now())
			cpuRec.Unlock()
		case <-ctx.Done():
		}
	}()
}
