package main

import (
	"context"
	"time"

	"github.com/tonestone57/eevdf-scheduler/internal/balance"
	"github.com/tonestone57/eevdf-scheduler/internal/eevdf"
	"github.com/tonestone57/eevdf-scheduler/internal/simharness"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

// contextForCPU rebuilds the eevdf.Context internal/simharness.Harness
// computes internally for its own dispatch path (Harness.contextFor is
// unexported), so the balancer can drive internal/balance.Migrate
// against the same live CPU records. Work stealing
// (internal/balance.StealFromVictims) is not driven by this binary.
func contextForCPU(h *simharness.Harness, cpuID topology.CPUID) eevdf.Context {
	cpuRec := h.CPUs[cpuID]
	core := h.Topology.Core(cpuRec.Core)
	floor, haveFloor := cpuRec.RunQueue.LowestActiveBasePriority()
	return eevdf.Context{
		Capacity:                    int64(core.PerformanceCapacity),
		MinVRuntimeMicros:           cpuRec.MinVirtualRuntimeMicros.Load(),
		Known:                       true,
		QueueDepth:                  cpuRec.RunQueue.Count(),
		LowestActiveBasePriority:    floor,
		HasLowestActiveBasePriority: haveFloor,
	}
}

// runBalancer drives spec.md §4.7's periodic load balancer at an
// adaptively sized interval (internal/balance.NextIntervalMicros),
// picking the busiest and idlest CPU by run-queue depth each round and
// migrating one eligible thread between them.
func runBalancer(ctx context.Context, h *simharness.Harness, params balance.Params) error {
	// The first round waits 100ms, clamped into the configured bounds.
	interval := int64(100_000)
	if interval < params.MinIntervalMicros {
		interval = params.MinIntervalMicros
	}
	if interval > params.MaxIntervalMicros {
		interval = params.MaxIntervalMicros
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(interval) * time.Microsecond):
		}

		migrated := balanceOnce(h, params, time.Now())
		interval = balance.NextIntervalMicros(params, interval, migrated)
	}
}

func balanceOnce(h *simharness.Harness, params balance.Params, now time.Time) int {
	cpuIDs := h.Topology.CPUIDs()
	if len(cpuIDs) < 2 {
		return 0
	}

	var busiest, idlest topology.CPUID
	maxDepth, minDepth := int64(-1), int64(-1)
	for _, id := range cpuIDs {
		depth := h.CPUs[id].RunQueueTaskCount.Load()
		if maxDepth < 0 || depth > maxDepth {
			maxDepth, busiest = depth, id
		}
		if minDepth < 0 || depth < minDepth {
			minDepth, idlest = depth, id
		}
	}
	if busiest == idlest || maxDepth-minDepth < 2 {
		return 0
	}

	source, dest := h.CPUs[busiest], h.CPUs[idlest]
	first, second := source, dest
	if dest.ID < source.ID {
		first, second = dest, source
	}
	first.Lock()
	if second != first {
		second.Lock()
	}
	defer func() {
		if second != first {
			second.Unlock()
		}
		first.Unlock()
	}()

	candidate := source.RunQueue.PeekMin()
	if candidate == nil || !balance.MigrationCandidate(params, candidate, true, now) {
		return 0
	}

	destCtx := contextForCPU(h, idlest)
	if !balance.Migrate(h.EevdfParams, source, dest, candidate, destCtx, h.GlobalVRuntime(), now) {
		return 0
	}
	return 1
}
