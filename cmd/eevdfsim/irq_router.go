package main

import (
	"context"
	"time"

	"github.com/tonestone57/eevdf-scheduler/internal/irq"
	"github.com/tonestone57/eevdf-scheduler/internal/simharness"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

// irqRouterInterval is how often the simulated router re-evaluates
// placement of its one synthetic interrupt source. spec.md §4.9 leaves
// the driving cadence to the caller; this router uses a fixed 50ms
// cadence, independent of the balancer's adaptive interval.
const irqRouterInterval = 50 * time.Millisecond

// baseModeCap is the fraction of a CPU's capacity IRQ routing may
// consume in performance mode (spec.md §4.9's per-mode base capacity).
const baseModeCap = 0.7

// syntheticIRQLoad is the fraction of a CPU the one simulated IRQ
// source demands, a fixed stand-in for a real measured IRQ rate.
const syntheticIRQLoad = 0.05

// runIRQRouter periodically re-scores every CPU's candidacy for the
// simulation's one synthetic IRQ source and lets
// internal/irq.SelectTargetCPU place it, the live counterpart to the
// package's own unit tests which call SelectTargetCPU directly against
// hand-built candidate slices.
func runIRQRouter(ctx context.Context, h *simharness.Harness, params irq.Params) error {
	existing := make(map[topology.CPUID]float64)
	var current topology.CPUID
	var haveCurrent bool

	ticker := time.NewTicker(irqRouterInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		candidates := buildIRQCandidates(h, existing, params, current, haveCurrent)
		target, ok := irq.SelectTargetCPU(params, candidates, syntheticIRQLoad, baseModeCap)
		if !ok {
			continue
		}
		if haveCurrent && target != current {
			delete(existing, current)
		}
		existing[target] = syntheticIRQLoad
		current, haveCurrent = target, true
	}
}

func buildIRQCandidates(h *simharness.Harness, existing map[topology.CPUID]float64, params irq.Params, current topology.CPUID, haveCurrent bool) []irq.Candidate {
	cpuIDs := h.Topology.CPUIDs()
	out := make([]irq.Candidate, 0, len(cpuIDs))
	for _, id := range cpuIDs {
		cpuRec := h.CPUs[id]
		core := h.Topology.Core(cpuRec.Core)
		dynCap := irq.DynamicCap(params, baseModeCap, cpuRec.InstantaneousLoad)

		siblingLoad := 0.0
		for _, sib := range core.CPUs {
			if sib == id {
				continue
			}
			siblingLoad += h.CPUs[sib].InstantaneousLoad
		}

		existingLoad := existing[id]
		normalized := 0.0
		if dynCap > 0 {
			normalized = existingLoad / dynCap
		}

		out = append(out, irq.Candidate{
			CPU:                id,
			InstantLoad:        cpuRec.InstantaneousLoad,
			SMTSiblingLoad:     siblingLoad,
			ExistingIRQLoad:    existingLoad,
			NormalizedIRQLoad:  normalized,
			EnergyEfficiency:   core.EnergyEfficiency,
			RunningOwnerThread: haveCurrent && id == current,
		})
	}
	return out
}
