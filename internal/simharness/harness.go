// Package simharness assembles every scheduler-core package into a
// single in-process simulation driven by an explicit, manually
// advanced virtual clock: no goroutines, no wall-clock sleeps, so the
// end-to-end scenarios from spec.md §8 run deterministically and fast
// under `go test`. cmd/eevdfsim builds a second, real-time,
// goroutine-per-CPU harness on top of the same packages for live
// demonstration; this package is the one the test suite drives.
package simharness

import (
	"time"

	"github.com/tonestone57/eevdf-scheduler/internal/dispatch"
	"github.com/tonestone57/eevdf-scheduler/internal/eevdf"
	"github.com/tonestone57/eevdf-scheduler/internal/load"
	"github.com/tonestone57/eevdf-scheduler/internal/metrics"
	"github.com/tonestone57/eevdf-scheduler/internal/placement"
	"github.com/tonestone57/eevdf-scheduler/internal/runqueue"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
	"github.com/tonestone57/eevdf-scheduler/internal/team"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

// Harness owns every scheduler record for a fake machine and the
// collaborators (team registry, metrics, placement mode) needed to
// drive dispatch end to end.
type Harness struct {
	Topology *topology.System
	CPUs     map[topology.CPUID]*sched.CPU
	Cores    map[topology.CoreID]*sched.Core
	Packages map[topology.PackageID]*sched.Package
	Global   *sched.Global
	Teams    *team.Registry

	Mode        placement.Mode
	EevdfParams eevdf.Params
	Metrics     *metrics.Collector

	nextThreadID sched.ThreadID
}

// New builds a Harness over an already-constructed topology, creating
// one idle thread and one run queue per CPU and one scheduling record
// per core/package (spec.md §3.3-§3.6).
func New(sys *topology.System, mode placement.Mode, collector *metrics.Collector) *Harness {
	h := &Harness{
		Topology:    sys,
		CPUs:        make(map[topology.CPUID]*sched.CPU),
		Cores:       make(map[topology.CoreID]*sched.Core),
		Packages:    make(map[topology.PackageID]*sched.Package),
		Global:      sched.NewGlobal(),
		Teams:       team.NewRegistry(),
		Mode:        mode,
		EevdfParams: eevdf.DefaultParams(),
		Metrics:     collector,
	}

	for _, pkgID := range sys.PackageIDs() {
		pkg := sys.Package(pkgID)
		h.Packages[pkgID] = sched.NewPackage(pkgID, len(pkg.Cores))
	}
	for _, coreID := range sys.CoreIDs() {
		core := sys.Core(coreID)
		h.Cores[coreID] = sched.NewCore(coreID, core.Package, len(core.CPUs))
		for _, cpuID := range core.CPUs {
			idle := sched.NewThread(h.allocThreadID(), "idle", sched.IdlePriority, 0)
			idle.SetHomeCore(coreID)
			h.CPUs[cpuID] = sched.NewCPU(cpuID, coreID, idle, runqueue.New())
		}
	}
	return h
}

func (h *Harness) allocThreadID() sched.ThreadID {
	h.nextThreadID++
	return h.nextThreadID
}

// SpawnThread implements the CREATED -> READY transition (spec.md
// §4.10): places the new thread via placement.ChooseCoreAndCPU, runs
// the EEVDF parameter machine with is_new_or_relocated, and enqueues
// it on the chosen CPU.
func (h *Harness) SpawnThread(name string, priority int, now time.Time) *sched.Thread {
	t := sched.NewThread(h.allocThreadID(), name, priority, 0)
	h.place(t, now)
	t.SetState(sched.Ready)
	t.SetReady(true)
	t.SetEnqueued(true)
	return t
}

func (h *Harness) place(t *sched.Thread, now time.Time) {
	candidates := h.coreCandidates()
	result, ok := placement.ChooseCoreAndCPU(t, h.Mode, candidates, 0, false, h.cpuCandidatesForCore, now)
	if !ok {
		return
	}
	ctx := h.contextFor(result.CPU)
	eevdf.Recompute(h.EevdfParams, t, ctx, h.Global.GlobalMinVirtualRuntimeMicros.Load(), now, true, false)
	cpu := h.CPUs[result.CPU]
	cpu.RunQueue.Add(t)
	cpu.RunQueueTaskCount.Store(int64(cpu.RunQueue.Count()))
	h.refreshCoreLoad(result.Core)
}

// refreshCoreLoad recomputes a core's placement-visible Load as the
// summed run-queue depth of its logical CPUs. Real long-window load
// (internal/load.LongWindowLoad) only accumulates once a thread has
// actually run a quantum; queue depth is the faster-reacting signal
// placement needs at spawn time, before anything has run yet (spec.md
// §4.6 leaves the exact aggregate load definition to the
// implementation: "free to consider aggregate load...").
func (h *Harness) refreshCoreLoad(core topology.CoreID) {
	topo := h.Topology.Core(core)
	depth := 0
	for _, cpuID := range topo.CPUs {
		depth += h.CPUs[cpuID].RunQueue.Count()
	}
	h.Cores[core].Load = float64(depth)
}

func (h *Harness) coreCandidates() []placement.CoreCandidate {
	out := make([]placement.CoreCandidate, 0, len(h.Cores))
	for id, c := range h.Cores {
		topo := h.Topology.Core(id)
		out = append(out, placement.CoreCandidate{
			Core:             id,
			Package:          c.Package,
			Load:             c.Load,
			CoreType:         topo.CoreType,
			EnergyEfficiency: topo.EnergyEfficiency,
			Defunct:          c.Defunct,
		})
	}
	return out
}

func (h *Harness) cpuCandidatesForCore(core topology.CoreID) []load.CPUCandidate {
	topo := h.Topology.Core(core)
	out := make([]load.CPUCandidate, 0, len(topo.CPUs))
	for _, cpuID := range topo.CPUs {
		cpu := h.CPUs[cpuID]
		out = append(out, load.CPUCandidate{
			CPU:              cpuID,
			EffectiveSMTLoad: cpu.InstantaneousLoad,
			RunQueueDepth:    cpu.RunQueue.Count(),
			Enabled:          h.Topology.CPU(cpuID).Enabled(),
		})
	}
	return out
}

func (h *Harness) contextFor(cpu topology.CPUID) eevdf.Context {
	cpuRec := h.CPUs[cpu]
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

// noopTimers is a no-op dispatch.TimerService: this harness is
// synchronously stepped by its caller, so there is nothing for it to
// arm.
type noopTimers struct{}

func (noopTimers) ArmQuantum(cpu *sched.CPU, d time.Duration)         {}
func (noopTimers) ArmIdleMeasurement(cpu *sched.CPU, d time.Duration) {}

// RunQuantum dispatches the next thread on cpu, runs it for up to
// runMicros of simulated wall time (capped at its slice_duration), and
// folds the result into load/quota accounting (spec.md §4.2, §4.5).
// It returns the thread that ran (possibly the idle thread) and how
// long it actually ran.
func (h *Harness) RunQuantum(cpu topology.CPUID, now time.Time, oldThread *sched.Thread, runMicros int64) (*sched.Thread, int64) {
	cpuRec := h.CPUs[cpu]
	coreRec := h.Cores[cpuRec.Core]
	ctx := h.contextFor(cpu)

	h.pickActiveTeam(cpuRec)
	next := dispatch.ChooseNextThread(cpuRec, h.Teams, h.EevdfParams, ctx, h.Global.GlobalMinVirtualRuntimeMicros.Load(), now, oldThread, noopTimers{})

	ran := runMicros
	if next != cpuRec.IdleThread {
		if sliceMicros := next.SliceDurationMicros(); sliceMicros < ran {
			ran = sliceMicros
		}
	}

	elapsed := ran
	if elapsed <= 0 {
		elapsed = 1
	}
	dispatch.TrackActivity(cpuRec, coreRec, h.Teams, next, ran, elapsed, int64(h.Topology.Core(cpuRec.Core).PerformanceCapacity))

	if next != cpuRec.IdleThread {
		next.SetReady(true)
		next.SetEnqueued(true)
	}

	return next, ran
}

// GlobalVRuntime exposes the process-wide min-vruntime reading used as
// the EEVDF parameter machine's fallback reference.
func (h *Harness) GlobalVRuntime() int64 {
	return h.Global.GlobalMinVirtualRuntimeMicros.Load()
}

// Wake implements the BLOCKED -> READY transition end to end (spec.md
// §4.10): it runs the EEVDF parameter machine over the woken thread
// (via dispatch.OnWoken) and physically re-inserts it into the given
// CPU's run queue. homeCoreChanged is always false here; a fuller
// port would re-run placement.ChooseCoreAndCPU first and wake onto
// whatever core that returns.
func (h *Harness) Wake(cpu topology.CPUID, t *sched.Thread, now time.Time) {
	cpuRec := h.CPUs[cpu]
	ctx := h.contextFor(cpu)
	dispatch.OnWoken(h.EevdfParams, t, ctx, h.Global.GlobalMinVirtualRuntimeMicros.Load(), now, false)
	t.SetEnqueued(true)
	cpuRec.RunQueue.Add(t)
	cpuRec.RunQueueTaskCount.Store(int64(cpuRec.RunQueue.Count()))
}

// pickActiveTeam is the tier-1 team picker spec.md §4.4 leaves external
// to the dispatch engine: it designates the team with the lowest
// team_virtual_runtime as this CPU's current_active_team, the same
// min-vruntime-goes-next fairness rule EEVDF applies one tier down to
// threads. With zero or one registered team this is a no-op / trivial
// pick.
func (h *Harness) pickActiveTeam(cpu *sched.CPU) {
	teams := h.Teams.All()
	if len(teams) == 0 {
		return
	}
	best := teams[0]
	for _, tm := range teams[1:] {
		if tm.VirtualRuntime() < best.VirtualRuntime() {
			best = tm
		}
	}
	cpu.SetCurrentActiveTeam(best.ID())
}
