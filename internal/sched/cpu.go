package sched

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tonestone57/eevdf-scheduler/internal/team"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

// RunQueue is the subset of internal/runqueue.Queue's behavior the
// per-CPU record needs to know about (spec.md §4.1). Declaring the
// interface here, at the consumer, rather than depending on the
// runqueue package directly, keeps this package free of a dependency
// on the heap implementation while *runqueue.Queue still satisfies it
// structurally.
type RunQueue interface {
	Add(t *Thread)
	AddBatch(threads []*Thread)
	Remove(t *Thread) bool
	PopMin() *Thread
	PeekMin() *Thread
	Update(t *Thread)
	Count() int
	IsEmpty() bool

	// LowestActiveBasePriority reports the lowest base_priority among
	// this queue's currently enqueued non-RT threads (spec.md §3.1
	// effective_priority derivation), ok false if none are queued.
	LowestActiveBasePriority() (priority int, ok bool)
}

// CPU is the per-CPU scheduling record (spec.md §3.3). It sits beside,
// not inside, topology.CPU: the topology package describes the hardware,
// this package describes what the scheduler is doing with it.
type CPU struct {
	mu sync.Mutex // run-queue spinlock (concurrency model §5, level 2)

	ID         topology.CPUID
	Core       topology.CoreID
	IdleThread *Thread

	RunQueue RunQueue

	// RunQueueTaskCount mirrors the queue's Count() atomically so
	// lock-free readers (e.g. the balancer scanning candidate CPUs) can
	// sample depth without acquiring the run-queue lock (spec.md §5
	// atomics).
	RunQueueTaskCount atomic.Int64

	// MinVirtualRuntimeMicros is the cached anchor used by the EEVDF
	// parameter machine for newly joining threads (spec.md §3.3).
	MinVirtualRuntimeMicros atomic.Int64

	currentActiveTeam    team.ID
	hasCurrentActiveTeam bool

	// Load accounting (spec.md §4.5). Guarded by mu since they are
	// updated together with run-queue activity.
	InstantaneousLoad  float64 // EWMA, [0,1]
	LongWindowLoad     float64 // [0, load.MaxLoad]
	MeasureActiveTime  int64   // capacity-normalized microseconds
	MeasureTime        int64   // wall-clock microseconds elapsed

	NextStealAttemptTime   time.Time
	LastTimeTaskStolenFrom time.Time

	// SMTAwareHeapKey is a slot for this CPU's position key in its core's
	// CPU priority heap (spec.md §4.8). Nothing in this module updates it
	// when InstantaneousLoad changes.
	SMTAwareHeapKey int
}

// NewCPU creates a per-CPU record. idleThread must be a Thread whose
// base priority is IdlePriority; it is never enqueued (spec.md §3.1
// invariant).
func NewCPU(id topology.CPUID, core topology.CoreID, idleThread *Thread, rq RunQueue) *CPU {
	return &CPU{ID: id, Core: core, IdleThread: idleThread, RunQueue: rq}
}

// Lock acquires the run-queue spinlock.
func (c *CPU) Lock() { c.mu.Lock() }

// Unlock releases the run-queue spinlock.
func (c *CPU) Unlock() { c.mu.Unlock() }

// CurrentActiveTeam returns the team the tier-1 team picker has
// designated active on this CPU, if any (spec.md §4.4).
func (c *CPU) CurrentActiveTeam() (team.ID, bool) {
	return c.currentActiveTeam, c.hasCurrentActiveTeam
}

// SetCurrentActiveTeam sets the CPU's active team.
func (c *CPU) SetCurrentActiveTeam(id team.ID) {
	c.currentActiveTeam = id
	c.hasCurrentActiveTeam = true
}

// ClearCurrentActiveTeam clears the CPU's active team.
func (c *CPU) ClearCurrentActiveTeam() {
	c.hasCurrentActiveTeam = false
}

// Core is the per-core scheduling record (spec.md §3.4). Static
// capacity/type information lives in topology.Core; this struct holds
// only what changes as the scheduler runs.
type Core struct {
	mu sync.RWMutex // CPU-heap spinlock (concurrency model §5, level 3)

	ID           topology.CoreID
	Package      topology.PackageID
	CPUCount     int
	IdleCPUCount int

	Load              float64 // aggregate load placement ranks cores by; internal/simharness sets it to the summed run-queue depth
	InstantaneousLoad float64
	HighLoad          bool
	LoadEpoch         uint64

	Defunct bool
}

// NewCore creates a per-core scheduling record.
func NewCore(id topology.CoreID, pkg topology.PackageID, cpuCount int) *Core {
	return &Core{ID: id, Package: pkg, CPUCount: cpuCount, IdleCPUCount: cpuCount}
}

// Lock acquires the CPU-heap spinlock for this core.
func (c *Core) Lock() { c.mu.Lock() }

// Unlock releases the CPU-heap spinlock.
func (c *Core) Unlock() { c.mu.Unlock() }

// RLock acquires the CPU-heap spinlock for reading.
func (c *Core) RLock() { c.mu.RLock() }

// RUnlock releases a read lock on the CPU-heap spinlock.
func (c *Core) RUnlock() { c.mu.RUnlock() }

// Package is the per-package scheduling record (spec.md §3.5).
type Package struct {
	mu sync.RWMutex // package core-list rw-spinlock (concurrency model §5, level 5)

	ID        topology.PackageID
	CoreCount int
	idleCores map[topology.CoreID]struct{}
}

// NewPackage creates a per-package scheduling record.
func NewPackage(id topology.PackageID, coreCount int) *Package {
	return &Package{ID: id, CoreCount: coreCount, idleCores: make(map[topology.CoreID]struct{})}
}

// Lock acquires the package's core-list lock.
func (p *Package) Lock() { p.mu.Lock() }

// Unlock releases the package's core-list lock.
func (p *Package) Unlock() { p.mu.Unlock() }

// MarkCoreIdle records that a core in this package has gone fully idle.
func (p *Package) MarkCoreIdle(id topology.CoreID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idleCores[id] = struct{}{}
}

// MarkCoreBusy records that a core in this package is no longer fully
// idle.
func (p *Package) MarkCoreBusy(id topology.CoreID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.idleCores, id)
}

// FullyIdle reports whether every core in the package is idle.
func (p *Package) FullyIdle() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.idleCores) == p.CoreCount
}

// IdleCores returns the IDs of currently-idle cores in this package.
func (p *Package) IdleCores() []topology.CoreID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]topology.CoreID, 0, len(p.idleCores))
	for id := range p.idleCores {
		out = append(out, id)
	}
	return out
}

// Global is the process-wide scheduler state (spec.md §3.6).
type Global struct {
	// GlobalMinVirtualRuntimeMicros is the 64-bit atomic fairness-clock
	// floor used when a CPU's own min-vruntime is unknown or stale.
	GlobalMinVirtualRuntimeMicros atomic.Int64

	mu                   sync.RWMutex
	idlePackages         map[topology.PackageID]struct{}
	reportedCPUMinVRuntime map[topology.CPUID]*atomic.Int64
}

// NewGlobal creates empty global scheduler state.
func NewGlobal() *Global {
	return &Global{
		idlePackages:           make(map[topology.PackageID]struct{}),
		reportedCPUMinVRuntime: make(map[topology.CPUID]*atomic.Int64),
	}
}

// ReportedCPUMinVRuntime returns the atomic cell a CPU uses to publish
// its locally observed min-vruntime, creating it on first use.
func (g *Global) ReportedCPUMinVRuntime(cpu topology.CPUID) *atomic.Int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	cell, ok := g.reportedCPUMinVRuntime[cpu]
	if !ok {
		cell = &atomic.Int64{}
		g.reportedCPUMinVRuntime[cpu] = cell
	}
	return cell
}

// MarkPackageIdle records that every core in a package is idle.
func (g *Global) MarkPackageIdle(id topology.PackageID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idlePackages[id] = struct{}{}
}

// MarkPackageBusy records that a package is no longer fully idle.
func (g *Global) MarkPackageBusy(id topology.PackageID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.idlePackages, id)
}

// IdlePackages returns the IDs of currently fully-idle packages.
func (g *Global) IdlePackages() []topology.PackageID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]topology.PackageID, 0, len(g.idlePackages))
	for id := range g.idlePackages {
		out = append(out, id)
	}
	return out
}
