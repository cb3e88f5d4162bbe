// Package sched holds the scheduler's core mutable records — the
// per-thread EEVDF state (spec.md §3.1) and the per-CPU/core/package
// scheduling bookkeeping (spec.md §3.3–§3.6) — as plain, arena-indexed
// structs. Behavior lives in the packages that operate on these records
// (internal/eevdf, internal/runqueue, internal/load, internal/dispatch,
// internal/placement, internal/balance, internal/irq); this package only
// owns the data and the invariants simple enough to enforce locally.
//
// This is the "cyclic graph of back-pointers → arenas with integer
// indices" re-architecture spec.md §9 calls for: threads refer to CPUs,
// cores and teams by ID (topology.CPUID/CoreID, team.ID), never by
// pointer-to-pointer cycles.
package sched

import (
	"sync"
	"time"

	"k8s.io/utils/cpuset"

	"github.com/tonestone57/eevdf-scheduler/internal/team"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

// ThreadID identifies a thread. Minted by a plain counter (the
// simulation harness's allocThreadID): scheduler identity never needs
// to survive a process restart, so no uuid is involved.
type ThreadID uint64

// State is the thread scheduling state machine (spec.md §4.10).
type State int

const (
	// Created is the state between thread creation and first enqueue.
	Created State = iota
	// Ready means the thread is enqueued and waiting for the CPU.
	Ready
	// Running means the thread is the one currently executing on a CPU.
	Running
	// Blocked means the thread is asleep, voluntarily or not.
	Blocked
	// Exiting means the thread has been unassigned and is tearing down.
	Exiting
)

// Priority bands. Real-time threads always occupy [RTPriorityMin,
// RTPriorityMax]; Idle is a single reserved value below the normal
// range; everything else is the non-RT "normal" range nice -20..+19
// maps into (spec.md §3.1 effective_priority / base_priority).
const (
	IdlePriority     = 0
	NormalPriorityMin = 100
	NormalPriorityMax = 139
	// NormalPriorityNice0 is the base_priority corresponding to nice 0.
	NormalPriorityNice0 = 120
	RTPriorityMin     = 140
	RTPriorityMax     = 179
)

// IsRealTime reports whether a base_priority value falls in the
// real-time band.
func IsRealTime(priority int) bool {
	return priority >= RTPriorityMin
}

// IsIdlePriority reports whether a base_priority value is the idle
// band.
func IsIdlePriority(priority int) bool {
	return priority == IdlePriority
}

// MaxAffinitizedIRQs bounds the per-thread colocated-IRQ list (spec.md
// §3.1, §4.9).
const MaxAffinitizedIRQs = 4

// Thread is the per-thread EEVDF scheduling record (spec.md §3.1).
type Thread struct {
	mu sync.Mutex // per-thread scheduler lock (concurrency model §5, outermost)

	id   ThreadID
	name string

	// Priority and derived weight.
	basePriority      int
	latencyNice       int // [-20, +19]
	effectivePriority int
	weight            int64

	// EEVDF parameters (all wall-clock microseconds unless noted).
	sliceDuration    int64
	virtualRuntime   int64 // capacity-normalized weighted consumed work
	lag              int64 // capacity-normalized weighted deficit/surplus
	eligibleTime     time.Time
	virtualDeadline  time.Time

	// Slice-accounting scratch.
	timeUsedInQuantum  int64
	stolenTime         int64
	quantumStartWall   time.Time

	// I/O-bound heuristic state.
	averageRunBurstEWMA     int64 // microseconds
	voluntarySleepTransitions int

	// Long-window demand estimate, 0..load.MaxLoad.
	neededLoad int64

	// Placement.
	homeCore      topology.CoreID
	hasHomeCore   bool
	previousCPU   topology.CPUID
	hasPreviousCPU bool
	cpuMask       cpuset.CPUSet
	pinnedCPU     topology.CPUID
	hasPinnedCPU  bool

	lastMigrationTime time.Time

	affinitizedIRQs []int

	team   team.ID
	hasTeam bool

	state    State
	enqueued bool
	ready    bool

	// HeapIndex is the thread's position in its run queue's binary heap.
	// It is exclusively managed by internal/runqueue; nothing else reads
	// or writes it. -1 means "not in any heap".
	HeapIndex int
}

// NewThread creates a thread record in the Created state.
func NewThread(id ThreadID, name string, basePriority, latencyNice int) *Thread {
	return &Thread{
		id:                id,
		name:              name,
		basePriority:      basePriority,
		latencyNice:       latencyNice,
		effectivePriority: basePriority,
		weight:            1,
		cpuMask:           cpuset.CPUSet{},
		state:             Created,
		HeapIndex:         -1,
	}
}

// ID returns the thread's identity.
func (t *Thread) ID() ThreadID { return t.id }

// Name returns the thread's debug name.
func (t *Thread) Name() string { return t.name }

// Lock acquires the per-thread scheduler lock (concurrency model §5).
func (t *Thread) Lock() { t.mu.Lock() }

// Unlock releases the per-thread scheduler lock.
func (t *Thread) Unlock() { t.mu.Unlock() }

// BasePriority returns the thread's configured base priority.
func (t *Thread) BasePriority() int { return t.basePriority }

// SetBasePriority updates the base priority (spec.md §6
// set_thread_priority). Recomputing weight/effective priority is the
// caller's (internal/eevdf's) job, since it also needs the active
// floor context described in spec.md §3.1.
func (t *Thread) SetBasePriority(p int) { t.basePriority = p }

// LatencyNice returns the thread's latency-nice value.
func (t *Thread) LatencyNice() int { return t.latencyNice }

// SetLatencyNice updates the latency-nice value (spec.md §6
// set_thread_latency_nice), clamped to [-20, 19].
func (t *Thread) SetLatencyNice(n int) {
	if n < -20 {
		n = -20
	}
	if n > 19 {
		n = 19
	}
	t.latencyNice = n
}

// EffectivePriority returns the derived effective priority.
func (t *Thread) EffectivePriority() int { return t.effectivePriority }

// SetEffectivePriority is called by internal/eevdf after recomputing
// the floor described in spec.md §3.1.
func (t *Thread) SetEffectivePriority(p int) { t.effectivePriority = p }

// Weight returns the thread's EEVDF weight (always >= 1, spec.md §3.1
// invariant).
func (t *Thread) Weight() int64 { return t.weight }

// SetWeight sets the thread's EEVDF weight.
func (t *Thread) SetWeight(w int64) {
	if w < 1 {
		w = 1
	}
	t.weight = w
}

// SliceDuration returns the thread's current computed slice.
func (t *Thread) SliceDuration() time.Duration { return time.Duration(t.sliceDuration) * time.Microsecond }

// SetSliceDurationMicros sets the computed slice, in microseconds.
func (t *Thread) SetSliceDurationMicros(us int64) { t.sliceDuration = us }

// SliceDurationMicros returns the computed slice, in microseconds.
func (t *Thread) SliceDurationMicros() int64 { return t.sliceDuration }

// VirtualRuntime returns the thread's accumulated virtual runtime in
// microseconds.
func (t *Thread) VirtualRuntime() int64 { return t.virtualRuntime }

// SetVirtualRuntime sets the thread's virtual runtime in microseconds.
func (t *Thread) SetVirtualRuntime(v int64) { t.virtualRuntime = v }

// AddVirtualRuntime adds to the thread's virtual runtime, saturating at
// the int64 limits rather than overflowing (spec.md §9 "Integer overflow
// in vruntime += weighted_work").
func (t *Thread) AddVirtualRuntime(delta int64) {
	t.virtualRuntime = saturatingAdd(t.virtualRuntime, delta)
}

// Lag returns the thread's current lag in microseconds (capacity
// normalized, weighted).
func (t *Thread) Lag() int64 { return t.lag }

// SetLag sets the thread's lag.
func (t *Thread) SetLag(l int64) { t.lag = l }

// AddLag adds to the thread's lag, saturating at the int64 limits.
func (t *Thread) AddLag(delta int64) {
	t.lag = saturatingAdd(t.lag, delta)
}

// EligibleTime returns the wall-clock time at which the thread may run.
func (t *Thread) EligibleTime() time.Time { return t.eligibleTime }

// SetEligibleTime sets the thread's eligible time.
func (t *Thread) SetEligibleTime(when time.Time) { t.eligibleTime = when }

// VirtualDeadline returns the run queue's ordering key: eligible_time
// plus the weighted entitlement internal/eevdf.Recompute derives from
// slice_duration.
func (t *Thread) VirtualDeadline() time.Time { return t.virtualDeadline }

// SetVirtualDeadline sets the thread's virtual deadline.
func (t *Thread) SetVirtualDeadline(when time.Time) { t.virtualDeadline = when }

// QuantumStartWall returns when the current quantum started.
func (t *Thread) QuantumStartWall() time.Time { return t.quantumStartWall }

// SetQuantumStartWall records the wall-clock time a quantum began.
func (t *Thread) SetQuantumStartWall(when time.Time) { t.quantumStartWall = when }

// TimeUsedInQuantum returns elapsed microseconds in the current quantum.
func (t *Thread) TimeUsedInQuantum() int64 { return t.timeUsedInQuantum }

// SetTimeUsedInQuantum sets elapsed microseconds in the current quantum.
func (t *Thread) SetTimeUsedInQuantum(us int64) { t.timeUsedInQuantum = us }

// AverageRunBurstEWMA returns the I/O-bound heuristic's smoothed run
// burst length, in microseconds.
func (t *Thread) AverageRunBurstEWMA() int64 { return t.averageRunBurstEWMA }

// SetAverageRunBurstEWMA sets the smoothed run burst length.
func (t *Thread) SetAverageRunBurstEWMA(us int64) { t.averageRunBurstEWMA = us }

// VoluntarySleepTransitions returns the I/O-bound heuristic's observed
// voluntary sleep count.
func (t *Thread) VoluntarySleepTransitions() int { return t.voluntarySleepTransitions }

// IncVoluntarySleepTransitions bumps the voluntary sleep counter.
func (t *Thread) IncVoluntarySleepTransitions() { t.voluntarySleepTransitions++ }

// NeededLoad returns the thread's long-window demand EWMA.
func (t *Thread) NeededLoad() int64 { return t.neededLoad }

// SetNeededLoad sets the thread's long-window demand EWMA.
func (t *Thread) SetNeededLoad(v int64) { t.neededLoad = v }

// HomeCore returns the thread's current home core, if any.
func (t *Thread) HomeCore() (topology.CoreID, bool) { return t.homeCore, t.hasHomeCore }

// SetHomeCore sets the thread's home core.
func (t *Thread) SetHomeCore(id topology.CoreID) {
	t.homeCore = id
	t.hasHomeCore = true
}

// ClearHomeCore unassigns the thread's home core (spec.md §4.10, any →
// Exiting: "unassign from core").
func (t *Thread) ClearHomeCore() {
	t.hasHomeCore = false
}

// PreviousCPU returns the last CPU the thread ran on, if any.
func (t *Thread) PreviousCPU() (topology.CPUID, bool) { return t.previousCPU, t.hasPreviousCPU }

// SetPreviousCPU records the last CPU the thread ran on.
func (t *Thread) SetPreviousCPU(id topology.CPUID) {
	t.previousCPU = id
	t.hasPreviousCPU = true
}

// CPUMask returns the thread's affinity mask.
func (t *Thread) CPUMask() cpuset.CPUSet { return t.cpuMask }

// SetCPUMask sets the thread's affinity mask (spec.md §6
// set_thread_affinity). Feasibility against enabled CPUs is checked by
// the caller (internal/topology.ValidateAffinity).
func (t *Thread) SetCPUMask(mask cpuset.CPUSet) { t.cpuMask = mask }

// PinnedCPU returns the thread's pinned CPU, if any.
func (t *Thread) PinnedCPU() (topology.CPUID, bool) { return t.pinnedCPU, t.hasPinnedCPU }

// SetPinnedCPU pins the thread to one CPU (e.g. after an
// AffinityInfeasible fallback, spec.md §7).
func (t *Thread) SetPinnedCPU(id topology.CPUID) {
	t.pinnedCPU = id
	t.hasPinnedCPU = true
}

// ClearPinnedCPU releases any CPU pin.
func (t *Thread) ClearPinnedCPU() { t.hasPinnedCPU = false }

// LastMigrationTime returns the last time this thread was migrated.
func (t *Thread) LastMigrationTime() time.Time { return t.lastMigrationTime }

// SetLastMigrationTime stamps the migration cooldown anchor.
func (t *Thread) SetLastMigrationTime(when time.Time) { t.lastMigrationTime = when }

// AffinitizedIRQs returns the (at most MaxAffinitizedIRQs) IRQ vectors
// colocated with this thread.
func (t *Thread) AffinitizedIRQs() []int {
	return append([]int(nil), t.affinitizedIRQs...)
}

// AddAffinitizedIRQ adds an IRQ to the bounded, de-duplicated colocation
// list (spec.md §4.9). Reports false if the list was already full and
// irq was not already present.
func (t *Thread) AddAffinitizedIRQ(irq int) bool {
	for _, existing := range t.affinitizedIRQs {
		if existing == irq {
			return true
		}
	}
	if len(t.affinitizedIRQs) >= MaxAffinitizedIRQs {
		return false
	}
	t.affinitizedIRQs = append(t.affinitizedIRQs, irq)
	return true
}

// RemoveAffinitizedIRQ removes an IRQ from the colocation list.
func (t *Thread) RemoveAffinitizedIRQ(irq int) {
	for i, existing := range t.affinitizedIRQs {
		if existing == irq {
			t.affinitizedIRQs = append(t.affinitizedIRQs[:i], t.affinitizedIRQs[i+1:]...)
			return
		}
	}
}

// Team returns the thread's team, if any.
func (t *Thread) Team() (team.ID, bool) { return t.team, t.hasTeam }

// SetTeam assigns the thread to a team.
func (t *Thread) SetTeam(id team.ID) {
	t.team = id
	t.hasTeam = true
}

// State returns the thread's scheduling state.
func (t *Thread) State() State { return t.state }

// SetState transitions the thread's scheduling state (spec.md §4.10).
func (t *Thread) SetState(s State) { t.state = s }

// Enqueued reports whether the thread is currently in a run queue.
func (t *Thread) Enqueued() bool { return t.enqueued }

// SetEnqueued marks whether the thread is in a run queue. The run queue
// itself does not call it; dispatch and the harnesses do.
func (t *Thread) SetEnqueued(v bool) { t.enqueued = v }

// Ready reports the thread's ready bit (distinct from Enqueued: a
// thread can be READY while transiently outside the heap mid-scan,
// spec.md §4.2 "temporary list").
func (t *Thread) Ready() bool { return t.ready }

// SetReady sets the thread's ready bit.
func (t *Thread) SetReady(v bool) { t.ready = v }

func saturatingAdd(a, b int64) int64 {
	const maxInt64 = int64(^uint64(0) >> 1)
	const minInt64 = -maxInt64 - 1
	if b > 0 && a > maxInt64-b {
		return maxInt64
	}
	if b < 0 && a < minInt64-b {
		return minInt64
	}
	return a + b
}
