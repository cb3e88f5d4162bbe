package main

import (
	"sync"
	"time"

	"github.com/tonestone57/eevdf-scheduler/internal/sched"
	"github.com/tonestone57/eevdf-scheduler/internal/workload"
)

// threadState pairs a spawned thread's workload generator with how much
// of its current burst remains, in microseconds.
type threadState struct {
	gen       workload.Thread
	remaining int64
}

// workloadRegistry maps each synthetic thread to the generator driving
// its burst/sleep pattern. internal/simharness's own tests drive bursts
// directly without a generator (runFor in scenarios_test.go); this
// registry is the bridge a live, wall-clock-paced binary needs instead.
type workloadRegistry struct {
	mu     sync.Mutex
	states map[sched.ThreadID]*threadState
}

func newWorkloadRegistry() *workloadRegistry {
	return &workloadRegistry{states: make(map[sched.ThreadID]*threadState)}
}

// assign registers gen as id's generator and arms its first burst.
func (r *workloadRegistry) assign(id sched.ThreadID, gen workload.Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[id] = &threadState{gen: gen, remaining: gen.NextBurst().Microseconds()}
}

// consume accounts ranMicros of execution against id's current burst.
// If the burst is now exhausted it reports blocked=true and the sleep
// duration the caller should wake id after, and arms the next burst. A
// thread with no registered generator (e.g. the idle thread) never
// blocks from here.
func (r *workloadRegistry) consume(id sched.ThreadID, ranMicros int64) (blocked bool, sleep time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		return false, 0
	}
	st.remaining -= ranMicros
	if st.remaining > 0 {
		return false, 0
	}
	sleep = st.gen.Sleep()
	st.remaining = st.gen.NextBurst().Microseconds()
	return true, sleep
}

// generatorFor picks a workload generator for a synthetic thread,
// cycling through the three shapes internal/workload exposes so each
// simulated CPU carries a realistic mix of CPU-bound, periodic, and
// mixed interactive threads (SPEC_FULL.md §4.17).
func generatorFor(cpuIdx, threadIdx int, seed int64) workload.Thread {
	switch threadIdx % 3 {
	case 0:
		return workload.NewCPUBound()
	case 1:
		return workload.NewPeriodic(10*time.Millisecond, 2*time.Millisecond)
	default:
		return workload.NewMixed(seed + int64(cpuIdx)*1000 + int64(threadIdx))
	}
}
