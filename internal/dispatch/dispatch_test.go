package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonestone57/eevdf-scheduler/internal/eevdf"
	"github.com/tonestone57/eevdf-scheduler/internal/runqueue"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
	"github.com/tonestone57/eevdf-scheduler/internal/team"
)

type fakeTimers struct {
	quantumArmed int
	idleArmed    int
}

func (f *fakeTimers) ArmQuantum(cpu *sched.CPU, d time.Duration)         { f.quantumArmed++ }
func (f *fakeTimers) ArmIdleMeasurement(cpu *sched.CPU, d time.Duration) { f.idleArmed++ }

func newTestCPU() *sched.CPU {
	idle := sched.NewThread(0, "idle", sched.IdlePriority, 0)
	return sched.NewCPU(0, 0, idle, runqueue.New())
}

func readyThread(id sched.ThreadID, priority int, now time.Time) *sched.Thread {
	th := sched.NewThread(id, "t", priority, 0)
	params := eevdf.DefaultParams()
	ctx := eevdf.Context{Capacity: eevdf.NominalCapacity, Known: true}
	eevdf.Recompute(params, th, ctx, 0, now, true, false)
	th.SetState(sched.Ready)
	th.SetReady(true)
	th.SetEnqueued(true)
	return th
}

func TestChooseNextThreadReturnsIdleWhenQueueEmpty(t *testing.T) {
	cpu := newTestCPU()
	teams := team.NewRegistry()
	params := eevdf.DefaultParams()
	ctx := eevdf.Context{Capacity: eevdf.NominalCapacity, Known: true}
	timers := &fakeTimers{}

	next := ChooseNextThread(cpu, teams, params, ctx, 0, time.Unix(0, 0), nil, timers)
	assert.Same(t, cpu.IdleThread, next)
	assert.Equal(t, 1, timers.idleArmed)
}

func TestChooseNextThreadPicksGeneralEligible(t *testing.T) {
	cpu := newTestCPU()
	teams := team.NewRegistry()
	params := eevdf.DefaultParams()
	ctx := eevdf.Context{Capacity: eevdf.NominalCapacity, Known: true}
	now := time.Unix(100, 0)

	th := readyThread(1, sched.NormalPriorityNice0, now)
	cpu.RunQueue.Add(th)

	timers := &fakeTimers{}
	next := ChooseNextThread(cpu, teams, params, ctx, 0, now, nil, timers)
	require.Same(t, th, next)
	assert.Equal(t, sched.Running, next.State())
	assert.Equal(t, 1, timers.quantumArmed)
}

func TestChooseNextThreadPhaseARTBypassesExhaustedQuota(t *testing.T) {
	cpu := newTestCPU()
	teams := team.NewRegistry()
	tm := teams.Create(10)
	tm.OnPeriodBoundary(time.Unix(0, 0), 100*time.Millisecond)
	tm.AccountActiveTime(1_000_000) // force exhaustion
	require.True(t, tm.QuotaExhausted())

	cpu.SetCurrentActiveTeam(tm.ID())

	params := eevdf.DefaultParams()
	ctx := eevdf.Context{Capacity: eevdf.NominalCapacity, Known: true}
	now := time.Unix(200, 0)

	rt := readyThread(2, sched.RTPriorityMin, now)
	rt.SetTeam(tm.ID())
	cpu.RunQueue.Add(rt)

	normal := readyThread(3, sched.NormalPriorityNice0, now)
	cpu.RunQueue.Add(normal)

	timers := &fakeTimers{}
	next := ChooseNextThread(cpu, teams, params, ctx, 0, now, nil, timers)
	assert.Same(t, rt, next, "RT thread of the exhausted active team must still bypass quota gating")
}

func TestChooseNextThreadRequeuesStillReadyOldThread(t *testing.T) {
	cpu := newTestCPU()
	teams := team.NewRegistry()
	params := eevdf.DefaultParams()
	ctx := eevdf.Context{Capacity: eevdf.NominalCapacity, Known: true}
	now := time.Unix(300, 0)

	old := readyThread(4, sched.NormalPriorityNice0, now)
	// old is "running" conceptually but still READY and belongs here;
	// it is not in any queue until step 1 re-inserts it.

	timers := &fakeTimers{}
	next := ChooseNextThread(cpu, teams, params, ctx, 0, now, old, timers)
	assert.Same(t, old, next, "sole ready thread should be immediately re-dispatched")
}

func TestTrackActivityAdvancesVirtualRuntimeAndLag(t *testing.T) {
	cpu := newTestCPU()
	core := sched.NewCore(0, 0, 1)
	teams := team.NewRegistry()
	now := time.Unix(0, 0)

	th := readyThread(5, sched.NormalPriorityNice0, now)
	initialVR := th.VirtualRuntime()
	initialLag := th.Lag()

	TrackActivity(cpu, core, teams, th, 4000, 4000, eevdf.NominalCapacity)

	assert.Greater(t, th.VirtualRuntime(), initialVR)
	assert.Less(t, th.Lag(), initialLag)
}

func TestTrackActivityAccountsTeamQuota(t *testing.T) {
	cpu := newTestCPU()
	core := sched.NewCore(0, 0, 1)
	teams := team.NewRegistry()
	tm := teams.Create(50)
	tm.OnPeriodBoundary(time.Unix(0, 0), 100*time.Millisecond)

	now := time.Unix(0, 0)
	th := readyThread(6, sched.NormalPriorityNice0, now)
	th.SetTeam(tm.ID())

	TrackActivity(cpu, core, teams, th, 5000, 5000, eevdf.NominalCapacity)
	assert.Equal(t, int64(5000), tm.Usage())
}
