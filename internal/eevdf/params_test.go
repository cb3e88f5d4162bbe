package eevdf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonestone57/eevdf-scheduler/internal/sched"
)

func newNormalThread(priority int) *sched.Thread {
	return sched.NewThread(1, "t", priority, 0)
}

func TestSliceDurationBounds(t *testing.T) {
	p := DefaultParams()
	th := newNormalThread(sched.NormalPriorityNice0)
	ctx := Context{Capacity: NominalCapacity, Known: true}

	slice := SliceDurationMicros(p, th, ctx)
	assert.GreaterOrEqual(t, slice, p.MinGranularityMicros)
	assert.LessOrEqual(t, slice, p.MaxSliceDurationMicros)
}

func TestSliceDurationContentionFloor(t *testing.T) {
	p := DefaultParams()
	th := newNormalThread(sched.NormalPriorityNice0)
	ctx := Context{Capacity: NominalCapacity, Known: true, QueueDepth: p.HighContentionQueueDepth + 1}

	slice := SliceDurationMicros(p, th, ctx)
	assert.GreaterOrEqual(t, slice, p.MinGranularityMicros*p.HighContentionFactor)
}

func TestSliceDurationIOBoundShortening(t *testing.T) {
	p := DefaultParams()
	th := newNormalThread(sched.NormalPriorityNice0)
	th.SetAverageRunBurstEWMA(200)
	for i := 0; i < p.MinTransitions; i++ {
		th.IncVoluntarySleepTransitions()
	}
	ctx := Context{Capacity: NominalCapacity, Known: true}

	slice := SliceDurationMicros(p, th, ctx)
	assert.Less(t, slice, BaseQuantaMicros(sched.NormalPriorityNice0))
	assert.GreaterOrEqual(t, slice, p.MinGranularityMicros)
}

func TestRecomputeNewThreadIsImmediatelyEligible(t *testing.T) {
	p := DefaultParams()
	th := newNormalThread(sched.NormalPriorityNice0)
	now := time.Unix(1000, 0)
	ctx := Context{Capacity: NominalCapacity, Known: true}

	Recompute(p, th, ctx, 0, now, true, false)

	assert.GreaterOrEqual(t, th.Lag(), int64(0))
	assert.True(t, !th.EligibleTime().After(now))
	assert.True(t, th.VirtualDeadline().After(th.EligibleTime()) || th.VirtualDeadline().Equal(th.EligibleTime()))
}

func TestRecomputeRequeueAccumulatesLag(t *testing.T) {
	p := DefaultParams()
	th := newNormalThread(sched.NormalPriorityNice0)
	now := time.Unix(2000, 0)
	ctx := Context{Capacity: NominalCapacity, Known: true}

	Recompute(p, th, ctx, 0, now, true, false)
	initialLag := th.Lag()

	Recompute(p, th, ctx, 0, now, false, true)
	require.Greater(t, th.Lag(), initialLag, "requeue path must only add lag, never subtract")
}

func TestRealTimeThreadAlwaysEligibleNow(t *testing.T) {
	p := DefaultParams()
	th := sched.NewThread(2, "rt", sched.RTPriorityMin, 0)
	now := time.Unix(3000, 0)
	ctx := Context{Capacity: NominalCapacity, Known: true}

	th.SetLag(-1_000_000) // deeply negative lag would delay a normal thread
	Recompute(p, th, ctx, 0, now, false, false)

	assert.Equal(t, now, th.EligibleTime(), "real-time threads are eligible immediately regardless of lag")
}

func TestNegativeLagDelaysEligibility(t *testing.T) {
	p := DefaultParams()
	th := newNormalThread(sched.NormalPriorityNice0)
	now := time.Unix(4000, 0)
	ctx := Context{Capacity: NominalCapacity, Known: true}

	th.SetVirtualRuntime(0)
	Recompute(p, th, ctx, 0, now, true, false)
	// Force a negative lag directly, then recompute on the requeue path
	// (no new-or-relocated snap, and lag accumulates rather than resets)
	// so the negative-lag branch is exercised on its own.
	th.SetLag(-5000)
	Recompute(p, th, ctx, 0, now, false, true)
	require.Less(t, th.Lag(), int64(0))
	delayBound := 2 * p.TargetLatencyMicros
	eligible := th.EligibleTime()
	assert.True(t, eligible.After(now))
	assert.False(t, eligible.After(now.Add(time.Duration(delayBound)*time.Microsecond)))
}

func TestNiceToWeightMonotoneAndCentered(t *testing.T) {
	assert.Equal(t, int64(WeightScale), NiceToWeight(0))
	assert.Greater(t, NiceToWeight(-5), NiceToWeight(0))
	assert.Less(t, NiceToWeight(5), NiceToWeight(0))
}

func TestLatencyNiceFactorMonotone(t *testing.T) {
	one := int64(1) << latencyNiceShift
	assert.Equal(t, one, LatencyNiceFactor(0))
	assert.Less(t, LatencyNiceFactor(-20), one)
	assert.Greater(t, LatencyNiceFactor(19), one)
}
