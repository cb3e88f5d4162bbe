package balance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonestone57/eevdf-scheduler/internal/eevdf"
	"github.com/tonestone57/eevdf-scheduler/internal/runqueue"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
)

func TestNextIntervalMicrosAdapts(t *testing.T) {
	p := DefaultParams()
	grown := NextIntervalMicros(p, 100_000, 0)
	assert.Greater(t, grown, int64(100_000))

	shrunk := NextIntervalMicros(p, 100_000, 3)
	assert.Less(t, shrunk, int64(100_000))
}

func TestNextIntervalMicrosClampsToBounds(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, p.MinIntervalMicros, NextIntervalMicros(p, p.MinIntervalMicros, 100))
	assert.Equal(t, p.MaxIntervalMicros, NextIntervalMicros(p, p.MaxIntervalMicros, 0))
}

func TestMigrationCandidateRejectsRealTime(t *testing.T) {
	p := DefaultParams()
	th := sched.NewThread(1, "rt", sched.RTPriorityMin, 0)
	th.SetLag(10_000)
	assert.False(t, MigrationCandidate(p, th, true, time.Unix(1000, 0)))
}

func TestMigrationCandidateRespectsCooldown(t *testing.T) {
	p := DefaultParams()
	th := sched.NewThread(1, "t", sched.NormalPriorityNice0, 0)
	th.SetLag(10_000)
	now := time.Unix(1000, 0)
	th.SetLastMigrationTime(now)
	assert.False(t, MigrationCandidate(p, th, true, now.Add(1*time.Microsecond)))
	assert.True(t, MigrationCandidate(p, th, true, now.Add(time.Duration(p.MigrationCooldownMicros+1)*time.Microsecond)))
}

func TestStealFromVictimsStealsEligibleTailCandidate(t *testing.T) {
	params := eevdf.DefaultParams()
	bp := DefaultParams()
	now := time.Unix(5000, 0)

	thiefIdle := sched.NewThread(1, "idle", sched.IdlePriority, 0)
	thief := sched.NewCPU(0, 0, thiefIdle, runqueue.New())

	victimIdle := sched.NewThread(2, "idle", sched.IdlePriority, 0)
	victim := sched.NewCPU(1, 0, victimIdle, runqueue.New())

	ctx := eevdf.Context{Capacity: eevdf.NominalCapacity, Known: true}
	stealable := sched.NewThread(3, "t", sched.NormalPriorityNice0, 0)
	eevdf.Recompute(params, stealable, ctx, 0, now.Add(-1*time.Hour), true, false)
	stealable.SetLag(bp.MinLagToSteal + 100)
	stealable.SetLastMigrationTime(now.Add(-1 * time.Hour))
	victim.RunQueue.Add(stealable)

	stolen, err := StealFromVictims(params, bp, thief, []*sched.CPU{victim}, ctx, 0, now)
	require.NoError(t, err)
	require.NotNil(t, stolen)
	assert.Same(t, stealable, stolen)
	assert.Equal(t, 1, thief.RunQueue.Count())
	assert.Equal(t, 0, victim.RunQueue.Count())
}

func TestStealFromVictimsReportsFailureWithoutPanicking(t *testing.T) {
	params := eevdf.DefaultParams()
	bp := DefaultParams()
	now := time.Unix(6000, 0)

	thiefIdle := sched.NewThread(1, "idle", sched.IdlePriority, 0)
	thief := sched.NewCPU(0, 0, thiefIdle, runqueue.New())
	victimIdle := sched.NewThread(2, "idle", sched.IdlePriority, 0)
	victim := sched.NewCPU(1, 0, victimIdle, runqueue.New())

	ctx := eevdf.Context{Capacity: eevdf.NominalCapacity, Known: true}
	stolen, err := StealFromVictims(params, bp, thief, []*sched.CPU{victim}, ctx, 0, now)
	assert.Nil(t, stolen)
	assert.Error(t, err)
}
