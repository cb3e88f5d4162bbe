package irq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamicCapClampsToBounds(t *testing.T) {
	p := DefaultParams()
	low := DynamicCap(p, 100, 1.0) // fully loaded CPU -> lowest factor
	high := DynamicCap(p, 100, 0.0) // idle CPU -> highest factor
	assert.Less(t, low, high)
	assert.GreaterOrEqual(t, low, p.AbsoluteMinCapacity)
	assert.LessOrEqual(t, high, 100*p.MaxCapacityFactor*1.1)
}

func TestSelectTargetCPURejectsOverCapacityCandidates(t *testing.T) {
	p := DefaultParams()
	candidates := []Candidate{
		{CPU: 0, InstantLoad: 0.9, ExistingIRQLoad: 1000, NormalizedIRQLoad: 1.0},
	}
	_, ok := SelectTargetCPU(p, candidates, 50, 10)
	assert.False(t, ok, "a candidate already over its dynamic cap must be rejected")
}

func TestSelectTargetCPUPrefersLowerScore(t *testing.T) {
	p := DefaultParams()
	candidates := []Candidate{
		{CPU: 0, InstantLoad: 0.8, NormalizedIRQLoad: 0.8},
		{CPU: 1, InstantLoad: 0.1, NormalizedIRQLoad: 0.1},
	}
	cpu, ok := SelectTargetCPU(p, candidates, 1, 100)
	require.True(t, ok)
	assert.Equal(t, uint(1), uint(cpu))
}

func TestSelectTargetCPUColocationBonusWins(t *testing.T) {
	p := DefaultParams()
	candidates := []Candidate{
		{CPU: 0, InstantLoad: 0.1, NormalizedIRQLoad: 0.1},
		{CPU: 1, InstantLoad: 0.5, NormalizedIRQLoad: 0.5, RunningOwnerThread: true},
	}
	cpu, ok := SelectTargetCPU(p, candidates, 1, 100)
	require.True(t, ok)
	assert.Equal(t, uint(1), uint(cpu), "colocation bonus should let a busier CPU win when it hosts the IRQ's owner thread")
}
