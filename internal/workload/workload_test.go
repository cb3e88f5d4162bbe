package workload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCPUBoundNeverSleeps(t *testing.T) {
	c := NewCPUBound()
	assert.Equal(t, time.Duration(0), c.Sleep())
	assert.Greater(t, c.NextBurst(), time.Duration(0))
}

func TestPeriodicSleepFillsRemainderOfPeriod(t *testing.T) {
	p := NewPeriodic(10*time.Millisecond, 2*time.Millisecond)
	assert.Equal(t, 2*time.Millisecond, p.NextBurst())
	assert.Equal(t, 8*time.Millisecond, p.Sleep())
}

func TestPeriodicSleepNeverNegative(t *testing.T) {
	p := NewPeriodic(1*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, time.Duration(0), p.Sleep())
}

func TestMixedIsReproducibleForAFixedSeed(t *testing.T) {
	a := NewMixed(42)
	b := NewMixed(42)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.NextBurst(), b.NextBurst())
		assert.Equal(t, a.Sleep(), b.Sleep())
	}
}

func TestMixedSleepWithinBounds(t *testing.T) {
	m := NewMixed(7)
	for i := 0; i < 50; i++ {
		s := m.Sleep()
		assert.GreaterOrEqual(t, s, m.SleepFloor)
		assert.Less(t, s, m.SleepCeiling)
	}
}
