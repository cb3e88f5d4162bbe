package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/cpuset"
)

func TestUniformBuild(t *testing.T) {
	sys := Uniform(2, 4, 2) // 2 packages x 4 cores x 2 SMT threads = 16 CPUs
	require.Equal(t, 16, sys.CPUCount())
	require.Len(t, sys.PackageIDs(), 2)
	require.Len(t, sys.CoreIDs(), 8)

	core0 := sys.Core(0)
	require.NotNil(t, core0)
	assert.Len(t, core0.CPUs, 2)
	assert.Equal(t, NominalCapacity, core0.PerformanceCapacity)
}

func TestSiblingsOf(t *testing.T) {
	sys := Uniform(1, 1, 4)
	siblings := sys.SiblingsOf(0)
	assert.ElementsMatch(t, []CPUID{1, 2, 3}, siblings)
}

func TestSetEnabledAndDefunct(t *testing.T) {
	sys := Uniform(1, 1, 2)
	require.NoError(t, sys.SetEnabled(0, false))
	assert.False(t, sys.CoreDefunct(0))

	require.NoError(t, sys.SetEnabled(1, false))
	assert.True(t, sys.CoreDefunct(0))
}

func TestValidateAffinityRejectsDisjointMask(t *testing.T) {
	sys := Uniform(1, 2, 1) // CPUs 0,1
	_, err := ValidateAffinity(sys, cpuset.New(7))
	require.Error(t, err)
	var infeasible *ErrAffinityInfeasible
	assert.ErrorAs(t, err, &infeasible)
}

func TestValidateAffinityIntersectsEnabled(t *testing.T) {
	sys := Uniform(1, 2, 1)
	require.NoError(t, sys.SetEnabled(1, false))
	feasible, err := ValidateAffinity(sys, sys.CPUSet())
	require.NoError(t, err)
	assert.Equal(t, cpuset.New(0), feasible)
}
