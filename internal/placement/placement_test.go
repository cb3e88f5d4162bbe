package placement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonestone57/eevdf-scheduler/internal/load"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

func TestPerformanceModePrefersBigCoreOverLessLoadedLittle(t *testing.T) {
	candidates := []CoreCandidate{
		{Core: 0, CoreType: topology.CoreTypeLittle, Load: 10},
		{Core: 1, CoreType: topology.CoreTypeBig, Load: 500},
	}
	core, ok := PerformanceMode().ChooseCore(candidates)
	require.True(t, ok)
	assert.Equal(t, topology.CoreID(1), core)
}

func TestPowerSaveModePacksOntoActiveCoreOverIdlePackage(t *testing.T) {
	candidates := []CoreCandidate{
		{Core: 0, Load: 200, PackageFullyIdle: false},
		{Core: 1, Load: 0, PackageFullyIdle: true},
	}
	core, ok := PowerSaveMode().ChooseCore(candidates)
	require.True(t, ok)
	assert.Equal(t, topology.CoreID(0), core)
}

func TestPowerSaveModePrefersLittleUnderLowLoad(t *testing.T) {
	candidates := []CoreCandidate{
		{Core: 0, CoreType: topology.CoreTypeBig, Load: 50, PackageFullyIdle: false},
		{Core: 1, CoreType: topology.CoreTypeLittle, Load: 50, PackageFullyIdle: false},
	}
	core, ok := PowerSaveMode().ChooseCore(candidates)
	require.True(t, ok)
	assert.Equal(t, topology.CoreID(1), core)
}

func TestChooseCoreAndCPUStampsMigrationOnHomeCoreChange(t *testing.T) {
	th := sched.NewThread(1, "t", sched.NormalPriorityNice0, 0)
	th.SetHomeCore(topology.CoreID(5))

	candidates := []CoreCandidate{
		{Core: 0, CoreType: topology.CoreTypeUniform, Load: 10},
	}
	cpuCandidates := func(core topology.CoreID) []load.CPUCandidate {
		return []load.CPUCandidate{{CPU: 0, EffectiveSMTLoad: 0.1, Enabled: true}}
	}

	now := time.Unix(123, 0)
	result, ok := ChooseCoreAndCPU(th, PerformanceMode(), candidates, 0, false, cpuCandidates, now)
	require.True(t, ok)
	assert.Equal(t, topology.CoreID(0), result.Core)
	assert.True(t, result.Migrated)
	assert.Equal(t, now, th.LastMigrationTime())

	newHome, _ := th.HomeCore()
	assert.Equal(t, topology.CoreID(0), newHome)
}

func TestChooseCoreAndCPUHonorsCoreHint(t *testing.T) {
	th := sched.NewThread(2, "t", sched.NormalPriorityNice0, 0)
	candidates := []CoreCandidate{
		{Core: 0, Load: 900},
		{Core: 1, Load: 10},
	}
	cpuCandidates := func(core topology.CoreID) []load.CPUCandidate {
		return []load.CPUCandidate{{CPU: topology.CPUID(core), EffectiveSMTLoad: 0.1, Enabled: true}}
	}

	result, ok := ChooseCoreAndCPU(th, PerformanceMode(), candidates, 0, true, cpuCandidates, time.Unix(0, 0))
	require.True(t, ok)
	assert.Equal(t, topology.CoreID(0), result.Core, "explicit core hint must override the mode's own preference")
}
