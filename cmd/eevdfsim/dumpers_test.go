package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tonestone57/eevdf-scheduler/internal/metrics"
	"github.com/tonestone57/eevdf-scheduler/internal/placement"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
	"github.com/tonestone57/eevdf-scheduler/internal/simharness"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

// TestDumpTopologyMatchesSystemShape pins the JSON shape
// harnessDumpers.DumpTopology exposes over /dump/topology against a
// known-uniform system, using go-cmp rather than field-by-field
// assertions since topologyDump nests three levels of slices-of-structs
// where a manual diff on mismatch is hard to read.
func TestDumpTopologyMatchesSystemShape(t *testing.T) {
	sys := topology.Uniform(1, 2, 2) // 1 package x 2 cores x 2 SMT threads
	h := simharness.New(sys, placement.PerformanceMode(), metrics.New())
	d := harnessDumpers{h}

	got, ok := d.DumpTopology().(topologyDump)
	require.True(t, ok)

	want := topologyDump{
		Packages: []packageDump{
			{
				ID: 0,
				Cores: []coreDump{
					{ID: 0, Type: topology.CoreTypeUniform.String(), PerformanceCapacity: topology.NominalCapacity, CPUs: []int{0, 1}},
					{ID: 1, Type: topology.CoreTypeUniform.String(), PerformanceCapacity: topology.NominalCapacity, CPUs: []int{2, 3}},
				},
			},
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DumpTopology() mismatch (-want +got):\n%s", diff)
	}
}

// TestDumpRunQueueReflectsSpawnedThread checks that a thread placed via
// SpawnThread shows up in the owning CPU's DumpRunQueue snapshot with
// its identity and priority fields intact.
func TestDumpRunQueueReflectsSpawnedThread(t *testing.T) {
	sys := topology.Uniform(1, 1, 1)
	h := simharness.New(sys, placement.PerformanceMode(), metrics.New())
	d := harnessDumpers{h}

	th := h.SpawnThread("probe", sched.NormalPriorityNice0, time.Now())

	got, ok := d.DumpRunQueue(0)
	require.True(t, ok)
	threads, ok := got.([]threadDump)
	require.True(t, ok)
	require.Len(t, threads, 1)

	want := threadDump{
		ID:                uint64(th.ID()),
		Name:              "probe",
		BasePriority:      sched.NormalPriorityNice0,
		EffectivePriority: th.EffectivePriority(),
		Weight:            th.Weight(),
		VirtualRuntime:    th.VirtualRuntime(),
		Lag:               th.Lag(),
		SliceDurationMicros: th.SliceDurationMicros(),
	}
	if diff := cmp.Diff(want, threads[0]); diff != "" {
		t.Errorf("DumpRunQueue(0) mismatch (-want +got):\n%s", diff)
	}

	_, ok = d.DumpRunQueue(99)
	require.False(t, ok, "unknown cpu id should report ok=false")
}
