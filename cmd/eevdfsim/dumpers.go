package main

import (
	"github.com/tonestone57/eevdf-scheduler/internal/runqueue"
	"github.com/tonestone57/eevdf-scheduler/internal/simharness"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

// harnessDumpers adapts a running simharness.Harness to the
// introspect.TopologyDumper / RunQueueDumper / TeamsDumper / LoadDumper
// interfaces, the same small-adapter-per-endpoint shape the teacher's
// visualizer dump handlers use over its policy backends.
type harnessDumpers struct {
	h *simharness.Harness
}

type topologyDump struct {
	Packages []packageDump `json:"packages"`
}

type packageDump struct {
	ID    int        `json:"id"`
	Cores []coreDump `json:"cores"`
}

type coreDump struct {
	ID                  int   `json:"id"`
	Type                string `json:"core_type"`
	PerformanceCapacity int   `json:"performance_capacity"`
	EnergyEfficiency    int   `json:"energy_efficiency"`
	CPUs                []int `json:"cpus"`
	Defunct             bool  `json:"defunct"`
}

func (d harnessDumpers) DumpTopology() interface{} {
	sys := d.h.Topology
	out := topologyDump{}
	for _, pkgID := range sys.PackageIDs() {
		pkg := sys.Package(pkgID)
		pd := packageDump{ID: int(pkgID)}
		for _, coreID := range pkg.Cores {
			core := sys.Core(coreID)
			cpus := make([]int, 0, len(core.CPUs))
			for _, c := range core.CPUs {
				cpus = append(cpus, int(c))
			}
			pd.Cores = append(pd.Cores, coreDump{
				ID:                  int(coreID),
				Type:                core.CoreType.String(),
				PerformanceCapacity: core.PerformanceCapacity,
				EnergyEfficiency:    core.EnergyEfficiency,
				CPUs:                cpus,
				Defunct:             sys.CoreDefunct(coreID),
			})
		}
		out.Packages = append(out.Packages, pd)
	}
	return out
}

type threadDump struct {
	ID               uint64 `json:"id"`
	Name             string `json:"name"`
	BasePriority     int    `json:"base_priority"`
	EffectivePriority int   `json:"effective_priority"`
	Weight           int64  `json:"weight"`
	VirtualRuntime   int64  `json:"virtual_runtime"`
	Lag              int64  `json:"lag"`
	SliceDurationMicros int64 `json:"slice_duration_micros"`
}

func (d harnessDumpers) DumpRunQueue(cpu int) (interface{}, bool) {
	cpuRec, ok := d.h.CPUs[topology.CPUID(cpu)]
	if !ok {
		return nil, false
	}
	q, ok := cpuRec.RunQueue.(*runqueue.Queue)
	if !ok {
		return nil, false
	}
	items := q.Snapshot()
	out := make([]threadDump, 0, len(items))
	for _, t := range items {
		out = append(out, threadDump{
			ID:                  uint64(t.ID()),
			Name:                t.Name(),
			BasePriority:        t.BasePriority(),
			EffectivePriority:   t.EffectivePriority(),
			Weight:              t.Weight(),
			VirtualRuntime:      t.VirtualRuntime(),
			Lag:                 t.Lag(),
			SliceDurationMicros: t.SliceDurationMicros(),
		})
	}
	return out, true
}

type teamDump struct {
	ID             uint32 `json:"id"`
	QuotaPercent   int    `json:"quota_percent"`
	Usage          int64  `json:"period_usage"`
	Allowance      int64  `json:"quota_allowance"`
	QuotaExhausted bool   `json:"quota_exhausted"`
	VirtualRuntime int64  `json:"virtual_runtime"`
}

func (d harnessDumpers) DumpTeams() interface{} {
	teams := d.h.Teams.All()
	out := make([]teamDump, 0, len(teams))
	for _, tm := range teams {
		out = append(out, teamDump{
			ID:             uint32(tm.ID()),
			QuotaPercent:   tm.QuotaPercent(),
			Usage:          tm.Usage(),
			Allowance:      tm.Allowance(),
			QuotaExhausted: tm.QuotaExhausted(),
			VirtualRuntime: tm.VirtualRuntime(),
		})
	}
	return out
}

type loadDump struct {
	CPU               int     `json:"cpu"`
	InstantaneousLoad float64 `json:"instantaneous_load"`
	LongWindowLoad    float64 `json:"long_window_load"`
	RunQueueDepth     int64   `json:"run_queue_depth"`
}

func (d harnessDumpers) DumpLoad() interface{} {
	out := make([]loadDump, 0, len(d.h.CPUs))
	for _, cpuID := range d.h.Topology.CPUIDs() {
		cpu := d.h.CPUs[cpuID]
		out = append(out, loadDump{
			CPU:               int(cpuID),
			InstantaneousLoad: cpu.InstantaneousLoad,
			LongWindowLoad:    cpu.LongWindowLoad,
			RunQueueDepth:     cpu.RunQueueTaskCount.Load(),
		})
	}
	return out
}
