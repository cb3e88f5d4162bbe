// Package topology models the SMP/SMT/NUMA/heterogeneous-core topology
// the scheduler core places and balances threads over (spec.md §2.1,
// §3.3–§3.6). It plays the same role the teacher's pkg/sysfs plays for
// container resource management: a flat, ID-indexed description of the
// machine that higher layers (internal/load, internal/placement,
// internal/balance, internal/irq) query instead of chasing pointers.
//
// There is no real sysfs underneath a portable scheduler core, so unlike
// pkg/sysfs this package never reads /sys itself — a System is always
// built declaratively through a Builder, the same way a unit test or the
// simulation harness (cmd/eevdfsim) would describe a fake machine.
package topology

import (
	"fmt"

	"k8s.io/utils/cpuset"
)

// NominalCapacity is the reference "1024 units" performance capacity
// used to normalize slices and virtual runtime across heterogeneous
// cores (spec.md glossary "Capacity").
const NominalCapacity = 1024

// CPUID, CoreID and PackageID are the integer indices used to identify
// logical CPUs, physical cores and packages without holding pointers to
// each other (spec.md §9, "cyclic graph of back-pointers").
type CPUID int
type CoreID int
type PackageID int

// CoreType distinguishes heterogeneous "big.LITTLE" cores (spec.md
// §3.4).
type CoreType int

const (
	// CoreTypeUnknown is used until a core's type has been classified.
	CoreTypeUnknown CoreType = iota
	// CoreTypeUniform marks a core on a homogeneous machine.
	CoreTypeUniform
	// CoreTypeBig marks a performance core on a heterogeneous machine.
	CoreTypeBig
	// CoreTypeLittle marks an efficiency core on a heterogeneous machine.
	CoreTypeLittle
)

func (t CoreType) String() string {
	switch t {
	case CoreTypeUniform:
		return "uniform"
	case CoreTypeBig:
		return "big"
	case CoreTypeLittle:
		return "little"
	default:
		return "unknown"
	}
}

// CPU is one logical CPU (a hardware thread context).
type CPU struct {
	ID      CPUID
	Core    CoreID
	Package PackageID
	enabled bool
}

// Enabled reports whether this logical CPU currently accepts work
// (spec.md §6 set_cpu_enabled).
func (c *CPU) Enabled() bool { return c.enabled }

// Core is one physical core, possibly with several SMT-sibling logical
// CPUs (spec.md §3.4).
type Core struct {
	ID                  CoreID
	Package             PackageID
	CPUs                []CPUID // SMT siblings, including the primary thread
	CoreType            CoreType
	PerformanceCapacity int // nominal units, NominalCapacity == 1024
	EnergyEfficiency    int // higher is more efficient
}

// Package is one physical CPU package (a NUMA node is modeled 1:1 with a
// package in this core; a system with detached NUMA nodes can still be
// expressed by giving each node its own PackageID).
type Package struct {
	ID    PackageID
	Cores []CoreID
}

// System is the full, immutable-after-Build topology description.
type System struct {
	cpus     map[CPUID]*CPU
	cores    map[CoreID]*Core
	packages map[PackageID]*Package

	cpuOrder     []CPUID
	coreOrder    []CoreID
	packageOrder []PackageID
}

// CPU looks up a logical CPU by ID. Returns nil if unknown.
func (s *System) CPU(id CPUID) *CPU { return s.cpus[id] }

// Core looks up a physical core by ID. Returns nil if unknown.
func (s *System) Core(id CoreID) *Core { return s.cores[id] }

// Package looks up a package by ID. Returns nil if unknown.
func (s *System) Package(id PackageID) *Package { return s.packages[id] }

// CPUIDs returns every logical CPU ID, in construction order.
func (s *System) CPUIDs() []CPUID { return append([]CPUID(nil), s.cpuOrder...) }

// CoreIDs returns every physical core ID, in construction order.
func (s *System) CoreIDs() []CoreID { return append([]CoreID(nil), s.coreOrder...) }

// PackageIDs returns every package ID, in construction order.
func (s *System) PackageIDs() []PackageID { return append([]PackageID(nil), s.packageOrder...) }

// CPUCount returns the number of logical CPUs in the system.
func (s *System) CPUCount() int { return len(s.cpuOrder) }

// CPUSet returns the cpuset.CPUSet covering every logical CPU, used as
// the universe affinity masks are validated against.
func (s *System) CPUSet() cpuset.CPUSet {
	ids := make([]int, 0, len(s.cpuOrder))
	for _, id := range s.cpuOrder {
		ids = append(ids, int(id))
	}
	return cpuset.New(ids...)
}

// CoreCPUSet returns the cpuset.CPUSet of the logical CPUs belonging to
// one core (the SMT-sibling group).
func (s *System) CoreCPUSet(id CoreID) cpuset.CPUSet {
	core := s.cores[id]
	if core == nil {
		return cpuset.New()
	}
	ids := make([]int, 0, len(core.CPUs))
	for _, c := range core.CPUs {
		ids = append(ids, int(c))
	}
	return cpuset.New(ids...)
}

// PackageCPUSet returns the cpuset.CPUSet of every logical CPU in a
// package.
func (s *System) PackageCPUSet(id PackageID) cpuset.CPUSet {
	pkg := s.packages[id]
	if pkg == nil {
		return cpuset.New()
	}
	ids := make([]int, 0)
	for _, coreID := range pkg.Cores {
		ids = append(ids, s.CoreCPUSet(coreID).ToSlice()...)
	}
	return cpuset.New(ids...)
}

// SiblingsOf returns the other logical CPUs sharing a core with cpu,
// excluding cpu itself (spec.md glossary "SMT sibling").
func (s *System) SiblingsOf(cpu CPUID) []CPUID {
	c := s.cpus[cpu]
	if c == nil {
		return nil
	}
	core := s.cores[c.Core]
	if core == nil {
		return nil
	}
	siblings := make([]CPUID, 0, len(core.CPUs)-1)
	for _, id := range core.CPUs {
		if id != cpu {
			siblings = append(siblings, id)
		}
	}
	return siblings
}

// SetEnabled implements spec.md §6's set_cpu_enabled collaborator hook.
func (s *System) SetEnabled(cpu CPUID, enabled bool) error {
	c := s.cpus[cpu]
	if c == nil {
		return fmt.Errorf("topology: unknown cpu %d", cpu)
	}
	c.enabled = enabled
	return nil
}

// EnabledCPUSet returns the cpuset.CPUSet of logical CPUs currently
// accepting work.
func (s *System) EnabledCPUSet() cpuset.CPUSet {
	ids := make([]int, 0, len(s.cpuOrder))
	for _, id := range s.cpuOrder {
		if s.cpus[id].enabled {
			ids = append(ids, int(id))
		}
	}
	return cpuset.New(ids...)
}

// CoreDefunct reports whether every logical CPU on a core is disabled
// (spec.md §3.4 "Defunct flag").
func (s *System) CoreDefunct(id CoreID) bool {
	core := s.cores[id]
	if core == nil {
		return true
	}
	for _, cpuID := range core.CPUs {
		if s.cpus[cpuID].enabled {
			return false
		}
	}
	return true
}
