package topology

// Builder assembles a System declaratively. Where the teacher's
// pkg/sysfs discovers packages/nodes/CPUs by walking /sys, a portable
// scheduler core takes its topology as input instead (see DESIGN.md,
// "performance_capacity / energy_efficiency source"): tests drive it
// from literal Go values, and cmd/eevdfsim drives it through Uniform
// from its package/core/SMT command-line flags.
type Builder struct {
	sys *System
}

// NewBuilder starts building an empty System.
func NewBuilder() *Builder {
	return &Builder{
		sys: &System{
			cpus:     make(map[CPUID]*CPU),
			cores:    make(map[CoreID]*Core),
			packages: make(map[PackageID]*Package),
		},
	}
}

// AddPackage registers a new, initially core-less package.
func (b *Builder) AddPackage(id PackageID) *Builder {
	if _, exists := b.sys.packages[id]; exists {
		return b
	}
	b.sys.packages[id] = &Package{ID: id}
	b.sys.packageOrder = append(b.sys.packageOrder, id)
	return b
}

// CoreSpec describes one physical core to add to a package.
type CoreSpec struct {
	ID                  CoreID
	Package             PackageID
	SMTWidth            int // number of logical CPUs sharing this core, >=1
	FirstCPU            CPUID
	CoreType            CoreType
	PerformanceCapacity int // 0 defaults to NominalCapacity
	EnergyEfficiency    int
}

// AddCore registers a core (and its SMT-sibling logical CPUs, numbered
// consecutively starting at spec.FirstCPU) under an already-added
// package.
func (b *Builder) AddCore(spec CoreSpec) *Builder {
	if _, exists := b.sys.packages[spec.Package]; !exists {
		b.AddPackage(spec.Package)
	}
	width := spec.SMTWidth
	if width < 1 {
		width = 1
	}
	capacity := spec.PerformanceCapacity
	if capacity == 0 {
		capacity = NominalCapacity
	}
	coreType := spec.CoreType
	if coreType == CoreTypeUnknown {
		coreType = CoreTypeUniform
	}

	cpus := make([]CPUID, 0, width)
	for i := 0; i < width; i++ {
		cpuID := spec.FirstCPU + CPUID(i)
		b.sys.cpus[cpuID] = &CPU{ID: cpuID, Core: spec.ID, Package: spec.Package, enabled: true}
		b.sys.cpuOrder = append(b.sys.cpuOrder, cpuID)
		cpus = append(cpus, cpuID)
	}

	b.sys.cores[spec.ID] = &Core{
		ID:                  spec.ID,
		Package:             spec.Package,
		CPUs:                cpus,
		CoreType:            coreType,
		PerformanceCapacity: capacity,
		EnergyEfficiency:    spec.EnergyEfficiency,
	}
	b.sys.coreOrder = append(b.sys.coreOrder, spec.ID)

	pkg := b.sys.packages[spec.Package]
	pkg.Cores = append(pkg.Cores, spec.ID)

	return b
}

// Build finalizes and returns the constructed System.
func (b *Builder) Build() *System {
	return b.sys
}

// Uniform is a convenience constructor for a homogeneous machine of
// packageCount packages, each with coresPerPackage cores of the given
// SMT width and nominal capacity — the common case exercised by
// property tests and scenarios S1/S3/S5/S6.
func Uniform(packageCount, coresPerPackage, smtWidth int) *System {
	b := NewBuilder()
	cpuID := CPUID(0)
	coreID := CoreID(0)
	for p := 0; p < packageCount; p++ {
		pkgID := PackageID(p)
		b.AddPackage(pkgID)
		for c := 0; c < coresPerPackage; c++ {
			b.AddCore(CoreSpec{
				ID:                  coreID,
				Package:             pkgID,
				SMTWidth:            smtWidth,
				FirstCPU:            cpuID,
				CoreType:            CoreTypeUniform,
				PerformanceCapacity: NominalCapacity,
			})
			coreID++
			cpuID += CPUID(smtWidth)
		}
	}
	return b.Build()
}
