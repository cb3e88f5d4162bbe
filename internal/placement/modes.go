package placement

import "github.com/tonestone57/eevdf-scheduler/internal/topology"

// PerformanceModeName and PowerSaveModeName identify the two built-in
// placement modes (spec.md §4.6 "at least: performance, power-saving";
// §4.18 supplemental heterogeneous-core placement).
const (
	PerformanceModeName = "performance"
	PowerSaveModeName   = "power-saving"
)

// performanceMode prefers BIG cores and lower load: on a heterogeneous
// system it packs latency-sensitive work onto the highest-capacity
// cores first (spec.md §4.18).
type performanceMode struct{}

// PerformanceMode returns the performance placement mode.
func PerformanceMode() Mode { return performanceMode{} }

func (performanceMode) Name() string { return PerformanceModeName }

func (performanceMode) ChooseCore(candidates []CoreCandidate) (topology.CoreID, bool) {
	best := -1
	for i, c := range candidates {
		if c.Defunct {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		bc := candidates[best]
		if betterForPerformance(c, bc) {
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	return candidates[best].Core, true
}

func betterForPerformance(c, bc CoreCandidate) bool {
	cBig := c.CoreType == topology.CoreTypeBig
	bcBig := bc.CoreType == topology.CoreTypeBig
	if cBig != bcBig {
		return cBig
	}
	return c.Load < bc.Load
}

// powerSaveMode prefers already-active cores (pack rather than spread,
// so idle cores and whole idle packages can stay powered down) and
// LITTLE cores when there's capacity headroom (spec.md §4.18).
type powerSaveMode struct{}

// PowerSaveMode returns the power-saving placement mode.
func PowerSaveMode() Mode { return powerSaveMode{} }

func (powerSaveMode) Name() string { return PowerSaveModeName }

func (powerSaveMode) ChooseCore(candidates []CoreCandidate) (topology.CoreID, bool) {
	best := -1
	for i, c := range candidates {
		if c.Defunct {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		bc := candidates[best]
		if betterForPowerSave(c, bc) {
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	return candidates[best].Core, true
}

func betterForPowerSave(c, bc CoreCandidate) bool {
	const lowLoadHeadroom = 400 // out of MaxLoad==1024; below this, prefer LITTLE

	cActive := c.Load > 0 && !c.PackageFullyIdle
	bcActive := bc.Load > 0 && !bc.PackageFullyIdle
	if cActive != bcActive {
		return cActive
	}

	if c.Load < lowLoadHeadroom && bc.Load < lowLoadHeadroom {
		cLittle := c.CoreType == topology.CoreTypeLittle
		bcLittle := bc.CoreType == topology.CoreTypeLittle
		if cLittle != bcLittle {
			return cLittle
		}
	}

	return c.Load < bc.Load
}
