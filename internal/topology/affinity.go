package topology

import (
	"fmt"

	"k8s.io/utils/cpuset"
	"golang.org/x/sys/unix"
)

// ErrAffinityInfeasible is returned when no enabled CPU in the system
// matches a requested affinity mask (spec.md §7 AffinityInfeasible). It
// is never a scheduling crash: callers keep the thread's prior placement
// or pin it to the last compatible CPU.
type ErrAffinityInfeasible struct {
	Requested cpuset.CPUSet
}

func (e *ErrAffinityInfeasible) Error() string {
	return fmt.Sprintf("topology: affinity mask %s matches no enabled CPU", e.Requested)
}

// ValidateAffinity intersects a requested affinity mask with the set of
// enabled CPUs in sys and returns the (non-empty) feasible subset, or
// ErrAffinityInfeasible if the intersection is empty.
func ValidateAffinity(sys *System, requested cpuset.CPUSet) (cpuset.CPUSet, error) {
	feasible := requested.Intersection(sys.EnabledCPUSet())
	if feasible.IsEmpty() {
		return feasible, &ErrAffinityInfeasible{Requested: requested}
	}
	return feasible, nil
}

// ToKernelCPUSet converts a cpuset.CPUSet into the golang.org/x/sys/unix
// representation used at the sched_setaffinity syscall boundary
// (grounded on aktau-perflock's internal/cpuset, which performs the
// same conversion to call sched_setaffinity directly). Nothing in this
// module, cmd/eevdfsim included, calls it or sched_setaffinity.
func ToKernelCPUSet(cpus cpuset.CPUSet) unix.CPUSet {
	var set unix.CPUSet
	for _, cpu := range cpus.ToSlice() {
		set.Set(cpu)
	}
	return set
}
