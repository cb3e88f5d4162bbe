// Package irq implements select_target_cpu_for_irq (spec.md §4.9): the
// dynamic-capacity-clamped, SMT- and energy-aware IRQ-to-CPU placement
// scorer, with an IRQ-task affinity colocation bonus. Grounded on
// spec.md §4.9 itself plus the teacher's pkg/sysfs/sst.go's per-CPU
// scoring-and-pick-the-best shape.
package irq

import (
	"github.com/google/uuid"

	"github.com/tonestone57/eevdf-scheduler/internal/config"
	"github.com/tonestone57/eevdf-scheduler/internal/logging"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

var log = logging.Get("irq")

// RegisterFlags attaches the router's tunables to a config module
// named "irq", the same per-subsystem registration pattern
// internal/eevdf.RegisterFlags uses.
func RegisterFlags(cfg *config.Config) func() Params {
	m := cfg.RegisterModule("irq", "IRQ-to-CPU routing tunables")
	def := DefaultParams()
	alpha := m.Float64("alpha", def.Alpha, "weight between instant-load and irq-load scoring terms")
	smtPenalty := m.Float64("smt-penalty-factor", def.SMTPenaltyFactor, "penalty applied for busy SMT siblings")
	minCap := m.Float64("min-capacity-factor", def.MinCapacityFactor, "lower bound of the dynamic capacity clamp")
	maxCap := m.Float64("max-capacity-factor", def.MaxCapacityFactor, "upper bound of the dynamic capacity clamp")
	absMin := m.Float64("absolute-min-capacity", def.AbsoluteMinCapacity, "floor under the dynamic capacity clamp regardless of instant load")

	return func() Params {
		return Params{
			Alpha:               *alpha,
			SMTPenaltyFactor:     *smtPenalty,
			MinCapacityFactor:    *minCap,
			MaxCapacityFactor:    *maxCap,
			AbsoluteMinCapacity:  *absMin,
		}
	}
}

// Params bundles the router's tunables (spec.md §4.9 α, smt_factor,
// min/max capacity factors).
type Params struct {
	Alpha              float64 // weight between instant-load and IRQ-load terms
	SMTPenaltyFactor   float64
	MinCapacityFactor  float64
	MaxCapacityFactor  float64
	AbsoluteMinCapacity float64
}

// DefaultParams returns reasonable router tunables.
func DefaultParams() Params {
	return Params{
		Alpha:               0.6,
		SMTPenaltyFactor:     0.3,
		MinCapacityFactor:    0.5,
		MaxCapacityFactor:    1.0,
		AbsoluteMinCapacity:  32,
	}
}

// Candidate is one CPU's IRQ-routing-relevant state, sampled by the
// caller (spec.md §4.9).
type Candidate struct {
	CPU                topology.CPUID
	InstantLoad        float64 // [0,1]
	SMTSiblingLoad      float64 // sum of sibling instant loads, for the SMT penalty term
	ExistingIRQLoad     float64 // this CPU's current assigned IRQ load, same units as irqLoad
	NormalizedIRQLoad   float64 // ExistingIRQLoad / dynamic_cap, [0,1]
	EnergyEfficiency    int
	RunningOwnerThread  bool // the affinitized IRQ's owner thread is currently running here
}

// DynamicCap computes the capacity ceiling a candidate CPU's IRQ load
// must stay under (spec.md §4.9 step 1).
func DynamicCap(p Params, baseModeCap, instantLoad float64) float64 {
	cap := baseModeCap * (p.MaxCapacityFactor - instantLoad*(p.MaxCapacityFactor-p.MinCapacityFactor))
	absoluteMax := baseModeCap * p.MaxCapacityFactor * 1.1
	if cap < p.AbsoluteMinCapacity {
		cap = p.AbsoluteMinCapacity
	}
	if cap > absoluteMax {
		cap = absoluteMax
	}
	return cap
}

// SelectTargetCPU implements spec.md §4.9 steps 1-4: reject CPUs over
// their dynamic capacity, score the remainder, apply the colocation
// bonus, and return the minimum-score CPU. Every call is stamped with
// a fresh correlation ID that appears on the router's debug log lines
// for that decision, the same role the teacher's own per-request trace
// IDs play.
func SelectTargetCPU(p Params, candidates []Candidate, irqLoad, baseModeCap float64) (topology.CPUID, bool) {
	correlationID := uuid.New()

	type scored struct {
		cpu   topology.CPUID
		score float64
	}
	var best *scored

	for _, c := range candidates {
		dynCap := DynamicCap(p, baseModeCap, c.InstantLoad)
		if c.ExistingIRQLoad+irqLoad >= dynCap {
			continue
		}

		smtPenalty := c.SMTSiblingLoad * p.SMTPenaltyFactor
		score := (1-p.Alpha)*(c.InstantLoad+smtPenalty) + p.Alpha*c.NormalizedIRQLoad
		score -= float64(c.EnergyEfficiency) * 0.001

		if c.RunningOwnerThread {
			score *= 0.1
		}

		if best == nil || score < best.score {
			best = &scored{cpu: c.CPU, score: score}
		}
	}
	if best == nil {
		log.Debug("irq route %s: no candidate under dynamic capacity among %d", correlationID, len(candidates))
		return 0, false
	}
	log.Debug("irq route %s: selected cpu %d, score %.4f", correlationID, best.cpu, best.score)
	return best.cpu, true
}
