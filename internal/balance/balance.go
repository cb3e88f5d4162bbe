// Package balance implements the two complementary load-balancing
// mechanisms of spec.md §4.7: a periodic load balancer that migrates
// threads from overloaded to underloaded CPUs, and opportunistic work
// stealing when a CPU's own queue runs dry. Both are grounded on the
// teacher's coldstart.go cooldown-via-timestamp idiom and its
// Rebalance() hook shape.
package balance

import (
	"time"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/tonestone57/eevdf-scheduler/internal/config"
	"github.com/tonestone57/eevdf-scheduler/internal/eevdf"
	"github.com/tonestone57/eevdf-scheduler/internal/logging"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
)

var log = logging.Get("balance")

// Params bundles the balancer's tunables (spec.md §4.7, and the
// config-surfaced defaults in SPEC_FULL.md §4.13).
type Params struct {
	MinIntervalMicros         int64
	MaxIntervalMicros         int64
	MigrationCooldownMicros   int64
	MinLagToSteal             int64
	VictimCooldownMicros      int64
	MaxStealCandidatesToCheck int
	StealFailureBackoffMicros int64
	StealSuccessCooldownMicros int64
}

// DefaultParams returns balancer tunables sitting inside the spec's
// stated bounds (interval adaptive in [20ms, 500ms], initially 100ms).
func DefaultParams() Params {
	return Params{
		MinIntervalMicros:          20_000,
		MaxIntervalMicros:          500_000,
		MigrationCooldownMicros:    10_000,
		MinLagToSteal:              500,
		VictimCooldownMicros:       5_000,
		MaxStealCandidatesToCheck:  8,
		StealFailureBackoffMicros:  2_000,
		StealSuccessCooldownMicros: 20_000,
	}
}

// RegisterFlags attaches the balancer's tunables to a config module
// named "balance", the same per-subsystem registration pattern
// internal/eevdf.RegisterFlags uses.
func RegisterFlags(cfg *config.Config) func() Params {
	m := cfg.RegisterModule("balance", "Periodic load balancer and work-stealing tunables")
	def := DefaultParams()
	minInterval := m.Int64("min-interval-micros", def.MinIntervalMicros, "periodic balancer's shortest adaptive interval")
	maxInterval := m.Int64("max-interval-micros", def.MaxIntervalMicros, "periodic balancer's longest adaptive interval")
	migrationCooldown := m.Int64("migration-cooldown-micros", def.MigrationCooldownMicros, "per-thread cooldown between migrations")
	minLagToSteal := m.Int64("min-lag-to-steal-micros", def.MinLagToSteal, "lag threshold a thread must exceed to be migration-eligible")
	victimCooldown := m.Int64("victim-cooldown-micros", def.VictimCooldownMicros, "cooldown before a victim cpu can be stolen from again")
	maxCandidates := m.Int("max-steal-candidates", def.MaxStealCandidatesToCheck, "candidates scanned per victim before giving up")
	failureBackoff := m.Int64("steal-failure-backoff-micros", def.StealFailureBackoffMicros, "backoff applied to a victim after a failed steal")
	successCooldown := m.Int64("steal-success-cooldown-micros", def.StealSuccessCooldownMicros, "cooldown applied to a victim after a successful steal")

	return func() Params {
		return Params{
			MinIntervalMicros:          *minInterval,
			MaxIntervalMicros:          *maxInterval,
			MigrationCooldownMicros:    *migrationCooldown,
			MinLagToSteal:              *minLagToSteal,
			VictimCooldownMicros:       *victimCooldown,
			MaxStealCandidatesToCheck:  *maxCandidates,
			StealFailureBackoffMicros:  *failureBackoff,
			StealSuccessCooldownMicros: *successCooldown,
		}
	}
}

// NextIntervalMicros adapts the periodic balancer's interval
// multiplicatively: busier systems (more migrations found) shorten the
// interval toward MinIntervalMicros, quiet systems lengthen it toward
// MaxIntervalMicros (spec.md §4.7 "adaptive ... by a multiplicative
// factor").
func NextIntervalMicros(p Params, current int64, migrationsThisRound int) int64 {
	const growNumerator, growDenominator = 6, 5 // *1.2 when idle
	var next int64
	if migrationsThisRound == 0 {
		next = current * growNumerator / growDenominator
	} else {
		next = current - current/6 // *~0.83 when busy
	}
	if next < p.MinIntervalMicros {
		next = p.MinIntervalMicros
	}
	if next > p.MaxIntervalMicros {
		next = p.MaxIntervalMicros
	}
	return next
}

// MigrationCandidate reports whether t is eligible to be moved off its
// current CPU onto a destination whose affinity it satisfies (spec.md
// §4.7). affinityAllows is supplied by the caller since feasibility
// depends on the destination CPU's identity, which this package does
// not itself resolve (internal/topology owns that).
func MigrationCandidate(p Params, t *sched.Thread, affinityAllows bool, now time.Time) bool {
	if !affinityAllows {
		return false
	}
	if sched.IsRealTime(t.EffectivePriority()) {
		return false
	}
	if t.Lag() <= 0 || t.Lag() <= p.MinLagToSteal {
		return false
	}
	elapsed := now.Sub(t.LastMigrationTime()).Microseconds()
	return elapsed >= p.MigrationCooldownMicros
}

// Migrate performs the bookkeeping spec.md §4.7 requires on a
// successful migration: remove from source, recompute EEVDF params
// against the destination context with is_new_or_relocated, insert
// into destination, stamp last_migration_time.
func Migrate(
	params eevdf.Params,
	source, dest *sched.CPU,
	t *sched.Thread,
	destCtx eevdf.Context,
	globalMinVRuntimeMicros int64,
	now time.Time,
) bool {
	if !source.RunQueue.Remove(t) {
		return false
	}
	source.RunQueueTaskCount.Store(int64(source.RunQueue.Count()))

	eevdf.Recompute(params, t, destCtx, globalMinVRuntimeMicros, now, true, false)
	dest.RunQueue.Add(t)
	dest.RunQueueTaskCount.Store(int64(dest.RunQueue.Count()))
	t.SetLastMigrationTime(now)
	log.Debug("migrated thread %d: cpu %d -> cpu %d", t.ID(), source.ID, dest.ID)
	return true
}

// StealFromVictims implements spec.md §4.7's work-stealing scan order:
// try each victim in the order supplied (sibling, then package, then
// global is the caller's responsibility to order), honoring the
// victim cooldown and MaxStealCandidatesToCheck, stopping at the
// first successful steal. Failures across victims are aggregated
// diagnostically via go-multierror — never used for control flow,
// only returned to the caller for logging.
func StealFromVictims(
	params eevdf.Params,
	balanceParams Params,
	thief *sched.CPU,
	victims []*sched.CPU,
	thiefCtx eevdf.Context,
	globalMinVRuntimeMicros int64,
	now time.Time,
) (*sched.Thread, error) {
	var errs *multierror.Error

	for _, victim := range victims {
		if now.Sub(victim.LastTimeTaskStolenFrom).Microseconds() < balanceParams.VictimCooldownMicros {
			errs = multierror.Append(errs, errVictimCoolingDown(victim))
			continue
		}

		stolen, err := stealOneFrom(params, balanceParams, thief, victim, thiefCtx, globalMinVRuntimeMicros, now)
		if err != nil {
			errs = multierror.Append(errs, err)
			victim.NextStealAttemptTime = now.Add(time.Duration(balanceParams.StealFailureBackoffMicros) * time.Microsecond)
			continue
		}
		victim.LastTimeTaskStolenFrom = now
		victim.NextStealAttemptTime = now.Add(time.Duration(balanceParams.StealSuccessCooldownMicros) * time.Microsecond)
		log.Debug("cpu %d stole thread %d from cpu %d", thief.ID, stolen.ID(), victim.ID)
		return stolen, errs.ErrorOrNil()
	}
	if err := errs.ErrorOrNil(); err != nil {
		log.Debug("cpu %d found nothing stealable among %d victims: %v", thief.ID, len(victims), err)
	}
	return nil, errs.ErrorOrNil()
}

func stealOneFrom(
	params eevdf.Params,
	balanceParams Params,
	thief, victim *sched.CPU,
	thiefCtx eevdf.Context,
	globalMinVRuntimeMicros int64,
	now time.Time,
) (*sched.Thread, error) {
	checked := 0
	held := make([]*sched.Thread, 0, balanceParams.MaxStealCandidatesToCheck)

	for checked < balanceParams.MaxStealCandidatesToCheck {
		t := victim.RunQueue.PopMin()
		if t == nil {
			break
		}
		checked++
		if MigrationCandidate(balanceParams, t, true, now) {
			victim.RunQueueTaskCount.Store(int64(victim.RunQueue.Count()))
			if len(held) > 0 {
				victim.RunQueue.AddBatch(held)
				victim.RunQueueTaskCount.Store(int64(victim.RunQueue.Count()))
			}
			eevdf.Recompute(params, t, thiefCtx, globalMinVRuntimeMicros, now, true, false)
			thief.RunQueue.Add(t)
			thief.RunQueueTaskCount.Store(int64(thief.RunQueue.Count()))
			t.SetLastMigrationTime(now)
			return t, nil
		}
		held = append(held, t)
	}
	if len(held) > 0 {
		victim.RunQueue.AddBatch(held)
		victim.RunQueueTaskCount.Store(int64(victim.RunQueue.Count()))
	}
	return nil, errNoStealableCandidate(victim)
}
