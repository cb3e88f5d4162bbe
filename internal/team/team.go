// Package team implements the per-team CPU-quota layer that gates the
// thread scheduling tier (spec.md §3.2, §4.4). A team groups threads
// under a shared CPU-quota policy; the dispatch engine (internal/dispatch)
// consults a team's quota-exhausted flag but never mutates it directly —
// only the quota-period bookkeeping in this package does.
package team

import (
	"sync"
	"time"

	"github.com/tonestone57/eevdf-scheduler/internal/logging"
)

var log = logging.Get("team")

// ID identifies a team. Teams live in a flat Registry arena, not behind
// pointers threads chase (spec.md §9).
type ID uint32

// BaseWeight is the reference weight used to convert a team's consumed
// active time into team_virtual_runtime (spec.md §4.4). It is pinned to
// the same WEIGHT_SCALE the per-thread EEVDF weight table uses, so a
// team's virtual runtime lives on the same fairness clock as a thread's
// (internal/eevdf.WeightScale mirrors this value; duplicated here rather
// than imported to keep this package free of a dependency on the EEVDF
// parameter machine it is consulted by, not the other way around).
const BaseWeight = 1024

// Team is the per-team scheduling record (spec.md §3.2).
type Team struct {
	mu sync.Mutex

	id                ID
	quotaPercent      int   // 0 == unlimited
	periodUsage       int64 // microseconds consumed in the current period
	quotaAllowance    int64 // microseconds allowed in the current period
	quotaExhausted    bool
	virtualRuntime    int64 // weighted team fairness clock over raw wall-clock active time, microseconds
	lastPeriodBoundary time.Time
}

// New creates a team with the given quota percent (0 == unlimited).
func New(id ID, quotaPercent int) *Team {
	return &Team{id: id, quotaPercent: quotaPercent}
}

// ID returns the team's identity.
func (t *Team) ID() ID { return t.id }

// SetQuota changes the team's quota percent (spec.md §6
// set_team_quota). The allowance is recomputed only at the next period
// boundary, so the in-flight period keeps its allowance; the virtual
// runtime advance in AccountActiveTime uses the new percent at once.
func (t *Team) SetQuota(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quotaPercent = percent
}

// QuotaPercent returns the team's configured quota percent.
func (t *Team) QuotaPercent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quotaPercent
}

// QuotaExhausted reports whether the team has used up its allowance for
// the current period (spec.md §3.2 invariant:
// quota_exhausted ⇔ allowance > 0 ∧ usage ≥ allowance).
func (t *Team) QuotaExhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quotaExhausted
}

// VirtualRuntime returns the team's fairness clock value.
func (t *Team) VirtualRuntime() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.virtualRuntime
}

// Usage returns the microseconds consumed so far in the current period.
func (t *Team) Usage() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.periodUsage
}

// Allowance returns the current period's allowance in microseconds.
func (t *Team) Allowance() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quotaAllowance
}

// OnPeriodBoundary resets usage/exhaustion and recomputes the
// allowance for a new quota period of the given length (spec.md §4.4:
// "on the tick that closes the period ... reset ... recompute
// current_quota_allowance = quota_period * quota_percent / 100").
func (t *Team) OnPeriodBoundary(now time.Time, periodLength time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.periodUsage = 0
	t.quotaExhausted = false
	if t.quotaPercent <= 0 {
		t.quotaAllowance = 0
	} else {
		periodMicros := periodLength.Microseconds()
		t.quotaAllowance = periodMicros * int64(t.quotaPercent) / 100
	}
	t.lastPeriodBoundary = now
}

// AccountActiveTime folds a completed slice's active_time into the
// team's quota usage and virtual runtime (spec.md §4.4: "every
// completed slice contributes its active_time to quota_period_usage,
// flips quota_exhausted when the allowance is crossed, and advances
// team_virtual_runtime by active_time * BASE_WEIGHT / quota_percent
// (skipped if quota is 0)"). activeMicros is the raw wall-clock time
// the slice ran, not capacity-normalized: §4.4's active_time is
// distinct from §4.5's explicitly capacity-normalized
// measure_active_time, and internal/dispatch's TrackActivity passes
// this argument straight through from the quantum's wall-clock length.
func (t *Team) AccountActiveTime(activeMicros int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.periodUsage += activeMicros
	if t.quotaAllowance > 0 && t.periodUsage >= t.quotaAllowance && !t.quotaExhausted {
		t.quotaExhausted = true
		log.Debug("team %d: quota exhausted, usage %d/%d", t.id, t.periodUsage, t.quotaAllowance)
	}
	if t.quotaPercent > 0 {
		t.virtualRuntime += activeMicros * BaseWeight / int64(t.quotaPercent)
	}
}

// Registry is the flat arena of teams, indexed by ID (spec.md §9).
type Registry struct {
	mu    sync.RWMutex
	teams map[ID]*Team
	next  ID
}

// NewRegistry creates an empty team registry.
func NewRegistry() *Registry {
	return &Registry{teams: make(map[ID]*Team)}
}

// Create allocates a new team with a fresh ID and the given quota
// percent, and adds it to the registry.
func (r *Registry) Create(quotaPercent int) *Team {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	t := New(r.next, quotaPercent)
	r.teams[t.id] = t
	return t
}

// Get looks up a team by ID. Returns nil if the team does not exist or
// has already exited.
func (r *Registry) Get(id ID) *Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.teams[id]
}

// Remove destroys a team on team exit (spec.md §3.2 lifecycle).
func (r *Registry) Remove(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.teams, id)
}

// All returns every live team, for the quota-period boundary callback
// to iterate over.
func (r *Registry) All() []*Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Team, 0, len(r.teams))
	for _, t := range r.teams {
		out = append(out, t)
	}
	return out
}
