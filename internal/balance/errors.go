package balance

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tonestone57/eevdf-scheduler/internal/sched"
)

// TransientRaceLoss reports a balancer operation that lost a benign
// race (e.g. a victim emptied its queue between being sampled and
// being scanned) rather than hit a contract violation (spec.md §7):
// the caller is expected to retry on its own schedule, not propagate
// this as fatal.
type TransientRaceLoss struct {
	Op  string
	CPU uint64
}

func (e *TransientRaceLoss) Error() string {
	return fmt.Sprintf("balance: %s: transient race loss on cpu %d", e.Op, e.CPU)
}

func errVictimCoolingDown(victim *sched.CPU) error {
	return errors.Wrapf(&TransientRaceLoss{Op: "steal", CPU: uint64(victim.ID)}, "victim cpu %d still cooling down", victim.ID)
}

func errNoStealableCandidate(victim *sched.CPU) error {
	return errors.Wrapf(&TransientRaceLoss{Op: "steal", CPU: uint64(victim.ID)}, "no stealable candidate found on cpu %d within bound", victim.ID)
}
