package reservation

import "fmt"

// legalTransitions is the full appointment lifecycle. Entries are created
// in pending or reserved; there is no path back into reserved, so a
// re-request after a released hold is always a brand-new ledger entry.
var legalTransitions = map[Status][]Status{
	StatusReserved: {StatusPending, StatusCancelled},
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition for illegal steps. That
// error is a workflow bug: it is logged and surfaced, never retried.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
