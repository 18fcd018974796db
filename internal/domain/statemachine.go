package domain

import "fmt"

// transitions is the single source of truth for the booking lifecycle.
// Both the mutating path and the read-only "available actions" helper query
// it, so the two can never disagree.
var transitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusCancelled},
	StatusConfirmed:  {StatusPaid, StatusCheckedIn, StatusNoShow, StatusCancelled},
	StatusPaid:       {StatusCheckedIn, StatusNoShow, StatusCancelled},
	StatusCheckedIn:  {StatusCheckedOut, StatusConfirmed, StatusCancelled},
	StatusCheckedOut: {StatusCheckedIn},
	StatusCancelled:  {StatusConfirmed},
	StatusNoShow:     {StatusConfirmed, StatusCancelled},
}

// CanTransition reports whether the edge from -> to exists in the lifecycle
// graph. It does not evaluate guards; those need external data and are
// checked by the service inside the transaction.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from the given one.
func AllowedTargets(from Status) []Status {
	out := make([]Status, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

// Reactivating reports whether a transition brings a terminal-but-reversible
// booking back into the active set. Such transitions must re-check
// availability under a row lock before committing.
func Reactivating(from, to Status) bool {
	return (from == StatusCancelled || from == StatusNoShow) && to == StatusConfirmed
}

// TransitionContext carries caller-supplied flags that relax guards.
type TransitionContext struct {
	// ManualPaymentOverride lets an operator mark a booking paid without a
	// covering ledger aggregate.
	ManualPaymentOverride bool `json:"manual_payment_override"`
}

// CheckTransition validates the edge and the guards that can be evaluated
// from the booking plus its payment ledger. Overlap guards for reactivating
// transitions are the repository's job and are checked separately.
func CheckTransition(b Booking, to Status, records []PaymentRecord, tctx TransitionContext) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if b.Status == to {
		return fmt.Errorf("%w: booking is already %s", ErrInvalidTransition, to)
	}
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	switch to {
	case StatusPaid:
		if !tctx.ManualPaymentOverride {
			if DerivePaymentStatus(records, b.TotalCents) != PaymentStatusPaid {
				return fmt.Errorf("%w: ledger does not cover total of %d cents", ErrInvalidTransition, b.TotalCents)
			}
		}
	case StatusCheckedIn:
		if !b.GuestDetailsComplete {
			return ErrMissingGuestDetails
		}
	}
	return nil
}
