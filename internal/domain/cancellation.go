package domain

import (
	"math"
	"strings"
	"time"
)

// nonRefundableWindowDays is the published cutoff: within this many days of
// check-in (inclusive of a check-in already in the past) a refunding
// cancellation needs an explicit operator override.
const nonRefundableWindowDays = 7

// CancelRequest carries the caller's cancellation decision.
type CancelRequest struct {
	Reason            CancelReason `json:"reason"`
	Note              string       `json:"note"`
	IssueRefund       bool         `json:"issue_refund"`
	OverrideConfirmed bool         `json:"override_confirmed"`
}

// CancelOutcome is the evaluator's verdict. RefundAmountCents is the amount
// to hand to the payment gateway when RefundRequested is true.
type CancelOutcome struct {
	RefundRequested   bool
	RefundAmountCents int64
}

// DaysUntilCheckIn is floor((check_in - now) / 24h). Negative when check-in
// has passed.
func DaysUntilCheckIn(b Booking, now time.Time) int {
	return int(math.Floor(b.CheckIn.Sub(now).Hours() / 24))
}

// InNonRefundableWindow reports whether "now" falls inside the window in
// which refunds require an override.
func InNonRefundableWindow(b Booking, now time.Time) bool {
	return DaysUntilCheckIn(b, now) <= nonRefundableWindowDays
}

// EvaluateCancellation decides refundability for a booking being cancelled
// at the given instant. It performs no I/O and mutates nothing; "now" is
// explicit so the window logic stays deterministic and testable.
//
// paidCents is the booking's current ledger aggregate; a granted refund
// returns what was actually paid, capped at the booking total.
func EvaluateCancellation(b Booking, paidCents int64, now time.Time, req CancelRequest) (CancelOutcome, error) {
	if !req.Reason.Valid() {
		return CancelOutcome{}, ErrMissingCancellationReason
	}
	if req.Reason == ReasonOther && strings.TrimSpace(req.Note) == "" {
		return CancelOutcome{}, ErrMissingCancellationReason
	}

	// Cancelling without a refund is always allowed, whatever the policy or
	// the window. No refund side effect is emitted.
	if !req.IssueRefund {
		return CancelOutcome{}, nil
	}

	// Both policies require an explicit override inside the window. Outside
	// it, flexible bookings refund in full and non-refundable ones refund
	// their already-discounted price.
	if InNonRefundableWindow(b, now) && !req.OverrideConfirmed {
		return CancelOutcome{}, ErrRefundOverrideRequired
	}

	amount := paidCents
	if amount > b.TotalCents {
		amount = b.TotalCents
	}
	return CancelOutcome{RefundRequested: amount > 0, RefundAmountCents: amount}, nil
}
