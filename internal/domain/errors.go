package domain

import "errors"

// Caller-visible failures. All are recoverable; none should ever crash the
// process. Validation errors are returned before any write happens.
var (
	ErrNotFound                  = errors.New("booking not found")
	ErrInvalidDateRange          = errors.New("invalid date range")
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrMissingGuestDetails       = errors.New("guest details incomplete")
	ErrOverlapConflict           = errors.New("dates overlap an active booking")
	ErrMissingCancellationReason = errors.New("cancellation reason requires a note")
	ErrRefundOverrideRequired    = errors.New("refund inside non-refundable window requires explicit override")
	ErrRepositoryUnavailable     = errors.New("booking repository unavailable")
	ErrRefundIssuanceFailed      = errors.New("refund issuance failed")
)
