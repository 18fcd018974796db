package domain

import "time"

// PaymentRecordStatus is the outcome recorded for a single payment event.
type PaymentRecordStatus string

const (
	PaymentSucceeded         PaymentRecordStatus = "succeeded"
	PaymentFailed            PaymentRecordStatus = "failed"
	PaymentRefunded          PaymentRecordStatus = "refunded"
	PaymentPartiallyRefunded PaymentRecordStatus = "partially_refunded"
	PaymentProcessing        PaymentRecordStatus = "processing"
)

func (s PaymentRecordStatus) Valid() bool {
	switch s {
	case PaymentSucceeded, PaymentFailed, PaymentRefunded, PaymentPartiallyRefunded, PaymentProcessing:
		return true
	}
	return false
}

// PaymentRecord is an immutable event in a booking's payment ledger.
// The ledger is append-only; records are never updated or deleted.
type PaymentRecord struct {
	ID          int64               `json:"id"`
	BookingID   int64               `json:"booking_id"`
	AmountCents int64               `json:"amount_cents"`
	Status      PaymentRecordStatus `json:"status"`
	Reference   string              `json:"reference"`
	RecordedAt  time.Time           `json:"recorded_at"`
}

// PaymentStatus is derived from the ledger on every read. It is never
// persisted, so refunds and chargebacks recorded after the fact are
// reflected immediately and independent readers always agree.
type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
)

// PaidAmountCents sums the records that still count as money received:
// succeeded and partially refunded ones.
func PaidAmountCents(records []PaymentRecord) int64 {
	var sum int64
	for _, r := range records {
		switch r.Status {
		case PaymentSucceeded, PaymentPartiallyRefunded:
			sum += r.AmountCents
		}
	}
	return sum
}

// DerivePaymentStatus folds a booking's ledger into its payment status.
func DerivePaymentStatus(records []PaymentRecord, totalCents int64) PaymentStatus {
	paid := PaidAmountCents(records)
	switch {
	case paid >= totalCents && totalCents > 0:
		return PaymentStatusPaid
	case paid > 0 && paid < totalCents:
		return PaymentStatusPartial
	default:
		return PaymentStatusUnpaid
	}
}
