package domain

import "time"

// Status is the lifecycle state of a booking. A booking holds exactly one
// status at any time; all writes go through the transition table.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusPaid       Status = "paid"
	StatusCheckedIn  Status = "checked_in"
	StatusCheckedOut Status = "checked_out"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// ActiveStatuses are the statuses that count toward occupancy of a unit.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusPaid, StatusCheckedIn}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPaid, StatusCheckedIn,
		StatusCheckedOut, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// CancellationPolicy is attached to a booking at creation and never changes.
type CancellationPolicy string

const (
	PolicyFlexible      CancellationPolicy = "flexible"
	PolicyNonRefundable CancellationPolicy = "non_refundable"
)

func (p CancellationPolicy) Valid() bool {
	return p == PolicyFlexible || p == PolicyNonRefundable
}

// CancelReason categorizes why a booking was cancelled. ReasonOther requires
// a free-text note.
type CancelReason string

const (
	ReasonGuestRequest CancelReason = "guest_request"
	ReasonPaymentFail  CancelReason = "payment_failed"
	ReasonUnitIssue    CancelReason = "unit_unavailable"
	ReasonOther        CancelReason = "other"
)

func (r CancelReason) Valid() bool {
	switch r {
	case ReasonGuestRequest, ReasonPaymentFail, ReasonUnitIssue, ReasonOther:
		return true
	}
	return false
}

// Booking is the reservation of one unit for a contiguous date range.
// The commercial fields are snapshotted at creation; later rate-card changes
// never alter an existing booking. TotalCents must always equal the sum of
// its snapshotted parts.
type Booking struct {
	ID               int64  `json:"id"`
	ConfirmationCode string `json:"confirmation_code"`
	UnitID           int64  `json:"unit_id"`

	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
	Adults   int       `json:"adults"`
	Children int       `json:"children"`
	Infants  int       `json:"infants"`
	HasPet   bool      `json:"has_pet"`

	Policy CancellationPolicy `json:"policy"`

	NightlyRateCents int64 `json:"nightly_rate_cents"`
	CleaningFeeCents int64 `json:"cleaning_fee_cents"`
	PetFeeCents      int64 `json:"pet_fee_cents"`
	CityTaxCents     int64 `json:"city_tax_cents"`
	CreditCents      int64 `json:"credit_cents"`
	TotalCents       int64 `json:"total_cents"`

	Status               Status `json:"status"`
	GuestDetailsComplete bool   `json:"guest_details_complete"`

	CancelReason       CancelReason `json:"cancel_reason,omitempty"`
	CancelNote         string       `json:"cancel_note,omitempty"`
	RefundIssued       bool         `json:"refund_issued"`
	CancelledAt        *time.Time   `json:"cancelled_at,omitempty"`
	RefundPendingCents int64        `json:"refund_pending_cents"`
	PaymentRef         string       `json:"payment_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Nights is the whole-day length of the stay over the half-open range
// [check_in, check_out).
func (b Booking) Nights() int {
	return nightsBetween(b.CheckIn, b.CheckOut)
}

func nightsBetween(in, out time.Time) int {
	return int(out.Sub(in) / (24 * time.Hour))
}

// Overlaps reports whether two half-open date ranges share at least one night.
func Overlaps(aIn, aOut, bIn, bOut time.Time) bool {
	return aIn.Before(bOut) && bIn.Before(aOut)
}
