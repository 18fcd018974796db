package domain

import (
	"fmt"
	"math"
	"time"
)

// StayParams are the inputs to a quote or a booking creation.
// NightlyRateCents of 0 means "use the rate card default".
type StayParams struct {
	UnitID           int64              `json:"unit_id"`
	CheckIn          time.Time          `json:"check_in"`
	CheckOut         time.Time          `json:"check_out"`
	Adults           int                `json:"adults"`
	Children         int                `json:"children"`
	Infants          int                `json:"infants"`
	HasPet           bool               `json:"has_pet"`
	Policy           CancellationPolicy `json:"policy"`
	NightlyRateCents int64              `json:"nightly_rate_cents"`
	CreditCents      int64              `json:"credit_cents"`
}

// RateCard holds the pricing constants. It is loaded once from config and
// only ever read; existing bookings keep their snapshotted values.
type RateCard struct {
	DefaultNightlyRateCents      int64
	ShortStayCleaningFeeCents    int64
	LongStayCleaningFeeCents     int64
	ShortStayPetFeeCents         int64
	LongStayPetFeeCents          int64
	ShortStayMaxNights           int
	ServiceFeeRate               float64
	CityTaxPerAdultPerNightCents int64
	CityTaxCapNights             int
	MinStayNights                int
	NonRefundableDiscountRate    float64
}

// DefaultRateCard mirrors the operator's published fee schedule.
func DefaultRateCard() RateCard {
	return RateCard{
		DefaultNightlyRateCents:      15000,
		ShortStayCleaningFeeCents:    2500,
		LongStayCleaningFeeCents:     4000,
		ShortStayPetFeeCents:         1500,
		LongStayPetFeeCents:          2500,
		ShortStayMaxNights:           2,
		ServiceFeeRate:               0.12,
		CityTaxPerAdultPerNightCents: 400,
		CityTaxCapNights:             5,
		MinStayNights:                2,
		NonRefundableDiscountRate:    0.10,
	}
}

// PriceBreakdown is the deterministic cost decomposition of a stay.
// TotalCents is the PMS total; GuestTotalCents additionally includes the
// service fee shown in guest-facing quotes. City tax is collected at the
// property, so it is excluded from AmountDueNowCents.
type PriceBreakdown struct {
	Nights             int   `json:"nights"`
	NightlyRateCents   int64 `json:"nightly_rate_cents"`
	AccommodationCents int64 `json:"accommodation_cents"`
	CleaningFeeCents   int64 `json:"cleaning_fee_cents"`
	PetFeeCents        int64 `json:"pet_fee_cents"`
	ServiceFeeCents    int64 `json:"service_fee_cents"`
	CityTaxCents       int64 `json:"city_tax_cents"`
	TotalCents         int64 `json:"total_cents"`
	GuestTotalCents    int64 `json:"guest_total_cents"`
	AmountDueNowCents  int64 `json:"amount_due_now_cents"`
}

// ValidateStay checks the date and guest invariants of a stay. It must pass
// before any quote or booking write.
func (rc RateCard) ValidateStay(p StayParams) error {
	if p.CheckIn.IsZero() || p.CheckOut.IsZero() || !p.CheckOut.After(p.CheckIn) {
		return fmt.Errorf("%w: check-out must be after check-in", ErrInvalidDateRange)
	}
	if n := nightsBetween(p.CheckIn, p.CheckOut); n < rc.MinStayNights {
		return fmt.Errorf("%w: %d nights is below the %d-night minimum stay", ErrInvalidDateRange, n, rc.MinStayNights)
	}
	if p.Adults < 1 {
		return fmt.Errorf("%w: at least one adult is required", ErrInvalidDateRange)
	}
	if p.Policy != "" && !p.Policy.Valid() {
		return fmt.Errorf("%w: unknown cancellation policy %q", ErrInvalidDateRange, p.Policy)
	}
	return nil
}

// Quote computes the full breakdown for a stay. It is a pure function of its
// inputs: no clock, no hidden state. Each fee is rounded half-up to cents at
// the point it is computed, never at the final total.
func (rc RateCard) Quote(p StayParams) PriceBreakdown {
	nights := nightsBetween(p.CheckIn, p.CheckOut)

	nightly := p.NightlyRateCents
	if nightly <= 0 {
		nightly = rc.DefaultNightlyRateCents
	}
	if p.Policy == PolicyNonRefundable {
		// Non-refundable bookings trade refund rights for a fixed discount,
		// baked into the snapshotted rate.
		nightly = roundHalfUpCents(float64(nightly) * (1 - rc.NonRefundableDiscountRate))
	}

	bd := PriceBreakdown{
		Nights:             nights,
		NightlyRateCents:   nightly,
		AccommodationCents: nightly * int64(nights),
	}

	if nights <= rc.ShortStayMaxNights {
		bd.CleaningFeeCents = rc.ShortStayCleaningFeeCents
	} else {
		bd.CleaningFeeCents = rc.LongStayCleaningFeeCents
	}
	if p.HasPet {
		if nights <= rc.ShortStayMaxNights {
			bd.PetFeeCents = rc.ShortStayPetFeeCents
		} else {
			bd.PetFeeCents = rc.LongStayPetFeeCents
		}
	}

	subtotal := bd.AccommodationCents + bd.CleaningFeeCents + bd.PetFeeCents
	bd.ServiceFeeCents = roundHalfUpCents(float64(subtotal) * rc.ServiceFeeRate)

	taxNights := nights
	if taxNights > rc.CityTaxCapNights {
		taxNights = rc.CityTaxCapNights
	}
	bd.CityTaxCents = int64(p.Adults) * rc.CityTaxPerAdultPerNightCents * int64(taxNights)

	bd.TotalCents = subtotal
	bd.GuestTotalCents = subtotal + bd.ServiceFeeCents

	due := bd.TotalCents - bd.CityTaxCents - p.CreditCents
	if due < 0 {
		due = 0
	}
	bd.AmountDueNowCents = due
	return bd
}

func roundHalfUpCents(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
