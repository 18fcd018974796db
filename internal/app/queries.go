package app

import (
	"context"
	"fmt"
	"time"

	"lodgebook/internal/domain"
)

func bookingCacheKey(id int64) string { return fmt.Sprintf("booking:%d", id) }

// QueryService serves the read side: booking views (cached, invalidated on
// every transition), quotes, derived payment status, and the list of actions
// currently available on a booking.
type QueryService struct {
	repo     domain.BookingRepository
	cache    domain.Cache
	rates    domain.RateCard
	cacheTTL time.Duration
}

func NewQueryService(r domain.BookingRepository, c domain.Cache, rates domain.RateCard, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, rates: rates, cacheTTL: ttl}
}

func (s *QueryService) GetBooking(ctx context.Context, id int64) (domain.Booking, error) {
	key := bookingCacheKey(id)
	var b domain.Booking
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &b); ok {
			return b, nil
		}
	}
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, b, int(s.cacheTTL.Seconds()))
	}
	return b, nil
}

func (s *QueryService) GetBookingByCode(ctx context.Context, code string) (domain.Booking, error) {
	return s.repo.GetByCode(ctx, code)
}

// Quote prices a stay. Pure computation; never cached, never persisted.
func (s *QueryService) Quote(p domain.StayParams) (domain.PriceBreakdown, error) {
	if err := s.rates.ValidateStay(p); err != nil {
		return domain.PriceBreakdown{}, err
	}
	return s.rates.Quote(p), nil
}

// PaymentStatus recomputes the derived status from the ledger on every call.
// It is deliberately uncached so refunds and chargebacks recorded after the
// fact show up immediately and two readers can never disagree.
func (s *QueryService) PaymentStatus(ctx context.Context, id int64) (domain.PaymentStatus, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	records, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return "", err
	}
	return domain.DerivePaymentStatus(records, b.TotalCents), nil
}

// AvailableActions exposes the transition table to read-only callers (the
// "what can I do with this booking" UI helper). It queries the same table
// the mutating path enforces, so the two cannot disagree.
func (s *QueryService) AvailableActions(ctx context.Context, id int64) ([]domain.Status, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.AllowedTargets(b.Status), nil
}
