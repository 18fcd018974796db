package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"lodgebook/internal/adapters/observability"
	"lodgebook/internal/domain"
)

// BookingService executes every status transition. It is the only writer of
// booking status: guards are evaluated and the new status written inside a
// single repository transaction, and side effects (events, refunds) run
// strictly after commit.
type BookingService struct {
	repo     domain.BookingRepository
	cache    domain.Cache
	gateway  domain.PaymentGateway
	notifier domain.Notifier
	rates    domain.RateCard
	now      func() time.Time
}

func NewBookingService(r domain.BookingRepository, c domain.Cache, g domain.PaymentGateway, n domain.Notifier, rates domain.RateCard) *BookingService {
	return &BookingService{repo: r, cache: c, gateway: g, notifier: n, rates: rates, now: time.Now}
}

// WithClock overrides the wall clock, for tests.
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

// Create validates the stay, snapshots its price, and inserts a pending
// booking. The overlap check and the insert share one transaction so two
// concurrent creations cannot both win the same dates.
func (s *BookingService) Create(ctx context.Context, p domain.StayParams) (domain.Booking, error) {
	if err := s.rates.ValidateStay(p); err != nil {
		return domain.Booking{}, err
	}
	bd := s.rates.Quote(p)

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	conflict, err := tx.OverlapExists(ctx, p.UnitID, p.CheckIn, p.CheckOut, 0)
	if err != nil {
		return domain.Booking{}, err
	}
	if conflict {
		return domain.Booking{}, domain.ErrOverlapConflict
	}

	b := domain.Booking{
		ConfirmationCode: newConfirmationCode(),
		UnitID:           p.UnitID,
		CheckIn:          p.CheckIn,
		CheckOut:         p.CheckOut,
		Adults:           p.Adults,
		Children:         p.Children,
		Infants:          p.Infants,
		HasPet:           p.HasPet,
		Policy:           policyOrDefault(p.Policy),
		NightlyRateCents: bd.NightlyRateCents,
		CleaningFeeCents: bd.CleaningFeeCents,
		PetFeeCents:      bd.PetFeeCents,
		CityTaxCents:     bd.CityTaxCents,
		CreditCents:      p.CreditCents,
		TotalCents:       bd.TotalCents,
		Status:           domain.StatusPending,
	}
	if err := tx.Insert(ctx, &b); err != nil {
		return domain.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Booking{}, err
	}

	s.afterTransition(ctx, b, "", domain.StatusPending)
	return b, nil
}

// Transition moves a booking to target, enforcing the lifecycle table and
// its guards atomically. Reactivating transitions re-run the overlap check
// under the row lock; stale availability is never trusted.
func (s *BookingService) Transition(ctx context.Context, id int64, target domain.Status, tctx domain.TransitionContext) (domain.Booking, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	b, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	from := b.Status

	var records []domain.PaymentRecord
	if target == domain.StatusPaid {
		if records, err = tx.ListPayments(ctx, id); err != nil {
			return domain.Booking{}, err
		}
	}
	if err := domain.CheckTransition(b, target, records, tctx); err != nil {
		observability.ObserveTransition(string(from), string(target), "rejected")
		return domain.Booking{}, err
	}
	if domain.Reactivating(from, target) {
		conflict, err := tx.OverlapExists(ctx, b.UnitID, b.CheckIn, b.CheckOut, b.ID)
		if err != nil {
			return domain.Booking{}, err
		}
		if conflict {
			observability.ObserveTransition(string(from), string(target), "conflict")
			return domain.Booking{}, domain.ErrOverlapConflict
		}
	}

	b.Status = target
	if err := tx.Save(ctx, b); err != nil {
		return domain.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Booking{}, err
	}

	s.afterTransition(ctx, b, from, target)
	return b, nil
}

// SetGuestDetails records whether per-guest identification is complete.
// It gates the checked_in transition but is not itself a status change.
func (s *BookingService) SetGuestDetails(ctx context.Context, id int64, complete bool) (domain.Booking, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	b, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	b.GuestDetailsComplete = complete
	if err := tx.Save(ctx, b); err != nil {
		return domain.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Booking{}, err
	}
	s.invalidate(ctx, b.ID)
	return b, nil
}

// Cancel transitions a booking to cancelled and, when policy allows, emits
// a refund request. The cancelled status is durable before the gateway is
// called; a refund failure is queued for out-of-band retry, never rolled
// back into the cancellation.
func (s *BookingService) Cancel(ctx context.Context, id int64, req domain.CancelRequest) (domain.Booking, error) {
	now := s.now()

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	b, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	from := b.Status
	if err := domain.CheckTransition(b, domain.StatusCancelled, nil, domain.TransitionContext{}); err != nil {
		observability.ObserveTransition(string(from), string(domain.StatusCancelled), "rejected")
		return domain.Booking{}, err
	}

	records, err := tx.ListPayments(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	outcome, err := domain.EvaluateCancellation(b, domain.PaidAmountCents(records), now, req)
	if err != nil {
		return domain.Booking{}, err
	}

	b.Status = domain.StatusCancelled
	b.CancelReason = req.Reason
	b.CancelNote = strings.TrimSpace(req.Note)
	b.RefundIssued = outcome.RefundRequested
	b.CancelledAt = &now
	if outcome.RefundRequested {
		b.RefundPendingCents = outcome.RefundAmountCents
	}
	if err := tx.Save(ctx, b); err != nil {
		return domain.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Booking{}, err
	}

	s.afterTransition(ctx, b, from, domain.StatusCancelled)

	if outcome.RefundRequested {
		s.issueRefund(ctx, b, outcome.RefundAmountCents)
	}
	return b, nil
}

// RecordPayment appends a webhook-delivered payment event to the ledger and
// auto-promotes the booking to paid once the aggregate covers the total.
func (s *BookingService) RecordPayment(ctx context.Context, id int64, rec domain.PaymentRecord) (domain.Booking, error) {
	if !rec.Status.Valid() {
		return domain.Booking{}, fmt.Errorf("%w: unknown payment status %q", domain.ErrInvalidTransition, rec.Status)
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	b, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	rec.BookingID = b.ID
	if err := tx.AppendPayment(ctx, &rec); err != nil {
		return domain.Booking{}, err
	}
	if rec.Reference != "" && b.PaymentRef == "" {
		b.PaymentRef = rec.Reference
	}

	from := b.Status
	promoted := false
	if from == domain.StatusPending || from == domain.StatusConfirmed {
		records, err := tx.ListPayments(ctx, id)
		if err != nil {
			return domain.Booking{}, err
		}
		if domain.DerivePaymentStatus(records, b.TotalCents) == domain.PaymentStatusPaid {
			b.Status = domain.StatusPaid
			promoted = true
		}
	}
	if err := tx.Save(ctx, b); err != nil {
		return domain.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Booking{}, err
	}

	if promoted {
		s.afterTransition(ctx, b, from, domain.StatusPaid)
	} else {
		s.invalidate(ctx, b.ID)
	}
	return b, nil
}

// issueRefund makes one inline attempt against the gateway. Success settles
// the pending amount; failure leaves it for the refund dispatcher.
func (s *BookingService) issueRefund(ctx context.Context, b domain.Booking, amountCents int64) {
	err := s.gateway.Refund(ctx, domain.RefundRequest{
		BookingID:      b.ID,
		Reference:      b.PaymentRef,
		AmountCents:    amountCents,
		IdempotencyKey: RefundIdempotencyKey(b),
	})
	if err != nil {
		observability.ObserveRefund("failed")
		log.Warn().Int64("booking_id", b.ID).Int64("amount_cents", amountCents).Err(err).
			Msg("refund issuance failed, left pending for dispatcher")
		return
	}
	observability.ObserveRefund("issued")
	if err := s.repo.SettleRefund(ctx, b.ID); err != nil {
		// The dispatcher will retry; the gateway call is idempotent.
		log.Warn().Int64("booking_id", b.ID).Err(err).Msg("settle refund failed")
	}
}

// afterTransition runs the post-commit side effects: cache invalidation and
// event publication. Neither can fail the already-committed transition.
func (s *BookingService) afterTransition(ctx context.Context, b domain.Booking, from, to domain.Status) {
	observability.ObserveTransition(string(from), string(to), "ok")
	s.invalidate(ctx, b.ID)

	if s.notifier == nil {
		return
	}
	ev := domain.BookingEvent{
		EventID:          uuid.NewString(),
		BookingID:        b.ID,
		ConfirmationCode: b.ConfirmationCode,
		UnitID:           b.UnitID,
		From:             from,
		To:               to,
		OccurredAt:       s.now().UTC(),
	}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		log.Warn().Int64("booking_id", b.ID).Str("to", string(to)).Err(err).
			Msg("booking event publish failed")
	}
}

func (s *BookingService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, bookingCacheKey(id))
}

// RefundIdempotencyKey derives a stable key for a booking's refund so
// repeated attempts by the dispatcher dedupe at the gateway.
func RefundIdempotencyKey(b domain.Booking) string {
	at := ""
	if b.CancelledAt != nil {
		at = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("refund-%d-%s", b.ID, at)
}

func policyOrDefault(p domain.CancellationPolicy) domain.CancellationPolicy {
	if p == "" {
		return domain.PolicyFlexible
	}
	return p
}

// newConfirmationCode returns a short human-facing code distinct from the
// numeric booking id.
func newConfirmationCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
}
