package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"lodgebook/internal/app"
	"lodgebook/internal/domain"
)

// ---- fakes ----

type fakeRepo struct {
	nextID   int64
	bookings map[int64]domain.Booking
	payments map[int64][]domain.PaymentRecord
	settled  []int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nextID:   1,
		bookings: map[int64]domain.Booking{},
		payments: map[int64][]domain.PaymentRecord{},
	}
}

func (f *fakeRepo) add(b domain.Booking) domain.Booking {
	if b.ID == 0 {
		b.ID = f.nextID
		f.nextID++
	} else if b.ID >= f.nextID {
		f.nextID = b.ID + 1
	}
	f.bookings[b.ID] = b
	return b
}

func (f *fakeRepo) Begin(ctx context.Context) (domain.BookingTx, error) {
	return &fakeTx{repo: f}, nil
}

func (f *fakeRepo) Get(ctx context.Context, id int64) (domain.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeRepo) GetByCode(ctx context.Context, code string) (domain.Booking, error) {
	for _, b := range f.bookings {
		if b.ConfirmationCode == code {
			return b, nil
		}
	}
	return domain.Booking{}, domain.ErrNotFound
}

func (f *fakeRepo) ListPayments(ctx context.Context, bookingID int64) ([]domain.PaymentRecord, error) {
	return f.payments[bookingID], nil
}

func (f *fakeRepo) ListPendingRefunds(ctx context.Context, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.RefundPendingCents > 0 {
			out = append(out, b)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) SettleRefund(ctx context.Context, bookingID int64) error {
	b := f.bookings[bookingID]
	b.RefundPendingCents = 0
	b.RefundIssued = true
	f.bookings[bookingID] = b
	f.settled = append(f.settled, bookingID)
	return nil
}

type fakeTx struct{ repo *fakeRepo }

func (t *fakeTx) GetForUpdate(ctx context.Context, id int64) (domain.Booking, error) {
	return t.repo.Get(ctx, id)
}

func (t *fakeTx) Insert(ctx context.Context, b *domain.Booking) error {
	*b = t.repo.add(*b)
	return nil
}

func (t *fakeTx) Save(ctx context.Context, b domain.Booking) error {
	t.repo.bookings[b.ID] = b
	return nil
}

func (t *fakeTx) AppendPayment(ctx context.Context, rec *domain.PaymentRecord) error {
	rec.ID = int64(len(t.repo.payments[rec.BookingID]) + 1)
	t.repo.payments[rec.BookingID] = append(t.repo.payments[rec.BookingID], *rec)
	return nil
}

func (t *fakeTx) ListPayments(ctx context.Context, bookingID int64) ([]domain.PaymentRecord, error) {
	return t.repo.payments[bookingID], nil
}

func (t *fakeTx) OverlapExists(ctx context.Context, unitID int64, in, out time.Time, excludeID int64) (bool, error) {
	for _, b := range t.repo.bookings {
		if b.UnitID != unitID || b.ID == excludeID || !b.Status.Active() {
			continue
		}
		if domain.Overlaps(b.CheckIn, b.CheckOut, in, out) {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) Commit() error   { return nil }
func (t *fakeTx) Rollback() error { return nil }

type fakeGateway struct {
	calls []domain.RefundRequest
	fail  bool
}

func (g *fakeGateway) Refund(ctx context.Context, req domain.RefundRequest) error {
	g.calls = append(g.calls, req)
	if g.fail {
		return domain.ErrRefundIssuanceFailed
	}
	return nil
}

type fakeNotifier struct{ events []domain.BookingEvent }

func (n *fakeNotifier) Publish(ctx context.Context, ev domain.BookingEvent) error {
	n.events = append(n.events, ev)
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

type fixture struct {
	repo     *fakeRepo
	gateway  *fakeGateway
	notifier *fakeNotifier
	svc      *app.BookingService
}

func newFixture(now time.Time) *fixture {
	f := &fixture{
		repo:     newFakeRepo(),
		gateway:  &fakeGateway{},
		notifier: &fakeNotifier{},
	}
	f.svc = app.NewBookingService(f.repo, nil, f.gateway, f.notifier, domain.DefaultRateCard()).
		WithClock(fixedClock(now))
	return f
}

// ---- tests ----

func TestCreate_SnapshotsPriceAndStartsPending(t *testing.T) {
	fx := newFixture(day(2026, time.May, 1))
	b, err := fx.svc.Create(context.Background(), domain.StayParams{
		UnitID:           7,
		CheckIn:          day(2026, time.June, 10),
		CheckOut:         day(2026, time.June, 12),
		Adults:           2,
		Policy:           domain.PolicyFlexible,
		NightlyRateCents: 18900,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != domain.StatusPending {
		t.Fatalf("status = %s", b.Status)
	}
	if b.TotalCents != 40300 || b.CityTaxCents != 1600 {
		t.Fatalf("unexpected snapshot: total=%d tax=%d", b.TotalCents, b.CityTaxCents)
	}
	if b.ConfirmationCode == "" || len(b.ConfirmationCode) != 8 {
		t.Fatalf("confirmation code %q", b.ConfirmationCode)
	}
	if len(fx.notifier.events) != 1 {
		t.Fatalf("expected one creation event, got %d", len(fx.notifier.events))
	}
}

func TestCreate_RejectsOverlap(t *testing.T) {
	fx := newFixture(day(2026, time.May, 1))
	fx.repo.add(domain.Booking{
		UnitID: 7, CheckIn: day(2026, time.June, 10), CheckOut: day(2026, time.June, 13),
		Status: domain.StatusConfirmed,
	})

	_, err := fx.svc.Create(context.Background(), domain.StayParams{
		UnitID:   7,
		CheckIn:  day(2026, time.June, 11),
		CheckOut: day(2026, time.June, 13),
		Adults:   1,
	})
	if !errors.Is(err, domain.ErrOverlapConflict) {
		t.Fatalf("expected ErrOverlapConflict, got %v", err)
	}

	// a different unit with the same dates is fine
	if _, err := fx.svc.Create(context.Background(), domain.StayParams{
		UnitID:   8,
		CheckIn:  day(2026, time.June, 11),
		CheckOut: day(2026, time.June, 13),
		Adults:   1,
	}); err != nil {
		t.Fatalf("unexpected error for disjoint unit: %v", err)
	}
}

func TestTransition_CheckInRequiresGuestDetails(t *testing.T) {
	fx := newFixture(day(2026, time.June, 10))
	b := fx.repo.add(domain.Booking{
		UnitID: 1, CheckIn: day(2026, time.June, 10), CheckOut: day(2026, time.June, 12),
		Status: domain.StatusPaid, TotalCents: 40300,
	})

	_, err := fx.svc.Transition(context.Background(), b.ID, domain.StatusCheckedIn, domain.TransitionContext{})
	if !errors.Is(err, domain.ErrMissingGuestDetails) {
		t.Fatalf("expected ErrMissingGuestDetails, got %v", err)
	}
	if got := fx.repo.bookings[b.ID].Status; got != domain.StatusPaid {
		t.Fatalf("status changed to %s on a failed transition", got)
	}

	if _, err := fx.svc.SetGuestDetails(context.Background(), b.ID, true); err != nil {
		t.Fatalf("SetGuestDetails: %v", err)
	}
	got, err := fx.svc.Transition(context.Background(), b.ID, domain.StatusCheckedIn, domain.TransitionContext{})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got.Status != domain.StatusCheckedIn {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestTransition_UndoCancelChecksOverlap(t *testing.T) {
	fx := newFixture(day(2026, time.June, 1))
	// booking A, confirmed, Jun 10-13
	fx.repo.add(domain.Booking{
		UnitID: 1, CheckIn: day(2026, time.June, 10), CheckOut: day(2026, time.June, 13),
		Status: domain.StatusConfirmed,
	})
	// booking B, cancelled, Jun 11-12 on the same unit
	b := fx.repo.add(domain.Booking{
		UnitID: 1, CheckIn: day(2026, time.June, 11), CheckOut: day(2026, time.June, 12),
		Status: domain.StatusCancelled,
	})

	_, err := fx.svc.Transition(context.Background(), b.ID, domain.StatusConfirmed, domain.TransitionContext{})
	if !errors.Is(err, domain.ErrOverlapConflict) {
		t.Fatalf("expected ErrOverlapConflict, got %v", err)
	}
	if got := fx.repo.bookings[b.ID].Status; got != domain.StatusCancelled {
		t.Fatalf("status = %s after failed undo-cancel", got)
	}

	// once A is cancelled, the undo succeeds
	a := fx.repo.bookings[1]
	a.Status = domain.StatusCancelled
	fx.repo.bookings[1] = a
	got, err := fx.svc.Transition(context.Background(), b.ID, domain.StatusConfirmed, domain.TransitionContext{})
	if err != nil {
		t.Fatalf("undo-cancel: %v", err)
	}
	if got.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestTransition_PaidGuardReadsLedger(t *testing.T) {
	fx := newFixture(day(2026, time.June, 1))
	b := fx.repo.add(domain.Booking{
		UnitID: 1, CheckIn: day(2026, time.June, 10), CheckOut: day(2026, time.June, 12),
		Status: domain.StatusConfirmed, TotalCents: 40300,
	})

	_, err := fx.svc.Transition(context.Background(), b.ID, domain.StatusPaid, domain.TransitionContext{})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on empty ledger, got %v", err)
	}

	fx.repo.payments[b.ID] = []domain.PaymentRecord{
		{BookingID: b.ID, AmountCents: 40300, Status: domain.PaymentSucceeded},
	}
	got, err := fx.svc.Transition(context.Background(), b.ID, domain.StatusPaid, domain.TransitionContext{})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got.Status != domain.StatusPaid {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestTransition_IdempotentTargetRejectedWithoutSideEffects(t *testing.T) {
	fx := newFixture(day(2026, time.June, 1))
	b := fx.repo.add(domain.Booking{
		UnitID: 1, CheckIn: day(2026, time.June, 10), CheckOut: day(2026, time.June, 12),
		Status: domain.StatusConfirmed, TotalCents: 100,
	})
	fx.repo.payments[b.ID] = []domain.PaymentRecord{
		{BookingID: b.ID, AmountCents: 100, Status: domain.PaymentSucceeded},
	}

	if _, err := fx.svc.Transition(context.Background(), b.ID, domain.StatusPaid, domain.TransitionContext{}); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	events := len(fx.notifier.events)

	_, err := fx.svc.Transition(context.Background(), b.ID, domain.StatusPaid, domain.TransitionContext{})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on repeat, got %v", err)
	}
	if len(fx.notifier.events) != events {
		t.Fatalf("repeat transition published %d extra events", len(fx.notifier.events)-events)
	}
}

func TestCancel_OverrideFlow(t *testing.T) {
	now := time.Date(2026, time.June, 7, 12, 0, 0, 0, time.UTC)
	fx := newFixture(now)
	b := fx.repo.add(domain.Booking{
		UnitID: 1, CheckIn: day(2026, time.June, 10), CheckOut: day(2026, time.June, 12),
		Status: domain.StatusPaid, Policy: domain.PolicyFlexible, TotalCents: 40300,
		PaymentRef: "ch_123",
	})
	fx.repo.payments[b.ID] = []domain.PaymentRecord{
		{BookingID: b.ID, AmountCents: 40300, Status: domain.PaymentSucceeded},
	}

	// 3 days before check-in, no override: refused, nothing written
	_, err := fx.svc.Cancel(context.Background(), b.ID, domain.CancelRequest{
		Reason:      domain.ReasonGuestRequest,
		IssueRefund: true,
	})
	if !errors.Is(err, domain.ErrRefundOverrideRequired) {
		t.Fatalf("expected ErrRefundOverrideRequired, got %v", err)
	}
	if fx.repo.bookings[b.ID].Status != domain.StatusPaid {
		t.Fatal("booking mutated by a refused cancellation")
	}
	if len(fx.gateway.calls) != 0 {
		t.Fatal("gateway called before cancellation committed")
	}

	// retried with the override: cancels and requests the refund
	got, err := fx.svc.Cancel(context.Background(), b.ID, domain.CancelRequest{
		Reason:            domain.ReasonGuestRequest,
		IssueRefund:       true,
		OverrideConfirmed: true,
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != domain.StatusCancelled || !got.RefundIssued {
		t.Fatalf("unexpected booking after cancel: %+v", got)
	}
	if len(fx.gateway.calls) != 1 || fx.gateway.calls[0].AmountCents != 40300 {
		t.Fatalf("unexpected gateway calls: %+v", fx.gateway.calls)
	}
	// inline refund succeeded, so the pending amount settled
	if fx.repo.bookings[b.ID].RefundPendingCents != 0 {
		t.Fatalf("refund left pending after successful issuance")
	}
}

func TestCancel_GatewayFailureKeepsCancellation(t *testing.T) {
	fx := newFixture(day(2026, time.January, 1))
	fx.gateway.fail = true
	b := fx.repo.add(domain.Booking{
		UnitID: 1, CheckIn: day(2026, time.June, 10), CheckOut: day(2026, time.June, 12),
		Status: domain.StatusPaid, Policy: domain.PolicyFlexible, TotalCents: 40300,
	})
	fx.repo.payments[b.ID] = []domain.PaymentRecord{
		{BookingID: b.ID, AmountCents: 40300, Status: domain.PaymentSucceeded},
	}

	got, err := fx.svc.Cancel(context.Background(), b.ID, domain.CancelRequest{
		Reason:      domain.ReasonGuestRequest,
		IssueRefund: true,
	})
	if err != nil {
		t.Fatalf("Cancel must not fail on refund issuance: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	// the refund stays queued for the dispatcher
	if fx.repo.bookings[b.ID].RefundPendingCents != 40300 {
		t.Fatalf("pending refund = %d", fx.repo.bookings[b.ID].RefundPendingCents)
	}

	// dispatcher retries with the same idempotency key and settles it
	fx.gateway.fail = false
	d := app.NewRefundDispatcher(fx.repo, fx.gateway, 2)
	settled, err := d.Run(context.Background(), 10)
	if err != nil || settled != 1 {
		t.Fatalf("dispatcher settled=%d err=%v", settled, err)
	}
	if fx.gateway.calls[0].IdempotencyKey != fx.gateway.calls[1].IdempotencyKey {
		t.Fatal("retry used a different idempotency key")
	}
	if fx.repo.bookings[b.ID].RefundPendingCents != 0 {
		t.Fatal("refund still pending after dispatcher run")
	}
}

func TestCancel_NoRefundSkipsGateway(t *testing.T) {
	fx := newFixture(day(2026, time.June, 9))
	b := fx.repo.add(domain.Booking{
		UnitID: 1, CheckIn: day(2026, time.June, 10), CheckOut: day(2026, time.June, 12),
		Status: domain.StatusPaid, Policy: domain.PolicyNonRefundable, TotalCents: 40300,
	})
	fx.repo.payments[b.ID] = []domain.PaymentRecord{
		{BookingID: b.ID, AmountCents: 40300, Status: domain.PaymentSucceeded},
	}

	got, err := fx.svc.Cancel(context.Background(), b.ID, domain.CancelRequest{
		Reason:      domain.ReasonPaymentFail,
		IssueRefund: false,
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.RefundIssued || len(fx.gateway.calls) != 0 {
		t.Fatalf("forced no-refund cancel still touched the gateway")
	}
}

func TestCancel_CheckedOutRejected(t *testing.T) {
	fx := newFixture(day(2026, time.June, 20))
	b := fx.repo.add(domain.Booking{
		UnitID: 1, CheckIn: day(2026, time.June, 10), CheckOut: day(2026, time.June, 12),
		Status: domain.StatusCheckedOut,
	})
	_, err := fx.svc.Cancel(context.Background(), b.ID, domain.CancelRequest{
		Reason: domain.ReasonGuestRequest,
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRecordPayment_AutoPromotesToPaid(t *testing.T) {
	fx := newFixture(day(2026, time.May, 1))
	b := fx.repo.add(domain.Booking{
		UnitID: 1, CheckIn: day(2026, time.June, 10), CheckOut: day(2026, time.June, 12),
		Status: domain.StatusConfirmed, TotalCents: 40300,
	})

	got, err := fx.svc.RecordPayment(context.Background(), b.ID, domain.PaymentRecord{
		AmountCents: 20000, Status: domain.PaymentSucceeded, Reference: "ch_1",
	})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if got.Status != domain.StatusConfirmed {
		t.Fatalf("partial payment promoted booking to %s", got.Status)
	}

	got, err = fx.svc.RecordPayment(context.Background(), b.ID, domain.PaymentRecord{
		AmountCents: 20300, Status: domain.PaymentSucceeded, Reference: "ch_2",
	})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if got.Status != domain.StatusPaid {
		t.Fatalf("status = %s after covering payment", got.Status)
	}
	if got.PaymentRef != "ch_1" {
		t.Fatalf("payment ref = %q, want first reference kept", got.PaymentRef)
	}
}

func TestRecordPayment_FailedEventDoesNotPromote(t *testing.T) {
	fx := newFixture(day(2026, time.May, 1))
	b := fx.repo.add(domain.Booking{
		UnitID: 1, CheckIn: day(2026, time.June, 10), CheckOut: day(2026, time.June, 12),
		Status: domain.StatusPending, TotalCents: 40300,
	})
	got, err := fx.svc.RecordPayment(context.Background(), b.ID, domain.PaymentRecord{
		AmountCents: 40300, Status: domain.PaymentFailed,
	})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("failed payment promoted booking to %s", got.Status)
	}
}
