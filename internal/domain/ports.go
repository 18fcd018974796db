package domain

import (
	"context"
	"time"
)

// BookingRepository is the datastore contract the core needs. Transitions
// that read-then-write must go through a BookingTx so the guard evaluation
// and the status write land in one atomic unit.
type BookingRepository interface {
	Begin(ctx context.Context) (BookingTx, error)

	// Read paths
	Get(ctx context.Context, id int64) (Booking, error)
	GetByCode(ctx context.Context, code string) (Booking, error)
	ListPayments(ctx context.Context, bookingID int64) ([]PaymentRecord, error)

	// Refund settlement (used by the out-of-band dispatcher)
	ListPendingRefunds(ctx context.Context, limit int) ([]Booking, error)
	SettleRefund(ctx context.Context, bookingID int64) error
}

// BookingTx is a unit of work over the booking tables. GetForUpdate locks
// the row so no other writer can interleave a conflicting transition; the
// overlap query runs under the same transaction so stale reads are never
// trusted. Callers must Commit or Rollback.
type BookingTx interface {
	GetForUpdate(ctx context.Context, id int64) (Booking, error)
	Insert(ctx context.Context, b *Booking) error
	Save(ctx context.Context, b Booking) error
	AppendPayment(ctx context.Context, rec *PaymentRecord) error
	ListPayments(ctx context.Context, bookingID int64) ([]PaymentRecord, error)

	// OverlapExists reports whether any active booking other than excludeID
	// intersects [in, out) on the unit, using half-open interval semantics.
	OverlapExists(ctx context.Context, unitID int64, in, out time.Time, excludeID int64) (bool, error)

	Commit() error
	Rollback() error
}

// Cache stores serialized read models. Only booking views go through it;
// payment status and availability are always recomputed.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// BookingEvent is published after a committed transition for downstream
// consumers (notifications, audit). Delivery is fire-and-forget; a publish
// failure never rolls back the transition it describes.
type BookingEvent struct {
	EventID          string    `json:"event_id"`
	BookingID        int64     `json:"booking_id"`
	ConfirmationCode string    `json:"confirmation_code"`
	UnitID           int64     `json:"unit_id"`
	From             Status    `json:"from"`
	To               Status    `json:"to"`
	OccurredAt       time.Time `json:"occurred_at"`
}

type Notifier interface {
	Publish(ctx context.Context, ev BookingEvent) error
}

// RefundRequest is handed to the payment gateway. IdempotencyKey makes
// at-least-once delivery safe to retry.
type RefundRequest struct {
	BookingID      int64
	Reference      string
	AmountCents    int64
	IdempotencyKey string
}

type PaymentGateway interface {
	Refund(ctx context.Context, req RefundRequest) error
}
