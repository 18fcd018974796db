package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lodgebook/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// wrapDB classifies driver failures as repository unavailability so callers
// know the operation is safe to retry whole.
func wrapDB(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrRepositoryUnavailable, op, err)
}

func (r *Repo) Begin(ctx context.Context) (domain.BookingTx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDB("begin", err)
	}
	return &Tx{tx: tx}, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (domain.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx, getBookingSQL, id))
}

func (r *Repo) GetByCode(ctx context.Context, code string) (domain.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx, getBookingByCodeSQL, code))
}

func (r *Repo) ListPayments(ctx context.Context, bookingID int64) ([]domain.PaymentRecord, error) {
	rows, err := r.db.QueryContext(ctx, listPaymentsSQL, bookingID)
	if err != nil {
		return nil, wrapDB("list payments", err)
	}
	return scanPayments(rows)
}

func (r *Repo) ListPendingRefunds(ctx context.Context, limit int) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, listPendingRefundsSQL, limit)
	if err != nil {
		return nil, wrapDB("list pending refunds", err)
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBookingRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB("list pending refunds", err)
	}
	return out, nil
}

func (r *Repo) SettleRefund(ctx context.Context, bookingID int64) error {
	if _, err := r.db.ExecContext(ctx, settleRefundSQL, bookingID); err != nil {
		return wrapDB("settle refund", err)
	}
	return nil
}

// Tx implements domain.BookingTx over a single MySQL transaction.
type Tx struct{ tx *sql.Tx }

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

func (t *Tx) GetForUpdate(ctx context.Context, id int64) (domain.Booking, error) {
	return scanBooking(t.tx.QueryRowContext(ctx, getBookingForUpdateSQL, id))
}

func (t *Tx) Insert(ctx context.Context, b *domain.Booking) error {
	res, err := t.tx.ExecContext(ctx, insertBookingSQL,
		b.ConfirmationCode, b.UnitID, b.CheckIn, b.CheckOut,
		b.Adults, b.Children, b.Infants, b.HasPet, string(b.Policy),
		b.NightlyRateCents, b.CleaningFeeCents, b.PetFeeCents, b.CityTaxCents,
		b.CreditCents, b.TotalCents,
		string(b.Status), b.GuestDetailsComplete,
	)
	if err != nil {
		return wrapDB("insert booking", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDB("insert booking", err)
	}
	b.ID = id
	return nil
}

func (t *Tx) Save(ctx context.Context, b domain.Booking) error {
	var reason, note, ref any
	if b.CancelReason != "" {
		reason = string(b.CancelReason)
	}
	if b.CancelNote != "" {
		note = b.CancelNote
	}
	if b.PaymentRef != "" {
		ref = b.PaymentRef
	}
	var cancelledAt any
	if b.CancelledAt != nil {
		cancelledAt = b.CancelledAt.UTC()
	}
	_, err := t.tx.ExecContext(ctx, updateBookingSQL,
		string(b.Status), b.GuestDetailsComplete,
		reason, note, b.RefundIssued, cancelledAt,
		b.RefundPendingCents, ref,
		b.ID,
	)
	if err != nil {
		return wrapDB("save booking", err)
	}
	return nil
}

func (t *Tx) AppendPayment(ctx context.Context, rec *domain.PaymentRecord) error {
	res, err := t.tx.ExecContext(ctx, insertPaymentSQL,
		rec.BookingID, rec.AmountCents, string(rec.Status), rec.Reference)
	if err != nil {
		return wrapDB("append payment", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDB("append payment", err)
	}
	rec.ID = id
	return nil
}

func (t *Tx) ListPayments(ctx context.Context, bookingID int64) ([]domain.PaymentRecord, error) {
	rows, err := t.tx.QueryContext(ctx, listPaymentsSQL, bookingID)
	if err != nil {
		return nil, wrapDB("list payments", err)
	}
	return scanPayments(rows)
}

func (t *Tx) OverlapExists(ctx context.Context, unitID int64, in, out time.Time, excludeID int64) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, overlapExistsSQL, unitID, excludeID, out, in).Scan(&n)
	if err != nil {
		return false, wrapDB("overlap query", err)
	}
	return n > 0, nil
}

// ---- scanning ----

type rowScanner interface{ Scan(dest ...any) error }

func scanBooking(row rowScanner) (domain.Booking, error) {
	b, err := scanBookingRows(row)
	if err == sql.ErrNoRows {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, err
}

func scanBookingRows(row rowScanner) (domain.Booking, error) {
	var (
		b           domain.Booking
		policy      string
		status      string
		reason      sql.NullString
		note        sql.NullString
		ref         sql.NullString
		cancelledAt sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.ConfirmationCode, &b.UnitID, &b.CheckIn, &b.CheckOut,
		&b.Adults, &b.Children, &b.Infants, &b.HasPet, &policy,
		&b.NightlyRateCents, &b.CleaningFeeCents, &b.PetFeeCents, &b.CityTaxCents,
		&b.CreditCents, &b.TotalCents,
		&status, &b.GuestDetailsComplete,
		&reason, &note, &b.RefundIssued, &cancelledAt,
		&b.RefundPendingCents, &ref,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Booking{}, err
		}
		return domain.Booking{}, wrapDB("scan booking", err)
	}
	b.Policy = domain.CancellationPolicy(policy)
	b.Status = domain.Status(status)
	if reason.Valid {
		b.CancelReason = domain.CancelReason(reason.String)
	}
	if note.Valid {
		b.CancelNote = note.String
	}
	if ref.Valid {
		b.PaymentRef = ref.String
	}
	if cancelledAt.Valid {
		ts := cancelledAt.Time
		b.CancelledAt = &ts
	}
	return b, nil
}

func scanPayments(rows *sql.Rows) ([]domain.PaymentRecord, error) {
	defer rows.Close()
	var out []domain.PaymentRecord
	for rows.Next() {
		var (
			rec    domain.PaymentRecord
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.BookingID, &rec.AmountCents, &status, &rec.Reference, &rec.RecordedAt); err != nil {
			return nil, wrapDB("scan payment", err)
		}
		rec.Status = domain.PaymentRecordStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB("scan payments", err)
	}
	return out, nil
}
