package mysql

// bookingColumns is the canonical column order shared by every booking
// SELECT so all scanners agree.
const bookingColumns = `
  id, confirmation_code, unit_id, check_in, check_out,
  adults, children, infants, has_pet, policy,
  nightly_rate_cents, cleaning_fee_cents, pet_fee_cents, city_tax_cents,
  credit_cents, total_cents,
  status, guest_details_complete,
  cancel_reason, cancel_note, refund_issued, cancelled_at,
  refund_pending_cents, payment_ref,
  created_at, updated_at`

const getBookingSQL = `SELECT` + bookingColumns + `
FROM bookings
WHERE id = ?`

const getBookingByCodeSQL = `SELECT` + bookingColumns + `
FROM bookings
WHERE confirmation_code = ?`

// Row lock held until commit; no other writer can interleave a conflicting
// transition on this booking.
const getBookingForUpdateSQL = getBookingSQL + `
FOR UPDATE`

const insertBookingSQL = `
INSERT INTO bookings
  (confirmation_code, unit_id, check_in, check_out,
   adults, children, infants, has_pet, policy,
   nightly_rate_cents, cleaning_fee_cents, pet_fee_cents, city_tax_cents,
   credit_cents, total_cents,
   status, guest_details_complete)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Only lifecycle fields are mutable; the snapshotted commercial fields never
// change after creation.
const updateBookingSQL = `
UPDATE bookings SET
  status                 = ?,
  guest_details_complete = ?,
  cancel_reason          = ?,
  cancel_note            = ?,
  refund_issued          = ?,
  cancelled_at           = ?,
  refund_pending_cents   = ?,
  payment_ref            = ?,
  updated_at             = CURRENT_TIMESTAMP
WHERE id = ?`

// Half-open interval overlap over the active statuses, excluding the
// candidate booking. Locks the matching rows so a concurrent writer cannot
// slip a conflicting booking in between check and write.
const overlapExistsSQL = `
SELECT COUNT(*)
FROM bookings
WHERE unit_id = ?
  AND id <> ?
  AND status IN ('pending', 'confirmed', 'paid', 'checked_in')
  AND check_in < ?
  AND ? < check_out
FOR UPDATE`

const insertPaymentSQL = `
INSERT INTO payment_records (booking_id, amount_cents, status, reference)
VALUES (?, ?, ?, ?)`

const listPaymentsSQL = `
SELECT id, booking_id, amount_cents, status, reference, recorded_at
FROM payment_records
WHERE booking_id = ?
ORDER BY recorded_at, id`

const listPendingRefundsSQL = `SELECT` + bookingColumns + `
FROM bookings
WHERE refund_pending_cents > 0
ORDER BY cancelled_at
LIMIT ?`

const settleRefundSQL = `
UPDATE bookings SET
  refund_pending_cents = 0,
  refund_issued        = 1,
  updated_at           = CURRENT_TIMESTAMP
WHERE id = ?`
