package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"lodgebook/internal/adapters/observability"
	"lodgebook/internal/domain"
)

// RefundDispatcher retries refunds that could not be issued inline at
// cancellation time. Each attempt reuses the booking's idempotency key, so
// at-least-once delivery is safe.
type RefundDispatcher struct {
	repo    domain.BookingRepository
	gateway domain.PaymentGateway
	workers int64
}

func NewRefundDispatcher(r domain.BookingRepository, g domain.PaymentGateway, workers int) *RefundDispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &RefundDispatcher{repo: r, gateway: g, workers: int64(workers)}
}

// Run processes one batch of pending refunds and returns how many settled.
func (d *RefundDispatcher) Run(ctx context.Context, batchSize int) (int, error) {
	pending, err := d.repo.ListPendingRefunds(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	sem := semaphore.NewWeighted(d.workers)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)
	for _, b := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(b domain.Booking) {
			defer wg.Done()
			defer sem.Release(1)

			err := d.gateway.Refund(ctx, domain.RefundRequest{
				BookingID:      b.ID,
				Reference:      b.PaymentRef,
				AmountCents:    b.RefundPendingCents,
				IdempotencyKey: RefundIdempotencyKey(b),
			})
			if err != nil {
				observability.ObserveRefund("retry_failed")
				log.Warn().Int64("booking_id", b.ID).Err(err).Msg("refund retry failed")
				return
			}
			if err := d.repo.SettleRefund(ctx, b.ID); err != nil {
				log.Warn().Int64("booking_id", b.ID).Err(err).Msg("settle refund failed")
				return
			}
			observability.ObserveRefund("issued")
			log.Info().Int64("booking_id", b.ID).Int64("amount_cents", b.RefundPendingCents).Msg("refund settled")
			mu.Lock()
			settled++
			mu.Unlock()
		}(b)
	}
	wg.Wait()
	return settled, nil
}
