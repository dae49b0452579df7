package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 60 * time.Second
	defaultSweepBatch    = 100
	sweeperActor         = "sweeper"
)

// ExpirySweeper transitions stale ACTIVE reservations to EXPIRED and
// frees their held quantity. Each expiry is its own atomic unit; one
// failed reservation never blocks the rest of the sweep.
type ExpirySweeper struct {
	service  *Service
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

// SweeperOption configures an ExpirySweeper.
type SweeperOption func(*ExpirySweeper)

// WithSweepInterval overrides the sweep cadence.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(sweeper *ExpirySweeper) {
		if interval > 0 {
			sweeper.interval = interval
		}
	}
}

// WithSweepBatch caps how many reservations one sweep examines.
func WithSweepBatch(batch int) SweeperOption {
	return func(sweeper *ExpirySweeper) {
		if batch > 0 {
			sweeper.batch = batch
		}
	}
}

// NewExpirySweeper wires a sweeper over the service.
func NewExpirySweeper(service *Service, logger *zap.Logger, options ...SweeperOption) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	sweeper := &ExpirySweeper{
		service:  service,
		interval: defaultSweepInterval,
		batch:    defaultSweepBatch,
		logger:   logger,
	}
	for _, option := range options {
		if option != nil {
			option(sweeper)
		}
	}
	return sweeper
}

// Run sweeps on a fixed interval until the context is cancelled.
func (sweeper *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := sweeper.SweepOnce(ctx)
			if err != nil {
				sweeper.logger.Warn("reservation sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 {
				sweeper.logger.Info("expired stale reservations", zap.Int("count", expired))
			}
		}
	}
}

// SweepOnce expires every stale ACTIVE reservation it can and returns
// how many it transitioned. Per-reservation failures are logged and
// skipped; only the listing itself is a hard error.
func (sweeper *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	stale, err := sweeper.service.store.ListExpiredReservations(ctx, sweeper.service.nowFn(), sweeper.batch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, reservation := range stale {
		if _, err := sweeper.service.expireReservation(ctx, reservation.ReservationID); err != nil {
			sweeper.logger.Warn("reservation expiry failed",
				zap.String("reservation_id", reservation.ReservationID),
				zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

// expireReservation closes one stale reservation and releases its hold.
func (service *Service) expireReservation(ctx context.Context, reservationID string) (Reservation, error) {
	reservation, operationError := service.closeReservation(ctx, reservationID, sweeperActor, ReservationStatusExpired)
	service.logOperation(ctx, OperationLog{
		Operation:     operationExpire,
		StoreID:       reservation.StoreID,
		VariantID:     reservation.VariantID,
		ReservationID: reservationID,
		Quantity:      reservation.Quantity.Int64(),
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return reservation, nil
}
