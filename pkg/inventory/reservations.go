package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ReserveInput describes a reservation request from one sales channel.
type ReserveInput struct {
	StoreID          StoreID
	VariantID        VariantID
	Channel          Channel
	Quantity         Quantity
	RefType          RefType
	RefID            string
	ExpiresAtUnixUTC int64
	Note             string
	Actor            string
}

func (input ReserveInput) validate() error {
	if input.StoreID <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidStoreID)
	}
	if input.VariantID <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidVariantID)
	}
	if input.Quantity <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidQuantity)
	}
	if _, err := ParseChannel(input.Channel.String()); err != nil {
		return err
	}
	if _, err := ParseRefType(input.RefType.String()); err != nil {
		return err
	}
	return nil
}

// Reserve places a hold on available stock. Channels whose policy
// forbids backorders are capped at current availability; the rest may
// reserve past it, which drives available negative.
func (service *Service) Reserve(ctx context.Context, input ReserveInput) (Reservation, error) {
	var reservation Reservation
	operationError := func() error {
		if err := input.validate(); err != nil {
			return err
		}
		key := LineKey{StoreID: input.StoreID, VariantID: input.VariantID}
		release, err := service.locks.Acquire(ctx, key.String(), service.lockWait)
		if err != nil {
			return err
		}
		defer release()
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			line, err := txStore.LockStockLine(ctx, input.StoreID, input.VariantID)
			if err != nil {
				return err
			}
			available := line.OnHand - line.Reserved
			if !service.policy.AllowsBackorder(input.Channel) && available < input.Quantity.Int64() {
				return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientAvailability, input.Quantity, available)
			}
			reservation = Reservation{
				ReservationID:    uuid.NewString(),
				StoreID:          input.StoreID,
				VariantID:        input.VariantID,
				Channel:          input.Channel,
				Quantity:         input.Quantity,
				RefType:          input.RefType,
				RefID:            input.RefID,
				Status:           ReservationStatusActive,
				ExpiresAtUnixUTC: input.ExpiresAtUnixUTC,
				Note:             input.Note,
				CreatedBy:        input.Actor,
				CreatedUnixUTC:   service.nowFn(),
			}
			if err := txStore.CreateReservation(ctx, reservation); err != nil {
				return err
			}
			_, err = service.postLocked(ctx, txStore, PostInput{
				StoreID:       input.StoreID,
				VariantID:     input.VariantID,
				DeltaReserved: input.Quantity.Int64(),
				ReasonCode:    ReasonReservationHold,
				RefType:       RefTypeReservation,
				RefID:         reservation.ReservationID,
				Actor:         input.Actor,
			})
			return err
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:     operationReserve,
		StoreID:       input.StoreID,
		VariantID:     input.VariantID,
		ReservationID: reservation.ReservationID,
		Quantity:      input.Quantity.Int64(),
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return reservation, nil
}

// CommitReservation converts an active hold into an actual stock
// deduction: on-hand and reserved drop by the reserved quantity in one
// posting, so no intermediate state is observable.
func (service *Service) CommitReservation(ctx context.Context, reservationID string, actor string) (Reservation, error) {
	reservation, operationError := service.closeReservation(ctx, reservationID, actor, ReservationStatusCommitted)
	service.logOperation(ctx, OperationLog{
		Operation:     operationCommit,
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

// ReleaseReservation cancels an active hold, returning the reserved
// quantity without touching on-hand.
func (service *Service) ReleaseReservation(ctx context.Context, reservationID string, actor string) (Reservation, error) {
	reservation, operationError := service.closeReservation(ctx, reservationID, actor, ReservationStatusReleased)
	service.logOperation(ctx, OperationLog{
		Operation:     operationRelease,
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

// closeReservation drives the ACTIVE -> terminal transition shared by
// commit, release, and expiry. The compare-and-swap status update makes
// a lost race surface as ErrInvalidState instead of a double posting.
func (service *Service) closeReservation(ctx context.Context, reservationID string, actor string, target ReservationStatus) (Reservation, error) {
	reservation, err := service.store.GetReservation(ctx, reservationID)
	if err != nil {
		return Reservation{}, err
	}
	if reservation.Status.Terminal() {
		return reservation, fmt.Errorf("%w: reservation is %s", ErrInvalidState, reservation.Status)
	}
	release, err := service.locks.Acquire(ctx, reservation.Key().String(), service.lockWait)
	if err != nil {
		return reservation, err
	}
	defer release()
	err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return fmt.Errorf("%w: reservation is %s", ErrInvalidState, current.Status)
		}
		now := service.nowFn()
		if target == ReservationStatusCommitted && current.ExpiredAt(now) {
			return fmt.Errorf("%w: expired at %d", ErrReservationExpired, current.ExpiresAtUnixUTC)
		}
		if target == ReservationStatusExpired && !current.ExpiredAt(now) {
			return fmt.Errorf("%w: reservation has not expired", ErrInvalidState)
		}
		if err := txStore.UpdateReservationStatus(ctx, reservationID, ReservationStatusActive, target); err != nil {
			return err
		}
		input := PostInput{
			StoreID:       current.StoreID,
			VariantID:     current.VariantID,
			DeltaReserved: -current.Quantity.Int64(),
			RefType:       RefTypeReservation,
			RefID:         reservationID,
			Actor:         actor,
		}
		switch target {
		case ReservationStatusCommitted:
			input.DeltaOnHand = -current.Quantity.Int64()
			input.ReasonCode = ReasonReservationCommit
		case ReservationStatusReleased:
			input.ReasonCode = ReasonReservationRelease
		case ReservationStatusExpired:
			input.ReasonCode = ReasonReservationExpiry
		default:
			return fmt.Errorf("%w: cannot close to %s", ErrInvalidState, target)
		}
		if _, err := service.postLocked(ctx, txStore, input); err != nil {
			return err
		}
		reservation = current
		reservation.Status = target
		return nil
	})
	return reservation, err
}

// Key returns the stock line key the reservation holds against.
func (reservation Reservation) Key() LineKey {
	return LineKey{StoreID: reservation.StoreID, VariantID: reservation.VariantID}
}

// GetReservation fetches one reservation by id.
func (service *Service) GetReservation(ctx context.Context, reservationID string) (Reservation, error) {
	return service.store.GetReservation(ctx, reservationID)
}

// ListReservations lists reservations matching the filter.
func (service *Service) ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return service.store.ListReservations(ctx, filter)
}
