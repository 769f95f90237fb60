// README: Guards for every booking mutation. They run against the locked row, never a cached read.
package booking

import (
	"context"
	"errors"
	"fmt"

	"medtrans/internal/modules/driver"
	"medtrans/internal/types"
)

// CanTransition reports whether a plain status update from → to is allowed for the actor kind.
// Drivers move exactly one step forward; admins may skip ahead. Leaving pending (assignment),
// returning to pending (release) and cancelling have their own entry points and are never
// plain updates.
func CanTransition(from, to Status, kind types.ActorKind) bool {
	if from.Terminal() || from == StatusPending {
		return false
	}
	if !to.Valid() || to == StatusPending || to == StatusCancelled {
		return false
	}
	fp, tp := from.Position(), to.Position()
	switch kind {
	case types.ActorDriver:
		return tp == fp+1
	case types.ActorAdmin:
		return tp > fp
	}
	return false
}

// patientCancellable lists the statuses before irreversible progress (pickup).
var patientCancellable = map[Status]bool{
	StatusPending:     true,
	StatusAccepted:    true,
	StatusGoingPickup: true,
}

// driverReleasable lists the statuses a driver may hand back to the pool.
var driverReleasable = map[Status]bool{
	StatusAccepted:    true,
	StatusGoingPickup: true,
}

func checkOpen(b *Booking) error {
	if b.Status.Terminal() {
		return fmt.Errorf("%w: booking #%d is %s", ErrTerminalState, b.ID, b.Status)
	}
	return nil
}

func checkTransition(b *Booking, to Status, actor types.Actor) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if err := checkOpen(b); err != nil {
		return err
	}
	if to == StatusPending {
		return fmt.Errorf("%w: a booking returns to pending only by release", ErrInvalidTransition)
	}
	if b.Status == StatusPending {
		return ErrNoDriverAssigned
	}
	switch actor.Kind {
	case types.ActorDriver:
		if !b.HasDriver(actor.ID) {
			return fmt.Errorf("%w: booking #%d is not assigned to %s", ErrIneligible, b.ID, actor.ID)
		}
	case types.ActorAdmin:
	default:
		return fmt.Errorf("%w: %s cannot update status", ErrIneligible, actor.Kind)
	}
	if to == StatusCancelled {
		return fmt.Errorf("%w: use cancel to close a booking", ErrInvalidTransition)
	}
	if !CanTransition(b.Status, to, actor.Kind) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	if (to == StatusPaymented || to == StatusSuccess) && b.PaymentStatus != PaymentVerified {
		return fmt.Errorf("%w: payment is %s", ErrPaymentState, b.PaymentStatus)
	}
	return nil
}

func checkPatientCancel(b *Booking, actor types.Actor) error {
	if err := checkOpen(b); err != nil {
		return err
	}
	if actor.Kind != types.ActorPatient || b.PatientID != actor.ID {
		return fmt.Errorf("%w: only the owning patient can cancel", ErrIneligible)
	}
	if !patientCancellable[b.Status] {
		return fmt.Errorf("%w: cannot cancel once %s", ErrInvalidTransition, b.Status)
	}
	return nil
}

func checkForceCancel(b *Booking, actor types.Actor) error {
	if err := checkOpen(b); err != nil {
		return err
	}
	if actor.Kind != types.ActorAdmin {
		return fmt.Errorf("%w: force cancel is admin only", ErrIneligible)
	}
	return nil
}

func checkRelease(b *Booking, actor types.Actor, expectDriver types.ID) error {
	if err := checkOpen(b); err != nil {
		return err
	}
	if b.Status == StatusPending {
		return ErrNoDriverAssigned
	}
	if expectDriver != "" && !b.HasDriver(expectDriver) {
		return fmt.Errorf("%w: booking #%d changed driver", ErrConflict, b.ID)
	}
	switch actor.Kind {
	case types.ActorDriver:
		if !b.HasDriver(actor.ID) {
			return fmt.Errorf("%w: booking #%d is not assigned to %s", ErrIneligible, b.ID, actor.ID)
		}
		if !driverReleasable[b.Status] {
			return fmt.Errorf("%w: cannot return a job once %s", ErrInvalidTransition, b.Status)
		}
	case types.ActorAdmin, types.ActorSystem:
	default:
		return fmt.Errorf("%w: %s cannot release", ErrIneligible, actor.Kind)
	}
	return nil
}

// checkClaimable re-validates pool membership under the row lock.
func checkClaimable(b *Booking) error {
	if err := checkOpen(b); err != nil {
		return err
	}
	if b.Status != StatusPending || b.DriverID != nil {
		return ErrConflict
	}
	return nil
}

func checkEligible(ctx context.Context, tx Tx, driverID types.ID) error {
	a, err := tx.DriverAvailability(ctx, driverID)
	if errors.Is(err, driver.ErrNotFound) {
		return fmt.Errorf("%w: driver %s is not registered", ErrIneligible, driverID)
	}
	if err != nil {
		return err
	}
	if !a.Eligible() {
		return fmt.Errorf("%w: driver %s is %s/%s", ErrIneligible, driverID, a.OnlineStatus, a.VerificationStatus)
	}
	return nil
}
