// README: Booking service: creation, the job pool, assignment, status transitions, payment and
// deletion. Realtime events go out only after the change has committed.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	applog "medtrans/internal/log"
	"medtrans/internal/modules/driver"
	"medtrans/internal/modules/realtime"
	"medtrans/internal/modules/timeline"
	"medtrans/internal/types"
)

type Repository interface {
	Create(ctx context.Context, b *Booking, entry *timeline.Entry) error
	Get(ctx context.Context, id int64) (*Booking, error)
	ListOpen(ctx context.Context, sort SortOrder) ([]*Booking, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]*Booking, error)
	Mutate(ctx context.Context, id int64, fn MutateFunc) (*Booking, error)
	Delete(ctx context.Context, id int64, fn MutateFunc) (*Booking, error)
	Timeline(ctx context.Context, id int64) ([]timeline.Entry, error)
}

// Tx is the read surface available to guards while the booking row is locked.
type Tx interface {
	DriverAvailability(ctx context.Context, id types.ID) (*driver.Availability, error)
}

// MutateFunc validates and edits the locked booking. Returning an error aborts the change.
type MutateFunc func(ctx context.Context, tx Tx, b *Booking) (*timeline.Entry, error)

// Publisher receives committed changes; implementations must not block the caller for long.
type Publisher interface {
	Publish(ctx context.Context, ev realtime.Event)
}

type Service struct {
	repo   Repository
	events Publisher
	log    zerolog.Logger
}

func NewService(repo Repository, events Publisher) *Service {
	return &Service{
		repo:   repo,
		events: events,
		log:    applog.WithComponent("booking"),
	}
}

func (s *Service) publish(ctx context.Context, ev realtime.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, ev)
}

type CreateCommand struct {
	PatientID     types.ID
	Pickup        types.Place
	Dropoff       types.Place
	ScheduledDate string
	ScheduledTime string
	Note          string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, error) {
	if cmd.PatientID == "" {
		return nil, fmt.Errorf("%w: patient is required", ErrBadRequest)
	}
	if strings.TrimSpace(cmd.Pickup.Address) == "" || strings.TrimSpace(cmd.Dropoff.Address) == "" {
		return nil, fmt.Errorf("%w: pickup and dropoff are required", ErrBadRequest)
	}
	date, err := time.Parse(dateLayout, cmd.ScheduledDate)
	if err != nil {
		return nil, fmt.Errorf("%w: scheduled_date must be YYYY-MM-DD", ErrBadRequest)
	}
	// Stored as zero-padded text so schedule ordering matches clock order ("09:05" < "10:00").
	at, err := time.Parse(timeLayout, cmd.ScheduledTime)
	if err != nil {
		return nil, fmt.Errorf("%w: scheduled_time must be HH:MM", ErrBadRequest)
	}

	b := &Booking{
		Status:        StatusPending,
		PaymentStatus: PaymentNone,
		PatientID:     cmd.PatientID,
		Pickup:        cmd.Pickup,
		Dropoff:       cmd.Dropoff,
		ScheduledDate: date.Format(dateLayout),
		ScheduledTime: at.Format(timeLayout),
		Note:          cmd.Note,
	}
	entry := timeline.NewEntry(timeline.EventCreated, types.Patient(cmd.PatientID), "booking created by patient %s", cmd.PatientID)
	if err := s.repo.Create(ctx, b, entry); err != nil {
		return nil, err
	}
	s.log.Info().Int64("booking_id", b.ID).Str("patient_id", string(b.PatientID)).Msg("booking created")
	s.publish(ctx, realtime.NewBookingCreated(b.Snapshot()))
	return b, nil
}

// Get returns the booking if actor may see it: admins see everything, patients their own
// bookings, drivers the pool and the bookings they hold. Hidden bookings read as ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64, actor types.Actor) (*Booking, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(b, actor) {
		return nil, ErrNotFound
	}
	return b, nil
}

func visible(b *Booking, actor types.Actor) bool {
	switch actor.Kind {
	case types.ActorAdmin, types.ActorSystem:
		return true
	case types.ActorPatient:
		return b.PatientID == actor.ID
	case types.ActorDriver:
		return b.HasDriver(actor.ID) || (b.Status == StatusPending && b.DriverID == nil)
	}
	return false
}

// ListOpen is the job pool. It reads a snapshot; a listed job may be gone by the time it is claimed.
func (s *Service) ListOpen(ctx context.Context, sort SortOrder) ([]*Booking, error) {
	return s.repo.ListOpen(ctx, sort)
}

func (s *Service) ListForDriver(ctx context.Context, driverID types.ID) ([]*Booking, error) {
	return s.repo.ListByDriver(ctx, driverID)
}

func (s *Service) Timeline(ctx context.Context, id int64, actor types.Actor) ([]timeline.Entry, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.repo.Timeline(ctx, id)
}

type ClaimCommand struct {
	BookingID int64
	DriverID  types.ID
}

// Claim lets a driver take a pooled job. Exactly one of any set of concurrent claims on the
// same booking succeeds; the rest get ErrConflict.
func (s *Service) Claim(ctx context.Context, cmd ClaimCommand) (*Booking, error) {
	if cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	b, err := s.repo.Mutate(ctx, cmd.BookingID, func(ctx context.Context, tx Tx, b *Booking) (*timeline.Entry, error) {
		if err := checkClaimable(b); err != nil {
			return nil, err
		}
		if err := checkEligible(ctx, tx, cmd.DriverID); err != nil {
			return nil, err
		}
		d := cmd.DriverID
		b.Status = StatusAccepted
		b.DriverID = &d
		return timeline.NewEntry(timeline.EventAccepted, types.Driver(d), "driver %s accepted the job", d), nil
	})
	dispatchTotal.WithLabelValues("claim", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("booking_id", b.ID).Str("driver_id", string(cmd.DriverID)).Msg("job claimed")
	s.publish(ctx, realtime.NewBookingAccepted(b.Snapshot()))
	return b, nil
}

type AssignCommand struct {
	BookingID int64
	DriverID  types.ID
	Actor     types.Actor
}

// Assign is the admin counterpart of Claim and races with it on equal terms.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Booking, error) {
	if cmd.Actor.Kind != types.ActorAdmin {
		return nil, fmt.Errorf("%w: assign is admin only", ErrIneligible)
	}
	if cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	b, err := s.repo.Mutate(ctx, cmd.BookingID, func(ctx context.Context, tx Tx, b *Booking) (*timeline.Entry, error) {
		if err := checkClaimable(b); err != nil {
			return nil, err
		}
		if err := checkEligible(ctx, tx, cmd.DriverID); err != nil {
			return nil, err
		}
		d := cmd.DriverID
		b.Status = StatusAccepted
		b.DriverID = &d
		return timeline.NewEntry(timeline.EventAssigned, cmd.Actor, "admin %s assigned driver %s", cmd.Actor.ID, d), nil
	})
	dispatchTotal.WithLabelValues("assign", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("booking_id", b.ID).Str("driver_id", string(cmd.DriverID)).Str("admin_id", string(cmd.Actor.ID)).Msg("job assigned")
	s.publish(ctx, realtime.NewBookingAssigned(b.Snapshot(), cmd.Actor.ID))
	return b, nil
}

type ReleaseCommand struct {
	BookingID int64
	Actor     types.Actor
	Reason    string
	// ExpectDriver, when set, makes the release fail with ErrConflict if the booking is no
	// longer held by that driver.
	ExpectDriver types.ID
}

// Release returns a booking to the pool. The result is indistinguishable from a freshly created
// pending booking apart from its timeline.
func (s *Service) Release(ctx context.Context, cmd ReleaseCommand) (*Booking, error) {
	var prev types.ID
	b, err := s.repo.Mutate(ctx, cmd.BookingID, func(ctx context.Context, _ Tx, b *Booking) (*timeline.Entry, error) {
		if err := checkRelease(b, cmd.Actor, cmd.ExpectDriver); err != nil {
			return nil, err
		}
		prev = b.driverOrEmpty()
		b.Status = StatusPending
		b.DriverID = nil
		b.PaymentStatus = PaymentNone
		b.PaymentSlip = ""
		msg := fmt.Sprintf("%s %s returned the job from driver %s to the pool", cmd.Actor.Kind, cmd.Actor.ID, prev)
		if cmd.Actor.Kind == types.ActorSystem {
			msg = fmt.Sprintf("job of driver %s returned to the pool", prev)
		}
		if cmd.Reason != "" {
			msg += ": " + cmd.Reason
		}
		return timeline.NewEntry(timeline.EventReturned, cmd.Actor, "%s", msg), nil
	})
	dispatchTotal.WithLabelValues("release", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("booking_id", b.ID).Str("previous_driver_id", string(prev)).Str("actor", string(cmd.Actor.Kind)).Msg("job released")
	s.publish(ctx, realtime.NewBookingReturned(b.Snapshot(), prev, cmd.Actor.Kind == types.ActorDriver && cmd.Actor.ID == prev))
	return b, nil
}

// ReleaseAllForDriver returns every open booking held by driverID to the pool. Bookings that
// moved on concurrently are skipped.
func (s *Service) ReleaseAllForDriver(ctx context.Context, driverID types.ID, actor types.Actor, reason string) (int, error) {
	held, err := s.repo.ListByDriver(ctx, driverID)
	if err != nil {
		return 0, err
	}
	var (
		n    int
		errs []error
	)
	for _, b := range held {
		_, err := s.Release(ctx, ReleaseCommand{BookingID: b.ID, Actor: actor, Reason: reason, ExpectDriver: driverID})
		switch {
		case err == nil:
			n++
		case errors.Is(err, ErrConflict), errors.Is(err, ErrTerminalState), errors.Is(err, ErrNoDriverAssigned), errors.Is(err, ErrNotFound):
			s.log.Debug().Int64("booking_id", b.ID).Err(err).Msg("skip release")
		default:
			errs = append(errs, fmt.Errorf("booking #%d: %w", b.ID, err))
		}
	}
	return n, errors.Join(errs...)
}

type TransitionCommand struct {
	BookingID int64
	To        Status
	Actor     types.Actor
	Reason    string
}

// Transition applies a status update. An admin targeting cancelled is routed to ForceCancel.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Booking, error) {
	if !cmd.To.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, cmd.To)
	}
	if cmd.To == StatusCancelled && cmd.Actor.Kind == types.ActorAdmin {
		return s.ForceCancel(ctx, CancelCommand{BookingID: cmd.BookingID, Actor: cmd.Actor, Reason: cmd.Reason})
	}
	var prev Status
	b, err := s.repo.Mutate(ctx, cmd.BookingID, func(ctx context.Context, _ Tx, b *Booking) (*timeline.Entry, error) {
		if err := checkTransition(b, cmd.To, cmd.Actor); err != nil {
			return nil, err
		}
		prev = b.Status
		b.Status = cmd.To
		msg := fmt.Sprintf("%s %s changed status %s -> %s", cmd.Actor.Kind, cmd.Actor.ID, prev, cmd.To)
		if cmd.Reason != "" {
			msg += ": " + cmd.Reason
		}
		return timeline.NewEntry(timeline.EventStatusChanged, cmd.Actor, "%s", msg), nil
	})
	if err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues(string(cmd.To), string(cmd.Actor.Kind)).Inc()
	s.log.Info().Int64("booking_id", b.ID).Str("from", string(prev)).Str("to", string(b.Status)).Str("actor", string(cmd.Actor.Kind)).Msg("status changed")
	if cmd.Actor.Kind == types.ActorDriver {
		s.publish(ctx, realtime.NewStatusUpdated(b.Snapshot(), string(prev)))
	} else {
		s.publish(ctx, realtime.NewAdminStatusUpdated(b.Snapshot(), string(prev), cmd.Reason))
	}
	return b, nil
}

type CancelCommand struct {
	BookingID int64
	Actor     types.Actor
	Reason    string
}

// PatientCancel lets the owning patient cancel before pickup.
func (s *Service) PatientCancel(ctx context.Context, cmd CancelCommand) (*Booking, error) {
	var prev Status
	b, err := s.repo.Mutate(ctx, cmd.BookingID, func(ctx context.Context, _ Tx, b *Booking) (*timeline.Entry, error) {
		if err := checkPatientCancel(b, cmd.Actor); err != nil {
			return nil, err
		}
		prev = b.Status
		b.Status = StatusCancelled
		return cancelEntry(cmd), nil
	})
	if err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues(string(StatusCancelled), string(cmd.Actor.Kind)).Inc()
	s.log.Info().Int64("booking_id", b.ID).Str("from", string(prev)).Msg("booking cancelled by patient")
	s.publish(ctx, realtime.NewPatientCancelled(b.Snapshot(), string(prev), cmd.Reason))
	return b, nil
}

// ForceCancel lets an admin cancel any non-terminal booking.
func (s *Service) ForceCancel(ctx context.Context, cmd CancelCommand) (*Booking, error) {
	var prev Status
	b, err := s.repo.Mutate(ctx, cmd.BookingID, func(ctx context.Context, _ Tx, b *Booking) (*timeline.Entry, error) {
		if err := checkForceCancel(b, cmd.Actor); err != nil {
			return nil, err
		}
		prev = b.Status
		b.Status = StatusCancelled
		return cancelEntry(cmd), nil
	})
	if err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues(string(StatusCancelled), string(cmd.Actor.Kind)).Inc()
	s.log.Info().Int64("booking_id", b.ID).Str("from", string(prev)).Str("admin_id", string(cmd.Actor.ID)).Msg("booking force cancelled")
	s.publish(ctx, realtime.NewAdminStatusUpdated(b.Snapshot(), string(prev), cmd.Reason))
	return b, nil
}

func cancelEntry(cmd CancelCommand) *timeline.Entry {
	msg := fmt.Sprintf("%s %s cancelled the booking", cmd.Actor.Kind, cmd.Actor.ID)
	if cmd.Reason != "" {
		msg += ": " + cmd.Reason
	}
	return timeline.NewEntry(timeline.EventCancelled, cmd.Actor, "%s", msg)
}

type SlipCommand struct {
	BookingID int64
	Actor     types.Actor
	SlipRef   string
}

// SubmitSlip records the patient's payment slip reference and waits for admin review.
func (s *Service) SubmitSlip(ctx context.Context, cmd SlipCommand) (*Booking, error) {
	if strings.TrimSpace(cmd.SlipRef) == "" {
		return nil, fmt.Errorf("%w: slip reference is required", ErrBadRequest)
	}
	b, err := s.repo.Mutate(ctx, cmd.BookingID, func(ctx context.Context, _ Tx, b *Booking) (*timeline.Entry, error) {
		if err := checkOpen(b); err != nil {
			return nil, err
		}
		if cmd.Actor.Kind != types.ActorPatient || b.PatientID != cmd.Actor.ID {
			return nil, fmt.Errorf("%w: only the owning patient can pay", ErrIneligible)
		}
		if b.Status != StatusPendingPayment {
			return nil, fmt.Errorf("%w: booking is %s", ErrPaymentState, b.Status)
		}
		if b.PaymentStatus != PaymentNone && b.PaymentStatus != PaymentRejected {
			return nil, fmt.Errorf("%w: payment is %s", ErrPaymentState, b.PaymentStatus)
		}
		b.PaymentStatus = PaymentWaitingVerify
		b.PaymentSlip = cmd.SlipRef
		return timeline.NewEntry(timeline.EventPaymentSubmitted, cmd.Actor, "patient %s submitted a payment slip", cmd.Actor.ID), nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("booking_id", b.ID).Msg("payment slip submitted")
	s.publish(ctx, realtime.NewSlipSubmitted(b.Snapshot()))
	return b, nil
}

type PaymentReviewCommand struct {
	BookingID int64
	Actor     types.Actor
	Reason    string
}

// VerifyPayment accepts the submitted slip and, for a booking awaiting payment, moves it to
// paymented in the same change.
func (s *Service) VerifyPayment(ctx context.Context, cmd PaymentReviewCommand) (*Booking, error) {
	var prev Status
	b, err := s.repo.Mutate(ctx, cmd.BookingID, func(ctx context.Context, _ Tx, b *Booking) (*timeline.Entry, error) {
		if err := checkPaymentReview(b, cmd.Actor); err != nil {
			return nil, err
		}
		prev = b.Status
		b.PaymentStatus = PaymentVerified
		if b.Status == StatusPendingPayment {
			b.Status = StatusPaymented
		}
		return timeline.NewEntry(timeline.EventPaymentVerified, cmd.Actor, "admin %s verified the payment", cmd.Actor.ID), nil
	})
	if err != nil {
		return nil, err
	}
	if b.Status != prev {
		transitionsTotal.WithLabelValues(string(b.Status), string(cmd.Actor.Kind)).Inc()
	}
	s.log.Info().Int64("booking_id", b.ID).Str("status", string(b.Status)).Msg("payment verified")
	s.publish(ctx, realtime.NewPaymentVerified(b.Snapshot(), string(prev)))
	return b, nil
}

func (s *Service) RejectPayment(ctx context.Context, cmd PaymentReviewCommand) (*Booking, error) {
	b, err := s.repo.Mutate(ctx, cmd.BookingID, func(ctx context.Context, _ Tx, b *Booking) (*timeline.Entry, error) {
		if err := checkPaymentReview(b, cmd.Actor); err != nil {
			return nil, err
		}
		b.PaymentStatus = PaymentRejected
		msg := fmt.Sprintf("admin %s rejected the payment", cmd.Actor.ID)
		if cmd.Reason != "" {
			msg += ": " + cmd.Reason
		}
		return timeline.NewEntry(timeline.EventPaymentRejected, cmd.Actor, "%s", msg), nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("booking_id", b.ID).Msg("payment rejected")
	s.publish(ctx, realtime.NewPaymentRejected(b.Snapshot(), cmd.Reason))
	return b, nil
}

func checkPaymentReview(b *Booking, actor types.Actor) error {
	if err := checkOpen(b); err != nil {
		return err
	}
	if actor.Kind != types.ActorAdmin {
		return fmt.Errorf("%w: payment review is admin only", ErrIneligible)
	}
	if b.PaymentStatus != PaymentWaitingVerify {
		return fmt.Errorf("%w: payment is %s", ErrPaymentState, b.PaymentStatus)
	}
	return nil
}

// Delete hard-deletes a booking. Its timeline survives with a final deleted entry.
func (s *Service) Delete(ctx context.Context, id int64, actor types.Actor) (*Booking, error) {
	b, err := s.repo.Delete(ctx, id, func(ctx context.Context, _ Tx, b *Booking) (*timeline.Entry, error) {
		if actor.Kind != types.ActorAdmin {
			return nil, fmt.Errorf("%w: delete is admin only", ErrIneligible)
		}
		return timeline.NewEntry(timeline.EventDeleted, actor, "admin %s deleted the booking in status %s", actor.ID, b.Status), nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Warn().Int64("booking_id", b.ID).Str("admin_id", string(actor.ID)).Msg("booking deleted")
	s.publish(ctx, realtime.NewBookingDeleted(b.Snapshot()))
	return b, nil
}
