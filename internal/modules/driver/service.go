// README: Driver service: online/verification updates and ban handling.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	applog "medtrans/internal/log"
	"medtrans/internal/types"
)

var (
	ErrNotFound   = errors.New("driver not found")
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("forbidden")
	ErrBanned     = fmt.Errorf("%w: driver is banned", ErrForbidden)
)

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Availability, error)
	SetOnlineStatus(ctx context.Context, id types.ID, status OnlineStatus) (*Availability, error)
	// SetOnlineStatusUnlessBanned fails with ErrBanned, without writing, if the driver is banned
	// at the time of the write.
	SetOnlineStatusUnlessBanned(ctx context.Context, id types.ID, status OnlineStatus) (*Availability, error)
	SetVerificationStatus(ctx context.Context, id types.ID, status VerificationStatus) (*Availability, error)
}

// Releaser returns a driver's open bookings to the job pool.
type Releaser interface {
	ReleaseAllForDriver(ctx context.Context, driverID types.ID, actor types.Actor, reason string) (int, error)
}

type Service struct {
	repo     Repository
	releaser Releaser
	policy   BanPolicy
	log      zerolog.Logger
}

func NewService(repo Repository, releaser Releaser, policy BanPolicy) *Service {
	return &Service{
		repo:     repo,
		releaser: releaser,
		policy:   policy,
		log:      applog.WithComponent("driver"),
	}
}

func (s *Service) Policy() BanPolicy { return s.policy }

func (s *Service) Get(ctx context.Context, id types.ID) (*Availability, error) {
	return s.repo.Get(ctx, id)
}

type SetOnlineCommand struct {
	DriverID types.ID
	Status   OnlineStatus
	Actor    types.Actor
}

// SetOnlineResult reports the new availability and how many bookings a ban released.
type SetOnlineResult struct {
	Availability *Availability
	Released     int
}

func (s *Service) SetOnline(ctx context.Context, cmd SetOnlineCommand) (*SetOnlineResult, error) {
	if cmd.DriverID == "" || !cmd.Status.Valid() {
		return nil, ErrBadRequest
	}
	var (
		a   *Availability
		err error
	)
	switch cmd.Actor.Kind {
	case types.ActorAdmin:
		a, err = s.repo.SetOnlineStatus(ctx, cmd.DriverID, cmd.Status)
	case types.ActorDriver:
		if cmd.Actor.ID != cmd.DriverID {
			return nil, ErrForbidden
		}
		if cmd.Status == OnlineBanned {
			return nil, fmt.Errorf("%w: drivers cannot ban themselves", ErrForbidden)
		}
		a, err = s.repo.SetOnlineStatusUnlessBanned(ctx, cmd.DriverID, cmd.Status)
	default:
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	res := &SetOnlineResult{Availability: a}
	if cmd.Status != OnlineBanned {
		return res, nil
	}

	s.log.Info().Str("driver_id", string(cmd.DriverID)).Str("policy", string(s.policy)).Msg("driver banned")
	if s.policy != BanReleaseActive || s.releaser == nil {
		return res, nil
	}
	n, err := s.releaser.ReleaseAllForDriver(ctx, cmd.DriverID, types.System(), "driver banned")
	res.Released = n
	if err != nil {
		return res, fmt.Errorf("release bookings of banned driver: %w", err)
	}
	return res, nil
}

func (s *Service) SetVerification(ctx context.Context, actor types.Actor, driverID types.ID, status VerificationStatus) (*Availability, error) {
	if actor.Kind != types.ActorAdmin {
		return nil, ErrForbidden
	}
	if driverID == "" || !status.Valid() {
		return nil, ErrBadRequest
	}
	return s.repo.SetVerificationStatus(ctx, driverID, status)
}
