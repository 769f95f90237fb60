// README: Driver availability store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medtrans/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Availability, error) {
	var a Availability
	err := s.db.QueryRow(ctx, `
		SELECT driver_id, online_status, verification_status, updated_at
		FROM drivers
		WHERE driver_id = $1`, string(id),
	).Scan(&a.DriverID, &a.OnlineStatus, &a.VerificationStatus, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SetOnlineStatus upserts the online status; new drivers start unverified.
func (s *Store) SetOnlineStatus(ctx context.Context, id types.ID, status OnlineStatus) (*Availability, error) {
	return s.upsert(ctx, `
		INSERT INTO drivers (driver_id, online_status, verification_status, updated_at)
		VALUES ($1, $2, 'pending', $3)
		ON CONFLICT (driver_id) DO UPDATE
		SET online_status = EXCLUDED.online_status, updated_at = EXCLUDED.updated_at
		RETURNING driver_id, online_status, verification_status, updated_at`,
		string(id), string(status), time.Now().UTC(),
	)
}

// SetOnlineStatusUnlessBanned is SetOnlineStatus for self-service updates. The ban check is part
// of the upsert, so a ban committed concurrently always wins.
func (s *Store) SetOnlineStatusUnlessBanned(ctx context.Context, id types.ID, status OnlineStatus) (*Availability, error) {
	a, err := s.upsert(ctx, `
		INSERT INTO drivers (driver_id, online_status, verification_status, updated_at)
		VALUES ($1, $2, 'pending', $3)
		ON CONFLICT (driver_id) DO UPDATE
		SET online_status = EXCLUDED.online_status, updated_at = EXCLUDED.updated_at
		WHERE drivers.online_status <> 'banned'
		RETURNING driver_id, online_status, verification_status, updated_at`,
		string(id), string(status), time.Now().UTC(),
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBanned
	}
	return a, err
}

// SetVerificationStatus upserts the verification status; new drivers start inactive.
func (s *Store) SetVerificationStatus(ctx context.Context, id types.ID, status VerificationStatus) (*Availability, error) {
	return s.upsert(ctx, `
		INSERT INTO drivers (driver_id, online_status, verification_status, updated_at)
		VALUES ($1, 'inactive', $2, $3)
		ON CONFLICT (driver_id) DO UPDATE
		SET verification_status = EXCLUDED.verification_status, updated_at = EXCLUDED.updated_at
		RETURNING driver_id, online_status, verification_status, updated_at`,
		string(id), string(status), time.Now().UTC(),
	)
}

func (s *Store) upsert(ctx context.Context, sql string, args ...any) (*Availability, error) {
	var a Availability
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&a.DriverID, &a.OnlineStatus, &a.VerificationStatus, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
