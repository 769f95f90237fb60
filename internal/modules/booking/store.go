// README: Booking store backed by PostgreSQL. Every mutation locks the row, re-validates and commits
// the change together with its timeline entry.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"medtrans/internal/modules/driver"
	"medtrans/internal/modules/timeline"
	"medtrans/internal/types"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

const bookingColumns = `
	id, status, payment_status, patient_id, driver_id,
	pickup_address, pickup_lat, pickup_lng,
	dropoff_address, dropoff_lat, dropoff_lng,
	scheduled_date, scheduled_time, note, payment_slip,
	created_at, updated_at`

// Postgres error codes treated as a lost race rather than a failure.
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type Store struct {
	db          *pgxpool.Pool
	timeline    *timeline.Store
	lockTimeout time.Duration
}

func NewStore(db *pgxpool.Pool, tl *timeline.Store, lockTimeout time.Duration) *Store {
	return &Store{db: db, timeline: tl, lockTimeout: lockTimeout}
}

// now is truncated to the database's timestamp precision so the values handed to realtime
// consumers match what a later read returns.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (s *Store) Create(ctx context.Context, b *Booking, entry *timeline.Entry) error {
	date, err := time.Parse(dateLayout, b.ScheduledDate)
	if err != nil {
		return fmt.Errorf("%w: scheduled date: %v", ErrBadRequest, err)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ts := now()
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (
			status, payment_status, patient_id, driver_id,
			pickup_address, pickup_lat, pickup_lng,
			dropoff_address, dropoff_lat, dropoff_lng,
			scheduled_date, scheduled_time, note, payment_slip,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14,
			$15, $15
		) RETURNING id`,
		string(b.Status), string(b.PaymentStatus), string(b.PatientID), toStringPtr(b.DriverID),
		b.Pickup.Address, b.Pickup.Point.Lat, b.Pickup.Point.Lng,
		b.Dropoff.Address, b.Dropoff.Point.Lat, b.Dropoff.Point.Lng,
		date, b.ScheduledTime, b.Note, b.PaymentSlip,
		ts,
	).Scan(&b.ID)
	if err != nil {
		return err
	}
	b.CreatedAt, b.UpdatedAt = ts, ts
	entry.BookingID, entry.CreatedAt = b.ID, ts
	if err := s.timeline.Append(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id int64) (*Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

// ListOpen returns the job pool: pending bookings without a driver.
func (s *Store) ListOpen(ctx context.Context, sort SortOrder) ([]*Booking, error) {
	order := `created_at DESC, id DESC`
	if sort == SortScheduleAsc {
		order = `scheduled_date ASC, scheduled_time ASC, created_at ASC, id ASC`
	}
	return s.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'pending' AND driver_id IS NULL
		ORDER BY `+order)
}

// ListByDriver returns the non-terminal bookings held by driverID.
func (s *Store) ListByDriver(ctx context.Context, driverID types.ID) ([]*Booking, error) {
	return s.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE driver_id = $1 AND status NOT IN ('success', 'cancelled')
		ORDER BY scheduled_date ASC, scheduled_time ASC, id ASC`, string(driverID))
}

func (s *Store) list(ctx context.Context, sql string, args ...any) ([]*Booking, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Booking, error) {
		return scanBooking(row)
	})
}

// Mutate locks booking id, lets fn validate and change it, then writes the new state and the
// returned timeline entry in the same transaction. A lock wait longer than the configured
// timeout is reported as ErrConflict.
func (s *Store) Mutate(ctx context.Context, id int64, fn MutateFunc) (*Booking, error) {
	var out *Booking
	err := s.locked(ctx, id, func(tx pgx.Tx, b *Booking) error {
		entry, err := fn(ctx, &pgTx{tx: tx}, b)
		if err != nil {
			return err
		}
		ts := now()
		b.UpdatedAt = ts
		_, err = tx.Exec(ctx, `
			UPDATE bookings
			SET status = $1, payment_status = $2, driver_id = $3, payment_slip = $4, updated_at = $5
			WHERE id = $6`,
			string(b.Status), string(b.PaymentStatus), toStringPtr(b.DriverID), b.PaymentSlip, ts, b.ID,
		)
		if err != nil {
			return err
		}
		if entry != nil {
			entry.BookingID, entry.CreatedAt = b.ID, ts
			if err := s.timeline.Append(ctx, tx, entry); err != nil {
				return err
			}
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes booking id after fn approves it. The timeline keeps the deletion entry.
func (s *Store) Delete(ctx context.Context, id int64, fn MutateFunc) (*Booking, error) {
	var out *Booking
	err := s.locked(ctx, id, func(tx pgx.Tx, b *Booking) error {
		entry, err := fn(ctx, &pgTx{tx: tx}, b)
		if err != nil {
			return err
		}
		ts := now()
		b.UpdatedAt = ts
		if entry != nil {
			entry.BookingID, entry.CreatedAt = b.ID, ts
			if err := s.timeline.Append(ctx, tx, entry); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, b.ID); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Timeline(ctx context.Context, id int64) ([]timeline.Entry, error) {
	return s.timeline.List(ctx, id)
}

func (s *Store) locked(ctx context.Context, id int64, fn func(tx pgx.Tx, b *Booking) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		ms := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			return err
		}
	}
	b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return mapPgError(err)
	}
	if err := fn(tx, b); err != nil {
		return mapPgError(err)
	}
	return mapPgError(tx.Commit(ctx))
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}

// pgTx exposes the reads a guard may need inside the locking transaction.
type pgTx struct {
	tx pgx.Tx
}

// DriverAvailability reads the driver row FOR SHARE so a concurrent ban waits for this claim
// to commit, or this claim sees the ban.
func (t *pgTx) DriverAvailability(ctx context.Context, id types.ID) (*driver.Availability, error) {
	var a driver.Availability
	err := t.tx.QueryRow(ctx, `
		SELECT driver_id, online_status, verification_status, updated_at
		FROM drivers
		WHERE driver_id = $1
		FOR SHARE`, string(id),
	).Scan(&a.DriverID, &a.OnlineStatus, &a.VerificationStatus, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, driver.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var driverID *string
	var date time.Time
	err := row.Scan(
		&b.ID, &b.Status, &b.PaymentStatus, &b.PatientID, &driverID,
		&b.Pickup.Address, &b.Pickup.Point.Lat, &b.Pickup.Point.Lng,
		&b.Dropoff.Address, &b.Dropoff.Point.Lat, &b.Dropoff.Point.Lng,
		&date, &b.ScheduledTime, &b.Note, &b.PaymentSlip,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		d := types.ID(*driverID)
		b.DriverID = &d
	}
	b.ScheduledDate = date.Format(dateLayout)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
